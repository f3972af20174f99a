package service

import "exam_platform_backend/internal/model"

func sameInstitution(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// canManageExam is the single ownership rule for exam mutations and for
// reading other students' results. Exams without an institution are open to
// every educator.
func canManageExam(user model.Identity, exam *model.Exam) bool {
	switch {
	case user.IsAdmin():
		return true
	case user.Role != model.Educator:
		return false
	case exam.CreatedBy == user.ID:
		return true
	case exam.InstitutionID == nil:
		return true
	}
	return sameInstitution(user.InstitutionID, exam.InstitutionID)
}

// canArchiveExam is narrower: only the creator or an admin.
func canArchiveExam(user model.Identity, exam *model.Exam) bool {
	return user.IsAdmin() || exam.CreatedBy == user.ID
}

func canManageQuestion(user model.Identity, q *model.Question) bool {
	switch {
	case user.IsAdmin():
		return true
	case user.Role != model.Educator:
		return false
	case q.CreatedBy == user.ID:
		return true
	case q.InstitutionID == nil:
		return true
	}
	return sameInstitution(user.InstitutionID, q.InstitutionID)
}
