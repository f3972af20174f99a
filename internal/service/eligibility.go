package service

import (
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
)

type EligibilityPurpose int

const (
	// PurposeView is a student opening an exam, including a past one.
	PurposeView EligibilityPurpose = iota
	// PurposeList is the available-exams listing.
	PurposeList
	// PurposeStart gates startAttempt.
	PurposeStart
)

// EligibilityFacts is everything the decision needs, gathered up front so
// CheckEligibility stays free of I/O.
type EligibilityFacts struct {
	Student *model.User
	Exam    *model.Exam
	Now     time.Time
	// Enrolled is only consulted when the exam is linked to a course.
	Enrolled       bool
	AttemptsUsed   int64
	HasOpenAttempt bool
}

func statusAllowed(purpose EligibilityPurpose, status model.ExamStatus) bool {
	switch status {
	case model.ExamPublished, model.ExamActive:
		return true
	case model.ExamCompleted:
		return purpose == PurposeView
	}
	return false
}

// CheckEligibility returns nil when the student may proceed, or the error
// describing the first failed check.
func CheckEligibility(purpose EligibilityPurpose, f EligibilityFacts) error {
	exam := f.Exam
	student := f.Student

	if !statusAllowed(purpose, exam.Status) {
		if purpose == PurposeStart {
			return util.ErrExamNotOpen
		}
		return util.ErrExamNotFound
	}

	if exam.StartTime != nil && f.Now.Before(*exam.StartTime) {
		return util.ErrExamNotStarted
	}
	// a completed exam stays viewable after its window closes
	pastExam := purpose == PurposeView && exam.Status == model.ExamCompleted
	if !pastExam && exam.EndTime != nil && f.Now.After(*exam.EndTime) {
		return util.ErrExamEnded
	}

	// Unassigned and foreign-institution exams look absent to the student.
	if !exam.Assignment().Includes(student.ID, student.SectionID, student.DepartmentID) {
		return util.ErrExamNotFound
	}
	if exam.InstitutionID != nil && student.InstitutionID != nil && *exam.InstitutionID != *student.InstitutionID {
		return util.ErrExamNotFound
	}

	if exam.CourseID != nil && !f.Enrolled {
		return util.ErrNotEnrolled
	}

	if purpose != PurposeStart {
		return nil
	}

	if f.HasOpenAttempt {
		return util.ErrAttemptInProgress
	}
	maxAttempts := exam.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if f.AttemptsUsed >= int64(maxAttempts) {
		return util.ErrMaxAttemptsReached
	}
	return nil
}
