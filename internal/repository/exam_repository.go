package repository

import (
	"context"
	"time"

	"exam_platform_backend/internal/model"

	"gorm.io/gorm"
)

type ExamFilter struct {
	InstitutionID *string
	CreatedBy     string
	CourseID      string
	Statuses      []model.ExamStatus
	Search        string
	Page          int
	Limit         int
}

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// CreateExam inserts the exam together with any question links and targets
// already attached to it.
func (r *ExamRepository) CreateExam(ctx context.Context, exam *model.Exam) error {
	return translate(r.DB.WithContext(ctx).Create(exam).Error)
}

func (r *ExamRepository) FindExamByID(ctx context.Context, id string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Questions.Question").
		Preload("Questions.Question.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Targets").
		First(&exam, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// UpdateExam writes the scalar columns only; question membership and targets
// have their own transactional writers.
func (r *ExamRepository) UpdateExam(ctx context.Context, exam *model.Exam) error {
	return r.DB.WithContext(ctx).Omit("Questions", "Targets").Save(exam).Error
}

// DeleteExam removes the exam with its question membership and targets.
// Attempts are kept for the audit trail.
func (r *ExamRepository) DeleteExam(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", id).Delete(&model.ExamQuestion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("exam_id = ?", id).Delete(&model.ExamTarget{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Exam{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// TransitionStatus moves the exam to status `to` only if it is currently in
// one of `from`. It reports whether this call performed the transition.
func (r *ExamRepository) TransitionStatus(ctx context.Context, id string, from []model.ExamStatus, to model.ExamStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	switch to {
	case model.ExamPublished:
		updates["published_at"] = at
	case model.ExamActive:
		updates["activated_at"] = at
	case model.ExamCompleted:
		updates["closed_at"] = at
	case model.ExamArchived:
		updates["archived_at"] = at
	}
	res := r.DB.WithContext(ctx).Model(&model.Exam{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReplaceExamQuestions rewrites the ordered question set and the exam's total
// marks in one transaction.
func (r *ExamRepository) ReplaceExamQuestions(ctx context.Context, examID string, questionIDs []string, totalMarks float64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("exam_id = ?", examID).Delete(&model.ExamQuestion{}).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			links := make([]model.ExamQuestion, len(questionIDs))
			for i, qid := range questionIDs {
				links[i] = model.ExamQuestion{ExamID: examID, QuestionID: qid, Position: i}
			}
			if err := tx.Create(&links).Error; err != nil {
				return translate(err)
			}
		}
		return tx.Model(&model.Exam{}).Where("id = ?", examID).Update("total_marks", totalMarks).Error
	})
}

// ReplaceAssignment stores the mode and the full target set atomically.
func (r *ExamRepository) ReplaceAssignment(ctx context.Context, examID string, mode model.AssignmentMode, targets []model.ExamTarget) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("exam_id = ?", examID).Delete(&model.ExamTarget{}).Error; err != nil {
			return err
		}
		if len(targets) > 0 {
			for i := range targets {
				targets[i].ExamID = examID
			}
			if err := tx.Create(&targets).Error; err != nil {
				return translate(err)
			}
		}
		return tx.Model(&model.Exam{}).Where("id = ?", examID).Update("assignment_mode", mode).Error
	})
}

func (r *ExamRepository) ListExams(ctx context.Context, filter ExamFilter) ([]model.Exam, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.Exam{})
	if filter.InstitutionID != nil {
		query = query.Where("institution_id = ? OR institution_id IS NULL", *filter.InstitutionID)
	}
	if filter.CreatedBy != "" {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.CourseID != "" {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Search != "" {
		query = query.Where("title LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.Limit).Limit(filter.Limit)
	}

	var exams []model.Exam
	err := query.Preload("Targets").Order("created_at DESC").Find(&exams).Error
	return exams, total, err
}
