package repository

import (
	"context"

	"exam_platform_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionFilter struct {
	InstitutionID *string
	Type          model.QuestionType
	Difficulty    model.Difficulty
	Tag           string
	Search        string
	Page          int
	Limit         int
}

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

func (r *QuestionRepository) FindQuestionByID(ctx context.Context, id string) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&q, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) FindQuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.DB.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id IN ?", ids).
		Find(&questions).Error
	return questions, err
}

// UpdateQuestion saves the question and replaces its option list.
func (r *QuestionRepository) UpdateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Options").Save(q).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("question_id = ?", q.ID).Delete(&model.QuestionOption{}).Error; err != nil {
			return err
		}
		if len(q.Options) > 0 {
			for i := range q.Options {
				q.Options[i].ID = ""
				q.Options[i].QuestionID = q.ID
			}
			if err := tx.Create(&q.Options).Error; err != nil {
				return err
			}
		}
		return recomputeExamTotals(tx, q.ID)
	})
}

// recomputeExamTotals keeps total_marks equal to the sum of question marks
// for every exam that contains the question.
func recomputeExamTotals(tx *gorm.DB, questionID string) error {
	total := tx.Session(&gorm.Session{NewDB: true}).
		Table("exam_questions").
		Select("COALESCE(SUM(CASE WHEN questions.marks > 0 THEN questions.marks ELSE 1 END), 0)").
		Joins("JOIN questions ON questions.id = exam_questions.question_id").
		Where("exam_questions.exam_id = exams.id AND exam_questions.deleted_at IS NULL")
	containing := tx.Session(&gorm.Session{NewDB: true}).
		Model(&model.ExamQuestion{}).
		Select("exam_id").
		Where("question_id = ?", questionID)
	return tx.Model(&model.Exam{}).
		Where("id IN (?)", containing).
		Update("total_marks", gorm.Expr("(?)", total)).Error
}

func (r *QuestionRepository) DeleteQuestion(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.QuestionOption{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Question{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CountQuestionUsage counts exams referencing the question, optionally
// restricted to the given exam statuses.
func (r *QuestionRepository) CountQuestionUsage(ctx context.Context, questionID string, statuses []model.ExamStatus) (int64, error) {
	var count int64
	query := r.DB.WithContext(ctx).Model(&model.ExamQuestion{}).
		Joins("JOIN exams ON exams.id = exam_questions.exam_id AND exams.deleted_at IS NULL").
		Where("exam_questions.question_id = ?", questionID)
	if len(statuses) > 0 {
		query = query.Where("exams.status IN ?", statuses)
	}
	err := query.Count(&count).Error
	return count, err
}

// CountOpenAnswers counts answer rows for the question held by attempts that
// are still open.
func (r *QuestionRepository) CountOpenAnswers(ctx context.Context, questionID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id AND attempts.deleted_at IS NULL").
		Where("answers.question_id = ? AND attempts.status IN ?", questionID, model.OpenAttemptStatuses).
		Count(&count).Error
	return count, err
}

func (r *QuestionRepository) ListQuestions(ctx context.Context, filter QuestionFilter) ([]model.Question, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.Question{})
	if filter.InstitutionID != nil {
		query = query.Where("institution_id = ? OR institution_id IS NULL", *filter.InstitutionID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if filter.Tag != "" {
		query = query.Where("tags LIKE ?", "%\""+filter.Tag+"\"%")
	}
	if filter.Search != "" {
		query = query.Where("text LIKE ?", "%"+filter.Search+"%")
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

	var questions []model.Question
	err := query.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("created_at DESC").Find(&questions).Error
	return questions, total, err
}
