package repository

import (
	"context"
	"time"

	"exam_platform_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptFilter struct {
	ExamID    string
	StudentID string
	Statuses  []model.AttemptStatus
}

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// CreateAttempt inserts the attempt and its materialized answer rows in one
// transaction. A second open attempt for the same student and exam, or a
// reused attempt number, fails with ErrDuplicate.
func (r *AttemptRepository) CreateAttempt(ctx context.Context, attempt *model.Attempt, answers []model.Answer) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		if len(answers) == 0 {
			return nil
		}
		for i := range answers {
			answers[i].AttemptID = attempt.ID
		}
		return tx.Create(&answers).Error
	})
	return translate(err)
}

func (r *AttemptRepository) FindAttemptByID(ctx context.Context, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := r.DB.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) FindOpenAttempt(ctx context.Context, examID, studentID string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.WithContext(ctx).
		Where("exam_id = ? AND student_id = ? AND status IN ?", examID, studentID, model.OpenAttemptStatuses).
		Order("attempt_number DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) CountAttempts(ctx context.Context, examID, studentID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID string) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("position ASC").
		Find(&answers).Error
	return answers, err
}

func (r *AttemptRepository) FindAnswer(ctx context.Context, attemptID, questionID string) (*model.Answer, error) {
	var answer model.Answer
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// openAttempt scopes an answer write to attempts that are still open, so a
// save racing a finalize never touches a locked result.
func (r *AttemptRepository) openAttempt(tx *gorm.DB, attemptID string) *gorm.DB {
	return tx.Session(&gorm.Session{NewDB: true}).Model(&model.Attempt{}).
		Select("id").
		Where("id = ? AND status IN ?", attemptID, model.OpenAttemptStatuses)
}

// SaveAnswer overwrites the stored value for (attempt, question) and adds to
// its time spent. It reports false when the attempt was no longer open.
func (r *AttemptRepository) SaveAnswer(ctx context.Context, attemptID, questionID string, value *model.AnswerValue, at time.Time, timeSpent int) (bool, error) {
	db := r.DB.WithContext(ctx)
	updates := map[string]interface{}{
		"selected_answer": value,
		"is_answered":     value != nil,
		"answered_at":     at,
		"time_spent":      gorm.Expr("time_spent + ?", timeSpent),
	}
	if value == nil {
		updates["selected_answer"] = gorm.Expr("NULL")
	}
	res := db.Model(&model.Answer{}).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		Where("attempt_id IN (?)", r.openAttempt(db, attemptID)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *AttemptRepository) SetMarkedForReview(ctx context.Context, attemptID, questionID string, flag bool) (bool, error) {
	db := r.DB.WithContext(ctx)
	res := db.Model(&model.Answer{}).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		Where("attempt_id IN (?)", r.openAttempt(db, attemptID)).
		Update("is_marked_for_review", flag)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkInProgress moves a started attempt to in_progress. Repeated calls are no-ops.
func (r *AttemptRepository) MarkInProgress(ctx context.Context, attemptID string) error {
	return r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND status = ?", attemptID, model.AttemptStarted).
		Update("status", model.AttemptInProgress).Error
}

// FinalizeAttempt persists a graded result with a conditional status
// transition. Only the caller whose update matched an open attempt writes
// the answer grades; everyone else gets false.
func (r *AttemptRepository) FinalizeAttempt(ctx context.Context, result *model.Attempt, answers []model.Answer) (bool, error) {
	finalized := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND status IN ?", result.ID, model.OpenAttemptStatuses).
			Updates(map[string]interface{}{
				"status":          result.Status,
				"open_key":        gorm.Expr("NULL"),
				"submitted_at":    result.SubmittedAt,
				"total_score":     result.TotalScore,
				"percentage":      result.Percentage,
				"correct_answers": result.CorrectAnswers,
				"wrong_answers":   result.WrongAnswers,
				"skipped":         result.Skipped,
				"time_taken":      result.TimeTaken,
				"grade":           result.Grade,
				"passed":          result.Passed,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		for _, a := range answers {
			err := tx.Model(&model.Answer{}).
				Where("id = ?", a.ID).
				Updates(map[string]interface{}{
					"is_correct":    a.IsCorrect,
					"marks_awarded": a.MarksAwarded,
				}).Error
			if err != nil {
				return err
			}
		}
		finalized = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return finalized, nil
}

// RegradeAttempt locks a finalized attempt, lets fn adjust the answers and
// totals, then writes both back.
func (r *AttemptRepository) RegradeAttempt(ctx context.Context, attemptID string, fn func(attempt *model.Attempt, answers []model.Answer) error) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&attempt, "id = ?", attemptID).Error; err != nil {
			return err
		}
		var answers []model.Answer
		if err := tx.Where("attempt_id = ?", attemptID).Order("position ASC").Find(&answers).Error; err != nil {
			return err
		}
		if err := fn(&attempt, answers); err != nil {
			return err
		}
		for _, a := range answers {
			err := tx.Model(&model.Answer{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
				"is_correct":    a.IsCorrect,
				"marks_awarded": a.MarksAwarded,
			}).Error
			if err != nil {
				return err
			}
		}
		return tx.Omit("OpenKey").Save(&attempt).Error
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.Attempt, error) {
	query := r.DB.WithContext(ctx).Model(&model.Attempt{})
	if filter.ExamID != "" {
		query = query.Where("exam_id = ?", filter.ExamID)
	}
	if filter.StudentID != "" {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	var attempts []model.Attempt
	err := query.Order("started_at DESC").Find(&attempts).Error
	return attempts, err
}

// ListExpiredOpenAttempts returns open attempts whose deadline has passed.
func (r *AttemptRepository) ListExpiredOpenAttempts(ctx context.Context, now time.Time, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("status IN ? AND ends_at < ?", model.OpenAttemptStatuses, now).
		Order("ends_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListAnswersForAttempts(ctx context.Context, attemptIDs []string) ([]model.Answer, error) {
	var answers []model.Answer
	if len(attemptIDs) == 0 {
		return answers, nil
	}
	err := r.DB.WithContext(ctx).Where("attempt_id IN ?", attemptIDs).Find(&answers).Error
	return answers, err
}
