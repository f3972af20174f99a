package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/pkg/database"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a migrated sqlite database private to the test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "exam.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedQuestion(t *testing.T, db *gorm.DB, id string, marks float64) model.Question {
	t.Helper()
	q := model.Question{
		UUIDBase: model.UUIDBase{ID: id},
		Type:     model.SingleChoice,
		Text:     "question " + id,
		Marks:    marks,
		Options: []model.QuestionOption{
			{UUIDBase: model.UUIDBase{ID: id + "-a"}, Text: "right", IsCorrect: true, Position: 0},
			{UUIDBase: model.UUIDBase{ID: id + "-b"}, Text: "wrong", Position: 1},
		},
	}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("seed question %s: %v", id, err)
	}
	return q
}

func seedExam(t *testing.T, db *gorm.DB, id string, questions ...model.Question) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		UUIDBase:          model.UUIDBase{ID: id},
		CreatedBy:         "edu-1",
		Title:             "Exam " + id,
		Status:            model.ExamDraft,
		DurationMinutes:   30,
		PassingPercentage: 40,
		MaxAttempts:       2,
		AssignmentMode:    model.AssignAll,
	}
	for i, q := range questions {
		exam.Questions = append(exam.Questions, model.ExamQuestion{QuestionID: q.ID, Position: i})
		exam.TotalMarks += q.EffectiveMarks()
	}
	if err := NewExamRepository(db).CreateExam(context.Background(), exam); err != nil {
		t.Fatalf("seed exam %s: %v", id, err)
	}
	return exam
}

// newOpenAttempt builds an open attempt row with one answer per question.
func newOpenAttempt(examID, studentID string, number int, questionIDs ...string) (*model.Attempt, []model.Answer) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	attempt := &model.Attempt{
		ExamID:        examID,
		StudentID:     studentID,
		AttemptNumber: number,
		OpenKey:       model.OpenKeyFor(examID, studentID),
		Status:        model.AttemptStarted,
		StartedAt:     now,
		EndsAt:        now.Add(30 * time.Minute),
		MaxScore:      float64(len(questionIDs)),
	}
	answers := make([]model.Answer, len(questionIDs))
	for i, qid := range questionIDs {
		answers[i] = model.Answer{QuestionID: qid, Position: i}
	}
	return attempt, answers
}
