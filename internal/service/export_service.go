package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Uploader is the part of StorageService the export needs.
type Uploader interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
}

// ExportService writes finalized results for the downstream analytics
// consumer.
type ExportService struct {
	Exams     ExamStore
	Attempts  AttemptStore
	Directory DirectoryStore
	Storage   Uploader
	Now       Clock
}

func NewExportService(exams ExamStore, attempts AttemptStore, directory DirectoryStore, storage Uploader) *ExportService {
	return &ExportService{
		Exams:     exams,
		Attempts:  attempts,
		Directory: directory,
		Storage:   storage,
		Now:       systemClock,
	}
}

type ExportResult struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
}

var exportHeader = []string{
	"attempt_id", "student_id", "student_name", "student_email", "attempt_number", "status",
	"started_at", "submitted_at", "time_taken_seconds", "total_score", "max_score",
	"percentage", "grade", "passed", "correct", "wrong", "skipped",
}

func (s *ExportService) ExportExamResults(ctx context.Context, user model.Identity, examID string) (*ExportResult, error) {
	exam, err := s.Exams.FindExamByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	if !canManageExam(user, exam) {
		return nil, util.ErrPermissionDenied
	}

	attempts, err := s.Attempts.ListAttempts(ctx, repository.AttemptFilter{
		ExamID:   examID,
		Statuses: model.FinalizedAttemptStatuses,
	})
	if err != nil {
		return nil, err
	}

	studentIDs := make([]string, 0, len(attempts))
	for _, a := range attempts {
		studentIDs = append(studentIDs, a.StudentID)
	}
	users, err := s.Directory.FindUsersByIDs(ctx, dedupe(studentIDs))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	data, err := writeResultsCSV(attempts, byID)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("exports/exam-%s-%s.csv", examID, s.Now().UTC().Format("20060102T150405Z"))
	url, err := s.Storage.Upload(ctx, filename, bytes.NewReader(data), int64(len(data)), util.MimeCSV)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Exam results exported",
		zap.String("exam_id", examID),
		zap.String("user_id", user.ID),
		zap.Int("rows", len(attempts)),
	)
	return &ExportResult{URL: url, Filename: filename, Rows: len(attempts)}, nil
}

func writeResultsCSV(attempts []model.Attempt, users map[string]model.User) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, a := range attempts {
		u := users[a.StudentID]
		submitted := ""
		if a.SubmittedAt != nil {
			submitted = a.SubmittedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			a.ID,
			a.StudentID,
			u.Name,
			u.Email,
			strconv.Itoa(a.AttemptNumber),
			string(a.Status),
			a.StartedAt.UTC().Format(time.RFC3339),
			submitted,
			strconv.Itoa(a.TimeTaken),
			strconv.FormatFloat(a.TotalScore, 'f', 2, 64),
			strconv.FormatFloat(a.MaxScore, 'f', 2, 64),
			strconv.FormatFloat(a.Percentage, 'f', 2, 64),
			a.Grade,
			strconv.FormatBool(a.Passed),
			strconv.Itoa(a.CorrectAnswers),
			strconv.Itoa(a.WrongAnswers),
			strconv.Itoa(a.Skipped),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
