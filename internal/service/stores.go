package service

import (
	"context"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
)

// The services depend on these narrow store contracts. The gorm
// repositories implement them in production; tests use in-memory doubles.
// A missing row is reported as gorm.ErrRecordNotFound and a unique
// violation as repository.ErrDuplicate.

type ExamStore interface {
	CreateExam(ctx context.Context, exam *model.Exam) error
	FindExamByID(ctx context.Context, id string) (*model.Exam, error)
	UpdateExam(ctx context.Context, exam *model.Exam) error
	DeleteExam(ctx context.Context, id string) error
	TransitionStatus(ctx context.Context, id string, from []model.ExamStatus, to model.ExamStatus, at time.Time) (bool, error)
	ReplaceExamQuestions(ctx context.Context, examID string, questionIDs []string, totalMarks float64) error
	ReplaceAssignment(ctx context.Context, examID string, mode model.AssignmentMode, targets []model.ExamTarget) error
	ListExams(ctx context.Context, filter repository.ExamFilter) ([]model.Exam, int64, error)
}

type QuestionStore interface {
	CreateQuestion(ctx context.Context, q *model.Question) error
	FindQuestionByID(ctx context.Context, id string) (*model.Question, error)
	FindQuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error)
	UpdateQuestion(ctx context.Context, q *model.Question) error
	DeleteQuestion(ctx context.Context, id string) error
	CountQuestionUsage(ctx context.Context, questionID string, statuses []model.ExamStatus) (int64, error)
	CountOpenAnswers(ctx context.Context, questionID string) (int64, error)
	ListQuestions(ctx context.Context, filter repository.QuestionFilter) ([]model.Question, int64, error)
}

type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *model.Attempt, answers []model.Answer) error
	FindAttemptByID(ctx context.Context, id string) (*model.Attempt, error)
	FindOpenAttempt(ctx context.Context, examID, studentID string) (*model.Attempt, error)
	CountAttempts(ctx context.Context, examID, studentID string) (int64, error)
	ListAnswers(ctx context.Context, attemptID string) ([]model.Answer, error)
	FindAnswer(ctx context.Context, attemptID, questionID string) (*model.Answer, error)
	SaveAnswer(ctx context.Context, attemptID, questionID string, value *model.AnswerValue, at time.Time, timeSpent int) (bool, error)
	SetMarkedForReview(ctx context.Context, attemptID, questionID string, flag bool) (bool, error)
	MarkInProgress(ctx context.Context, attemptID string) error
	FinalizeAttempt(ctx context.Context, result *model.Attempt, answers []model.Answer) (bool, error)
	RegradeAttempt(ctx context.Context, attemptID string, fn func(attempt *model.Attempt, answers []model.Answer) error) (*model.Attempt, error)
	ListAttempts(ctx context.Context, filter repository.AttemptFilter) ([]model.Attempt, error)
	ListExpiredOpenAttempts(ctx context.Context, now time.Time, limit int) ([]model.Attempt, error)
	ListAnswersForAttempts(ctx context.Context, attemptIDs []string) ([]model.Answer, error)
}

type DirectoryStore interface {
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	FindCourseByID(ctx context.Context, id string) (*model.Course, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, entry *model.ActivityLog) error
	ListActivity(ctx context.Context, attemptID string) ([]model.ActivityLog, error)
}

// Clock is swapped in tests to move time past an attempt's deadline.
type Clock func() time.Time

func systemClock() time.Time { return time.Now() }
