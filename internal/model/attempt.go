package model

import "time"

type AttemptStatus string

const (
	AttemptStarted       AttemptStatus = "started"
	AttemptInProgress    AttemptStatus = "in_progress"
	AttemptSubmitted     AttemptStatus = "submitted"
	AttemptAutoSubmitted AttemptStatus = "auto_submitted"
	AttemptGraded        AttemptStatus = "graded"
)

// Open reports whether answers may still be written.
func (s AttemptStatus) Open() bool {
	return s == AttemptStarted || s == AttemptInProgress
}

// Finalized reports whether the attempt carries a locked result.
func (s AttemptStatus) Finalized() bool {
	return s == AttemptSubmitted || s == AttemptAutoSubmitted || s == AttemptGraded
}

// OpenAttemptStatuses lists the states that block a concurrent start.
var OpenAttemptStatuses = []AttemptStatus{AttemptStarted, AttemptInProgress}

// FinalizedAttemptStatuses lists the states read by analytics.
var FinalizedAttemptStatuses = []AttemptStatus{AttemptSubmitted, AttemptAutoSubmitted, AttemptGraded}

type Attempt struct {
	UUIDBase
	ExamID        string `gorm:"uniqueIndex:idx_attempt_number;index;type:varchar(36);not null" json:"examId"`
	StudentID     string `gorm:"uniqueIndex:idx_attempt_number;index;type:varchar(36);not null" json:"studentId"`
	AttemptNumber int    `gorm:"uniqueIndex:idx_attempt_number;not null" json:"attemptNumber"`
	// OpenKey is set to exam:student while the attempt is open and cleared on
	// finalize; its unique index allows one open attempt per student and exam.
	OpenKey *string       `gorm:"uniqueIndex;size:80" json:"-"`
	Status  AttemptStatus `gorm:"size:20;index;not null" json:"status"`

	StartedAt   time.Time  `json:"startedAt"`
	EndsAt      time.Time  `gorm:"index" json:"endsAt"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	ShuffleSeed int64      `json:"-"`

	MaxScore       float64 `json:"maxScore"`
	TotalScore     float64 `json:"totalScore"`
	Percentage     float64 `json:"percentage"`
	CorrectAnswers int     `json:"correctAnswers"`
	WrongAnswers   int     `json:"wrongAnswers"`
	Skipped        int     `json:"skipped"`
	TimeTaken      int     `json:"timeTaken"`
	Grade          string  `gorm:"size:4" json:"grade"`
	Passed         bool    `json:"passed"`

	IPAddress   string `gorm:"size:64" json:"ipAddress,omitempty"`
	BrowserInfo string `gorm:"size:512" json:"browserInfo,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// OpenKeyFor builds the uniqueness key held by an open attempt.
func OpenKeyFor(examID, studentID string) *string {
	k := examID + ":" + studentID
	return &k
}

type Answer struct {
	UUIDBase
	AttemptID         string       `gorm:"uniqueIndex:idx_answer_attempt_question;type:varchar(36);not null" json:"attemptId"`
	QuestionID        string       `gorm:"uniqueIndex:idx_answer_attempt_question;type:varchar(36);not null" json:"questionId"`
	Position          int          `gorm:"default:0" json:"position"`
	SelectedAnswer    *AnswerValue `gorm:"type:json" json:"selectedAnswer,omitempty"`
	IsAnswered        bool         `gorm:"default:false" json:"isAnswered"`
	IsCorrect         *bool        `json:"isCorrect"`
	MarksAwarded      float64      `gorm:"default:0" json:"marksAwarded"`
	IsMarkedForReview bool         `gorm:"default:false" json:"isMarkedForReview"`
	TimeSpent         int          `gorm:"default:0" json:"timeSpent"`
	AnsweredAt        *time.Time   `json:"answeredAt,omitempty"`
}

func (Answer) TableName() string {
	return "answers"
}
