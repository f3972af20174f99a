package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActivityAction string

const (
	ActivityStarted         ActivityAction = "started"
	ActivityResumed         ActivityAction = "resumed"
	ActivityAnswerSubmitted ActivityAction = "answer_submitted"
	ActivityAnswerChanged   ActivityAction = "answer_changed"
	ActivityMarkedReview    ActivityAction = "marked_for_review"
	ActivitySubmitted       ActivityAction = "submitted"
	ActivityAutoSubmitted   ActivityAction = "auto_submitted"
	ActivityRegraded        ActivityAction = "regraded"
)

// ActivityLog is an append-only audit record of attempt events.
type ActivityLog struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AttemptID string         `gorm:"index;type:varchar(36)" json:"attemptId"`
	ExamID    string         `gorm:"index;type:varchar(36)" json:"examId"`
	UserID    string         `gorm:"index;type:varchar(36)" json:"userId"`
	Action    ActivityAction `gorm:"size:40;not null" json:"action"`
	Details   datatypes.JSON `json:"details,omitempty"`
	IPAddress string         `gorm:"size:64" json:"ipAddress,omitempty"`
	UserAgent string         `gorm:"size:512" json:"userAgent,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}
