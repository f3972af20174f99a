package model

import (
	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiSelect  QuestionType = "multi_select"
	TrueFalse    QuestionType = "true_false"
	Numeric      QuestionType = "numeric"
	ShortText    QuestionType = "short_text"
)

// IsChoice reports whether answers reference option ids.
func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultiSelect || t == TrueFalse
}

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiSelect, TrueFalse, Numeric, ShortText:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Question struct {
	UUIDBase
	InstitutionID *string          `gorm:"index;type:varchar(36)" json:"institutionId,omitempty"`
	CreatedBy     string           `gorm:"index;type:varchar(36)" json:"createdBy"`
	Type          QuestionType     `gorm:"size:20;not null" json:"type"`
	Text          string           `gorm:"type:text;not null" json:"text"`
	Options       []QuestionOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
	// CorrectAnswer holds the key for non-choice types (number or string), and
	// optionally a scalar/array key for choice questions stored without options.
	CorrectAnswer datatypes.JSON `json:"correctAnswer,omitempty"`
	Marks         float64        `gorm:"default:1" json:"marks"`
	NegativeMarks *float64       `json:"negativeMarks,omitempty"`
	Difficulty    Difficulty     `gorm:"size:20;default:'medium'" json:"difficulty"`
	Tags          datatypes.JSON `json:"tags,omitempty"`
	Explanation   string         `gorm:"type:text" json:"explanation,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// EffectiveMarks falls back to 1 when marks were never set.
func (q *Question) EffectiveMarks() float64 {
	if q.Marks <= 0 {
		return 1
	}
	return q.Marks
}

// CorrectOptionIDs returns the ids of every option flagged correct.
func (q *Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

type QuestionOption struct {
	UUIDBase
	QuestionID string `gorm:"index;type:varchar(36);not null" json:"questionId"`
	Text       string `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
	Position   int    `gorm:"default:0" json:"position"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}
