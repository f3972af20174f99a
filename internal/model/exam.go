package model

import (
	"time"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
	ExamActive    ExamStatus = "active"
	ExamCompleted ExamStatus = "completed"
	ExamArchived  ExamStatus = "archived"
)

// Locked reports whether the exam can no longer be edited or deleted.
func (s ExamStatus) Locked() bool {
	return s == ExamActive || s == ExamCompleted
}

type AssignmentMode string

const (
	AssignAll        AssignmentMode = "all"
	AssignSection    AssignmentMode = "section"
	AssignDepartment AssignmentMode = "department"
	AssignIndividual AssignmentMode = "individual"
)

func (m AssignmentMode) Valid() bool {
	switch m {
	case AssignAll, AssignSection, AssignDepartment, AssignIndividual:
		return true
	}
	return false
}

type TargetKind string

const (
	TargetSection    TargetKind = "section"
	TargetDepartment TargetKind = "department"
	TargetStudent    TargetKind = "student"
)

type Exam struct {
	UUIDBase
	InstitutionID     *string        `gorm:"index;type:varchar(36)" json:"institutionId,omitempty"`
	CourseID          *string        `gorm:"index;type:varchar(36)" json:"courseId,omitempty"`
	CreatedBy         string         `gorm:"index;type:varchar(36);not null" json:"createdBy"`
	Title             string         `gorm:"size:255;not null" json:"title"`
	Description       string         `gorm:"type:text" json:"description"`
	Instructions      string         `gorm:"type:text" json:"instructions"`
	Status            ExamStatus     `gorm:"size:20;index;default:'draft'" json:"status"`
	DurationMinutes   int            `gorm:"not null" json:"durationMinutes"`
	TotalMarks        float64        `gorm:"default:0" json:"totalMarks"`
	PassingPercentage float64        `gorm:"not null" json:"passingPercentage"`
	NegativeMarking   bool           `gorm:"default:false" json:"negativeMarking"`
	NegativeMarkValue float64        `gorm:"default:0" json:"negativeMarkValue"`
	ShuffleQuestions  bool           `gorm:"default:false" json:"shuffleQuestions"`
	ShuffleOptions    bool           `gorm:"default:false" json:"shuffleOptions"`
	MaxAttempts       int            `gorm:"default:1" json:"maxAttempts"`
	StartTime         *time.Time     `json:"startTime,omitempty"`
	EndTime           *time.Time     `json:"endTime,omitempty"`
	AssignmentMode    AssignmentMode `gorm:"size:20;default:'all'" json:"assignmentMode"`
	PublishedAt       *time.Time     `json:"publishedAt,omitempty"`
	ActivatedAt       *time.Time     `json:"activatedAt,omitempty"`
	ClosedAt          *time.Time     `json:"closedAt,omitempty"`
	ArchivedAt        *time.Time     `json:"archivedAt,omitempty"`

	Questions []ExamQuestion `gorm:"foreignKey:ExamID" json:"questions,omitempty"`
	Targets   []ExamTarget   `gorm:"foreignKey:ExamID" json:"targets,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// ExamQuestion is the ordered membership of a question in an exam.
type ExamQuestion struct {
	UUIDBase
	ExamID     string    `gorm:"uniqueIndex:idx_exam_question;type:varchar(36);not null" json:"examId"`
	QuestionID string    `gorm:"uniqueIndex:idx_exam_question;type:varchar(36);not null" json:"questionId"`
	Position   int       `gorm:"default:0" json:"position"`
	Question   *Question `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

type ExamTarget struct {
	UUIDBase
	ExamID   string     `gorm:"uniqueIndex:idx_exam_target;type:varchar(36);not null" json:"examId"`
	Kind     TargetKind `gorm:"uniqueIndex:idx_exam_target;size:20;not null" json:"kind"`
	TargetID string     `gorm:"uniqueIndex:idx_exam_target;type:varchar(36);not null" json:"targetId"`
}

func (ExamTarget) TableName() string {
	return "exam_targets"
}

// Assignment is the resolved targeting of an exam: either everyone, or the
// union of the listed sections, departments and individual students.
type Assignment struct {
	All         bool
	Sections    []string
	Departments []string
	Students    []string
}

// Assignment derives the targeting variant from the stored mode and targets.
func (e *Exam) Assignment() Assignment {
	if e.AssignmentMode == AssignAll || e.AssignmentMode == "" {
		return Assignment{All: true}
	}
	var a Assignment
	for _, t := range e.Targets {
		switch t.Kind {
		case TargetSection:
			a.Sections = append(a.Sections, t.TargetID)
		case TargetDepartment:
			a.Departments = append(a.Departments, t.TargetID)
		case TargetStudent:
			a.Students = append(a.Students, t.TargetID)
		}
	}
	return a
}

// Includes reports whether a student with the given ids is targeted.
func (a Assignment) Includes(studentID string, sectionID, departmentID *string) bool {
	if a.All {
		return true
	}
	if sectionID != nil && contains(a.Sections, *sectionID) {
		return true
	}
	if departmentID != nil && contains(a.Departments, *departmentID) {
		return true
	}
	return contains(a.Students, studentID)
}

// QuestionIDs returns the exam's question ids in presentation order.
func (e *Exam) QuestionIDs() []string {
	ids := make([]string, len(e.Questions))
	for i, q := range e.Questions {
		ids[i] = q.QuestionID
	}
	return ids
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
