package service

import (
	"encoding/json"
	"time"

	"exam_platform_backend/internal/model"
)

// OptionView is an option as shown to a student: no correctness flag.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is a question without its answer key.
type QuestionView struct {
	ID            string             `json:"id"`
	Type          model.QuestionType `json:"type"`
	Text          string             `json:"text"`
	Options       []OptionView       `json:"options,omitempty"`
	Marks         float64            `json:"marks"`
	NegativeMarks *float64           `json:"negativeMarks,omitempty"`
	Difficulty    model.Difficulty   `json:"difficulty,omitempty"`
}

func newQuestionView(q *model.Question) QuestionView {
	v := QuestionView{
		ID:            q.ID,
		Type:          q.Type,
		Text:          q.Text,
		Marks:         q.EffectiveMarks(),
		NegativeMarks: q.NegativeMarks,
		Difficulty:    q.Difficulty,
	}
	if len(q.Options) > 0 {
		v.Options = make([]OptionView, len(q.Options))
		for i, o := range q.Options {
			v.Options[i] = OptionView{ID: o.ID, Text: o.Text}
		}
	}
	return v
}

// StudentExamView is what an eligible student sees of an exam.
type StudentExamView struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Instructions      string             `json:"instructions"`
	Status            model.ExamStatus   `json:"status"`
	DurationMinutes   int                `json:"durationMinutes"`
	TotalMarks        float64            `json:"totalMarks"`
	PassingPercentage float64            `json:"passingPercentage"`
	NegativeMarking   bool               `json:"negativeMarking"`
	MaxAttempts       int                `json:"maxAttempts"`
	StartTime         *time.Time         `json:"startTime,omitempty"`
	EndTime           *time.Time         `json:"endTime,omitempty"`
	QuestionCount     int                `json:"questionCount"`
	Questions         []QuestionView     `json:"questions"`
	AttemptsUsed      int64              `json:"attemptsUsed"`
	OpenAttemptID     string             `json:"openAttemptId,omitempty"`
	CourseID          *string            `json:"courseId,omitempty"`
}

func newStudentExamView(exam *model.Exam) *StudentExamView {
	v := &StudentExamView{
		ID:                exam.ID,
		Title:             exam.Title,
		Description:       exam.Description,
		Instructions:      exam.Instructions,
		Status:            exam.Status,
		DurationMinutes:   exam.DurationMinutes,
		TotalMarks:        exam.TotalMarks,
		PassingPercentage: exam.PassingPercentage,
		NegativeMarking:   exam.NegativeMarking,
		MaxAttempts:       exam.MaxAttempts,
		StartTime:         exam.StartTime,
		EndTime:           exam.EndTime,
		QuestionCount:     len(exam.Questions),
		CourseID:          exam.CourseID,
		Questions:         make([]QuestionView, 0, len(exam.Questions)),
	}
	for _, eq := range exam.Questions {
		if eq.Question != nil {
			v.Questions = append(v.Questions, newQuestionView(eq.Question))
		}
	}
	return v
}

// ExamView is returned by getExamById: exactly one of the two fields is set,
// depending on whether the caller is a student.
type ExamView struct {
	Exam    *model.Exam      `json:"exam,omitempty"`
	Student *StudentExamView `json:"studentView,omitempty"`
}

// AvailableExam is one row of a student's available-exams listing.
type AvailableExam struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Status          model.ExamStatus `json:"status"`
	DurationMinutes int              `json:"durationMinutes"`
	TotalMarks      float64          `json:"totalMarks"`
	MaxAttempts     int              `json:"maxAttempts"`
	StartTime       *time.Time       `json:"startTime,omitempty"`
	EndTime         *time.Time       `json:"endTime,omitempty"`
	AttemptsUsed    int64            `json:"attemptsUsed"`
	OpenAttemptID   string           `json:"openAttemptId,omitempty"`
	CanStart        bool             `json:"canStart"`
}

// SessionQuestion is one question of a running attempt in presentation order.
type SessionQuestion struct {
	QuestionView
	Position          int         `json:"position"`
	SavedAnswer       interface{} `json:"savedAnswer"`
	IsAnswered        bool        `json:"isAnswered"`
	IsMarkedForReview bool        `json:"isMarkedForReview"`
}

// AttemptSession is returned by startAttempt and resumeAttempt.
type AttemptSession struct {
	AttemptID     string              `json:"attemptId"`
	ExamID        string              `json:"examId"`
	ExamTitle     string              `json:"examTitle"`
	Instructions  string              `json:"instructions,omitempty"`
	AttemptNumber int                 `json:"attemptNumber"`
	Status        model.AttemptStatus `json:"status"`
	TotalMarks    float64             `json:"totalMarks"`
	StartedAt     time.Time           `json:"startedAt"`
	EndTime       time.Time           `json:"endTime"`
	TimeRemaining int                 `json:"timeRemaining"`
	Questions     []SessionQuestion   `json:"questions"`
}

// ResultQuestion is the per-question breakdown of a finalized attempt.
type ResultQuestion struct {
	QuestionID     string             `json:"questionId"`
	Type           model.QuestionType `json:"type"`
	Text           string             `json:"text"`
	Position       int                `json:"position"`
	SelectedAnswer interface{}        `json:"selectedAnswer"`
	IsAnswered     bool               `json:"isAnswered"`
	IsCorrect      *bool              `json:"isCorrect"`
	MarksAwarded   float64            `json:"marksAwarded"`
	Marks          float64            `json:"marks"`
	CorrectAnswer  interface{}        `json:"correctAnswer,omitempty"`
	Explanation    string             `json:"explanation,omitempty"`
}

// AttemptResult is the graded outcome of an attempt.
type AttemptResult struct {
	Attempt   *model.Attempt   `json:"attempt"`
	ExamTitle string           `json:"examTitle"`
	Questions []ResultQuestion `json:"questions"`
}

func correctAnswerOf(q *model.Question) interface{} {
	if q.Type.IsChoice() && len(q.Options) > 0 {
		return q.CorrectOptionIDs()
	}
	if len(q.CorrectAnswer) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(q.CorrectAnswer, &v); err != nil {
		return nil
	}
	return v
}

func newAttemptResult(attempt *model.Attempt, exam *model.Exam, questions map[string]*model.Question, answers []model.Answer) *AttemptResult {
	res := &AttemptResult{
		Attempt:   attempt,
		ExamTitle: exam.Title,
		Questions: make([]ResultQuestion, 0, len(answers)),
	}
	for _, a := range answers {
		rq := ResultQuestion{
			QuestionID:     a.QuestionID,
			Position:       a.Position,
			SelectedAnswer: a.SelectedAnswer.Plain(),
			IsAnswered:     a.IsAnswered,
			IsCorrect:      a.IsCorrect,
			MarksAwarded:   a.MarksAwarded,
		}
		if q := questions[a.QuestionID]; q != nil {
			rq.Type = q.Type
			rq.Text = q.Text
			rq.Marks = q.EffectiveMarks()
			rq.CorrectAnswer = correctAnswerOf(q)
			rq.Explanation = q.Explanation
		}
		res.Questions = append(res.Questions, rq)
	}
	return res
}
