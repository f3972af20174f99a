package service

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"exam_platform_backend/internal/model"
)

const numericTolerance = 0.001

// GradeResult is the outcome of grading one attempt.
type GradeResult struct {
	TotalScore     float64
	Percentage     float64
	CorrectAnswers int
	WrongAnswers   int
	Skipped        int
	Grade          string
	Passed         bool
	TimeTaken      int
	// Answers carries IsCorrect and MarksAwarded for every input answer.
	Answers []model.Answer
}

// Apply copies the result onto the attempt.
func (r GradeResult) Apply(a *model.Attempt) {
	a.TotalScore = r.TotalScore
	a.Percentage = r.Percentage
	a.CorrectAnswers = r.CorrectAnswers
	a.WrongAnswers = r.WrongAnswers
	a.Skipped = r.Skipped
	a.Grade = r.Grade
	a.Passed = r.Passed
	a.TimeTaken = r.TimeTaken
}

// GradeFor maps a percentage to its letter band.
func GradeFor(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 40:
		return "D"
	}
	return "F"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GradeAttempt scores every answer against its question and summarizes.
// It has no side effects; the same inputs always produce the same result.
func GradeAttempt(exam *model.Exam, maxScore float64, questions map[string]*model.Question, answers []model.Answer, startedAt, finalizedAt time.Time) GradeResult {
	graded := make([]model.Answer, len(answers))
	for i, a := range answers {
		q := questions[a.QuestionID]
		correct := false
		marks := 0.0
		if a.IsAnswered && q != nil {
			correct = IsAnswerCorrect(q, a.SelectedAnswer)
			if correct {
				marks = q.EffectiveMarks()
			} else if exam.NegativeMarking {
				marks = -negativeMarksFor(exam, q)
			}
		}
		if q == nil {
			// no question to grade against; counted as skipped
			a.IsAnswered = false
		}
		a.IsCorrect = &correct
		a.MarksAwarded = marks
		graded[i] = a
	}

	result := Summarize(graded, maxScore, exam.PassingPercentage)
	result.TimeTaken = int(finalizedAt.Sub(startedAt).Seconds())
	if result.TimeTaken < 0 {
		result.TimeTaken = 0
	}
	return result
}

// Summarize recomputes totals from already-scored answers. Finalize and the
// manual regrade path share it.
func Summarize(answers []model.Answer, maxScore, passingPercentage float64) GradeResult {
	r := GradeResult{Answers: answers}
	total := 0.0
	for _, a := range answers {
		switch {
		case !a.IsAnswered:
			r.Skipped++
		case a.IsCorrect != nil && *a.IsCorrect:
			r.CorrectAnswers++
		default:
			r.WrongAnswers++
		}
		total += a.MarksAwarded
	}

	r.TotalScore = round2(math.Max(0, total))
	if maxScore > 0 {
		r.Percentage = round2(r.TotalScore / maxScore * 100)
	}
	r.Passed = r.Percentage >= passingPercentage
	r.Grade = GradeFor(r.Percentage)
	return r
}

func negativeMarksFor(exam *model.Exam, q *model.Question) float64 {
	if q.NegativeMarks != nil {
		return math.Abs(*q.NegativeMarks)
	}
	return math.Abs(exam.NegativeMarkValue)
}

// IsAnswerCorrect dispatches on the question type.
func IsAnswerCorrect(q *model.Question, v *model.AnswerValue) bool {
	if v == nil {
		return false
	}
	switch q.Type {
	case model.SingleChoice, model.TrueFalse:
		if v.Kind != model.SingleChoice && v.Kind != model.TrueFalse {
			return false
		}
		if len(q.Options) > 0 {
			ids := q.CorrectOptionIDs()
			return len(ids) == 1 && ids[0] == v.Choice
		}
		key, ok := scalarKey(q.CorrectAnswer)
		return ok && normalizeText(key) == normalizeText(v.Choice)

	case model.MultiSelect:
		if v.Kind != model.MultiSelect {
			return false
		}
		if len(q.Options) > 0 {
			return sameSet(v.Choices, q.CorrectOptionIDs())
		}
		key, ok := arrayKey(q.CorrectAnswer)
		return ok && sameSequence(v.Choices, key)

	case model.Numeric:
		if v.Kind != model.Numeric || v.Number == nil {
			return false
		}
		key, ok := numericKey(q.CorrectAnswer)
		return ok && math.Abs(*v.Number-key) < numericTolerance

	case model.ShortText:
		if v.Kind != model.ShortText {
			return false
		}
		got := normalizeText(v.Text)
		if key, ok := scalarKey(q.CorrectAnswer); ok {
			return got == normalizeText(key)
		}
		// a list of accepted spellings
		if keys, ok := arrayKey(q.CorrectAnswer); ok {
			for _, k := range keys {
				if got == normalizeText(k) {
					return true
				}
			}
		}
	}
	return false
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func scalarKey(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

func arrayKey(raw []byte) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case string:
			out = append(out, t)
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		case bool:
			out = append(out, strconv.FormatBool(t))
		default:
			return nil, false
		}
	}
	return out, true
}

func numericKey(raw []byte) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return n, err == nil
}

func sameSet(a, b []string) bool {
	x := dedupeSorted(a)
	y := dedupeSorted(b)
	return sameSequence(x, y)
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sameSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
