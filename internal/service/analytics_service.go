package service

import (
	"context"
	"errors"
	"math"
	"sort"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"

	"gorm.io/gorm"
)

// AnalyticsService reads finalized attempts only; it never changes them.
type AnalyticsService struct {
	Exams    ExamStore
	Attempts AttemptStore
}

func NewAnalyticsService(exams ExamStore, attempts AttemptStore) *AnalyticsService {
	return &AnalyticsService{Exams: exams, Attempts: attempts}
}

type QuestionStat struct {
	QuestionID  string  `json:"questionId"`
	Text        string  `json:"text"`
	Attempted   int     `json:"attempted"`
	Correct     int     `json:"correct"`
	Skipped     int     `json:"skipped"`
	CorrectRate float64 `json:"correctRate"`

	DifficultyIndex     float64           `json:"difficultyIndex"`
	DiscriminationIndex float64           `json:"discriminationIndex"`
	Effectiveness       Effectiveness     `json:"effectiveness"`
	CommonWrongAnswers  []WrongAnswerStat `json:"commonWrongAnswers"`
}

type ExamStatistics struct {
	ExamID            string          `json:"examId"`
	Title             string          `json:"title"`
	TotalMarks        float64         `json:"totalMarks"`
	Submitted         int             `json:"submitted"`
	AutoSubmitted     int             `json:"autoSubmitted"`
	MeanScore         float64         `json:"meanScore"`
	MedianScore       float64         `json:"medianScore"`
	StdDevScore       float64         `json:"stdDevScore"`
	MinScore          float64         `json:"minScore"`
	MaxScore          float64         `json:"maxScore"`
	MeanPercentage    float64         `json:"meanPercentage"`
	PassRate          float64         `json:"passRate"`
	GradeDistribution map[string]int  `json:"gradeDistribution"`
	Questions         []QuestionStat  `json:"questions"`
	AtRiskStudents    []AtRiskStudent `json:"atRiskStudents"`
}

var gradeBands = []string{"A+", "A", "B", "C", "D", "F"}

func (s *AnalyticsService) GetExamStatistics(ctx context.Context, user model.Identity, examID string) (*ExamStatistics, error) {
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
	ids := make([]string, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
	}
	answers, err := s.Attempts.ListAnswersForAttempts(ctx, ids)
	if err != nil {
		return nil, err
	}

	stats := ComputeExamStatistics(exam, attempts, answers)
	return stats, nil
}

// ComputeExamStatistics aggregates finalized attempts of one exam.
func ComputeExamStatistics(exam *model.Exam, attempts []model.Attempt, answers []model.Answer) *ExamStatistics {
	stats := &ExamStatistics{
		ExamID:            exam.ID,
		Title:             exam.Title,
		TotalMarks:        exam.TotalMarks,
		GradeDistribution: make(map[string]int, len(gradeBands)),
	}
	for _, g := range gradeBands {
		stats.GradeDistribution[g] = 0
	}

	scores := make([]float64, 0, len(attempts))
	passed := 0
	sumPct := 0.0
	for _, a := range attempts {
		if !a.Status.Finalized() {
			continue
		}
		stats.Submitted++
		if a.Status == model.AttemptAutoSubmitted {
			stats.AutoSubmitted++
		}
		scores = append(scores, a.TotalScore)
		sumPct += a.Percentage
		if a.Passed {
			passed++
		}
		stats.GradeDistribution[GradeFor(a.Percentage)]++
	}

	if n := len(scores); n > 0 {
		sort.Float64s(scores)
		sum := 0.0
		for _, v := range scores {
			sum += v
		}
		mean := sum / float64(n)
		variance := 0.0
		for _, v := range scores {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(n)

		stats.MeanScore = round2(mean)
		stats.StdDevScore = round2(math.Sqrt(variance))
		stats.MinScore = scores[0]
		stats.MaxScore = scores[n-1]
		if n%2 == 1 {
			stats.MedianScore = scores[n/2]
		} else {
			stats.MedianScore = round2((scores[n/2-1] + scores[n/2]) / 2)
		}
		stats.MeanPercentage = round2(sumPct / float64(n))
		stats.PassRate = round2(float64(passed) / float64(n) * 100)
	}

	perQuestion := make(map[string]*QuestionStat)
	order := make([]string, 0, len(exam.Questions))
	for _, eq := range exam.Questions {
		st := &QuestionStat{QuestionID: eq.QuestionID}
		if eq.Question != nil {
			st.Text = eq.Question.Text
		}
		perQuestion[eq.QuestionID] = st
		order = append(order, eq.QuestionID)
	}
	for _, a := range answers {
		st, ok := perQuestion[a.QuestionID]
		if !ok {
			st = &QuestionStat{QuestionID: a.QuestionID}
			perQuestion[a.QuestionID] = st
			order = append(order, a.QuestionID)
		}
		if !a.IsAnswered {
			st.Skipped++
			continue
		}
		st.Attempted++
		if a.IsCorrect != nil && *a.IsCorrect {
			st.Correct++
		}
	}
	stats.Questions = make([]QuestionStat, 0, len(order))
	for _, id := range order {
		st := perQuestion[id]
		if total := st.Attempted + st.Skipped; total > 0 {
			st.CorrectRate = round2(float64(st.Correct) / float64(total) * 100)
		}
		stats.Questions = append(stats.Questions, *st)
	}
	analyzeItems(exam, attempts, answers, stats.Questions)
	stats.AtRiskStudents = IdentifyAtRiskStudents(attempts)
	return stats
}
