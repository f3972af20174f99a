package service

import (
	"math"
	"sort"
	"time"

	"exam_platform_backend/internal/model"
)

const (
	// share of attempts forming each of the upper and lower groups
	discriminationPercentile = 27
	commonWrongAnswerLimit   = 3
	atRiskThreshold          = 50.0
	trendMargin              = 10.0
)

type Effectiveness string

const (
	EffectivenessEffective   Effectiveness = "effective"
	EffectivenessAcceptable  Effectiveness = "acceptable"
	EffectivenessTooEasy     Effectiveness = "too_easy"
	EffectivenessTooHard     Effectiveness = "too_hard"
	EffectivenessPoor        Effectiveness = "poor_discriminator"
	EffectivenessNeedsReview Effectiveness = "needs_review"
)

type Trend string

const (
	TrendImproving    Trend = "improving"
	TrendStable       Trend = "stable"
	TrendDeclining    Trend = "declining"
	TrendInsufficient Trend = "insufficient_data"
)

type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

type WrongAnswerStat struct {
	OptionID string `json:"optionId"`
	Text     string `json:"text,omitempty"`
	Count    int    `json:"count"`
}

type AtRiskStudent struct {
	StudentID         string    `json:"studentId"`
	Attempts          int       `json:"attempts"`
	AveragePercentage float64   `json:"averagePercentage"`
	LatestPercentage  float64   `json:"latestPercentage"`
	Trend             Trend     `json:"trend"`
	RiskLevel         RiskLevel `json:"riskLevel"`
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// EffectivenessFor labels a question from its difficulty index (share
// correct) and discrimination index.
func EffectivenessFor(difficulty, discrimination float64) Effectiveness {
	switch {
	case discrimination < 0:
		return EffectivenessNeedsReview
	case difficulty > 0.9:
		return EffectivenessTooEasy
	case difficulty < 0.2:
		return EffectivenessTooHard
	case discrimination < 0.2:
		return EffectivenessPoor
	case difficulty >= 0.3 && difficulty <= 0.7:
		return EffectivenessEffective
	}
	return EffectivenessAcceptable
}

// upperLowerGroups splits finalized attempts by percentage into the top and
// bottom groups used for discrimination. Both groups have the same size.
func upperLowerGroups(attempts []model.Attempt) (top, bottom map[string]bool, size int) {
	ranked := make([]model.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Status.Finalized() {
			ranked = append(ranked, a)
		}
	}
	if len(ranked) == 0 {
		return nil, nil, 0
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Percentage != ranked[j].Percentage {
			return ranked[i].Percentage > ranked[j].Percentage
		}
		return ranked[i].ID < ranked[j].ID
	})

	size = len(ranked) * discriminationPercentile / 100
	if size < 1 {
		size = 1
	}
	top = make(map[string]bool, size)
	bottom = make(map[string]bool, size)
	for _, a := range ranked[:size] {
		top[a.ID] = true
	}
	for _, a := range ranked[len(ranked)-size:] {
		bottom[a.ID] = true
	}
	return top, bottom, size
}

// analyzeItems fills the item-analysis fields of every question stat.
func analyzeItems(exam *model.Exam, attempts []model.Attempt, answers []model.Answer, stats []QuestionStat) {
	top, bottom, size := upperLowerGroups(attempts)

	optionText := make(map[string]map[string]string)
	for _, eq := range exam.Questions {
		if eq.Question == nil {
			continue
		}
		texts := make(map[string]string, len(eq.Question.Options))
		for _, o := range eq.Question.Options {
			texts[o.ID] = o.Text
		}
		optionText[eq.QuestionID] = texts
	}

	topCorrect := make(map[string]int)
	bottomCorrect := make(map[string]int)
	wrong := make(map[string]map[string]int)
	for _, a := range answers {
		correct := a.IsAnswered && a.IsCorrect != nil && *a.IsCorrect
		if correct {
			if top[a.AttemptID] {
				topCorrect[a.QuestionID]++
			}
			if bottom[a.AttemptID] {
				bottomCorrect[a.QuestionID]++
			}
			continue
		}
		if !a.IsAnswered || a.SelectedAnswer == nil {
			continue
		}
		var picked []string
		switch a.SelectedAnswer.Kind {
		case model.SingleChoice, model.TrueFalse:
			picked = []string{a.SelectedAnswer.Choice}
		case model.MultiSelect:
			picked = dedupeSorted(a.SelectedAnswer.Choices)
		}
		if len(picked) == 0 {
			continue
		}
		if wrong[a.QuestionID] == nil {
			wrong[a.QuestionID] = make(map[string]int)
		}
		for _, id := range picked {
			wrong[a.QuestionID][id]++
		}
	}

	for i := range stats {
		st := &stats[i]
		if total := st.Attempted + st.Skipped; total > 0 {
			st.DifficultyIndex = round3(float64(st.Correct) / float64(total))
		}
		if size > 0 {
			st.DiscriminationIndex = round3(float64(topCorrect[st.QuestionID]-bottomCorrect[st.QuestionID]) / float64(size))
		}
		st.Effectiveness = EffectivenessFor(st.DifficultyIndex, st.DiscriminationIndex)
		st.CommonWrongAnswers = commonWrongAnswers(wrong[st.QuestionID], optionText[st.QuestionID])
	}
}

func commonWrongAnswers(counts map[string]int, texts map[string]string) []WrongAnswerStat {
	out := make([]WrongAnswerStat, 0, len(counts))
	for id, n := range counts {
		out = append(out, WrongAnswerStat{OptionID: id, Text: texts[id], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].OptionID < out[j].OptionID
	})
	if len(out) > commonWrongAnswerLimit {
		out = out[:commonWrongAnswerLimit]
	}
	return out
}

func finishedAt(a model.Attempt) time.Time {
	if a.SubmittedAt != nil {
		return *a.SubmittedAt
	}
	return a.StartedAt
}

func riskLevelFor(avg float64) RiskLevel {
	switch {
	case avg < 30:
		return RiskCritical
	case avg < 40:
		return RiskHigh
	case avg < 50:
		return RiskMedium
	}
	return RiskLow
}

// IdentifyAtRiskStudents flags students whose finalized attempts average
// below the threshold or whose latest attempt fell well short of their first.
// The lowest averages come first.
func IdentifyAtRiskStudents(attempts []model.Attempt) []AtRiskStudent {
	byStudent := make(map[string][]model.Attempt)
	for _, a := range attempts {
		if a.Status.Finalized() {
			byStudent[a.StudentID] = append(byStudent[a.StudentID], a)
		}
	}

	out := make([]AtRiskStudent, 0)
	for studentID, list := range byStudent {
		sort.SliceStable(list, func(i, j int) bool {
			return finishedAt(list[i]).Before(finishedAt(list[j]))
		})
		sum := 0.0
		for _, a := range list {
			sum += a.Percentage
		}
		avg := sum / float64(len(list))
		first, latest := list[0].Percentage, list[len(list)-1].Percentage

		trend := TrendInsufficient
		if len(list) >= 2 {
			switch {
			case latest > first+trendMargin:
				trend = TrendImproving
			case latest < first-trendMargin:
				trend = TrendDeclining
			default:
				trend = TrendStable
			}
		}
		if avg >= atRiskThreshold && trend != TrendDeclining {
			continue
		}
		out = append(out, AtRiskStudent{
			StudentID:         studentID,
			Attempts:          len(list),
			AveragePercentage: round2(avg),
			LatestPercentage:  latest,
			Trend:             trend,
			RiskLevel:         riskLevelFor(avg),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AveragePercentage != out[j].AveragePercentage {
			return out[i].AveragePercentage < out[j].AveragePercentage
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}
