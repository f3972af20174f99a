package service

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"
	"exam_platform_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttemptService runs the attempt lifecycle: start, answer, submit and the
// reactive auto-submit of attempts found past their deadline.
type AttemptService struct {
	Exams     ExamStore
	Questions QuestionStore
	Attempts  AttemptStore
	Directory DirectoryStore
	Activity  ActivityStore
	Cache     ExamCache
	Now       Clock
}

func NewAttemptService(exams ExamStore, questions QuestionStore, attempts AttemptStore, directory DirectoryStore, activity ActivityStore, cache ExamCache) *AttemptService {
	if cache == nil {
		cache = noopExamCache{}
	}
	return &AttemptService{
		Exams:     exams,
		Questions: questions,
		Attempts:  attempts,
		Directory: directory,
		Activity:  activity,
		Cache:     cache,
		Now:       systemClock,
	}
}

// RequestMeta is the client information captured with attempt events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type SaveAnswerRequest struct {
	Answer    json.RawMessage `json:"answer"`
	TimeSpent int             `json:"timeSpent" validate:"gte=0"`
}

type ReviewRequest struct {
	Flag bool `json:"flag"`
}

type RegradeRequest struct {
	Marks     float64 `json:"marks"`
	IsCorrect *bool   `json:"isCorrect,omitempty"`
	Reason    string  `json:"reason" validate:"max=500"`
}

type AttemptListRequest struct {
	ExamID string `form:"examId"`
}

func (s *AttemptService) loadExam(ctx context.Context, id string) (*model.Exam, error) {
	exam, err := s.Exams.FindExamByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

func (s *AttemptService) loadAttempt(ctx context.Context, id string) (*model.Attempt, error) {
	attempt, err := s.Attempts.FindAttemptByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return attempt, nil
}

// loadOwnAttempt hides other students' attempts behind NotFound.
func (s *AttemptService) loadOwnAttempt(ctx context.Context, user model.Identity, id string) (*model.Attempt, error) {
	attempt, err := s.loadAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != user.ID {
		return nil, util.ErrAttemptNotFound
	}
	return attempt, nil
}

// questionSet maps question id to definition for every answer row, reading
// questions no longer linked to the exam from the bank.
func (s *AttemptService) questionSet(ctx context.Context, exam *model.Exam, answers []model.Answer) (map[string]*model.Question, error) {
	set := make(map[string]*model.Question, len(exam.Questions))
	for _, eq := range exam.Questions {
		if eq.Question != nil {
			set[eq.QuestionID] = eq.Question
		}
	}
	var missing []string
	for _, a := range answers {
		if _, ok := set[a.QuestionID]; !ok {
			missing = append(missing, a.QuestionID)
		}
	}
	if len(missing) == 0 {
		return set, nil
	}
	extra, err := s.Questions.FindQuestionsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range extra {
		set[extra[i].ID] = &extra[i]
	}
	return set, nil
}

func (s *AttemptService) recordActivity(ctx context.Context, attempt *model.Attempt, action model.ActivityAction, details map[string]interface{}, meta RequestMeta) {
	entry := &model.ActivityLog{
		AttemptID: attempt.ID,
		ExamID:    attempt.ExamID,
		UserID:    attempt.StudentID,
		Action:    action,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: s.Now(),
	}
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(data)
		}
	}
	if err := s.Activity.AppendActivity(ctx, entry); err != nil {
		logger.Log.Warn("Failed to record attempt activity",
			zap.String("attempt_id", attempt.ID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func (s *AttemptService) expired(attempt *model.Attempt) bool {
	return attempt.Status.Open() && s.Now().After(attempt.EndsAt)
}

// finalize grades and locks an open attempt. The status change is
// conditional: a caller that loses the race gets the persisted result
// together with ErrAttemptAlreadySubmitted.
func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, exam *model.Exam, submitType model.AttemptStatus, meta RequestMeta) (*model.Attempt, error) {
	ctx, span := tracing.Start(ctx, "AttemptService.finalize",
		attribute.String("attempt_id", attempt.ID),
		attribute.String("submit_type", string(submitType)),
	)
	result, err := s.doFinalize(ctx, attempt, exam, submitType, meta)
	tracing.End(span, err)
	return result, err
}

func (s *AttemptService) doFinalize(ctx context.Context, attempt *model.Attempt, exam *model.Exam, submitType model.AttemptStatus, meta RequestMeta) (*model.Attempt, error) {
	if !attempt.Status.Open() {
		return attempt, util.ErrAttemptAlreadySubmitted
	}

	answers, err := s.Attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionSet(ctx, exam, answers)
	if err != nil {
		return nil, err
	}

	finalizedAt := s.Now()
	if submitType == model.AttemptAutoSubmitted && finalizedAt.After(attempt.EndsAt) {
		// time ran out at the deadline, however late it was noticed
		finalizedAt = attempt.EndsAt
	}
	graded := GradeAttempt(exam, attempt.MaxScore, questions, answers, attempt.StartedAt, finalizedAt)

	updated := *attempt
	updated.Status = submitType
	updated.SubmittedAt = &finalizedAt
	updated.OpenKey = nil
	graded.Apply(&updated)

	ok, err := s.Attempts.FinalizeAttempt(ctx, &updated, graded.Answers)
	if err != nil {
		return nil, err
	}
	if !ok {
		persisted, err := s.loadAttempt(ctx, attempt.ID)
		if err != nil {
			return nil, err
		}
		return persisted, util.ErrAttemptAlreadySubmitted
	}

	monitoring.AttemptsFinalized.WithLabelValues(string(submitType)).Inc()
	action := model.ActivitySubmitted
	if submitType == model.AttemptAutoSubmitted {
		action = model.ActivityAutoSubmitted
	}
	s.recordActivity(ctx, &updated, action, map[string]interface{}{
		"totalScore": updated.TotalScore,
		"percentage": updated.Percentage,
	}, meta)

	logger.Log.Info("Attempt finalized",
		zap.String("attempt_id", updated.ID),
		zap.String("exam_id", updated.ExamID),
		zap.String("student_id", updated.StudentID),
		zap.String("submit_type", string(submitType)),
		zap.Float64("total_score", updated.TotalScore),
	)
	return &updated, nil
}

// expireIfDue auto-submits an open attempt past its deadline. Losing the
// finalize race to another caller still counts as finalized.
func (s *AttemptService) expireIfDue(ctx context.Context, attempt *model.Attempt, exam *model.Exam, meta RequestMeta) (*model.Attempt, bool, error) {
	if !s.expired(attempt) {
		return attempt, false, nil
	}
	final, err := s.finalize(ctx, attempt, exam, model.AttemptAutoSubmitted, meta)
	if err != nil && !errors.Is(err, util.ErrAttemptAlreadySubmitted) {
		return nil, true, err
	}
	return final, true, nil
}

// StartAttempt opens a new attempt after the full eligibility check and
// materializes one answer row per exam question.
func (s *AttemptService) StartAttempt(ctx context.Context, user model.Identity, examID string, meta RequestMeta) (*AttemptSession, error) {
	ctx, span := tracing.Start(ctx, "AttemptService.StartAttempt", attribute.String("exam_id", examID))
	session, err := s.startAttempt(ctx, user, examID, meta)
	tracing.End(span, err)
	return session, err
}

func (s *AttemptService) startAttempt(ctx context.Context, user model.Identity, examID string, meta RequestMeta) (*AttemptSession, error) {
	if !user.IsStudent() {
		return nil, util.ErrPermissionDenied
	}
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	student, err := s.Directory.FindUserByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	facts := EligibilityFacts{Student: student, Exam: exam, Now: s.Now()}

	open, err := s.Attempts.FindOpenAttempt(ctx, exam.ID, student.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if open != nil {
		if _, expired, err := s.expireIfDue(ctx, open, exam, meta); err != nil {
			return nil, err
		} else if !expired {
			facts.HasOpenAttempt = true
		}
	}

	if facts.AttemptsUsed, err = s.Attempts.CountAttempts(ctx, exam.ID, student.ID); err != nil {
		return nil, err
	}
	if exam.CourseID != nil {
		if facts.Enrolled, err = s.Directory.IsEnrolled(ctx, *exam.CourseID, student.ID); err != nil {
			return nil, err
		}
	}
	if err := CheckEligibility(PurposeStart, facts); err != nil {
		return nil, err
	}

	now := s.Now()
	attempt := &model.Attempt{
		ExamID:        exam.ID,
		StudentID:     student.ID,
		AttemptNumber: int(facts.AttemptsUsed) + 1,
		OpenKey:       model.OpenKeyFor(exam.ID, student.ID),
		Status:        model.AttemptStarted,
		StartedAt:     now,
		EndsAt:        now.Add(time.Duration(exam.DurationMinutes) * time.Minute),
		ShuffleSeed:   rand.Int63(),
		MaxScore:      exam.TotalMarks,
		IPAddress:     meta.IPAddress,
		BrowserInfo:   meta.UserAgent,
	}
	answers := make([]model.Answer, len(exam.Questions))
	for i, eq := range exam.Questions {
		answers[i] = model.Answer{QuestionID: eq.QuestionID, Position: i}
	}

	if err := s.Attempts.CreateAttempt(ctx, attempt, answers); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, util.ErrAttemptInProgress
		}
		return nil, err
	}

	if exam.Status == model.ExamPublished {
		activated, err := s.Exams.TransitionStatus(ctx, exam.ID, []model.ExamStatus{model.ExamPublished}, model.ExamActive, now)
		if err != nil {
			logger.Log.Error("Lazy exam activation failed", zap.String("exam_id", exam.ID), zap.Error(err))
		} else if activated {
			s.Cache.Invalidate(ctx, exam.ID)
			logger.Log.Info("Exam activated by first attempt", zap.String("exam_id", exam.ID))
		}
	}

	monitoring.AttemptsStarted.Inc()
	s.recordActivity(ctx, attempt, model.ActivityStarted, map[string]interface{}{
		"attemptNumber": attempt.AttemptNumber,
	}, meta)
	logger.Log.Info("Attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("exam_id", exam.ID),
		zap.String("student_id", student.ID),
		zap.Int("attempt_number", attempt.AttemptNumber),
	)

	return s.buildSession(ctx, attempt, exam, answers)
}

// buildSession lays out the attempt's questions in its stable presentation
// order. The order and option shuffles derive from the attempt's seed, so
// every resume sees the same layout.
func (s *AttemptService) buildSession(ctx context.Context, attempt *model.Attempt, exam *model.Exam, answers []model.Answer) (*AttemptSession, error) {
	questions, err := s.questionSet(ctx, exam, answers)
	if err != nil {
		return nil, err
	}

	ordered := make([]model.Answer, len(answers))
	copy(ordered, answers)
	if exam.ShuffleQuestions {
		rng := rand.New(rand.NewSource(attempt.ShuffleSeed))
		rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}

	remaining := int(attempt.EndsAt.Sub(s.Now()).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	session := &AttemptSession{
		AttemptID:     attempt.ID,
		ExamID:        exam.ID,
		ExamTitle:     exam.Title,
		Instructions:  exam.Instructions,
		AttemptNumber: attempt.AttemptNumber,
		Status:        attempt.Status,
		TotalMarks:    attempt.MaxScore,
		StartedAt:     attempt.StartedAt,
		EndTime:       attempt.EndsAt,
		TimeRemaining: remaining,
		Questions:     make([]SessionQuestion, 0, len(ordered)),
	}
	for i, a := range ordered {
		q := questions[a.QuestionID]
		if q == nil {
			continue
		}
		view := newQuestionView(q)
		if exam.ShuffleOptions && len(view.Options) > 1 {
			rng := rand.New(rand.NewSource(optionSeed(attempt.ShuffleSeed, q.ID)))
			rng.Shuffle(len(view.Options), func(x, y int) {
				view.Options[x], view.Options[y] = view.Options[y], view.Options[x]
			})
		}
		session.Questions = append(session.Questions, SessionQuestion{
			QuestionView:      view,
			Position:          i,
			SavedAnswer:       a.SelectedAnswer.Plain(),
			IsAnswered:        a.IsAnswered,
			IsMarkedForReview: a.IsMarkedForReview,
		})
	}
	return session, nil
}

func optionSeed(seed int64, questionID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(questionID))
	return seed ^ int64(h.Sum64())
}

// ResumeAttempt rebuilds the session of an open attempt; an attempt found
// past its deadline is auto-submitted and the resume fails.
func (s *AttemptService) ResumeAttempt(ctx context.Context, user model.Identity, attemptID string, meta RequestMeta) (*AttemptSession, error) {
	attempt, err := s.loadOwnAttempt(ctx, user, attemptID)
	if err != nil {
		return nil, err
	}
	return s.resume(ctx, attempt, meta)
}

// ResumeCurrentAttempt resumes the caller's open attempt on an exam.
func (s *AttemptService) ResumeCurrentAttempt(ctx context.Context, user model.Identity, examID string, meta RequestMeta) (*AttemptSession, error) {
	attempt, err := s.Attempts.FindOpenAttempt(ctx, examID, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return s.resume(ctx, attempt, meta)
}

func (s *AttemptService) resume(ctx context.Context, attempt *model.Attempt, meta RequestMeta) (*AttemptSession, error) {
	if !attempt.Status.Open() {
		return nil, util.ErrAttemptAlreadySubmitted
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if _, expired, err := s.expireIfDue(ctx, attempt, exam, meta); err != nil {
		return nil, err
	} else if expired {
		return nil, util.ErrTimeExpired
	}

	answers, err := s.Attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, attempt, model.ActivityResumed, nil, meta)
	return s.buildSession(ctx, attempt, exam, answers)
}

// openForWrite loads the caller's attempt for an answer write, enforcing the
// deadline first.
func (s *AttemptService) openForWrite(ctx context.Context, user model.Identity, attemptID string, meta RequestMeta) (*model.Attempt, *model.Exam, error) {
	attempt, err := s.loadOwnAttempt(ctx, user, attemptID)
	if err != nil {
		return nil, nil, err
	}
	if !attempt.Status.Open() {
		return nil, nil, util.ErrAttemptAlreadySubmitted
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, err
	}
	if _, expired, err := s.expireIfDue(ctx, attempt, exam, meta); err != nil {
		return nil, nil, err
	} else if expired {
		return nil, nil, util.ErrTimeExpired
	}
	return attempt, exam, nil
}

func (s *AttemptService) findAnswer(ctx context.Context, attemptID, questionID string) (*model.Answer, error) {
	answer, err := s.Attempts.FindAnswer(ctx, attemptID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAnswerNotInAttempt
		}
		return nil, err
	}
	return answer, nil
}

// SaveAnswer overwrites the stored answer for one question. The value is
// only shape-checked here; correctness is decided at finalize.
func (s *AttemptService) SaveAnswer(ctx context.Context, user model.Identity, attemptID, questionID string, req SaveAnswerRequest, meta RequestMeta) error {
	if err := validateStruct(&req); err != nil {
		return err
	}
	attempt, exam, err := s.openForWrite(ctx, user, attemptID, meta)
	if err != nil {
		return err
	}
	existing, err := s.findAnswer(ctx, attempt.ID, questionID)
	if err != nil {
		return err
	}

	questions, err := s.questionSet(ctx, exam, []model.Answer{*existing})
	if err != nil {
		return err
	}
	q := questions[questionID]
	if q == nil {
		return util.ErrQuestionNotFound
	}
	value, err := model.ParseAnswerValue(q.Type, req.Answer)
	if err != nil {
		return util.Wrap(util.BadRequestError("invalid answer"), err)
	}

	ok, err := s.Attempts.SaveAnswer(ctx, attempt.ID, questionID, value, s.Now(), req.TimeSpent)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrAttemptAlreadySubmitted
	}
	if attempt.Status == model.AttemptStarted {
		if err := s.Attempts.MarkInProgress(ctx, attempt.ID); err != nil {
			return err
		}
	}

	monitoring.AnswersSaved.Inc()
	action := model.ActivityAnswerChanged
	if !existing.IsAnswered && value != nil {
		action = model.ActivityAnswerSubmitted
	}
	s.recordActivity(ctx, attempt, action, map[string]interface{}{
		"questionId": questionID,
		"answered":   value != nil,
	}, meta)
	return nil
}

// MarkForReview toggles the review flag; it has no effect on grading.
func (s *AttemptService) MarkForReview(ctx context.Context, user model.Identity, attemptID, questionID string, flag bool, meta RequestMeta) error {
	attempt, _, err := s.openForWrite(ctx, user, attemptID, meta)
	if err != nil {
		return err
	}
	if _, err := s.findAnswer(ctx, attempt.ID, questionID); err != nil {
		return err
	}
	ok, err := s.Attempts.SetMarkedForReview(ctx, attempt.ID, questionID, flag)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrAttemptAlreadySubmitted
	}
	s.recordActivity(ctx, attempt, model.ActivityMarkedReview, map[string]interface{}{
		"questionId": questionID,
		"flag":       flag,
	}, meta)
	return nil
}

// SubmitAttempt finalizes the caller's attempt. An attempt already past its
// deadline is finalized as auto_submitted instead.
func (s *AttemptService) SubmitAttempt(ctx context.Context, user model.Identity, attemptID string, meta RequestMeta) (*AttemptResult, error) {
	ctx, span := tracing.Start(ctx, "AttemptService.SubmitAttempt", attribute.String("attempt_id", attemptID))
	result, err := s.submitAttempt(ctx, user, attemptID, meta)
	tracing.End(span, err)
	return result, err
}

func (s *AttemptService) submitAttempt(ctx context.Context, user model.Identity, attemptID string, meta RequestMeta) (*AttemptResult, error) {
	attempt, err := s.loadOwnAttempt(ctx, user, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.Status.Open() {
		return nil, util.ErrAttemptAlreadySubmitted
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	submitType := model.AttemptSubmitted
	if s.expired(attempt) {
		submitType = model.AttemptAutoSubmitted
	}
	final, err := s.finalize(ctx, attempt, exam, submitType, meta)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, final, exam)
}

func (s *AttemptService) result(ctx context.Context, attempt *model.Attempt, exam *model.Exam) (*AttemptResult, error) {
	answers, err := s.Attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionSet(ctx, exam, answers)
	if err != nil {
		return nil, err
	}
	return newAttemptResult(attempt, exam, questions, answers), nil
}

// GetAttemptResult returns a finalized result to its student or to someone
// who can manage the exam. Expired open attempts are finalized first.
func (s *AttemptService) GetAttemptResult(ctx context.Context, user model.Identity, attemptID string) (*AttemptResult, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if user.IsStudent() && attempt.StudentID != user.ID {
		return nil, util.ErrAttemptNotFound
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if !user.IsStudent() && !canManageExam(user, exam) {
		return nil, util.ErrPermissionDenied
	}

	if attempt, _, err = s.expireIfDue(ctx, attempt, exam, RequestMeta{}); err != nil {
		return nil, err
	}
	if !attempt.Status.Finalized() {
		return nil, util.ErrAttemptNotFinalized
	}
	return s.result(ctx, attempt, exam)
}

// ListMyAttempts lists the caller's attempts, finalizing any that expired.
func (s *AttemptService) ListMyAttempts(ctx context.Context, user model.Identity, req AttemptListRequest) ([]model.Attempt, error) {
	attempts, err := s.Attempts.ListAttempts(ctx, repository.AttemptFilter{ExamID: req.ExamID, StudentID: user.ID})
	if err != nil {
		return nil, err
	}
	exams := make(map[string]*model.Exam)
	for i := range attempts {
		if !s.expired(&attempts[i]) {
			continue
		}
		exam, ok := exams[attempts[i].ExamID]
		if !ok {
			if exam, err = s.loadExam(ctx, attempts[i].ExamID); err != nil {
				return nil, err
			}
			exams[exam.ID] = exam
		}
		final, _, err := s.expireIfDue(ctx, &attempts[i], exam, RequestMeta{})
		if err != nil {
			return nil, err
		}
		attempts[i] = *final
	}
	return attempts, nil
}

// ListExamAttempts is the manager view of every attempt on an exam.
func (s *AttemptService) ListExamAttempts(ctx context.Context, user model.Identity, examID string) ([]model.Attempt, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !canManageExam(user, exam) {
		return nil, util.ErrPermissionDenied
	}
	return s.Attempts.ListAttempts(ctx, repository.AttemptFilter{ExamID: examID})
}

func (s *AttemptService) GetAttemptActivity(ctx context.Context, user model.Identity, attemptID string) ([]model.ActivityLog, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if !canManageExam(user, exam) {
		return nil, util.ErrPermissionDenied
	}
	return s.Activity.ListActivity(ctx, attemptID)
}

// RegradeAnswer overrides the marks of one answer on a finalized attempt,
// recomputes the totals and moves the attempt to graded.
func (s *AttemptService) RegradeAnswer(ctx context.Context, user model.Identity, attemptID, questionID string, req RegradeRequest) (*AttemptResult, error) {
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if !canManageExam(user, exam) {
		return nil, util.ErrPermissionDenied
	}
	if !attempt.Status.Finalized() {
		return nil, util.ErrAttemptNotFinalized
	}

	answer, err := s.findAnswer(ctx, attemptID, questionID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionSet(ctx, exam, []model.Answer{*answer})
	if err != nil {
		return nil, err
	}
	q := questions[questionID]
	if q == nil {
		return nil, util.ErrQuestionNotFound
	}
	if req.Marks > q.EffectiveMarks() || req.Marks < -q.EffectiveMarks() {
		return nil, util.BadRequestError("marks are outside the question's range")
	}

	updated, err := s.Attempts.RegradeAttempt(ctx, attemptID, func(a *model.Attempt, answers []model.Answer) error {
		if !a.Status.Finalized() {
			return util.ErrAttemptNotFinalized
		}
		found := false
		for i := range answers {
			if answers[i].QuestionID != questionID {
				continue
			}
			correct := req.Marks > 0
			if req.IsCorrect != nil {
				correct = *req.IsCorrect
			}
			answers[i].IsCorrect = &correct
			answers[i].MarksAwarded = req.Marks
			found = true
		}
		if !found {
			return util.ErrAnswerNotInAttempt
		}
		summary := Summarize(answers, a.MaxScore, exam.PassingPercentage)
		summary.TimeTaken = a.TimeTaken
		summary.Apply(a)
		a.Status = model.AttemptGraded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, updated, model.ActivityRegraded, map[string]interface{}{
		"questionId": questionID,
		"marks":      req.Marks,
		"gradedBy":   user.ID,
		"reason":     req.Reason,
	}, RequestMeta{})
	logger.Log.Info("Attempt regraded",
		zap.String("attempt_id", attemptID),
		zap.String("question_id", questionID),
		zap.String("user_id", user.ID),
	)
	return s.result(ctx, updated, exam)
}

// SweepExpired auto-submits open attempts past their deadline. It backs the
// optional scheduled sweep; request paths do the same check on access.
func (s *AttemptService) SweepExpired(ctx context.Context, limit int) (int, error) {
	attempts, err := s.Attempts.ListExpiredOpenAttempts(ctx, s.Now(), limit)
	if err != nil {
		return 0, err
	}
	exams := make(map[string]*model.Exam)
	finalized := 0
	for i := range attempts {
		a := &attempts[i]
		exam, ok := exams[a.ExamID]
		if !ok {
			if exam, err = s.loadExam(ctx, a.ExamID); err != nil {
				logger.Log.Error("Sweep could not load exam", zap.String("exam_id", a.ExamID), zap.Error(err))
				continue
			}
			exams[a.ExamID] = exam
		}
		if _, err := s.finalize(ctx, a, exam, model.AttemptAutoSubmitted, RequestMeta{}); err != nil {
			if !errors.Is(err, util.ErrAttemptAlreadySubmitted) {
				logger.Log.Error("Sweep finalize failed", zap.String("attempt_id", a.ID), zap.Error(err))
			}
			continue
		}
		finalized++
	}
	return finalized, nil
}
