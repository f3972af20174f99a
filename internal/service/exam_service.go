package service

import (
	"context"
	"errors"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExamService struct {
	Exams     ExamStore
	Questions QuestionStore
	Attempts  AttemptStore
	Directory DirectoryStore
	Cache     ExamCache
	Now       Clock
}

func NewExamService(exams ExamStore, questions QuestionStore, attempts AttemptStore, directory DirectoryStore, cache ExamCache) *ExamService {
	if cache == nil {
		cache = noopExamCache{}
	}
	return &ExamService{
		Exams:     exams,
		Questions: questions,
		Attempts:  attempts,
		Directory: directory,
		Cache:     cache,
		Now:       systemClock,
	}
}

type ExamRequest struct {
	Title             string     `json:"title" validate:"required,max=255"`
	Description       string     `json:"description"`
	Instructions      string     `json:"instructions"`
	CourseID          *string    `json:"courseId,omitempty"`
	DurationMinutes   int        `json:"durationMinutes" validate:"required,gt=0,lte=1440"`
	PassingPercentage *float64   `json:"passingPercentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	NegativeMarking   bool       `json:"negativeMarking"`
	NegativeMarkValue float64    `json:"negativeMarkValue" validate:"gte=0"`
	ShuffleQuestions  bool       `json:"shuffleQuestions"`
	ShuffleOptions    bool       `json:"shuffleOptions"`
	MaxAttempts       int        `json:"maxAttempts" validate:"omitempty,gte=1,lte=100"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	QuestionIDs       []string   `json:"questionIds,omitempty" validate:"omitempty,dive,required"`
}

// AssignRequest replaces the target set of every kind it provides; kinds
// left nil keep their current targets.
type AssignRequest struct {
	AssignmentMode *model.AssignmentMode `json:"assignmentMode,omitempty"`
	SectionIDs     *[]string             `json:"sectionIds,omitempty"`
	DepartmentIDs  *[]string             `json:"departmentIds,omitempty"`
	StudentIDs     *[]string             `json:"studentIds,omitempty"`
}

type ExamListRequest struct {
	Status   model.ExamStatus `form:"status"`
	CourseID string           `form:"courseId"`
	Mine     bool             `form:"mine"`
	Search   string           `form:"search"`
	Page     int              `form:"page"`
	Limit    int              `form:"limit"`
}

func (s *ExamService) loadExam(ctx context.Context, id string) (*model.Exam, error) {
	exam, err := s.Exams.FindExamByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

func (s *ExamService) loadForManage(ctx context.Context, user model.Identity, id string) (*model.Exam, error) {
	exam, err := s.loadExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageExam(user, exam) {
		return nil, util.ErrPermissionDenied
	}
	return exam, nil
}

func (s *ExamService) checkCourse(ctx context.Context, user model.Identity, courseID *string) error {
	if courseID == nil || *courseID == "" {
		return nil
	}
	course, err := s.Directory.FindCourseByID(ctx, *courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrCourseNotFound
		}
		return err
	}
	if !user.IsAdmin() && course.EducatorID != user.ID {
		return util.ErrPermissionDenied
	}
	return nil
}

func checkWindow(req *ExamRequest) error {
	if req.StartTime != nil && req.EndTime != nil && !req.EndTime.After(*req.StartTime) {
		return util.BadRequestError("endTime must be after startTime")
	}
	return nil
}

// resolveQuestions loads every id or fails the whole batch.
func (s *ExamService) resolveQuestions(ctx context.Context, user model.Identity, ids []string) ([]model.Question, error) {
	ids = dedupe(ids)
	questions, err := s.Questions.FindQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, util.Wrap(util.ErrQuestionNotFound, errors.New(id))
		}
		if !canManageQuestion(user, &q) {
			return nil, util.ErrPermissionDenied
		}
		ordered = append(ordered, q)
	}
	return ordered, nil
}

func totalMarksOf(questions []model.Question) float64 {
	total := 0.0
	for i := range questions {
		total += questions[i].EffectiveMarks()
	}
	return round2(total)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func applyExamRequest(exam *model.Exam, req *ExamRequest) {
	exam.Title = req.Title
	exam.Description = req.Description
	exam.Instructions = req.Instructions
	exam.CourseID = req.CourseID
	exam.DurationMinutes = req.DurationMinutes
	exam.PassingPercentage = 40
	if req.PassingPercentage != nil {
		exam.PassingPercentage = *req.PassingPercentage
	}
	exam.NegativeMarking = req.NegativeMarking
	exam.NegativeMarkValue = req.NegativeMarkValue
	exam.ShuffleQuestions = req.ShuffleQuestions
	exam.ShuffleOptions = req.ShuffleOptions
	exam.MaxAttempts = req.MaxAttempts
	if exam.MaxAttempts < 1 {
		exam.MaxAttempts = 1
	}
	exam.StartTime = req.StartTime
	exam.EndTime = req.EndTime
}

func (s *ExamService) CreateExam(ctx context.Context, user model.Identity, req ExamRequest) (*model.Exam, error) {
	if user.IsStudent() {
		return nil, util.ErrPermissionDenied
	}
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	if err := checkWindow(&req); err != nil {
		return nil, err
	}
	if err := s.checkCourse(ctx, user, req.CourseID); err != nil {
		return nil, err
	}

	exam := &model.Exam{
		InstitutionID:  user.InstitutionID,
		CreatedBy:      user.ID,
		Status:         model.ExamDraft,
		AssignmentMode: model.AssignAll,
	}
	applyExamRequest(exam, &req)

	if len(req.QuestionIDs) > 0 {
		questions, err := s.resolveQuestions(ctx, user, req.QuestionIDs)
		if err != nil {
			return nil, err
		}
		exam.TotalMarks = totalMarksOf(questions)
		exam.Questions = make([]model.ExamQuestion, len(questions))
		for i, q := range questions {
			exam.Questions[i] = model.ExamQuestion{QuestionID: q.ID, Position: i}
		}
	}

	if err := s.Exams.CreateExam(ctx, exam); err != nil {
		return nil, err
	}

	logger.Log.Info("Exam created",
		zap.String("exam_id", exam.ID),
		zap.String("user_id", user.ID),
		zap.Int("questions", len(exam.Questions)),
	)
	return s.loadExam(ctx, exam.ID)
}

// GetExamByID returns the eligibility-checked student view to students and
// the full definition to managers.
func (s *ExamService) GetExamByID(ctx context.Context, user model.Identity, id string) (*ExamView, error) {
	if user.IsStudent() {
		view, err := s.studentView(ctx, user, id)
		if err != nil {
			return nil, err
		}
		return &ExamView{Student: view}, nil
	}

	if exam, ok := s.Cache.Get(ctx, id); ok {
		if !canManageExam(user, exam) {
			return nil, util.ErrPermissionDenied
		}
		return &ExamView{Exam: exam}, nil
	}

	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, exam)
	return &ExamView{Exam: exam}, nil
}

func (s *ExamService) studentView(ctx context.Context, user model.Identity, id string) (*StudentExamView, error) {
	exam, err := s.loadExam(ctx, id)
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
	if exam.CourseID != nil {
		if facts.Enrolled, err = s.Directory.IsEnrolled(ctx, *exam.CourseID, student.ID); err != nil {
			return nil, err
		}
	}
	if err := CheckEligibility(PurposeView, facts); err != nil {
		return nil, err
	}

	view := newStudentExamView(exam)
	if view.AttemptsUsed, err = s.Attempts.CountAttempts(ctx, exam.ID, student.ID); err != nil {
		return nil, err
	}
	open, err := s.Attempts.FindOpenAttempt(ctx, exam.ID, student.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if open != nil {
		view.OpenAttemptID = open.ID
	}
	return view, nil
}

func (s *ExamService) UpdateExam(ctx context.Context, user model.Identity, id string, req ExamRequest) (*model.Exam, error) {
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	if err := checkWindow(&req); err != nil {
		return nil, err
	}
	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if exam.Status.Locked() {
		return nil, util.ErrExamLocked
	}
	if req.CourseID != nil && (exam.CourseID == nil || *exam.CourseID != *req.CourseID) {
		if err := s.checkCourse(ctx, user, req.CourseID); err != nil {
			return nil, err
		}
	}

	applyExamRequest(exam, &req)
	if err := s.Exams.UpdateExam(ctx, exam); err != nil {
		return nil, err
	}
	if req.QuestionIDs != nil {
		questions, err := s.resolveQuestions(ctx, user, req.QuestionIDs)
		if err != nil {
			return nil, err
		}
		if err := s.Exams.ReplaceExamQuestions(ctx, exam.ID, questionIDsOf(questions), totalMarksOf(questions)); err != nil {
			return nil, err
		}
	}
	s.Cache.Invalidate(ctx, id)
	return s.loadExam(ctx, id)
}

func (s *ExamService) DeleteExam(ctx context.Context, user model.Identity, id string) error {
	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return err
	}
	if exam.Status.Locked() {
		return util.ErrExamLocked
	}
	if err := s.Exams.DeleteExam(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrExamNotFound
		}
		return err
	}
	s.Cache.Invalidate(ctx, id)
	logger.Log.Info("Exam deleted", zap.String("exam_id", id), zap.String("user_id", user.ID))
	return nil
}

func questionIDsOf(questions []model.Question) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func existingQuestions(exam *model.Exam) []model.Question {
	out := make([]model.Question, 0, len(exam.Questions))
	for _, eq := range exam.Questions {
		if eq.Question != nil {
			out = append(out, *eq.Question)
		}
	}
	return out
}

// AddQuestionsToExam appends questions; one unknown id fails the whole batch.
func (s *ExamService) AddQuestionsToExam(ctx context.Context, user model.Identity, id string, questionIDs []string) (*model.Exam, error) {
	if len(questionIDs) == 0 {
		return nil, util.BadRequestError("questionIds is required")
	}
	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if exam.Status.Locked() {
		return nil, util.ErrExamLocked
	}
	added, err := s.resolveQuestions(ctx, user, questionIDs)
	if err != nil {
		return nil, err
	}

	questions := existingQuestions(exam)
	present := make(map[string]bool, len(questions))
	for _, q := range questions {
		present[q.ID] = true
	}
	for _, q := range added {
		if !present[q.ID] {
			questions = append(questions, q)
		}
	}

	if err := s.Exams.ReplaceExamQuestions(ctx, id, questionIDsOf(questions), totalMarksOf(questions)); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, id)
	return s.loadExam(ctx, id)
}

func (s *ExamService) RemoveQuestionFromExam(ctx context.Context, user model.Identity, id, questionID string) (*model.Exam, error) {
	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if exam.Status.Locked() {
		return nil, util.ErrExamLocked
	}

	questions := existingQuestions(exam)
	kept := questions[:0]
	found := false
	for _, q := range questions {
		if q.ID == questionID {
			found = true
			continue
		}
		kept = append(kept, q)
	}
	if !found {
		return nil, util.ErrQuestionNotFound
	}

	if err := s.Exams.ReplaceExamQuestions(ctx, id, questionIDsOf(kept), totalMarksOf(kept)); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, id)
	return s.loadExam(ctx, id)
}

// transition applies one lifecycle step with a conditional update, so two
// racing callers cannot both succeed.
func (s *ExamService) transition(ctx context.Context, exam *model.Exam, from []model.ExamStatus, to model.ExamStatus) (*model.Exam, error) {
	allowed := false
	for _, st := range from {
		if exam.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, util.ErrInvalidTransition
	}

	ok, err := s.Exams.TransitionStatus(ctx, exam.ID, from, to, s.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrInvalidTransition
	}
	s.Cache.Invalidate(ctx, exam.ID)

	logger.Log.Info("Exam status changed",
		zap.String("exam_id", exam.ID),
		zap.String("from", string(exam.Status)),
		zap.String("to", string(to)),
	)
	return s.loadExam(ctx, exam.ID)
}

func (s *ExamService) Publish(ctx context.Context, user model.Identity, id string) (*model.Exam, error) {
	ctx, span := tracing.Start(ctx, "ExamService.Publish", attribute.String("exam_id", id))
	exam, err := s.loadForManage(ctx, user, id)
	if err == nil && exam.Status == model.ExamDraft && len(exam.Questions) == 0 {
		err = util.ErrNoQuestions
	}
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}
	exam, err = s.transition(ctx, exam, []model.ExamStatus{model.ExamDraft}, model.ExamPublished)
	tracing.End(span, err)
	return exam, err
}

func (s *ExamService) Activate(ctx context.Context, user model.Identity, id string) (*model.Exam, error) {
	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, exam, []model.ExamStatus{model.ExamPublished}, model.ExamActive)
}

func (s *ExamService) Close(ctx context.Context, user model.Identity, id string) (*model.Exam, error) {
	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, exam, []model.ExamStatus{model.ExamPublished, model.ExamActive}, model.ExamCompleted)
}

// Archive is allowed from every state but only for the creator or an admin.
func (s *ExamService) Archive(ctx context.Context, user model.Identity, id string) (*model.Exam, error) {
	exam, err := s.loadExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canArchiveExam(user, exam) {
		return nil, util.ErrPermissionDenied
	}
	from := []model.ExamStatus{model.ExamDraft, model.ExamPublished, model.ExamActive, model.ExamCompleted}
	return s.transition(ctx, exam, from, model.ExamArchived)
}

// AssignExam replaces targets per provided kind. Mode "all" clears every
// target so the stored state cannot contradict itself.
func (s *ExamService) AssignExam(ctx context.Context, user model.Identity, id string, req AssignRequest) (*model.Exam, error) {
	exam, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if exam.Status.Locked() {
		return nil, util.ErrExamLocked
	}

	current := exam.Assignment()
	sections, departments, students := current.Sections, current.Departments, current.Students
	if req.SectionIDs != nil {
		sections = dedupe(*req.SectionIDs)
	}
	if req.DepartmentIDs != nil {
		departments = dedupe(*req.DepartmentIDs)
	}
	if req.StudentIDs != nil {
		students = dedupe(*req.StudentIDs)
	}

	mode := exam.AssignmentMode
	if req.AssignmentMode != nil {
		mode = *req.AssignmentMode
	} else if mode == model.AssignAll || mode == "" {
		// targets given without a mode switch the exam to targeted
		switch {
		case len(sections) > 0:
			mode = model.AssignSection
		case len(departments) > 0:
			mode = model.AssignDepartment
		case len(students) > 0:
			mode = model.AssignIndividual
		default:
			mode = model.AssignAll
		}
	}
	if !mode.Valid() {
		return nil, util.BadRequestError("invalid assignment mode")
	}

	var targets []model.ExamTarget
	if mode != model.AssignAll {
		for _, sid := range sections {
			targets = append(targets, model.ExamTarget{Kind: model.TargetSection, TargetID: sid})
		}
		for _, did := range departments {
			targets = append(targets, model.ExamTarget{Kind: model.TargetDepartment, TargetID: did})
		}
		for _, uid := range students {
			targets = append(targets, model.ExamTarget{Kind: model.TargetStudent, TargetID: uid})
		}
		if len(targets) == 0 {
			return nil, util.BadRequestError("targeted assignment needs at least one section, department or student")
		}
	}

	if err := s.Exams.ReplaceAssignment(ctx, id, mode, targets); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, id)
	return s.loadExam(ctx, id)
}

// ListExams is the manager listing, scoped to the caller's institution.
func (s *ExamService) ListExams(ctx context.Context, user model.Identity, req ExamListRequest) ([]model.Exam, int64, error) {
	if user.IsStudent() {
		return nil, 0, util.ErrPermissionDenied
	}
	filter := repository.ExamFilter{
		CourseID: req.CourseID,
		Search:   req.Search,
		Page:     req.Page,
		Limit:    req.Limit,
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if req.Status != "" {
		filter.Statuses = []model.ExamStatus{req.Status}
	}
	if req.Mine {
		filter.CreatedBy = user.ID
	}
	if !user.IsAdmin() {
		filter.InstitutionID = user.InstitutionID
	}
	return s.Exams.ListExams(ctx, filter)
}

// ListAvailableExams lists the published or active exams a student is
// eligible to see, with their attempt usage.
func (s *ExamService) ListAvailableExams(ctx context.Context, user model.Identity) ([]AvailableExam, error) {
	if !user.IsStudent() {
		return nil, util.ErrPermissionDenied
	}
	student, err := s.Directory.FindUserByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	exams, _, err := s.Exams.ListExams(ctx, repository.ExamFilter{
		InstitutionID: student.InstitutionID,
		Statuses:      []model.ExamStatus{model.ExamPublished, model.ExamActive},
	})
	if err != nil {
		return nil, err
	}

	attempts, err := s.Attempts.ListAttempts(ctx, repository.AttemptFilter{StudentID: student.ID})
	if err != nil {
		return nil, err
	}
	used := make(map[string]int64)
	openByExam := make(map[string]string)
	for _, a := range attempts {
		used[a.ExamID]++
		if a.Status.Open() {
			openByExam[a.ExamID] = a.ID
		}
	}

	enrolled := make(map[string]bool)
	now := s.Now()
	out := make([]AvailableExam, 0, len(exams))
	for i := range exams {
		exam := &exams[i]
		facts := EligibilityFacts{
			Student:        student,
			Exam:           exam,
			Now:            now,
			AttemptsUsed:   used[exam.ID],
			HasOpenAttempt: openByExam[exam.ID] != "",
		}
		if exam.CourseID != nil {
			ok, seen := enrolled[*exam.CourseID]
			if !seen {
				if ok, err = s.Directory.IsEnrolled(ctx, *exam.CourseID, student.ID); err != nil {
					return nil, err
				}
				enrolled[*exam.CourseID] = ok
			}
			facts.Enrolled = ok
		}
		if CheckEligibility(PurposeList, facts) != nil {
			continue
		}
		out = append(out, AvailableExam{
			ID:              exam.ID,
			Title:           exam.Title,
			Status:          exam.Status,
			DurationMinutes: exam.DurationMinutes,
			TotalMarks:      exam.TotalMarks,
			MaxAttempts:     exam.MaxAttempts,
			StartTime:       exam.StartTime,
			EndTime:         exam.EndTime,
			AttemptsUsed:    facts.AttemptsUsed,
			OpenAttemptID:   openByExam[exam.ID],
			CanStart:        CheckEligibility(PurposeStart, facts) == nil,
		})
	}
	return out, nil
}
