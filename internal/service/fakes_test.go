package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"

	"gorm.io/gorm"
)

/* ---------------- In-memory store satisfying every store interface ---------------- */

type memStore struct {
	mu        sync.Mutex
	exams     map[string]model.Exam
	questions map[string]model.Question
	attempts  map[string]model.Attempt
	answers   map[string][]model.Answer // key: attempt id
	users     map[string]model.User
	courses   map[string]model.Course
	enrolled  map[string]bool // key: course|student
	activity  []model.ActivityLog
}

func newMemStore() *memStore {
	return &memStore{
		exams:     map[string]model.Exam{},
		questions: map[string]model.Question{},
		attempts:  map[string]model.Attempt{},
		answers:   map[string][]model.Answer{},
		users:     map[string]model.User{},
		courses:   map[string]model.Course{},
		enrolled:  map[string]bool{},
	}
}

func copyQuestion(q model.Question) *model.Question {
	out := q
	out.Options = append([]model.QuestionOption(nil), q.Options...)
	return &out
}

// hydrate returns a deep copy of the exam with its questions attached, the
// way the gorm preloads do.
func (s *memStore) hydrate(e model.Exam) *model.Exam {
	out := e
	out.Questions = make([]model.ExamQuestion, len(e.Questions))
	for i, eq := range e.Questions {
		eq.Question = nil
		if q, ok := s.questions[eq.QuestionID]; ok {
			eq.Question = copyQuestion(q)
		}
		out.Questions[i] = eq
	}
	out.Targets = append([]model.ExamTarget(nil), e.Targets...)
	return &out
}

// ---- ExamStore ----

func (s *memStore) CreateExam(ctx context.Context, exam *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exam.ID == "" {
		exam.ID = model.GenerateUUID()
	}
	for i := range exam.Questions {
		exam.Questions[i].ID = model.GenerateUUID()
		exam.Questions[i].ExamID = exam.ID
	}
	stored := *exam
	stored.Questions = append([]model.ExamQuestion(nil), exam.Questions...)
	for i := range stored.Questions {
		stored.Questions[i].Question = nil
	}
	stored.Targets = append([]model.ExamTarget(nil), exam.Targets...)
	s.exams[exam.ID] = stored
	return nil
}

func (s *memStore) FindExamByID(ctx context.Context, id string) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.hydrate(e), nil
}

func (s *memStore) UpdateExam(ctx context.Context, exam *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.exams[exam.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	updated := *exam
	updated.Questions = current.Questions
	updated.Targets = current.Targets
	s.exams[exam.ID] = updated
	return nil
}

func (s *memStore) DeleteExam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.exams, id)
	return nil
}

func (s *memStore) TransitionStatus(ctx context.Context, id string, from []model.ExamStatus, to model.ExamStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if e.Status == st {
			e.Status = to
			switch to {
			case model.ExamPublished:
				e.PublishedAt = &at
			case model.ExamActive:
				e.ActivatedAt = &at
			case model.ExamCompleted:
				e.ClosedAt = &at
			case model.ExamArchived:
				e.ArchivedAt = &at
			}
			s.exams[id] = e
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ReplaceExamQuestions(ctx context.Context, examID string, questionIDs []string, totalMarks float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[examID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Questions = make([]model.ExamQuestion, len(questionIDs))
	for i, qid := range questionIDs {
		e.Questions[i] = model.ExamQuestion{ExamID: examID, QuestionID: qid, Position: i}
		e.Questions[i].ID = model.GenerateUUID()
	}
	e.TotalMarks = totalMarks
	s.exams[examID] = e
	return nil
}

func (s *memStore) ReplaceAssignment(ctx context.Context, examID string, mode model.AssignmentMode, targets []model.ExamTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[examID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.AssignmentMode = mode
	e.Targets = nil
	for _, t := range targets {
		t.ExamID = examID
		e.Targets = append(e.Targets, t)
	}
	s.exams[examID] = e
	return nil
}

func (s *memStore) ListExams(ctx context.Context, filter repository.ExamFilter) ([]model.Exam, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Exam
	for _, e := range s.exams {
		if filter.InstitutionID != nil && e.InstitutionID != nil && *e.InstitutionID != *filter.InstitutionID {
			continue
		}
		if filter.CreatedBy != "" && e.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.CourseID != "" && (e.CourseID == nil || *e.CourseID != filter.CourseID) {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, e.Status) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *s.hydrate(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, int64(len(out)), nil
}

func hasStatus(list []model.ExamStatus, st model.ExamStatus) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}
	return false
}

// ---- QuestionStore ----

func (s *memStore) CreateQuestion(ctx context.Context, q *model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		q.ID = model.GenerateUUID()
	}
	for i := range q.Options {
		if q.Options[i].ID == "" {
			q.Options[i].ID = model.GenerateUUID()
		}
		q.Options[i].QuestionID = q.ID
	}
	s.questions[q.ID] = *copyQuestion(*q)
	return nil
}

func (s *memStore) FindQuestionByID(ctx context.Context, id string) (*model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyQuestion(q), nil
}

func (s *memStore) FindQuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Question
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, *copyQuestion(q))
		}
	}
	return out, nil
}

func (s *memStore) UpdateQuestion(ctx context.Context, q *model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range q.Options {
		q.Options[i].ID = model.GenerateUUID()
		q.Options[i].QuestionID = q.ID
	}
	s.questions[q.ID] = *copyQuestion(*q)
	return nil
}

func (s *memStore) DeleteQuestion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.questions, id)
	return nil
}

func (s *memStore) CountQuestionUsage(ctx context.Context, questionID string, statuses []model.ExamStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.exams {
		if len(statuses) > 0 && !hasStatus(statuses, e.Status) {
			continue
		}
		for _, eq := range e.Questions {
			if eq.QuestionID == questionID {
				n++
			}
		}
	}
	return n, nil
}

func (s *memStore) CountOpenAnswers(ctx context.Context, questionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rows := range s.answers {
		if !s.attempts[id].Status.Open() {
			continue
		}
		for _, a := range rows {
			if a.QuestionID == questionID {
				n++
			}
		}
	}
	return n, nil
}

func (s *memStore) ListQuestions(ctx context.Context, filter repository.QuestionFilter) ([]model.Question, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Question
	for _, q := range s.questions {
		if filter.Type != "" && q.Type != filter.Type {
			continue
		}
		out = append(out, *copyQuestion(q))
	}
	return out, int64(len(out)), nil
}

// ---- AttemptStore ----

// CreateAttempt enforces the same unique keys as the schema: one open key
// per student and exam, and one row per attempt number.
func (s *memStore) CreateAttempt(ctx context.Context, attempt *model.Attempt, answers []model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.OpenKey != nil && attempt.OpenKey != nil && *a.OpenKey == *attempt.OpenKey {
			return repository.ErrDuplicate
		}
		if a.ExamID == attempt.ExamID && a.StudentID == attempt.StudentID && a.AttemptNumber == attempt.AttemptNumber {
			return repository.ErrDuplicate
		}
	}
	if attempt.ID == "" {
		attempt.ID = model.GenerateUUID()
	}
	rows := make([]model.Answer, len(answers))
	for i := range answers {
		answers[i].AttemptID = attempt.ID
		if answers[i].ID == "" {
			answers[i].ID = model.GenerateUUID()
		}
		rows[i] = answers[i]
	}
	s.attempts[attempt.ID] = *attempt
	s.answers[attempt.ID] = rows
	return nil
}

func (s *memStore) FindAttemptByID(ctx context.Context, id string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (s *memStore) FindOpenAttempt(ctx context.Context, examID, studentID string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status.Open() {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStore) CountAttempts(ctx context.Context, examID, studentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListAnswers(ctx context.Context, attemptID string) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Answer(nil), s.answers[attemptID]...), nil
}

func (s *memStore) FindAnswer(ctx context.Context, attemptID, questionID string) (*model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.answers[attemptID] {
		if a.QuestionID == questionID {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStore) updateOpenAnswer(attemptID, questionID string, fn func(a *model.Answer)) bool {
	att, ok := s.attempts[attemptID]
	if !ok || !att.Status.Open() {
		return false
	}
	rows := s.answers[attemptID]
	for i := range rows {
		if rows[i].QuestionID == questionID {
			fn(&rows[i])
			return true
		}
	}
	return false
}

func (s *memStore) SaveAnswer(ctx context.Context, attemptID, questionID string, value *model.AnswerValue, at time.Time, timeSpent int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOpenAnswer(attemptID, questionID, func(a *model.Answer) {
		a.SelectedAnswer = value
		a.IsAnswered = value != nil
		a.AnsweredAt = &at
		a.TimeSpent += timeSpent
	}), nil
}

func (s *memStore) SetMarkedForReview(ctx context.Context, attemptID, questionID string, flag bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOpenAnswer(attemptID, questionID, func(a *model.Answer) {
		a.IsMarkedForReview = flag
	}), nil
}

func (s *memStore) MarkInProgress(ctx context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[attemptID]; ok && a.Status == model.AttemptStarted {
		a.Status = model.AttemptInProgress
		s.attempts[attemptID] = a
	}
	return nil
}

func (s *memStore) FinalizeAttempt(ctx context.Context, result *model.Attempt, answers []model.Answer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[result.ID]
	if !ok || !current.Status.Open() {
		return false, nil
	}
	stored := *result
	stored.OpenKey = nil
	s.attempts[result.ID] = stored

	graded := make(map[string]model.Answer, len(answers))
	for _, a := range answers {
		graded[a.ID] = a
	}
	rows := s.answers[result.ID]
	for i := range rows {
		if g, ok := graded[rows[i].ID]; ok {
			rows[i].IsCorrect = g.IsCorrect
			rows[i].MarksAwarded = g.MarksAwarded
		}
	}
	return true, nil
}

func (s *memStore) RegradeAttempt(ctx context.Context, attemptID string, fn func(attempt *model.Attempt, answers []model.Answer) error) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	rows := append([]model.Answer(nil), s.answers[attemptID]...)
	if err := fn(&a, rows); err != nil {
		return nil, err
	}
	s.attempts[attemptID] = a
	s.answers[attemptID] = rows
	return &a, nil
}

func (s *memStore) ListAttempts(ctx context.Context, filter repository.AttemptFilter) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if filter.ExamID != "" && a.ExamID != filter.ExamID {
			continue
		}
		if filter.StudentID != "" && a.StudentID != filter.StudentID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasAttemptStatus(filter.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func hasAttemptStatus(list []model.AttemptStatus, st model.AttemptStatus) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}
	return false
}

func (s *memStore) ListExpiredOpenAttempts(ctx context.Context, now time.Time, limit int) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.Status.Open() && a.EndsAt.Before(now) {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListAnswersForAttempts(ctx context.Context, attemptIDs []string) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Answer
	for _, id := range attemptIDs {
		out = append(out, s.answers[id]...)
	}
	return out, nil
}

// ---- DirectoryStore ----

func (s *memStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (s *memStore) FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) FindCourseByID(ctx context.Context, id string) (*model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (s *memStore) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrolled[courseID+"|"+studentID], nil
}

// ---- ActivityStore ----

func (s *memStore) AppendActivity(ctx context.Context, entry *model.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = model.GenerateUUID()
	}
	s.activity = append(s.activity, *entry)
	return nil
}

func (s *memStore) ListActivity(ctx context.Context, attemptID string) ([]model.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ActivityLog
	for _, l := range s.activity {
		if l.AttemptID == attemptID {
			out = append(out, l)
		}
	}
	return out, nil
}

/* ---------------- Fixtures ---------------- */

// fakeClock is a movable clock shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memStore
	clock    *fakeClock
	exams    *ExamService
	attempts *AttemptService
	inst     string
	educator model.Identity
	student  model.Identity
}

func strPtr(s string) *string { return &s }

func newFixture() *fixture {
	st := newMemStore()
	clock := newFakeClock()
	inst := "inst-1"

	f := &fixture{
		store:    st,
		clock:    clock,
		inst:     inst,
		educator: model.Identity{ID: "edu-1", Role: model.Educator, InstitutionID: strPtr(inst)},
		student:  model.Identity{ID: "stu-1", Role: model.Student, InstitutionID: strPtr(inst)},
	}
	st.users["edu-1"] = model.User{UUIDBase: model.UUIDBase{ID: "edu-1"}, Name: "Edu", Role: model.Educator, InstitutionID: strPtr(inst)}
	st.users["stu-1"] = model.User{
		UUIDBase:      model.UUIDBase{ID: "stu-1"},
		Name:          "Stu",
		Role:          model.Student,
		InstitutionID: strPtr(inst),
		DepartmentID:  strPtr("dept-1"),
		SectionID:     strPtr("sec-1"),
	}

	f.exams = NewExamService(st, st, st, st, nil)
	f.exams.Now = clock.Now
	f.attempts = NewAttemptService(st, st, st, st, st, nil)
	f.attempts.Now = clock.Now
	return f
}

// addChoiceQuestion stores a single choice question worth marks whose
// correct option is "<id>-a".
func (f *fixture) addChoiceQuestion(id string, marks float64) model.Question {
	q := model.Question{
		UUIDBase:      model.UUIDBase{ID: id},
		InstitutionID: strPtr(f.inst),
		CreatedBy:     f.educator.ID,
		Type:          model.SingleChoice,
		Text:          "question " + id,
		Marks:         marks,
		Options: []model.QuestionOption{
			{UUIDBase: model.UUIDBase{ID: id + "-a"}, Text: "right", IsCorrect: true, Position: 0},
			{UUIDBase: model.UUIDBase{ID: id + "-b"}, Text: "wrong", Position: 1},
		},
	}
	f.store.questions[id] = q
	return q
}

// addExam stores an exam in the given status holding the given questions.
func (f *fixture) addExam(id string, status model.ExamStatus, questions ...model.Question) *model.Exam {
	e := model.Exam{
		UUIDBase:          model.UUIDBase{ID: id},
		InstitutionID:     strPtr(f.inst),
		CreatedBy:         f.educator.ID,
		Title:             "Exam " + id,
		Status:            status,
		DurationMinutes:   30,
		PassingPercentage: 40,
		MaxAttempts:       1,
		AssignmentMode:    model.AssignAll,
	}
	for i, q := range questions {
		e.Questions = append(e.Questions, model.ExamQuestion{ExamID: id, QuestionID: q.ID, Position: i})
		e.TotalMarks += q.EffectiveMarks()
	}
	f.store.exams[id] = e
	return f.store.hydrate(e)
}

func (f *fixture) updateExam(id string, fn func(e *model.Exam)) {
	e := f.store.exams[id]
	fn(&e)
	f.store.exams[id] = e
}
