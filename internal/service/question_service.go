package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionService struct {
	Questions QuestionStore
}

func NewQuestionService(questions QuestionStore) *QuestionService {
	return &QuestionService{Questions: questions}
}

type QuestionOptionInput struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionRequest struct {
	Type          model.QuestionType    `json:"type" validate:"required,oneof=single_choice multi_select true_false numeric short_text"`
	Text          string                `json:"text" validate:"required"`
	Options       []QuestionOptionInput `json:"options" validate:"omitempty,dive"`
	CorrectAnswer json.RawMessage       `json:"correctAnswer,omitempty"`
	Marks         float64               `json:"marks" validate:"gte=0"`
	NegativeMarks *float64              `json:"negativeMarks,omitempty" validate:"omitempty,gte=0"`
	Difficulty    model.Difficulty      `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Tags          []string              `json:"tags" validate:"omitempty,dive,required,max=50"`
	Explanation   string                `json:"explanation"`
}

type QuestionListRequest struct {
	Type       model.QuestionType `form:"type"`
	Difficulty model.Difficulty   `form:"difficulty"`
	Tag        string             `form:"tag"`
	Search     string             `form:"search"`
	Page       int                `form:"page"`
	Limit      int                `form:"limit"`
}

// checkQuestionShape enforces the per-type structure: choice questions carry
// at least two options with a correct one, other types carry a key and no
// options.
func checkQuestionShape(req *QuestionRequest) error {
	if req.Type.IsChoice() {
		if len(req.Options) < 2 {
			return util.BadRequestError("choice questions need at least two options")
		}
		correct := 0
		for _, o := range req.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return util.BadRequestError("choice questions need at least one correct option")
		}
		if req.Type != model.MultiSelect && correct != 1 {
			return util.BadRequestError("single choice and true/false questions need exactly one correct option")
		}
		return nil
	}

	if len(req.Options) > 0 {
		return util.BadRequestError("options are only allowed on choice questions")
	}
	switch req.Type {
	case model.Numeric:
		if _, ok := numericKey(req.CorrectAnswer); !ok {
			return util.BadRequestError("numeric questions need a numeric correctAnswer")
		}
	case model.ShortText:
		if key, ok := scalarKey(req.CorrectAnswer); ok && strings.TrimSpace(key) != "" {
			return nil
		}
		if keys, ok := arrayKey(req.CorrectAnswer); ok && len(keys) > 0 {
			return nil
		}
		return util.BadRequestError("short text questions need a correctAnswer")
	}
	return nil
}

func applyQuestionRequest(q *model.Question, req *QuestionRequest) error {
	q.Type = req.Type
	q.Text = req.Text
	q.Marks = req.Marks
	if q.Marks <= 0 {
		q.Marks = 1
	}
	q.NegativeMarks = req.NegativeMarks
	q.Difficulty = req.Difficulty
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	q.Explanation = req.Explanation

	q.CorrectAnswer = nil
	if !req.Type.IsChoice() {
		q.CorrectAnswer = datatypes.JSON(req.CorrectAnswer)
	}

	q.Tags = nil
	if len(req.Tags) > 0 {
		tags, err := json.Marshal(req.Tags)
		if err != nil {
			return err
		}
		q.Tags = datatypes.JSON(tags)
	}

	q.Options = make([]model.QuestionOption, len(req.Options))
	for i, o := range req.Options {
		q.Options[i] = model.QuestionOption{Text: o.Text, IsCorrect: o.IsCorrect, Position: i}
	}
	return nil
}

func (s *QuestionService) CreateQuestion(ctx context.Context, user model.Identity, req QuestionRequest) (*model.Question, error) {
	if user.IsStudent() {
		return nil, util.ErrPermissionDenied
	}
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	if err := checkQuestionShape(&req); err != nil {
		return nil, err
	}

	q := &model.Question{
		InstitutionID: user.InstitutionID,
		CreatedBy:     user.ID,
	}
	if err := applyQuestionRequest(q, &req); err != nil {
		return nil, err
	}
	if err := s.Questions.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}

	logger.Log.Info("Question created", zap.String("question_id", q.ID), zap.String("user_id", user.ID))
	return q, nil
}

func (s *QuestionService) loadForManage(ctx context.Context, user model.Identity, id string) (*model.Question, error) {
	q, err := s.Questions.FindQuestionByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	if !canManageQuestion(user, q) {
		return nil, util.ErrPermissionDenied
	}
	return q, nil
}

// GetQuestion returns the question with its answer key; managers only.
func (s *QuestionService) GetQuestion(ctx context.Context, user model.Identity, id string) (*model.Question, error) {
	return s.loadForManage(ctx, user, id)
}

// UpdateQuestion is refused while the question belongs to an active or
// completed exam, or to any attempt that is still open.
func (s *QuestionService) UpdateQuestion(ctx context.Context, user model.Identity, id string, req QuestionRequest) (*model.Question, error) {
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	if err := checkQuestionShape(&req); err != nil {
		return nil, err
	}
	q, err := s.loadForManage(ctx, user, id)
	if err != nil {
		return nil, err
	}

	locked, err := s.Questions.CountQuestionUsage(ctx, id, []model.ExamStatus{model.ExamActive, model.ExamCompleted})
	if err != nil {
		return nil, err
	}
	if locked > 0 {
		return nil, util.ErrExamLocked
	}
	// archiving leaves open attempts running; their saved option ids must stay valid
	inFlight, err := s.Questions.CountOpenAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	if inFlight > 0 {
		return nil, util.ErrQuestionInAttempt
	}

	if err := applyQuestionRequest(q, &req); err != nil {
		return nil, err
	}
	if err := s.Questions.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// DeleteQuestion is refused while any exam references the question.
func (s *QuestionService) DeleteQuestion(ctx context.Context, user model.Identity, id string) error {
	if _, err := s.loadForManage(ctx, user, id); err != nil {
		return err
	}
	used, err := s.Questions.CountQuestionUsage(ctx, id, nil)
	if err != nil {
		return err
	}
	if used > 0 {
		return util.ErrQuestionInUse
	}
	if err := s.Questions.DeleteQuestion(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrQuestionNotFound
		}
		return err
	}
	return nil
}

func (s *QuestionService) ListQuestions(ctx context.Context, user model.Identity, req QuestionListRequest) ([]model.Question, int64, error) {
	if user.IsStudent() {
		return nil, 0, util.ErrPermissionDenied
	}
	filter := repository.QuestionFilter{
		Type:       req.Type,
		Difficulty: req.Difficulty,
		Tag:        req.Tag,
		Search:     req.Search,
		Page:       req.Page,
		Limit:      req.Limit,
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if !user.IsAdmin() {
		filter.InstitutionID = user.InstitutionID
	}
	return s.Questions.ListQuestions(ctx, filter)
}
