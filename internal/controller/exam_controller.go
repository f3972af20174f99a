package controller

import (
	"context"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

type examQuestionsRequest struct {
	QuestionIDs []string `json:"questionIds" binding:"required,min=1"`
}

func (c *ExamController) CreateExam(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.ExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.CreateExam(ctx.Request.Context(), user, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, exam)
}

func (c *ExamController) ListExams(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.ExamListRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	req.Page, req.Limit = pageParams(ctx)

	exams, total, err := c.ExamService.ListExams(ctx.Request.Context(), user, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"items": exams,
		"total": total,
		"page":  req.Page,
		"limit": req.Limit,
	})
}

// ListAvailableExams 学生可参加的考试
func (c *ExamController) ListAvailableExams(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	exams, err := c.ExamService.ListAvailableExams(ctx.Request.Context(), user)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, exams)
}

func (c *ExamController) GetExam(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	view, err := c.ExamService.GetExamByID(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	if view.Student != nil {
		util.Success(ctx, view.Student)
		return
	}
	util.Success(ctx, view.Exam)
}

func (c *ExamController) UpdateExam(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.ExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.UpdateExam(ctx.Request.Context(), user, ctx.Param("id"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

func (c *ExamController) DeleteExam(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	if err := c.ExamService.DeleteExam(ctx.Request.Context(), user, ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"message": "exam deleted"})
}

func (c *ExamController) AddQuestions(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req examQuestionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.AddQuestionsToExam(ctx.Request.Context(), user, ctx.Param("id"), req.QuestionIDs)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

func (c *ExamController) RemoveQuestion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	exam, err := c.ExamService.RemoveQuestionFromExam(ctx.Request.Context(), user, ctx.Param("id"), ctx.Param("questionId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

func (c *ExamController) AssignExam(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.AssignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.AssignExam(ctx.Request.Context(), user, ctx.Param("id"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

func (c *ExamController) PublishExam(ctx *gin.Context) {
	c.lifecycle(ctx, c.ExamService.Publish)
}

func (c *ExamController) ActivateExam(ctx *gin.Context) {
	c.lifecycle(ctx, c.ExamService.Activate)
}

func (c *ExamController) CloseExam(ctx *gin.Context) {
	c.lifecycle(ctx, c.ExamService.Close)
}

func (c *ExamController) ArchiveExam(ctx *gin.Context) {
	c.lifecycle(ctx, c.ExamService.Archive)
}

type lifecycleFunc func(ctx context.Context, user model.Identity, id string) (*model.Exam, error)

func (c *ExamController) lifecycle(ctx *gin.Context, step lifecycleFunc) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	exam, err := step(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}
