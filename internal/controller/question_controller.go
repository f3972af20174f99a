package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questionService}
}

func (c *QuestionController) CreateQuestion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question, err := c.QuestionService.CreateQuestion(ctx.Request.Context(), user, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, question)
}

func (c *QuestionController) ListQuestions(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.QuestionListRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	req.Page, req.Limit = pageParams(ctx)

	questions, total, err := c.QuestionService.ListQuestions(ctx.Request.Context(), user, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"items": questions,
		"total": total,
		"page":  req.Page,
		"limit": req.Limit,
	})
}

func (c *QuestionController) GetQuestion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	question, err := c.QuestionService.GetQuestion(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, question)
}

func (c *QuestionController) UpdateQuestion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question, err := c.QuestionService.UpdateQuestion(ctx.Request.Context(), user, ctx.Param("id"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, question)
}

func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	if err := c.QuestionService.DeleteQuestion(ctx.Request.Context(), user, ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"message": "question deleted"})
}
