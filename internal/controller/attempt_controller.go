package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	session, err := c.AttemptService.StartAttempt(ctx.Request.Context(), user, ctx.Param("id"), requestMeta(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, session)
}

// GetCurrentAttempt 恢复当前考试中未提交的答题
func (c *AttemptController) GetCurrentAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	session, err := c.AttemptService.ResumeCurrentAttempt(ctx.Request.Context(), user, ctx.Param("id"), requestMeta(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, session)
}

func (c *AttemptController) ResumeAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	session, err := c.AttemptService.ResumeAttempt(ctx.Request.Context(), user, ctx.Param("id"), requestMeta(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, session)
}

func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.SaveAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.AttemptService.SaveAnswer(ctx.Request.Context(), user, ctx.Param("id"), ctx.Param("questionId"), req, requestMeta(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"saved": true})
}

func (c *AttemptController) MarkForReview(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.AttemptService.MarkForReview(ctx.Request.Context(), user, ctx.Param("id"), ctx.Param("questionId"), req.Flag, requestMeta(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"markedForReview": req.Flag})
}

func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	result, err := c.AttemptService.SubmitAttempt(ctx.Request.Context(), user, ctx.Param("id"), requestMeta(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

func (c *AttemptController) GetResult(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	result, err := c.AttemptService.GetAttemptResult(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

func (c *AttemptController) ListMyAttempts(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.AttemptListRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempts, err := c.AttemptService.ListMyAttempts(ctx.Request.Context(), user, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, attempts)
}

func (c *AttemptController) ListExamAttempts(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	attempts, err := c.AttemptService.ListExamAttempts(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, attempts)
}

func (c *AttemptController) GetActivity(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	logs, err := c.AttemptService.GetAttemptActivity(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, logs)
}

// RegradeAnswer 人工复核单题得分
func (c *AttemptController) RegradeAnswer(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.RegradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AttemptService.RegradeAnswer(ctx.Request.Context(), user, ctx.Param("id"), ctx.Param("questionId"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
