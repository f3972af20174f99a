package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AnalyticsController struct {
	AnalyticsService *service.AnalyticsService
	ExportService    *service.ExportService
}

func NewAnalyticsController(analyticsService *service.AnalyticsService, exportService *service.ExportService) *AnalyticsController {
	return &AnalyticsController{AnalyticsService: analyticsService, ExportService: exportService}
}

func (c *AnalyticsController) GetExamStatistics(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	stats, err := c.AnalyticsService.GetExamStatistics(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}

// ExportResults 导出考试成绩 CSV
func (c *AnalyticsController) ExportResults(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	result, err := c.ExportService.ExportExamResults(ctx.Request.Context(), user, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, result)
}
