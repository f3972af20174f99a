package controller

import (
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// currentUser writes a 401 and reports false when the request carries no
// verified identity.
func currentUser(ctx *gin.Context) (model.Identity, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return model.Identity{}, false
	}
	return claims.Identity(), true
}

func requestMeta(ctx *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: ctx.ClientIP(),
		UserAgent: ctx.Request.UserAgent(),
	}
}

func pageParams(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
