package util

import (
	"exam_platform_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

// HandleError writes the response for a service error. Domain errors keep
// their message; anything else is logged and reported as a generic 500, with
// the detail attached only outside release mode.
func HandleError(c *gin.Context, err error) {
	kind := KindOf(err)
	status := statusFor(kind)
	if kind == KindInternal {
		logger.Log.Error("Internal server error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg := "Internal server error"
		if gin.Mode() != gin.ReleaseMode {
			msg = msg + ": " + err.Error()
		}
		c.JSON(status, Response{Code: status, Message: msg, Kind: kind.String()})
		return
	}
	c.JSON(status, Response{Code: status, Message: err.Error(), Kind: kind.String()})
}

func statusFor(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
