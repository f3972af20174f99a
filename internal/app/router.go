package app

import (
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/middleware"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/monitoring"
	"exam_platform_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
)

// 每个用户每分钟最多保存答案次数
const answerSavesPerMinute = 120

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerQuestionRoutes(authGroup, c)
		a.registerExamRoutes(authGroup, c)
		a.registerAttemptRoutes(authGroup, c)
	}
}

func (a *App) registerQuestionRoutes(rg *gin.RouterGroup, c *controllers) {
	questions := rg.Group("/questions")
	questions.Use(middleware.RoleMiddleware(model.Educator))
	{
		questions.GET("", c.question.ListQuestions)
		questions.POST("", c.question.CreateQuestion)
		questions.GET("/:id", c.question.GetQuestion)
		questions.PUT("/:id", c.question.UpdateQuestion)
		questions.DELETE("/:id", c.question.DeleteQuestion)
	}
}

func (a *App) registerExamRoutes(rg *gin.RouterGroup, c *controllers) {
	exams := rg.Group("/exams")
	{
		// 学生与教师共用
		exams.GET("/available", middleware.RoleMiddleware(model.Student), c.exam.ListAvailableExams)
		exams.GET("/:id", c.exam.GetExam)
		exams.POST("/:id/attempts", middleware.RoleMiddleware(model.Student), c.attempt.StartAttempt)
		exams.GET("/:id/attempts/current", middleware.RoleMiddleware(model.Student), c.attempt.GetCurrentAttempt)

		manage := exams.Group("")
		manage.Use(middleware.RoleMiddleware(model.Educator))
		{
			manage.GET("", c.exam.ListExams)
			manage.POST("", c.exam.CreateExam)
			manage.PUT("/:id", c.exam.UpdateExam)
			manage.DELETE("/:id", c.exam.DeleteExam)
			manage.POST("/:id/questions", c.exam.AddQuestions)
			manage.DELETE("/:id/questions/:questionId", c.exam.RemoveQuestion)
			manage.PUT("/:id/assignment", c.exam.AssignExam)
			manage.POST("/:id/publish", c.exam.PublishExam)
			manage.POST("/:id/activate", c.exam.ActivateExam)
			manage.POST("/:id/close", c.exam.CloseExam)
			manage.POST("/:id/archive", c.exam.ArchiveExam)
			manage.GET("/:id/attempts", c.attempt.ListExamAttempts)
			manage.GET("/:id/statistics", c.analytics.GetExamStatistics)
			manage.POST("/:id/export", c.analytics.ExportResults)
		}
	}
}

func (a *App) registerAttemptRoutes(rg *gin.RouterGroup, c *controllers) {
	saveLimiter := security.RateLimiter(answerSavesPerMinute, time.Minute, byUser)

	attempts := rg.Group("/attempts")
	{
		attempts.GET("", middleware.RoleMiddleware(model.Student), c.attempt.ListMyAttempts)
		attempts.GET("/:id", middleware.RoleMiddleware(model.Student), c.attempt.ResumeAttempt)
		attempts.PUT("/:id/answers/:questionId", middleware.RoleMiddleware(model.Student), saveLimiter, c.attempt.SaveAnswer)
		attempts.PUT("/:id/answers/:questionId/review", middleware.RoleMiddleware(model.Student), c.attempt.MarkForReview)
		attempts.POST("/:id/submit", middleware.RoleMiddleware(model.Student), c.attempt.SubmitAttempt)
		attempts.GET("/:id/result", c.attempt.GetResult)

		attempts.GET("/:id/activity", middleware.RoleMiddleware(model.Educator), c.attempt.GetActivity)
		attempts.PUT("/:id/answers/:questionId/grade", middleware.RoleMiddleware(model.Educator), c.attempt.RegradeAnswer)
	}
}

func byUser(c *gin.Context) string {
	if user := util.GetUserFromContext(c); user != nil {
		return "user:" + user.UserID
	}
	return security.ByClientIP(c)
}
