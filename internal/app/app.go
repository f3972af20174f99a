package app

import (
	"context"
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/controller"
	"exam_platform_backend/internal/jobs"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/service"
	"exam_platform_backend/pkg/configwatcher"
	"exam_platform_backend/pkg/database"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"
	"exam_platform_backend/pkg/security"
	"exam_platform_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	sweep           *jobs.ExpirySweep
	configCallbacks []func(*config.Config)
}

type repositories struct {
	exam      *repository.ExamRepository
	question  *repository.QuestionRepository
	attempt   *repository.AttemptRepository
	directory *repository.DirectoryRepository
	activity  *repository.ActivityRepository
}

type services struct {
	cache     service.ExamCache
	storage   *service.StorageService
	question  *service.QuestionService
	exam      *service.ExamService
	attempt   *service.AttemptService
	analytics *service.AnalyticsService
	export    *service.ExportService
}

type controllers struct {
	question  *controller.QuestionController
	exam      *controller.ExamController
	attempt   *controller.AttemptController
	analytics *controller.AnalyticsController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		exam:      repository.NewExamRepository(db),
		question:  repository.NewQuestionRepository(db),
		attempt:   repository.NewAttemptRepository(db),
		directory: repository.NewDirectoryRepository(db),
		activity:  repository.NewActivityRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.cache = service.NewExamCache(rdb, cfg.Exam.CacheTTL())
	s.storage = service.NewStorageService(context.Background(), &cfg.Storage)
	s.question = service.NewQuestionService(repos.question)
	s.exam = service.NewExamService(repos.exam, repos.question, repos.attempt, repos.directory, s.cache)
	s.attempt = service.NewAttemptService(repos.exam, repos.question, repos.attempt, repos.directory, repos.activity, s.cache)
	s.analytics = service.NewAnalyticsService(repos.exam, repos.attempt)
	s.export = service.NewExportService(repos.exam, repos.attempt, repos.directory, s.storage)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		question:  controller.NewQuestionController(s.question),
		exam:      controller.NewExamController(s.exam),
		attempt:   controller.NewAttemptController(s.attempt),
		analytics: controller.NewAnalyticsController(s.analytics, s.export),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, security.ByClientIP))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// registerReloadables applies the hot-reloadable settings on config change.
func (a *App) registerReloadables(s *services) {
	a.RegisterConfigCallback(func(cfg *config.Config) {
		logger.ApplyConfig(cfg)
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		if c, ok := s.cache.(*service.RedisExamCache); ok {
			c.SetTTL(cfg.Exam.CacheTTL())
		}
	})
}

func (a *App) startBackgroundTasks(ctx context.Context) {
	go func() {
		err := configwatcher.WatchConfig(ctx, filepath.Join(configDir, "config.yaml"), func(cfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(cfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()

	if a.sweep != nil {
		a.sweep.Start()
		logger.Log.Info("Expired attempt sweep scheduled", zap.String("spec", a.Config.Exam.ExpirySweepSpec))
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	migrate := cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode
	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode != gin.ReleaseMode, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// the exam cache is optional, run without it
		logger.Log.Warn("Redis unavailable, exam cache disabled", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-platform", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)
	app.registerReloadables(services)

	sweep, err := jobs.NewExpirySweep(cfg.Exam.ExpirySweepSpec, services.attempt)
	if err != nil {
		logger.Log.Fatal("Invalid expiry sweep schedule", zap.Error(err))
	}
	app.sweep = sweep

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	a.startBackgroundTasks(bgCtx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	stopBackground()
	if a.sweep != nil {
		a.sweep.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
