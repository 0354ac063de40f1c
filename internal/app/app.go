package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"quiz_assessment_backend/internal/config"
	"quiz_assessment_backend/internal/controller"
	"quiz_assessment_backend/internal/middleware"
	"quiz_assessment_backend/internal/repository"
	"quiz_assessment_backend/internal/scheduler"
	"quiz_assessment_backend/internal/service"
	"quiz_assessment_backend/internal/util"
	"quiz_assessment_backend/pkg/configwatcher"
	"quiz_assessment_backend/pkg/database"
	"quiz_assessment_backend/pkg/logger"
	"quiz_assessment_backend/pkg/monitoring"
	"quiz_assessment_backend/pkg/resilience"
	"quiz_assessment_backend/pkg/security"
	"quiz_assessment_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const activeAttemptTTL = 2 * time.Hour

type App struct {
	Config          *config.Config
	ConfigPath      string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.IPRateLimiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user          *repository.UserRepository
	quiz          *repository.QuizRepository
	attempt       *repository.QuizAttemptRepository
	testResult    *repository.TestResultRepository
	courseVisit   *repository.CourseVisitRepository
	activeAttempt *repository.ActiveAttemptCache
}

type services struct {
	visit       *service.VisitTrackingService
	quiz        *service.QuizService
	attempt     *service.QuizAttemptService
	calculation *service.TestResultCalculationService
	testResult  *service.TestResultService
	scheduler   *scheduler.TimeoutScheduler
}

type controllers struct {
	quiz       *controller.QuizController
	attempt    *controller.AttemptController
	testResult *controller.TestResultController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:          repository.NewUserRepository(db),
		quiz:          repository.NewQuizRepository(db),
		attempt:       repository.NewQuizAttemptRepository(db),
		testResult:    repository.NewTestResultRepository(db),
		courseVisit:   repository.NewCourseVisitRepository(db),
		activeAttempt: repository.NewActiveAttemptCache(rdb, activeAttemptTTL),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	var visits service.VisitNotifier
	if cfg.Visit.Enabled {
		s.visit = service.NewVisitTrackingService(
			repos.courseVisit,
			cfg.Visit.QueueSize,
			cfg.Visit.Workers,
			time.Duration(cfg.Visit.WriteTimeoutMs)*time.Millisecond,
		)
		visits = s.visit
	}

	var hint service.ActiveAttemptHint
	if rdb != nil {
		hint = repos.activeAttempt
	}

	s.quiz = service.NewQuizService(repos.quiz)
	s.attempt = service.NewQuizAttemptService(repos.attempt, repos.quiz, repos.user, visits, hint, cfg.Grading.RecordUnanswered)

	policy := resilience.NewBreakerRetryPolicy(
		cfg.TestResult.Breaker,
		cfg.TestResult.Retry,
		resilience.WithPermanent(util.IsClientError),
	)
	s.calculation = service.NewTestResultCalculationService(
		repos.attempt,
		repos.quiz,
		repos.testResult,
		policy,
		decimal.NewFromFloat(cfg.TestResult.DefaultPassingScore),
	)
	s.testResult = service.NewTestResultService(repos.testResult, resilience.NewBulkhead(cfg.Statistics.MaxConcurrent))

	var locker scheduler.Locker
	if rdb != nil {
		locker = &scheduler.RedisLocker{Client: rdb}
	}
	s.scheduler = scheduler.NewTimeoutScheduler(s.testResult, cfg.TestResult.CleanupCron, cfg.TestResult.TimeoutMinutes, locker)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		quiz:       controller.NewQuizController(s.quiz),
		attempt:    controller.NewAttemptController(s.attempt),
		testResult: controller.NewTestResultController(s.calculation, s.testResult, s.scheduler.TimeoutMinutes),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	a.limiter = security.NewIPRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 所有后台任务随 ctx 取消而退出
func (a *App) startBackgroundTasks(ctx context.Context) {
	s := a.services
	if s.visit != nil {
		s.visit.Run()
	}

	go a.limiter.Run(ctx)

	if a.Config.TestResult.CleanupEnabled {
		if err := s.scheduler.Start(); err != nil {
			logger.Log.Error("Failed to start timeout scheduler", zap.Error(err))
		}
	}

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.scheduler.SetTimeoutMinutes(newCfg.TestResult.TimeoutMinutes)
	})
	if a.ConfigPath != "" {
		go func() {
			err := configwatcher.WatchConfig(ctx, a.ConfigPath, func(newCfg *config.Config) {
				for _, cb := range a.configCallbacks {
					cb(newCfg)
				}
			})
			if err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}
}

func (a *App) stopBackgroundTasks(ctx context.Context) {
	s := a.services
	s.scheduler.Stop(ctx)
	if s.visit != nil {
		s.visit.Stop()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
}

func NewApp(cfg *config.Config, configPath string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config:     cfg,
		ConfigPath: configPath,
		DB:         db,
	}
	if cfg.MigrateOnly {
		return app
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			// Redis 只存放提示缓存和清理锁
			logger.Log.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		}
	}
	app.Redis = rdb

	if err := util.RegisterValidators(); err != nil {
		logger.Log.Fatal("Failed to register validators", zap.Error(err))
	}

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db, rdb)
	app.services = app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(app.services, db, rdb)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.startBackgroundTasks(ctx)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置10秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 先停止接收请求，再写完剩余的访问记录
	cancel()
	a.stopBackgroundTasks(shutdownCtx)

	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	logger.Log.Info("Server exiting")
}
