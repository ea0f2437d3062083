package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"puls_survey/internal/config"
	"puls_survey/internal/controller"
	"puls_survey/internal/service"
	"puls_survey/pkg/configwatcher"
	"puls_survey/pkg/logger"
	"puls_survey/pkg/monitoring"
	"puls_survey/pkg/security"
	"puls_survey/pkg/tracing"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type App struct {
	Config    *config.Config
	Router    *gin.Engine
	services  *services
	tracer    *sdktrace.TracerProvider
	stopWatch context.CancelFunc
}

type services struct {
	gateway *service.GatewayService
	storage *service.StorageService
	upload  *service.UploadService
}

type controllers struct {
	gateway *controller.GatewayController
	upload  *controller.UploadController
	health  *controller.HealthController
}

func (a *App) initServices(cfg *config.Config) *services {
	s := &services{}
	s.gateway = service.NewGatewayService(cfg.Gateway)
	s.storage = service.NewStorageService(cfg)
	s.upload = service.NewUploadService(cfg, s.storage)
	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		gateway: controller.NewGatewayController(s.gateway),
		upload:  controller.NewUploadController(s.upload),
		health:  controller.NewHealthController(s.gateway),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// reloadConfig 只有上游地址和超时支持热更新，其余配置需要重启
func (a *App) reloadConfig(cfg *config.Config) {
	a.services.gateway.UpdateConfig(cfg.Gateway)
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	if cfg.Gateway.LoginFallback {
		logger.Log.Warn("Login fallback session is enabled, do not use outside development")
	}

	gin.SetMode(cfg.Server.Mode)

	app := &App{Config: cfg}
	app.services = app.initServices(cfg)
	controllers := app.initControllers(app.services)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("puls-survey-gateway", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

// WatchConfig 后台监听配置目录
func (a *App) WatchConfig(configDir string) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	go func() {
		if err := configwatcher.WatchConfig(ctx, configDir, a.reloadConfig); err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	if a.stopWatch != nil {
		a.stopWatch()
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

	logger.Log.Info("Server exiting")
}
