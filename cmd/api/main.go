package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/tourdesk/booking-api/api/swagger"
	"github.com/tourdesk/booking-api/internal/handler"
	"github.com/tourdesk/booking-api/internal/middleware"
	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/internal/repository"
	"github.com/tourdesk/booking-api/internal/service"
	"github.com/tourdesk/booking-api/pkg/cache"
	"github.com/tourdesk/booking-api/pkg/config"
	"github.com/tourdesk/booking-api/pkg/database"
	"github.com/tourdesk/booking-api/pkg/logger"
	corsmiddleware "github.com/tourdesk/booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tourdesk/booking-api/pkg/middleware/requestid"
)

// @title Tour Booking API
// @version 1.0.0
// @description Student tour application and enrollment service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The occupancy cache is an optimisation; the engine runs without it.
		logr.Sugar().Warnw("redis unavailable, occupancy cache disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	tourRepo := repository.NewTourRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	enrollRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	notifySvc := service.NewNotificationService(cfg.Notifications, logr, metricsSvc)
	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	notifySvc.Start(notifyCtx)
	defer func() {
		notifyCancel()
		notifySvc.Stop()
	}()

	tourSvc := service.NewTourService(tourRepo, appRepo, cacheRepo, cfg.Booking, logr, metricsSvc)
	appSvc := service.NewApplicationService(appRepo, tourRepo, studentRepo, notifySvc, tourSvc, nil, logr, metricsSvc)
	enrollSvc := service.NewEnrollmentService(enrollRepo, studentRepo, logr, metricsSvc)
	exportSvc := service.NewExportService(appRepo, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	appHandler := handler.NewApplicationHandler(appSvc, exportSvc)
	tourHandler := handler.NewTourHandler(tourSvc)
	studentHandler := handler.NewStudentHandler(appSvc, enrollSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	api.GET("/tours", tourHandler.List)
	api.GET("/tours/:id", tourHandler.Get)
	api.GET("/tours/:id/occupancy", tourHandler.Occupancy)

	api.POST("/applications", appHandler.Submit)

	api.GET("/students/:id/applications", studentHandler.Applications)
	api.GET("/students/:id/enrollments", studentHandler.Enrollments)

	console := api.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleManager))
	console.GET("/applications", appHandler.List)
	console.GET("/applications/:id", appHandler.Get)
	console.PUT("/applications/:id/status",
		middleware.Audit(userRepo, models.AuditActionStatusTransition, "application"),
		appHandler.UpdateStatus)
	console.GET("/applications/export",
		middleware.Audit(userRepo, models.AuditActionExport, "application"),
		appHandler.Export)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
