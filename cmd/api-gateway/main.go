package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/student-lifecycle-api/api/swagger"
	"github.com/noah-isme/student-lifecycle-api/internal/handler"
	"github.com/noah-isme/student-lifecycle-api/internal/middleware"
	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/repository"
	"github.com/noah-isme/student-lifecycle-api/internal/service"
	"github.com/noah-isme/student-lifecycle-api/pkg/cache"
	"github.com/noah-isme/student-lifecycle-api/pkg/config"
	"github.com/noah-isme/student-lifecycle-api/pkg/database"
	"github.com/noah-isme/student-lifecycle-api/pkg/jobs"
	"github.com/noah-isme/student-lifecycle-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-lifecycle-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-lifecycle-api/pkg/middleware/requestid"
	"github.com/noah-isme/student-lifecycle-api/pkg/validation"
)

// @title Student Lifecycle API
// @version 1.0.0
// @description Student enrollment lifecycle and promotion engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	var cachePinger handler.Pinger
	if cfg.Summary.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, summary cache disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			cachePinger = redisRepo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Summary.CacheTTL, logr, cfg.Summary.CacheEnabled)

	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	feeRepo := repository.NewFeeLedgerRepository(db)
	classRepo := repository.NewClassRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	eventRepo := repository.NewLifecycleEventRepository(db)
	userRepo := repository.NewUserRepository(db)

	validate := validation.New()

	summarySvc := service.NewSummaryService(enrollmentRepo, cacheSvc, cfg.Summary.CacheTTL, logr)
	refresher := service.NewSummaryRefresher(summarySvc, jobs.QueueConfig{
		Workers:    cfg.Summary.Workers,
		MaxRetries: cfg.Summary.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	refresher.Start(ctx)

	lifecycleSvc := service.NewLifecycleService(studentRepo, enrollmentRepo, feeRepo, classRepo, refresher, metricsSvc, validate, logr, service.LifecycleOptions{
		BulkConcurrency: cfg.Lifecycle.BulkConcurrency,
		MaxBulkSize:     cfg.Lifecycle.MaxBulkSize,
	})
	studentSvc := service.NewStudentService(studentRepo, enrollmentRepo, eventRepo, classRepo, refresher, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, auditRepo, validate, logr)
	rosterSvc := service.NewRosterService(enrollmentSvc, logr)
	classSvc := service.NewClassService(classRepo, logr)
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	lifecycleHandler := handler.NewLifecycleHandler(lifecycleSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, rosterSvc, logr)
	summaryHandler := handler.NewSummaryHandler(summarySvc)
	classHandler := handler.NewClassHandler(classSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"cache":    cachePinger,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	writers := middleware.RequireRoles(models.RecordKeepers...)

	students := secured.Group("/students")
	students.GET("", studentHandler.List)
	students.GET("/summary", summaryHandler.Get)
	students.GET("/:id", studentHandler.Get)
	students.GET("/:id/history", studentHandler.History)
	students.GET("/:id/events", studentHandler.Events)
	students.POST("", writers, middleware.Audit(auditRepo, logr, models.AuditActionStudent, "student"), studentHandler.Create)
	students.PUT("/:id", writers, middleware.Audit(auditRepo, logr, models.AuditActionStudent, "student"), studentHandler.Update)
	students.POST("/promote-bulk", writers, lifecycleHandler.PromoteBulk)
	students.POST("/:id/promote", writers, lifecycleHandler.Promote)
	students.POST("/:id/deactivate", writers, lifecycleHandler.Deactivate)
	students.POST("/:id/reactivate", writers, lifecycleHandler.Reactivate)
	students.POST("/:id/transfer", writers, lifecycleHandler.Transfer)
	students.POST("/:id/fees/nullify", writers, lifecycleHandler.NullifyFees)

	secured.GET("/classes", classHandler.List)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", enrollmentHandler.List)
	enrollments.GET("/export", enrollmentHandler.Export)
	enrollments.PUT("/:studentId/:year/roll-number", writers, enrollmentHandler.AssignRollNumber)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	refresher.Stop()
}
