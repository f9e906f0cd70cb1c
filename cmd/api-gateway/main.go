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
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/handler"
	"github.com/noah-isme/tutoring-booking-api/internal/repository"
	"github.com/noah-isme/tutoring-booking-api/internal/service"
	"github.com/noah-isme/tutoring-booking-api/pkg/cache"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	"github.com/noah-isme/tutoring-booking-api/pkg/config"
	"github.com/noah-isme/tutoring-booking-api/pkg/database"
	"github.com/noah-isme/tutoring-booking-api/pkg/jobs"
	"github.com/noah-isme/tutoring-booking-api/pkg/logger"
	"github.com/noah-isme/tutoring-booking-api/pkg/storage"
)

// @title Tutoring Booking API
// @version 1.0.0
// @description Lesson booking, approval and completion for a tutoring platform.
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	clock, err := calendar.New(cfg.Booking.Timezone)
	if err != nil {
		logr.Fatal("failed to load booking timezone", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare report storage", zap.Error(err))
	}

	validate := dto.NewValidator()
	metrics := service.NewMetricsService()
	policy := service.NewAdminPolicy(cfg.Booking.AdminEmailAliases)

	lessonRepo := repository.NewLessonRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	summaryRepo := repository.NewSummaryRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.AvailabilityTTL, logr, cfg.Cache.AvailabilityEnabled)
	notifications := service.NewNotificationService(service.NewLogNotifier(logr), userRepo, profileRepo, policy, clock, metrics, logr)
	availability := service.NewAvailabilityService(availabilityRepo, lessonRepo, userRepo, cacheSvc, clock, validate, logr, service.AvailabilityConfig{
		OverlapCheck: cfg.Booking.OverlapCheck,
		CacheTTL:     cfg.Cache.AvailabilityTTL,
	})
	booking := service.NewBookingService(db, lessonRepo, availabilityRepo, userRepo, profileRepo, notifications, cacheSvc, clock, validate, metrics, logr, service.BookingConfig{
		ApprovalTTL: cfg.Booking.ApprovalTTL,
	})
	reconciler := service.NewLessonReconciler(db, lessonRepo, availability, policy, notifications, cacheRepo, cacheSvc, clock, metrics, logr, service.ReconcilerConfig{
		BatchSize: cfg.Sweep.BatchSize,
		LockTTL:   cfg.Sweep.LockTTL,
	})

	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	reports := service.NewReportService(lessonRepo, summaryRepo, userRepo, files, signer, notifications, clock, metrics, logr, service.ReportConfig{
		LinkBaseURL: cfg.PublicBaseURL + cfg.APIPrefix + "/public/reports",
	})
	reportQueue := jobs.NewQueue("lesson-reports", reports.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 5 * time.Second,
		JobTimeout: time.Minute,
		DeadLetter: reports.DeadLetter,
		Logger:     logr,
	})
	reports.AttachQueue(reportQueue)

	completion := service.NewCompletionService(db, lessonRepo, summaryRepo, reports, notifications, profileRepo, policy, clock, validate, metrics, logr)
	queries := service.NewLessonQueryService(lessonRepo, userRepo, profileRepo, policy, clock, validate, logr)
	profiles := service.NewProfileService(profileRepo, userRepo, clock, validate, logr)
	users := service.NewUserService(db, userRepo, profileRepo, policy, validate, logr)
	sessions := service.NewSessionService(service.SessionConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	reportQueue.Start(ctx)

	router := newRouter(cfg, logr, routes{
		sessions:     sessions,
		policy:       policy,
		metrics:      metrics,
		availability: handler.NewAvailabilityHandler(availability),
		lessons:      handler.NewLessonHandler(booking, reconciler, completion, queries),
		admin:        handler.NewAdminHandler(queries, users),
		profiles:     handler.NewProfileHandler(profiles),
		reports:      handler.NewReportHandler(reports),
		sweep:        handler.NewSweepHandler(reconciler),
		health: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": db,
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		}, logr),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", cfg.Booking.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	reportQueue.Stop()
}
