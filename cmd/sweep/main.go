// Command sweep runs the approval-expiry sweep once and exits. It is meant for cron.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/repository"
	"github.com/noah-isme/tutoring-booking-api/internal/service"
	"github.com/noah-isme/tutoring-booking-api/pkg/cache"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	"github.com/noah-isme/tutoring-booking-api/pkg/config"
	"github.com/noah-isme/tutoring-booking-api/pkg/database"
	"github.com/noah-isme/tutoring-booking-api/pkg/logger"
	"github.com/noah-isme/tutoring-booking-api/pkg/storage"
)

func main() {
	var pruneReports bool
	flag.BoolVar(&pruneReports, "prune-reports", false, "also delete report PDFs whose signed links have expired")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	logr = logr.Named("sweep")

	clock, err := calendar.New(cfg.Booking.Timezone)
	if err != nil {
		logr.Fatal("failed to load booking timezone", zap.Error(err))
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	// The lock only coalesces concurrent runs, so the sweep proceeds without Redis.
	cacheRepo := repository.NewCacheRepository(nil, logr)
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, sweeping without lock", zap.Error(err))
	} else {
		defer client.Close()
		cacheRepo = repository.NewCacheRepository(client, logr)
	}

	metrics := service.NewMetricsService()
	policy := service.NewAdminPolicy(cfg.Booking.AdminEmailAliases)
	lessonRepo := repository.NewLessonRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	userRepo := repository.NewUserRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.AvailabilityTTL, logr, cfg.Cache.AvailabilityEnabled)
	notifications := service.NewNotificationService(service.NewLogNotifier(logr), userRepo, profileRepo, policy, clock, metrics, logr)
	availability := service.NewAvailabilityService(availabilityRepo, lessonRepo, userRepo, cacheSvc, clock, dto.NewValidator(), logr, service.AvailabilityConfig{
		OverlapCheck: cfg.Booking.OverlapCheck,
		CacheTTL:     cfg.Cache.AvailabilityTTL,
	})
	reconciler := service.NewLessonReconciler(db, lessonRepo, availability, policy, notifications, cacheRepo, cacheSvc, clock, metrics, logr, service.ReconcilerConfig{
		BatchSize: cfg.Sweep.BatchSize,
		LockTTL:   cfg.Sweep.LockTTL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	result, err := reconciler.SweepExpired(ctx)
	if err != nil {
		logr.Error("sweep could not start", zap.Error(err))
		_ = logr.Sync()
		os.Exit(1)
	}
	logr.Info("sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Bool("skipped_run", result.SkippedRun),
	)

	if pruneReports {
		pruneExpiredReports(cfg, logr)
	}
}

func pruneExpiredReports(cfg *config.Config, logr *zap.Logger) {
	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Warn("report storage unavailable", zap.Error(err))
		return
	}
	deleted, err := files.CleanupOlderThan(cfg.Reports.SignedURLTTL)
	if err != nil {
		logr.Warn("report pruning failed", zap.Error(err))
		return
	}
	logr.Info("expired reports pruned", zap.Int("deleted", len(deleted)))
}
