package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

const sweepLockKey = "locks:lesson-sweep"

type reconcilerLessonStore interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error)
	MarkScheduled(ctx context.Context, exec sqlx.ExtContext, id string, teacherAt, adminAt *time.Time) error
	MarkCanceled(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Lesson, error)
}

type availabilityRestorer interface {
	Restore(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (bool, error)
}

type sweepLocker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// ReconcilerConfig tunes the approval and expiry reconciler.
type ReconcilerConfig struct {
	BatchSize int
	LockTTL   time.Duration
}

// LessonReconciler approves, rejects and expires pending lessons. Every transition runs in a
// transaction scoped to one lesson, and a lesson that gives its slot back restores availability
// in that same transaction.
type LessonReconciler struct {
	tx       txProvider
	lessons  reconcilerLessonStore
	restorer availabilityRestorer
	policy   *AdminPolicy
	notifier bookingNotifier
	locker   sweepLocker
	cache    *CacheService
	clock    *calendar.Calendar
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ReconcilerConfig
}

// NewLessonReconciler constructs the reconciler. locker may be nil.
func NewLessonReconciler(
	tx txProvider,
	lessons reconcilerLessonStore,
	restorer availabilityRestorer,
	policy *AdminPolicy,
	notifier bookingNotifier,
	locker sweepLocker,
	cache *CacheService,
	clock *calendar.Calendar,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg ReconcilerConfig,
) *LessonReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &LessonReconciler{
		tx:       tx,
		lessons:  lessons,
		restorer: restorer,
		policy:   policy,
		notifier: notifier,
		locker:   locker,
		cache:    cache,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Approve schedules a pending lesson while its approval window is open.
func (r *LessonReconciler) Approve(ctx context.Context, actor models.Actor, lessonID string) (lesson *models.Lesson, err error) {
	if !r.canReview(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and admins can approve lessons")
	}

	tx, err := r.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start approval transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lesson, err = r.loadForReview(ctx, tx, actor, lessonID, models.LessonEventApprove)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()
	if lesson.ApprovalExpiresAt == nil || !now.Before(*lesson.ApprovalExpiresAt) {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, "approval window has expired")
		return nil, err
	}

	var teacherAt, adminAt *time.Time
	if lesson.TeacherID == actor.UserID {
		teacherAt = &now
	}
	if r.policy.IsAdmin(actor) {
		adminAt = &now
	}
	if err = r.lessons.MarkScheduled(ctx, tx, lesson.ID, teacherAt, adminAt); err != nil {
		return nil, transitionError(err, "failed to approve lesson")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit approval")
	}

	lesson.Status = models.LessonStatusScheduled
	lesson.ApprovalExpiresAt = nil
	if teacherAt != nil {
		lesson.ApprovedByTeacherAt = teacherAt
	}
	if adminAt != nil {
		lesson.ApprovedByAdminAt = adminAt
	}
	lesson.Day = r.clock.DayOf(lesson.Date)
	r.metrics.RecordTransition(models.LessonEventApprove, lesson.Status)
	r.logger.Info("lesson approved", zap.String("lesson_id", lesson.ID), zap.String("actor_id", actor.UserID))
	r.notifier.BookingConfirmed(ctx, lesson)
	return lesson, nil
}

// Reject cancels a pending lesson and gives its slot back to availability. The restored window
// is a new row; when an identical open window already exists (a direct submit never consumed
// one) no second row is written.
func (r *LessonReconciler) Reject(ctx context.Context, actor models.Actor, lessonID string) (lesson *models.Lesson, err error) {
	if !r.canReview(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and admins can reject lessons")
	}

	tx, err := r.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start rejection transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lesson, err = r.loadForReview(ctx, tx, actor, lessonID, models.LessonEventReject)
	if err != nil {
		return nil, err
	}
	if err = r.cancelAndRestore(ctx, tx, lesson); err != nil {
		return nil, transitionError(err, "failed to reject lesson")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit rejection")
	}

	lesson.Status = models.LessonStatusCanceled
	lesson.ApprovalExpiresAt = nil
	lesson.Day = r.clock.DayOf(lesson.Date)
	r.cache.InvalidateTeacher(ctx, lesson.TeacherID)
	r.metrics.RecordTransition(models.LessonEventReject, lesson.Status)
	r.logger.Info("lesson rejected", zap.String("lesson_id", lesson.ID), zap.String("actor_id", actor.UserID))
	return lesson, nil
}

// SweepExpired cancels pending lessons whose approval window closed and restores their slots.
// Each lesson is handled in its own transaction and re-checked under a row lock, so redundant
// or concurrent invocations never expire a lesson twice. Failures are counted, not retried.
func (r *LessonReconciler) SweepExpired(ctx context.Context) (*models.SweepResult, error) {
	result := &models.SweepResult{}

	owner := uuid.NewString()
	if r.locker != nil {
		acquired, err := r.locker.AcquireLock(ctx, sweepLockKey, owner, r.cfg.LockTTL)
		switch {
		case err != nil:
			r.logger.Warn("sweep lock unavailable, continuing without it", zap.Error(err))
		case !acquired:
			result.SkippedRun = true
			r.metrics.RecordSweep(*result)
			r.logger.Info("sweep already running elsewhere")
			return result, nil
		default:
			defer func() {
				if err := r.locker.ReleaseLock(context.Background(), sweepLockKey, owner); err != nil {
					r.logger.Warn("release sweep lock failed", zap.Error(err))
				}
			}()
		}
	}

	now := r.clock.Now()
	candidates, err := r.lessons.ListExpiredPending(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list expired lessons")
	}
	result.Scanned = len(candidates)

	touched := make(map[string]struct{})
	for i := range candidates {
		if ctx.Err() != nil {
			result.Failed += len(candidates) - i
			break
		}
		lessonID := candidates[i].ID
		expired, err := r.expireOne(ctx, lessonID, now)
		switch {
		case err != nil:
			result.Failed++
			r.logger.Error("expire lesson failed", zap.String("lesson_id", lessonID), zap.Error(err))
		case expired:
			result.Expired++
			touched[candidates[i].TeacherID] = struct{}{}
		default:
			result.Skipped++
		}
	}

	for teacherID := range touched {
		r.cache.InvalidateTeacher(ctx, teacherID)
	}
	r.metrics.RecordSweep(*result)
	r.logger.Info("expiry sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// expireOne reports false when the lesson no longer qualifies, e.g. it was approved or swept
// by a concurrent caller after the candidate list was read.
func (r *LessonReconciler) expireOne(ctx context.Context, lessonID string, now time.Time) (expired bool, err error) {
	tx, err := r.tx.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !expired {
			_ = tx.Rollback()
		}
	}()

	lesson, err := r.lessons.FindByIDForUpdate(ctx, tx, lessonID)
	if err != nil {
		if noSuchRow(err) {
			return false, nil
		}
		return false, err
	}
	if _, ok := models.NextStatus(lesson.Status, models.LessonEventExpire); !ok {
		return false, nil
	}
	if lesson.ApprovalExpiresAt == nil || now.Before(*lesson.ApprovalExpiresAt) {
		return false, nil
	}
	if err = r.cancelAndRestore(ctx, tx, lesson); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	r.metrics.RecordTransition(models.LessonEventExpire, models.LessonStatusCanceled)
	return true, nil
}

func (r *LessonReconciler) cancelAndRestore(ctx context.Context, tx sqlx.ExtContext, lesson *models.Lesson) error {
	if err := r.lessons.MarkCanceled(ctx, tx, lesson.ID); err != nil {
		return err
	}
	restored, err := r.restorer.Restore(ctx, tx, lesson)
	if err != nil {
		return err
	}
	if !restored {
		r.logger.Debug("identical open window already present", zap.String("lesson_id", lesson.ID))
	}
	return nil
}

// loadForReview locks the lesson and checks that the actor may move it with the event.
func (r *LessonReconciler) loadForReview(ctx context.Context, tx sqlx.ExtContext, actor models.Actor, lessonID string, event models.LessonEvent) (*models.Lesson, error) {
	lesson, err := r.lessons.FindByIDForUpdate(ctx, tx, lessonID)
	if err != nil {
		if noSuchRow(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Internal(err, "failed to load lesson")
	}
	if lesson.TeacherID != actor.UserID && !r.policy.IsAdmin(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
	}
	if _, ok := models.NextStatus(lesson.Status, event); !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "lesson is "+string(lesson.Status))
	}
	return lesson, nil
}

func (r *LessonReconciler) canReview(actor models.Actor) bool {
	return actor.Role == models.RoleTeacher || r.policy.IsAdmin(actor)
}

// transitionError maps a lost conditional update to a state conflict.
func transitionError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "lesson changed state concurrently")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}
