package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

// Booking paths used for metrics and logs.
const (
	bookingPathDirect = "direct_submit"
	bookingPathClaim  = "slot_claim"
)

type bookingLessonStore interface {
	LockTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) error
	HasActiveAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, startTime string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error
}

type bookingSlotStore interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Availability, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type parentLinkReader interface {
	FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
}

type bookingNotifier interface {
	BookingConfirmed(ctx context.Context, lesson *models.Lesson)
}

// BookingConfig tunes the allocator.
type BookingConfig struct {
	ApprovalTTL time.Duration
}

// BookingService allocates lessons. Both paths hold the teacher's advisory lock and re-check
// for an active lesson on the same (date, start) inside one transaction, so at most one active
// lesson can exist per teacher slot.
type BookingService struct {
	tx        txProvider
	lessons   bookingLessonStore
	slots     bookingSlotStore
	users     userReader
	profiles  parentLinkReader
	notifier  bookingNotifier
	cache     *CacheService
	clock     *calendar.Calendar
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       BookingConfig
}

// NewBookingService constructs the allocator.
func NewBookingService(
	tx txProvider,
	lessons bookingLessonStore,
	slots bookingSlotStore,
	users userReader,
	profiles parentLinkReader,
	notifier bookingNotifier,
	cache *CacheService,
	clock *calendar.Calendar,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg BookingConfig,
) *BookingService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ApprovalTTL <= 0 {
		cfg.ApprovalTTL = 2 * time.Hour
	}
	return &BookingService{
		tx:        tx,
		lessons:   lessons,
		slots:     slots,
		users:     users,
		profiles:  profiles,
		notifier:  notifier,
		cache:     cache,
		clock:     clock,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// DirectSubmit creates a pending lesson awaiting teacher or admin approval. It does not touch
// availability rows.
func (s *BookingService) DirectSubmit(ctx context.Context, actor models.Actor, req dto.DirectBookingRequest) (lesson *models.Lesson, err error) {
	defer func() { s.recordOutcome(bookingPathDirect, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	window, err := parseWindow(s.clock, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFuture(window.day, window.start); err != nil {
		return nil, err
	}
	studentID, err := s.resolveStudent(ctx, actor, req.StudentID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.ApprovalTTL)
	lesson = &models.Lesson{
		TeacherID:           req.TeacherID,
		StudentID:           studentID,
		BookedBy:            actor.UserID,
		Date:                window.date,
		StartTime:           window.start,
		EndTime:             window.end,
		Status:              models.LessonStatusPendingApproval,
		ApprovalExpiresAt:   &expiresAt,
		QuestionFromStudent: req.QuestionFromStudent,
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start booking transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.lessons.LockTeacher(ctx, tx, lesson.TeacherID); err != nil {
		return nil, bookingError(err, "failed to lock teacher schedule")
	}
	taken, err := s.lessons.HasActiveAt(ctx, tx, lesson.TeacherID, lesson.Date, lesson.StartTime)
	if err != nil {
		return nil, bookingError(err, "failed to check slot")
	}
	if taken {
		err = appErrors.ErrSlotUnavailable
		return nil, err
	}
	if err = s.lessons.Create(ctx, tx, lesson); err != nil {
		return nil, bookingError(err, "failed to create lesson")
	}
	if err = tx.Commit(); err != nil {
		return nil, bookingError(err, "failed to commit booking")
	}

	lesson.Day = window.day
	s.cache.InvalidateTeacher(ctx, lesson.TeacherID)
	s.logger.Info("lesson submitted", zap.String("lesson_id", lesson.ID), zap.String("teacher_id", lesson.TeacherID), zap.Time("approval_expires_at", expiresAt))
	s.notifier.BookingConfirmed(ctx, lesson)
	return lesson, nil
}

// ClaimSlot books an open availability row. The re-check of the row, the lesson insert and the
// row delete commit together or not at all; a row claimed concurrently yields SLOT_UNAVAILABLE.
func (s *BookingService) ClaimSlot(ctx context.Context, actor models.Actor, availabilityID string, req dto.ClaimSlotRequest) (lesson *models.Lesson, err error) {
	defer func() { s.recordOutcome(bookingPathClaim, err) }()

	if availabilityID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "availability id is required")
	}
	studentID, err := s.resolveStudent(ctx, actor, req.StudentID)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start booking transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	slot, err := s.slots.FindByIDForUpdate(ctx, tx, availabilityID)
	if err != nil {
		if noSuchRow(err) {
			err = appErrors.ErrSlotUnavailable
			return nil, err
		}
		return nil, bookingError(err, "failed to load availability")
	}
	if !slot.IsAvailable {
		err = appErrors.ErrSlotUnavailable
		return nil, err
	}
	day := s.clock.DayOf(slot.Date)
	if err = s.ensureFuture(day, slot.StartTime); err != nil {
		return nil, err
	}
	if err = s.lessons.LockTeacher(ctx, tx, slot.TeacherID); err != nil {
		return nil, bookingError(err, "failed to lock teacher schedule")
	}
	taken, err := s.lessons.HasActiveAt(ctx, tx, slot.TeacherID, slot.Date, slot.StartTime)
	if err != nil {
		return nil, bookingError(err, "failed to check slot")
	}
	if taken {
		err = appErrors.ErrSlotUnavailable
		return nil, err
	}

	lesson = &models.Lesson{
		TeacherID: slot.TeacherID,
		StudentID: studentID,
		BookedBy:  actor.UserID,
		Date:      slot.Date,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Status:    models.LessonStatusScheduled,
	}
	if err = s.lessons.Create(ctx, tx, lesson); err != nil {
		return nil, bookingError(err, "failed to create lesson")
	}
	if err = s.slots.Delete(ctx, tx, slot.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.ErrSlotUnavailable
			return nil, err
		}
		return nil, bookingError(err, "failed to consume availability")
	}
	if err = tx.Commit(); err != nil {
		return nil, bookingError(err, "failed to commit booking")
	}

	lesson.Day = day
	s.cache.InvalidateTeacher(ctx, lesson.TeacherID)
	s.logger.Info("slot claimed", zap.String("lesson_id", lesson.ID), zap.String("availability_id", availabilityID), zap.String("teacher_id", lesson.TeacherID))
	s.notifier.BookingConfirmed(ctx, lesson)
	return lesson, nil
}

// resolveStudent returns the student the actor books for: students book for themselves,
// parents for a student linked to them.
func (s *BookingService) resolveStudent(ctx context.Context, actor models.Actor, requested string) (string, error) {
	switch actor.Role {
	case models.RoleStudent:
		if requested != "" && requested != actor.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "students can only book for themselves")
		}
		return actor.UserID, nil
	case models.RoleParent:
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required when booking as a parent")
		}
		profile, err := s.profiles.FindStudentProfile(ctx, requested)
		if err != nil {
			if noSuchRow(err) {
				return "", appErrors.Clone(appErrors.ErrForbidden, "student is not linked to this parent")
			}
			return "", appErrors.Internal(err, "failed to load student profile")
		}
		if profile.ParentID == nil || *profile.ParentID != actor.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "student is not linked to this parent")
		}
		return requested, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "only students and parents can book lessons")
	}
}

func (s *BookingService) ensureTeacher(ctx context.Context, teacherID string) error {
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if noSuchRow(err) {
			return appErrors.Clone(appErrors.ErrValidation, "teacher does not exist")
		}
		return appErrors.Internal(err, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrValidation, "selected user is not a teacher")
	}
	return nil
}

func (s *BookingService) ensureFuture(day, start string) error {
	started, err := s.clock.HasStarted(day, start)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson time")
	}
	if started {
		return appErrors.Clone(appErrors.ErrValidation, "lesson start is in the past")
	}
	return nil
}

func (s *BookingService) recordOutcome(path string, err error) {
	outcome := "booked"
	switch {
	case err == nil:
	case appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code):
		outcome = "conflict"
	case appErrors.HasCode(err, appErrors.ErrValidation.Code), appErrors.HasCode(err, appErrors.ErrForbidden.Code):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	s.metrics.RecordBooking(path, outcome)
}
