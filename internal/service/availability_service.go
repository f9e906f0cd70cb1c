package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

const (
	defaultAvailabilityWindowDays = 14
	maxAvailabilityWindowDays     = 92
)

type availabilityStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.Availability) error
	ListOpen(ctx context.Context, teacherID string, from, to time.Time) ([]models.Availability, error)
	ListOnDate(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time) ([]models.Availability, error)
	DeleteOwned(ctx context.Context, id, teacherID string) (bool, error)
	Restore(ctx context.Context, exec sqlx.ExtContext, slot *models.Availability) (bool, error)
}

type activeSlotReader interface {
	ActiveSlotKeys(ctx context.Context, teacherID string, from, to time.Time) ([]models.SlotKey, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AvailabilityConfig tunes the availability store.
type AvailabilityConfig struct {
	OverlapCheck bool
	CacheTTL     time.Duration
}

// AvailabilityService manages teacher-declared open windows.
type AvailabilityService struct {
	repo      availabilityStore
	lessons   activeSlotReader
	users     userReader
	cache     *CacheService
	clock     *calendar.Calendar
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AvailabilityConfig
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(repo availabilityStore, lessons activeSlotReader, users userReader, cache *CacheService, clock *calendar.Calendar, validate *validator.Validate, logger *zap.Logger, cfg AvailabilityConfig) *AvailabilityService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:      repo,
		lessons:   lessons,
		users:     users,
		cache:     cache,
		clock:     clock,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Declare records an open window for the calling teacher. Overlapping windows are accepted
// unless the overlap check is enabled.
func (s *AvailabilityService) Declare(ctx context.Context, actor models.Actor, req dto.DeclareAvailabilityRequest) (*models.Availability, error) {
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can declare availability")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	window, err := parseWindow(s.clock, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	past, err := s.clock.IsPastDay(window.day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	if past {
		return nil, appErrors.Clone(appErrors.ErrValidation, "availability cannot be declared for a past day")
	}

	if s.cfg.OverlapCheck {
		existing, err := s.repo.ListOnDate(ctx, nil, actor.UserID, window.date)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check overlapping availability")
		}
		for _, slot := range existing {
			overlap, err := calendar.Overlaps(slot.StartTime, slot.EndTime, window.start, window.end)
			if err != nil {
				continue
			}
			if overlap {
				return nil, appErrors.Clone(appErrors.ErrConflict, "window overlaps existing availability")
			}
		}
	}

	slot := &models.Availability{
		TeacherID:   actor.UserID,
		Date:        window.date,
		StartTime:   window.start,
		EndTime:     window.end,
		IsAvailable: true,
	}
	if err := s.repo.Create(ctx, nil, slot); err != nil {
		return nil, appErrors.Internal(err, "failed to declare availability")
	}
	slot.Day = window.day
	s.cache.InvalidateTeacher(ctx, actor.UserID)
	return slot, nil
}

// ListOpen returns the open windows of a teacher between two calendar days (inclusive),
// excluding any window whose start is held by an active lesson. The lower bound is the start
// of the first day in the fixed locale, never "now".
func (s *AvailabilityService) ListOpen(ctx context.Context, teacherID string, query dto.AvailabilityQuery) ([]models.Availability, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability query")
	}
	from := query.From
	if from == "" {
		from = s.clock.Today()
	}
	to := query.To
	if to == "" {
		var err error
		if to, err = s.clock.AddDays(from, defaultAvailabilityWindowDays-1); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid from day")
		}
	}
	limit, err := s.clock.AddDays(from, maxAvailabilityWindowDays)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid from day")
	}
	if to >= limit {
		return nil, appErrors.Clone(appErrors.ErrValidation, "availability range is too long")
	}
	start, end, err := s.clock.RangeBounds(from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability range")
	}

	if err := s.ensureTeacher(ctx, teacherID); err != nil {
		return nil, err
	}

	key := availabilityCacheKey(teacherID, from, to)
	var cached []models.Availability
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	generation := s.cache.Generation(teacherID)

	slots, err := s.repo.ListOpen(ctx, teacherID, start, end)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load availability")
	}
	taken, err := s.lessons.ActiveSlotKeys(ctx, teacherID, start, end)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load booked slots")
	}

	open := make([]models.Availability, 0, len(slots))
	for _, slot := range slots {
		if slotTaken(taken, slot) {
			continue
		}
		slot.Day = s.clock.DayOf(slot.Date)
		open = append(open, slot)
	}
	_ = s.cache.SetTeacher(ctx, teacherID, generation, key, open, s.cfg.CacheTTL)
	return open, nil
}

// Retract deletes an open window of the calling teacher. Foreign or already consumed rows are
// ignored silently.
func (s *AvailabilityService) Retract(ctx context.Context, actor models.Actor, availabilityID string) error {
	if actor.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrForbidden, "only teachers can retract availability")
	}
	deleted, err := s.repo.DeleteOwned(ctx, availabilityID, actor.UserID)
	if err != nil && !noSuchRow(err) {
		return appErrors.Internal(err, "failed to retract availability")
	}
	if deleted {
		s.cache.InvalidateTeacher(ctx, actor.UserID)
	} else {
		s.logger.Debug("retract ignored", zap.String("availability_id", availabilityID), zap.String("teacher_id", actor.UserID))
	}
	return nil
}

// Restore re-creates an open window for a lesson that gave its slot back. It runs inside the
// caller's transaction and writes a new row; nothing is written when an identical open window
// already exists.
func (s *AvailabilityService) Restore(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (bool, error) {
	return s.repo.Restore(ctx, exec, &models.Availability{
		TeacherID: lesson.TeacherID,
		Date:      lesson.Date,
		StartTime: lesson.StartTime,
		EndTime:   lesson.EndTime,
	})
}

func (s *AvailabilityService) ensureTeacher(ctx context.Context, teacherID string) error {
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if noSuchRow(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Internal(err, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return nil
}

func slotTaken(taken []models.SlotKey, slot models.Availability) bool {
	for _, key := range taken {
		if key.Matches(slot.Date, slot.StartTime) {
			return true
		}
	}
	return false
}

// timeWindow is a validated calendar day and time range in canonical form.
type timeWindow struct {
	day   string
	date  time.Time
	start string
	end   string
}

func parseWindow(clock *calendar.Calendar, day, start, end string) (*timeWindow, error) {
	date, err := clock.ParseDay(day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}
	startClock, err := calendar.NormalizeClock(start)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_time must be HH:MM")
	}
	endClock, err := calendar.NormalizeClock(end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "end_time must be HH:MM")
	}
	if cmp, _ := calendar.CompareClock(endClock, startClock); cmp <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return &timeWindow{day: clock.DayOf(date), date: date, start: startClock, end: endClock}, nil
}
