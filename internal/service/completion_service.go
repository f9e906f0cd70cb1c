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

type completionLessonStore interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error)
	MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string) error
	MarkFollowUp(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
}

type summaryStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, summary *models.LessonSummary) error
	FindByLessonID(ctx context.Context, lessonID string) (*models.LessonSummary, error)
}

type reportScheduler interface {
	Enqueue(lessonID string) error
}

type followUpNotifier interface {
	ScreeningFollowUp(ctx context.Context, lesson *models.Lesson)
}

// CompletionService records lesson completion reports and screening follow-ups.
type CompletionService struct {
	tx        txProvider
	lessons   completionLessonStore
	summaries summaryStore
	reports   reportScheduler
	notifier  followUpNotifier
	access    lessonAccess
	policy    *AdminPolicy
	clock     *calendar.Calendar
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewCompletionService constructs the service. reports may be nil, in which case no PDF is produced.
func NewCompletionService(
	tx txProvider,
	lessons completionLessonStore,
	summaries summaryStore,
	reports reportScheduler,
	notifier followUpNotifier,
	children childLister,
	policy *AdminPolicy,
	clock *calendar.Calendar,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
) *CompletionService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionService{
		tx:        tx,
		lessons:   lessons,
		summaries: summaries,
		reports:   reports,
		notifier:  notifier,
		access:    lessonAccess{children: children, policy: policy},
		policy:    policy,
		clock:     clock,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// CompleteLesson stores the report and completes the lesson in one transaction. Rendering and
// mailing the PDF happen afterwards on the report queue and never affect the lesson status.
func (s *CompletionService) CompleteLesson(ctx context.Context, actor models.Actor, lessonID string, req dto.CompleteLessonRequest) (resp *dto.CompleteLessonResponse, err error) {
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned teacher can complete a lesson")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion report")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start completion transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lesson, err := s.lessons.FindByIDForUpdate(ctx, tx, lessonID)
	if err != nil {
		if noSuchRow(err) {
			err = appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to load lesson")
	}
	if lesson.TeacherID != actor.UserID {
		err = appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
		return nil, err
	}
	if _, ok := models.NextStatus(lesson.Status, models.LessonEventComplete); !ok {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, "lesson is "+string(lesson.Status))
		return nil, err
	}
	ended, err := s.clock.HasEnded(lesson.Date, lesson.EndTime)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to evaluate lesson end")
	}
	if !ended {
		err = appErrors.Clone(appErrors.ErrLessonNotEnded, "lesson ends at "+lesson.EndTime+" on "+s.clock.DayOf(lesson.Date))
		return nil, err
	}

	summary := &models.LessonSummary{
		LessonID:  lesson.ID,
		TeacherID: actor.UserID,
		Topics:    req.Topics,
		Progress:  req.Progress,
		Homework:  req.Homework,
		Notes:     req.Notes,
		NextSteps: req.NextSteps,
	}
	if err = s.summaries.Create(ctx, tx, summary); err != nil {
		return nil, appErrors.Internal(err, "failed to store lesson summary")
	}
	if err = s.lessons.MarkCompleted(ctx, tx, lesson.ID); err != nil {
		return nil, transitionError(err, "failed to complete lesson")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit completion")
	}

	lesson.Status = models.LessonStatusCompleted
	lesson.ReportCompleted = true
	lesson.Day = s.clock.DayOf(lesson.Date)
	s.metrics.RecordTransition(models.LessonEventComplete, lesson.Status)
	s.logger.Info("lesson completed", zap.String("lesson_id", lesson.ID), zap.String("teacher_id", actor.UserID))

	if s.reports != nil {
		if qerr := s.reports.Enqueue(lesson.ID); qerr != nil {
			s.metrics.RecordReportRender("enqueue_failed")
			s.logger.Warn("enqueue lesson report failed", zap.String("lesson_id", lesson.ID), zap.Error(qerr))
		}
	}
	return &dto.CompleteLessonResponse{Lesson: lesson, Summary: summary}, nil
}

// MarkFollowUp records that the screening follow-up for a completed lesson happened. It can be
// recorded once.
func (s *CompletionService) MarkFollowUp(ctx context.Context, actor models.Actor, lessonID string) (lesson *models.Lesson, err error) {
	if actor.Role != models.RoleTeacher && !s.policy.IsAdmin(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and admins can record follow-ups")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start follow-up transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lesson, err = s.lessons.FindByIDForUpdate(ctx, tx, lessonID)
	if err != nil {
		if noSuchRow(err) {
			err = appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to load lesson")
	}
	if lesson.TeacherID != actor.UserID && !s.policy.IsAdmin(actor) {
		err = appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
		return nil, err
	}
	if lesson.Status != models.LessonStatusCompleted {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, "follow-up requires a completed lesson")
		return nil, err
	}
	if lesson.FollowUpCompletedAt != nil {
		err = appErrors.Clone(appErrors.ErrConflict, "follow-up already recorded")
		return nil, err
	}

	now := s.clock.Now()
	if err = s.lessons.MarkFollowUp(ctx, tx, lesson.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrConflict, "follow-up already recorded")
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to record follow-up")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit follow-up")
	}

	lesson.FollowUpCompletedAt = &now
	lesson.Day = s.clock.DayOf(lesson.Date)
	s.notifier.ScreeningFollowUp(ctx, lesson)
	return lesson, nil
}

// GetSummary returns the completion report of a lesson visible to the actor.
func (s *CompletionService) GetSummary(ctx context.Context, actor models.Actor, lessonID string) (*models.LessonSummary, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if noSuchRow(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Internal(err, "failed to load lesson")
	}
	allowed, err := s.access.canView(ctx, actor, lesson)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lesson is not visible to this user")
	}
	summary, err := s.summaries.FindByLessonID(ctx, lessonID)
	if err != nil {
		if noSuchRow(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson has no summary yet")
		}
		return nil, appErrors.Internal(err, "failed to load lesson summary")
	}
	return summary, nil
}
