package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
	"github.com/noah-isme/tutoring-booking-api/pkg/export"
)

const icsTimestampLayout = "20060102T150405Z"

type lessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error)
	ListAll(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
}

// LessonQueryService serves role-scoped lesson reads and exports.
type LessonQueryService struct {
	lessons   lessonReader
	users     userReader
	access    lessonAccess
	policy    *AdminPolicy
	csv       *export.CSVExporter
	clock     *calendar.Calendar
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonQueryService constructs the query service.
func NewLessonQueryService(lessons lessonReader, users userReader, children childLister, policy *AdminPolicy, clock *calendar.Calendar, validate *validator.Validate, logger *zap.Logger) *LessonQueryService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonQueryService{
		lessons:   lessons,
		users:     users,
		access:    lessonAccess{children: children, policy: policy},
		policy:    policy,
		csv:       export.NewCSVExporter(true),
		clock:     clock,
		validator: validate,
		logger:    logger,
	}
}

// List returns the lessons visible to the actor.
func (s *LessonQueryService) List(ctx context.Context, actor models.Actor, query dto.LessonListQuery) ([]models.Lesson, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson query")
	}
	filter := models.LessonFilter{Page: query.Page, PageSize: query.PageSize, SortOrder: query.SortOrder}
	if query.Status != "" {
		filter.Statuses = []models.LessonStatus{models.LessonStatus(query.Status)}
	}
	if err := s.applyDayRange(&filter, query.From, query.To); err != nil {
		return nil, nil, err
	}
	if err := s.access.scope(ctx, actor, &filter); err != nil {
		return nil, nil, err
	}

	lessons, total, err := s.lessons.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list lessons")
	}
	s.fillDays(lessons)

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return lessons, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one lesson when the actor may see it.
func (s *LessonQueryService) Get(ctx context.Context, actor models.Actor, lessonID string) (*models.Lesson, error) {
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
	lesson.Day = s.clock.DayOf(lesson.Date)
	return lesson, nil
}

// Pending returns the admin approval backlog, flagging lessons whose window already closed
// but that no sweep has canceled yet.
func (s *LessonQueryService) Pending(ctx context.Context, actor models.Actor) ([]dto.PendingLesson, error) {
	if !s.policy.IsAdmin(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	lessons, err := s.lessons.ListAll(ctx, models.LessonFilter{Statuses: []models.LessonStatus{models.LessonStatusPendingApproval}})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list pending lessons")
	}
	now := s.clock.Now()
	backlog := make([]dto.PendingLesson, 0, len(lessons))
	for _, lesson := range lessons {
		lesson.Day = s.clock.DayOf(lesson.Date)
		expired := lesson.ApprovalExpiresAt != nil && !now.Before(*lesson.ApprovalExpiresAt)
		backlog = append(backlog, dto.PendingLesson{Lesson: lesson, Expired: expired})
	}
	return backlog, nil
}

// ExportCSV renders lessons in an inclusive day range as CSV for admins.
func (s *LessonQueryService) ExportCSV(ctx context.Context, actor models.Actor, query dto.LessonExportQuery) ([]byte, string, error) {
	if !s.policy.IsAdmin(actor) {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	filter := models.LessonFilter{}
	if query.Status != "" {
		filter.Statuses = []models.LessonStatus{models.LessonStatus(query.Status)}
	}
	if err := s.applyDayRange(&filter, query.From, query.To); err != nil {
		return nil, "", err
	}
	lessons, err := s.lessons.ListAll(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to load lessons for export")
	}

	names := make(map[string]string)
	dataset := export.Dataset{
		Headers: []string{"lesson_id", "date", "start_time", "end_time", "status", "teacher", "student", "approval_expires_at", "report_completed", "follow_up_completed_at"},
	}
	for _, lesson := range lessons {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"lesson_id":              lesson.ID,
			"date":                   s.clock.DayOf(lesson.Date),
			"start_time":             lesson.StartTime,
			"end_time":               lesson.EndTime,
			"status":                 string(lesson.Status),
			"teacher":                s.nameOf(ctx, names, lesson.TeacherID),
			"student":                s.nameOf(ctx, names, lesson.StudentID),
			"approval_expires_at":    formatOptionalTime(lesson.ApprovalExpiresAt),
			"report_completed":       strconv.FormatBool(lesson.ReportCompleted),
			"follow_up_completed_at": formatOptionalTime(lesson.FollowUpCompletedAt),
		})
	}
	body, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render export")
	}
	return body, fmt.Sprintf("lessons-%s-%s.csv", query.From, query.To), nil
}

// CalendarICS renders the actor's scheduled and completed lessons as an iCalendar feed.
// Event times are UTC instants resolved in the booking locale.
func (s *LessonQueryService) CalendarICS(ctx context.Context, actor models.Actor) ([]byte, error) {
	filter := models.LessonFilter{Statuses: []models.LessonStatus{models.LessonStatusScheduled, models.LessonStatusCompleted}}
	if err := s.access.scope(ctx, actor, &filter); err != nil {
		return nil, err
	}
	lessons, err := s.lessons.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load lessons for calendar")
	}

	names := make(map[string]string)
	stamp := s.clock.Now().Format(icsTimestampLayout)
	var b strings.Builder
	writeICSLine(&b, "BEGIN:VCALENDAR")
	writeICSLine(&b, "VERSION:2.0")
	writeICSLine(&b, "PRODID:-//tutoring-booking-api//lessons//EN")
	writeICSLine(&b, "CALSCALE:GREGORIAN")
	for _, lesson := range lessons {
		start, err := s.clock.AtDate(lesson.Date, lesson.StartTime)
		if err != nil {
			s.logger.Warn("skip lesson with invalid start", zap.String("lesson_id", lesson.ID), zap.Error(err))
			continue
		}
		end, err := s.clock.AtDate(lesson.Date, lesson.EndTime)
		if err != nil {
			s.logger.Warn("skip lesson with invalid end", zap.String("lesson_id", lesson.ID), zap.Error(err))
			continue
		}
		summary := fmt.Sprintf("Lesson: %s with %s", s.nameOf(ctx, names, lesson.StudentID), s.nameOf(ctx, names, lesson.TeacherID))
		writeICSLine(&b, "BEGIN:VEVENT")
		writeICSLine(&b, "UID:"+lesson.ID+"@tutoring-booking-api")
		writeICSLine(&b, "DTSTAMP:"+stamp)
		writeICSLine(&b, "DTSTART:"+start.Format(icsTimestampLayout))
		writeICSLine(&b, "DTEND:"+end.Format(icsTimestampLayout))
		writeICSLine(&b, "SUMMARY:"+escapeICSText(summary))
		writeICSLine(&b, "STATUS:CONFIRMED")
		writeICSLine(&b, "END:VEVENT")
	}
	writeICSLine(&b, "END:VCALENDAR")
	return []byte(b.String()), nil
}

func (s *LessonQueryService) applyDayRange(filter *models.LessonFilter, from, to string) error {
	if from != "" {
		start, err := s.clock.ParseDay(from)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid from date")
		}
		filter.From = &start
	}
	if to != "" {
		_, end, err := s.clock.DayBounds(to)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid to date")
		}
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	return nil
}

func (s *LessonQueryService) fillDays(lessons []models.Lesson) {
	for i := range lessons {
		lessons[i].Day = s.clock.DayOf(lessons[i].Date)
	}
}

func (s *LessonQueryService) nameOf(ctx context.Context, cache map[string]string, userID string) string {
	if name, ok := cache[userID]; ok {
		return name
	}
	name := userID
	if user, err := s.users.FindByID(ctx, userID); err == nil {
		name = user.FullName
		if name == "" {
			name = user.Email
		}
	}
	cache[userID] = name
	return name
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeICSLine(b *strings.Builder, line string) {
	b.WriteString(line)
	b.WriteString("\r\n")
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

func escapeICSText(value string) string {
	return icsEscaper.Replace(value)
}
