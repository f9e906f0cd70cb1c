package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
	"github.com/noah-isme/tutoring-booking-api/pkg/export"
	"github.com/noah-isme/tutoring-booking-api/pkg/jobs"
	"github.com/noah-isme/tutoring-booking-api/pkg/storage"
)

// ReportJobType tags lesson report jobs on the queue.
const ReportJobType = "lesson_report"

type reportLessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type reportSummaryStore interface {
	FindByLessonID(ctx context.Context, lessonID string) (*models.LessonSummary, error)
	SetPDFURL(ctx context.Context, lessonID, url string) error
}

type reportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type completionNotifier interface {
	LessonCompleted(ctx context.Context, lesson *models.Lesson, attachment *Attachment)
}

// ReportConfig configures public report links.
type ReportConfig struct {
	// LinkBaseURL is the absolute URL the signed token is appended to.
	LinkBaseURL string
}

// ReportDownload is a resolved public report file.
type ReportDownload struct {
	Filename string
	Data     []byte
}

// ReportService renders lesson summaries to PDF, publishes a signed link and mails the result.
// It runs off the request path on the report queue.
type ReportService struct {
	lessons   reportLessonReader
	summaries reportSummaryStore
	users     userReader
	files     reportFileStore
	signer    *storage.SignedURLSigner
	pdf       *export.PDFExporter
	notifier  completionNotifier
	queue     jobDispatcher
	clock     *calendar.Calendar
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ReportConfig
}

// NewReportService constructs the report service. Call AttachQueue before Enqueue.
func NewReportService(
	lessons reportLessonReader,
	summaries reportSummaryStore,
	users userReader,
	files reportFileStore,
	signer *storage.SignedURLSigner,
	notifier completionNotifier,
	clock *calendar.Calendar,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg ReportConfig,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.LinkBaseURL = strings.TrimRight(cfg.LinkBaseURL, "/")
	return &ReportService{
		lessons:   lessons,
		summaries: summaries,
		users:     users,
		files:     files,
		signer:    signer,
		pdf:       export.NewPDFExporter(),
		notifier:  notifier,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// AttachQueue sets the dispatcher used by Enqueue. The queue itself is built with Handle
// and DeadLetter, so it is attached after construction.
func (s *ReportService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// Enqueue schedules rendering of the lesson report.
func (s *ReportService) Enqueue(lessonID string) error {
	if s.queue == nil {
		return fmt.Errorf("report queue not attached")
	}
	return s.queue.Enqueue(jobs.Job{Type: ReportJobType, Payload: lessonID})
}

// Handle is the queue handler: render, publish and notify with the PDF attached.
func (s *ReportService) Handle(ctx context.Context, job jobs.Job) error {
	lessonID, ok := job.Payload.(string)
	if !ok || lessonID == "" {
		return fmt.Errorf("report job %s: missing lesson id", job.ID)
	}
	lesson, attachment, err := s.Render(ctx, lessonID)
	if err != nil {
		s.metrics.RecordReportRender("retry")
		return err
	}
	s.metrics.RecordReportRender("rendered")
	s.notifier.LessonCompleted(ctx, lesson, attachment)
	return nil
}

// DeadLetter sends the completion notice without an attachment once rendering gave up.
func (s *ReportService) DeadLetter(job jobs.Job, cause error) {
	s.metrics.RecordReportRender("failed")
	lessonID, _ := job.Payload.(string)
	s.logger.Sugar().Warnw("lesson report abandoned", "lesson_id", lessonID, "attempts", job.Attempt, "error", cause)
	if lessonID == "" {
		return
	}
	ctx := context.Background()
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		s.logger.Sugar().Warnw("load lesson for completion notice failed", "lesson_id", lessonID, "error", err)
		return
	}
	lesson.Day = s.clock.DayOf(lesson.Date)
	s.notifier.LessonCompleted(ctx, lesson, nil)
}

// Render produces the PDF for a completed lesson, stores it and records the public link on
// the summary.
func (s *ReportService) Render(ctx context.Context, lessonID string) (*models.Lesson, *Attachment, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, nil, fmt.Errorf("load lesson: %w", err)
	}
	if lesson.Status != models.LessonStatusCompleted {
		return nil, nil, fmt.Errorf("lesson %s is %s", lessonID, lesson.Status)
	}
	summary, err := s.summaries.FindByLessonID(ctx, lessonID)
	if err != nil {
		return nil, nil, fmt.Errorf("load summary: %w", err)
	}
	lesson.Day = s.clock.DayOf(lesson.Date)

	body, err := s.pdf.Render(s.document(ctx, lesson, summary))
	if err != nil {
		return nil, nil, fmt.Errorf("render pdf: %w", err)
	}
	relPath, err := s.files.Save(reportPath(lessonID), body)
	if err != nil {
		return nil, nil, err
	}
	token, _, err := s.signer.Sign(lessonID, relPath)
	if err != nil {
		return nil, nil, fmt.Errorf("sign report link: %w", err)
	}
	url := s.cfg.LinkBaseURL + "/" + token
	if err := s.summaries.SetPDFURL(ctx, lessonID, url); err != nil {
		return nil, nil, fmt.Errorf("store report link: %w", err)
	}
	s.logger.Info("lesson report rendered", zap.String("lesson_id", lessonID), zap.Int("bytes", len(body)))

	return lesson, &Attachment{
		Filename:    reportFilename(lesson),
		ContentType: "application/pdf",
		Data:        body,
	}, nil
}

// Open resolves a public report token to the stored PDF.
func (s *ReportService) Open(ctx context.Context, token string) (*ReportDownload, error) {
	link, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "report link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid report link")
	}
	summary, err := s.summaries.FindByLessonID(ctx, link.Subject)
	if err != nil {
		if noSuchRow(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Internal(err, "failed to load lesson summary")
	}
	if summary.PDFURL == nil || !strings.HasSuffix(*summary.PDFURL, "/"+token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report link was replaced")
	}
	data, err := s.files.Read(link.Path)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to read report")
	}
	return &ReportDownload{Filename: "lesson-" + link.Subject + ".pdf", Data: data}, nil
}

func (s *ReportService) document(ctx context.Context, lesson *models.Lesson, summary *models.LessonSummary) export.Document {
	teacher := s.displayName(ctx, lesson.TeacherID)
	student := s.displayName(ctx, lesson.StudentID)

	sections := []export.Field{
		{Label: "Topics covered", Value: summary.Topics},
		{Label: "Progress", Value: summary.Progress},
	}
	for _, optional := range []struct {
		label string
		value *string
	}{
		{"Homework", summary.Homework},
		{"Notes", summary.Notes},
		{"Next steps", summary.NextSteps},
	} {
		if optional.value != nil && strings.TrimSpace(*optional.value) != "" {
			sections = append(sections, export.Field{Label: optional.label, Value: *optional.value})
		}
	}

	return export.Document{
		Title:    "Lesson Summary",
		Subtitle: fmt.Sprintf("%s, %s-%s", lesson.Day, lesson.StartTime, lesson.EndTime),
		Meta: []export.Field{
			{Label: "Teacher", Value: teacher},
			{Label: "Student", Value: student},
			{Label: "Date", Value: lesson.Day},
			{Label: "Time", Value: lesson.StartTime + " - " + lesson.EndTime},
		},
		Sections: sections,
		Footer:   "Generated " + s.clock.Now().In(s.clock.Location()).Format("2006-01-02 15:04"),
	}
}

func (s *ReportService) displayName(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return userID
	}
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}

func reportPath(lessonID string) string {
	return "lessons/" + lessonID + ".pdf"
}

func reportFilename(lesson *models.Lesson) string {
	return fmt.Sprintf("lesson-summary-%s.pdf", lesson.Day)
}
