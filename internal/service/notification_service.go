package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
)

// Notification kinds used for logging and metrics.
const (
	notifyBookingConfirmed = "booking_confirmed"
	notifyLessonCompleted  = "lesson_completed"
	notifyScreeningFollow  = "screening_follow_up"
)

// Attachment is an optional file sent along with a notification.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Notifier is the email collaborator. Implementations may fail; callers never propagate it.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, recipients []models.Recipient, facts models.LessonFacts) error
	NotifyLessonCompleted(ctx context.Context, recipients []models.Recipient, facts models.LessonFacts, attachment *Attachment) error
	NotifyScreeningFollowUp(ctx context.Context, recipient models.Recipient, facts models.LessonFacts) error
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type studentProfileReader interface {
	FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
}

// NotificationService resolves recipients and fires notifications after state changes have
// committed. Every failure, including a panic inside the notifier, is logged and swallowed.
// A crash between commit and delivery drops the notification.
type NotificationService struct {
	notifier Notifier
	users    userDirectory
	profiles studentProfileReader
	policy   *AdminPolicy
	clock    *calendar.Calendar
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService wires the notification hooks.
func NewNotificationService(notifier Notifier, users userDirectory, profiles studentProfileReader, policy *AdminPolicy, clock *calendar.Calendar, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifier: notifier,
		users:    users,
		profiles: profiles,
		policy:   policy,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// BookingConfirmed notifies the teacher, the student and all admins about a booking.
func (s *NotificationService) BookingConfirmed(ctx context.Context, lesson *models.Lesson) {
	s.deliver(notifyBookingConfirmed, lesson, func() error {
		teacher, student, err := s.participants(ctx, lesson)
		if err != nil {
			return err
		}
		recipients := []models.Recipient{recipientOf(teacher), recipientOf(student)}
		recipients = append(recipients, s.admins(ctx)...)
		return s.notifier.NotifyBookingConfirmed(ctx, dedupeRecipients(recipients), s.facts(lesson, teacher, student))
	})
}

// LessonCompleted notifies the student, the linked parent and admins, attaching the report when present.
func (s *NotificationService) LessonCompleted(ctx context.Context, lesson *models.Lesson, attachment *Attachment) {
	s.deliver(notifyLessonCompleted, lesson, func() error {
		teacher, student, err := s.participants(ctx, lesson)
		if err != nil {
			return err
		}
		recipients := []models.Recipient{recipientOf(student)}
		if parent := s.parentContact(ctx, student.ID); parent != nil {
			recipients = append(recipients, *parent)
		}
		recipients = append(recipients, s.admins(ctx)...)
		return s.notifier.NotifyLessonCompleted(ctx, dedupeRecipients(recipients), s.facts(lesson, teacher, student), attachment)
	})
}

// ScreeningFollowUp notifies the parent contact of the student, or the student when none is known.
func (s *NotificationService) ScreeningFollowUp(ctx context.Context, lesson *models.Lesson) {
	s.deliver(notifyScreeningFollow, lesson, func() error {
		teacher, student, err := s.participants(ctx, lesson)
		if err != nil {
			return err
		}
		recipient := recipientOf(student)
		if parent := s.parentContact(ctx, student.ID); parent != nil {
			recipient = *parent
		}
		return s.notifier.NotifyScreeningFollowUp(ctx, recipient, s.facts(lesson, teacher, student))
	})
}

func (s *NotificationService) deliver(kind string, lesson *models.Lesson, send func() error) {
	if s == nil || s.notifier == nil || lesson == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordNotificationFailure(kind)
			s.logger.Error("notification panicked", zap.String("kind", kind), zap.String("lesson_id", lesson.ID), zap.Any("panic", r))
		}
	}()
	if err := send(); err != nil {
		s.metrics.RecordNotificationFailure(kind)
		s.logger.Warn("notification failed", zap.String("kind", kind), zap.String("lesson_id", lesson.ID), zap.Error(err))
	}
}

func (s *NotificationService) participants(ctx context.Context, lesson *models.Lesson) (*models.User, *models.User, error) {
	teacher, err := s.users.FindByID(ctx, lesson.TeacherID)
	if err != nil {
		return nil, nil, fmt.Errorf("load teacher %s: %w", lesson.TeacherID, err)
	}
	student, err := s.users.FindByID(ctx, lesson.StudentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load student %s: %w", lesson.StudentID, err)
	}
	return teacher, student, nil
}

// admins returns admin accounts plus alias addresses. Lookup failures leave admins out.
func (s *NotificationService) admins(ctx context.Context) []models.Recipient {
	var recipients []models.Recipient
	users, err := s.users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Warn("load admin recipients failed", zap.Error(err))
	}
	for i := range users {
		recipients = append(recipients, recipientOf(&users[i]))
	}
	for _, email := range s.policy.AliasEmails() {
		recipients = append(recipients, models.Recipient{Email: email, Name: email, Role: models.RoleAdmin})
	}
	return recipients
}

func (s *NotificationService) parentContact(ctx context.Context, studentID string) *models.Recipient {
	if s.profiles == nil {
		return nil
	}
	profile, err := s.profiles.FindStudentProfile(ctx, studentID)
	if err != nil || profile == nil {
		return nil
	}
	if profile.ParentID != nil {
		if parent, err := s.users.FindByID(ctx, *profile.ParentID); err == nil {
			r := recipientOf(parent)
			return &r
		}
	}
	if profile.ParentEmail != nil && *profile.ParentEmail != "" {
		name := *profile.ParentEmail
		if profile.ParentName != nil && *profile.ParentName != "" {
			name = *profile.ParentName
		}
		return &models.Recipient{Email: *profile.ParentEmail, Name: name, Role: models.RoleParent}
	}
	return nil
}

func (s *NotificationService) facts(lesson *models.Lesson, teacher, student *models.User) models.LessonFacts {
	return models.LessonFacts{
		LessonID:    lesson.ID,
		Date:        s.clock.DayOf(lesson.Date),
		StartTime:   lesson.StartTime,
		EndTime:     lesson.EndTime,
		TeacherName: teacher.FullName,
		StudentName: student.FullName,
		Status:      string(lesson.Status),
	}
}

func recipientOf(user *models.User) models.Recipient {
	return models.Recipient{UserID: user.ID, Email: user.Email, Name: user.FullName, Role: user.Role}
}

func dedupeRecipients(recipients []models.Recipient) []models.Recipient {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]models.Recipient, 0, len(recipients))
	for _, r := range recipients {
		key := strings.ToLower(r.Email)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// LogNotifier is the default Notifier: it records deliveries in the log instead of sending mail.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifier")}
}

// NotifyBookingConfirmed implements Notifier.
func (n *LogNotifier) NotifyBookingConfirmed(_ context.Context, recipients []models.Recipient, facts models.LessonFacts) error {
	n.logger.Info("booking confirmed", zap.String("lesson_id", facts.LessonID), zap.String("status", facts.Status), zap.Strings("to", emailsOf(recipients)))
	return nil
}

// NotifyLessonCompleted implements Notifier.
func (n *LogNotifier) NotifyLessonCompleted(_ context.Context, recipients []models.Recipient, facts models.LessonFacts, attachment *Attachment) error {
	fields := []zap.Field{zap.String("lesson_id", facts.LessonID), zap.Strings("to", emailsOf(recipients))}
	if attachment != nil {
		fields = append(fields, zap.String("attachment", attachment.Filename), zap.Int("attachment_bytes", len(attachment.Data)))
	}
	n.logger.Info("lesson completed", fields...)
	return nil
}

// NotifyScreeningFollowUp implements Notifier.
func (n *LogNotifier) NotifyScreeningFollowUp(_ context.Context, recipient models.Recipient, facts models.LessonFacts) error {
	n.logger.Info("screening follow-up", zap.String("lesson_id", facts.LessonID), zap.String("to", recipient.Email))
	return nil
}

func emailsOf(recipients []models.Recipient) []string {
	emails := make([]string, 0, len(recipients))
	for _, r := range recipients {
		emails = append(emails, r.Email)
	}
	return emails
}
