package models

import "time"

// LessonStatus enumerates the lesson lifecycle states.
type LessonStatus string

const (
	LessonStatusPendingApproval LessonStatus = "pending_approval"
	LessonStatusScheduled       LessonStatus = "scheduled"
	LessonStatusCompleted       LessonStatus = "completed"
	LessonStatusCanceled        LessonStatus = "canceled"
)

// Terminal reports whether no transition may leave the status.
func (s LessonStatus) Terminal() bool {
	return s == LessonStatusCompleted || s == LessonStatusCanceled
}

// Active reports whether the lesson still holds its slot.
func (s LessonStatus) Active() bool {
	return s != LessonStatusCanceled
}

// Valid reports whether the status is known.
func (s LessonStatus) Valid() bool {
	switch s {
	case LessonStatusPendingApproval, LessonStatusScheduled, LessonStatusCompleted, LessonStatusCanceled:
		return true
	default:
		return false
	}
}

// LessonEvent names a lifecycle transition trigger.
type LessonEvent string

const (
	LessonEventApprove  LessonEvent = "approve"
	LessonEventReject   LessonEvent = "reject"
	LessonEventExpire   LessonEvent = "expire"
	LessonEventComplete LessonEvent = "complete"
)

var lessonTransitions = map[LessonEvent]struct {
	from LessonStatus
	to   LessonStatus
}{
	LessonEventApprove:  {from: LessonStatusPendingApproval, to: LessonStatusScheduled},
	LessonEventReject:   {from: LessonStatusPendingApproval, to: LessonStatusCanceled},
	LessonEventExpire:   {from: LessonStatusPendingApproval, to: LessonStatusCanceled},
	LessonEventComplete: {from: LessonStatusScheduled, to: LessonStatusCompleted},
}

// NextStatus returns the status reached by applying the event, or false when the
// event is not allowed from the current status.
func NextStatus(current LessonStatus, event LessonEvent) (LessonStatus, bool) {
	rule, ok := lessonTransitions[event]
	if !ok || rule.from != current {
		return current, false
	}
	return rule.to, true
}

// Lesson is a booked session between a teacher and a student.
type Lesson struct {
	ID                  string       `db:"id" json:"id"`
	TeacherID           string       `db:"teacher_id" json:"teacher_id"`
	StudentID           string       `db:"student_id" json:"student_id"`
	BookedBy            string       `db:"booked_by" json:"booked_by"`
	Date                time.Time    `db:"date" json:"-"`
	Day                 string       `db:"-" json:"date"`
	StartTime           string       `db:"start_time" json:"start_time"`
	EndTime             string       `db:"end_time" json:"end_time"`
	Status              LessonStatus `db:"status" json:"status"`
	ApprovalExpiresAt   *time.Time   `db:"approval_expires_at" json:"approval_expires_at,omitempty"`
	ApprovedByTeacherAt *time.Time   `db:"approved_by_teacher_at" json:"approved_by_teacher_at,omitempty"`
	ApprovedByAdminAt   *time.Time   `db:"approved_by_admin_at" json:"approved_by_admin_at,omitempty"`
	ReportCompleted     bool         `db:"report_completed" json:"report_completed"`
	FollowUpCompletedAt *time.Time   `db:"follow_up_completed_at" json:"follow_up_completed_at,omitempty"`
	QuestionFromStudent *string      `db:"question_from_student" json:"question_from_student,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

// LessonFilter scopes lesson listings.
type LessonFilter struct {
	TeacherID  string
	StudentID  string
	StudentIDs []string
	Statuses   []LessonStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
	SortOrder  string
}

// LessonFacts is the notification payload describing a lesson.
type LessonFacts struct {
	LessonID    string `json:"lesson_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	TeacherName string `json:"teacher_name"`
	StudentName string `json:"student_name"`
	Status      string `json:"status"`
}

// Recipient is a notification target.
type Recipient struct {
	UserID string   `json:"user_id,omitempty"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Role   UserRole `json:"role,omitempty"`
}
