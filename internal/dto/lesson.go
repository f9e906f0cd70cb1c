package dto

import "github.com/noah-isme/tutoring-booking-api/internal/models"

// DirectBookingRequest submits a lesson request for teacher approval.
type DirectBookingRequest struct {
	TeacherID           string  `json:"teacher_id" validate:"required"`
	StudentID           string  `json:"student_id"`
	Date                string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime           string  `json:"start_time" validate:"required,clock"`
	EndTime             string  `json:"end_time" validate:"required,clock"`
	QuestionFromStudent *string `json:"question_from_student" validate:"omitempty,max=2000"`
}

// ClaimSlotRequest claims an open availability row. Parents name the student they book for.
type ClaimSlotRequest struct {
	StudentID string `json:"student_id"`
}

// CompleteLessonRequest carries the completion report written by the teacher.
type CompleteLessonRequest struct {
	Topics    string  `json:"topics" validate:"required,max=4000"`
	Progress  string  `json:"progress" validate:"required,max=4000"`
	Homework  *string `json:"homework" validate:"omitempty,max=4000"`
	Notes     *string `json:"notes" validate:"omitempty,max=4000"`
	NextSteps *string `json:"next_steps" validate:"omitempty,max=4000"`
}

// LessonListQuery filters lesson listings.
type LessonListQuery struct {
	Status    string `form:"status" validate:"omitempty,oneof=pending_approval scheduled completed canceled"`
	From      string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To        string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"page_size" validate:"omitempty,min=1,max=100"`
	SortOrder string `form:"sort_order" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// LessonExportQuery bounds the CSV export by calendar days.
type LessonExportQuery struct {
	From   string `form:"from" validate:"required,datetime=2006-01-02"`
	To     string `form:"to" validate:"required,datetime=2006-01-02"`
	Status string `form:"status" validate:"omitempty,oneof=pending_approval scheduled completed canceled"`
}

// PendingLesson is a backlog entry of the admin approval queue.
type PendingLesson struct {
	models.Lesson
	Expired bool `json:"expired"`
}

// CompleteLessonResponse returns the completed lesson with its summary.
type CompleteLessonResponse struct {
	Lesson  *models.Lesson        `json:"lesson"`
	Summary *models.LessonSummary `json:"summary"`
}
