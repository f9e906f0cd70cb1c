package models

import "time"

// LessonSummary is the immutable completion report of a lesson.
type LessonSummary struct {
	ID        string    `db:"id" json:"id"`
	LessonID  string    `db:"lesson_id" json:"lesson_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Topics    string    `db:"topics" json:"topics"`
	Progress  string    `db:"progress" json:"progress"`
	Homework  *string   `db:"homework" json:"homework,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	NextSteps *string   `db:"next_steps" json:"next_steps,omitempty"`
	PDFURL    *string   `db:"pdf_url" json:"pdf_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SweepResult reports the outcome of one expiry sweep invocation.
type SweepResult struct {
	Scanned    int  `json:"scanned"`
	Expired    int  `json:"expired"`
	Skipped    int  `json:"skipped"`
	Failed     int  `json:"failed"`
	SkippedRun bool `json:"skipped_run,omitempty"`
}
