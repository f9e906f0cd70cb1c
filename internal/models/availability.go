package models

import "time"

// Availability is a teacher-declared open window not yet attached to a lesson.
// Date holds the UTC instant of local midnight for the calendar day.
type Availability struct {
	ID          string    `db:"id" json:"id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	Date        time.Time `db:"date" json:"-"`
	Day         string    `db:"-" json:"date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SlotKey identifies a teacher's time slot by its start.
type SlotKey struct {
	Date      time.Time `db:"date"`
	StartTime string    `db:"start_time"`
}

// Matches reports whether the key refers to the same date and start time.
func (k SlotKey) Matches(date time.Time, startTime string) bool {
	return k.Date.Equal(date) && k.StartTime == startTime
}
