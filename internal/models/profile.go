package models

import (
	"time"

	"github.com/lib/pq"
)

// TeacherProfile extends a teacher account with public directory details.
type TeacherProfile struct {
	UserID      string         `db:"user_id" json:"user_id"`
	DisplayName string         `db:"display_name" json:"display_name"`
	Bio         *string        `db:"bio" json:"bio,omitempty"`
	Specialties pq.StringArray `db:"specialties" json:"specialties"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherListing joins a teacher account with its profile for the directory.
type TeacherListing struct {
	ID          string         `db:"id" json:"id"`
	Email       string         `db:"email" json:"email"`
	FullName    string         `db:"full_name" json:"full_name"`
	DisplayName *string        `db:"display_name" json:"display_name,omitempty"`
	Bio         *string        `db:"bio" json:"bio,omitempty"`
	Specialties pq.StringArray `db:"specialties" json:"specialties"`
}

// StudentProfile extends a student account with screening and parent contact details.
type StudentProfile struct {
	UserID         string     `db:"user_id" json:"user_id"`
	ParentID       *string    `db:"parent_id" json:"parent_id,omitempty"`
	ParentName     *string    `db:"parent_name" json:"parent_name,omitempty"`
	ParentEmail    *string    `db:"parent_email" json:"parent_email,omitempty"`
	ParentPhone    *string    `db:"parent_phone" json:"parent_phone,omitempty"`
	ScreeningTopic *string    `db:"screening_topic" json:"screening_topic,omitempty"`
	ScreeningDate  *time.Time `db:"screening_date" json:"screening_date,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
