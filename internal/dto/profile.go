package dto

import "github.com/noah-isme/tutoring-booking-api/internal/models"

// UpdateTeacherProfileRequest edits the public teacher profile.
type UpdateTeacherProfileRequest struct {
	DisplayName string   `json:"display_name" validate:"required,max=120"`
	Bio         *string  `json:"bio" validate:"omitempty,max=4000"`
	Specialties []string `json:"specialties" validate:"omitempty,max=20,dive,required,max=60"`
}

// UpdateStudentProfileRequest edits screening and parent contact details.
type UpdateStudentProfileRequest struct {
	ParentID       *string `json:"parent_id"`
	ParentName     *string `json:"parent_name" validate:"omitempty,max=120"`
	ParentEmail    *string `json:"parent_email" validate:"omitempty,email"`
	ParentPhone    *string `json:"parent_phone" validate:"omitempty,max=32"`
	ScreeningTopic *string `json:"screening_topic" validate:"omitempty,max=500"`
	ScreeningDate  *string `json:"screening_date" validate:"omitempty,datetime=2006-01-02"`
}

// ChangeRoleRequest is the admin payload for role changes.
type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=admin teacher parent student"`
}
