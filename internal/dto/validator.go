package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
)

// NewValidator returns a validator with the booking-specific tags registered:
// "clock" accepts an HH:MM time of day.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := calendar.ParseClock(fl.Field().String())
		return err == nil
	})
	return v
}
