package dto

// DeclareAvailabilityRequest declares an open window for the calling teacher.
type DeclareAvailabilityRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
}

// AvailabilityQuery bounds an open availability listing by calendar days (inclusive).
type AvailabilityQuery struct {
	From string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" validate:"omitempty,datetime=2006-01-02"`
}
