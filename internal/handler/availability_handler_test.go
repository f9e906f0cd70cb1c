package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

type availabilityServiceMock struct {
	declared  dto.DeclareAvailabilityRequest
	teacherID string
	query     dto.AvailabilityQuery
	retracted string
	err       error
}

func (m *availabilityServiceMock) Declare(ctx context.Context, actor models.Actor, req dto.DeclareAvailabilityRequest) (*models.Availability, error) {
	m.declared = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Availability{ID: "slot-1", TeacherID: actor.UserID, StartTime: req.StartTime, EndTime: req.EndTime}, nil
}

func (m *availabilityServiceMock) ListOpen(ctx context.Context, teacherID string, query dto.AvailabilityQuery) ([]models.Availability, error) {
	m.teacherID = teacherID
	m.query = query
	return []models.Availability{}, m.err
}

func (m *availabilityServiceMock) Retract(ctx context.Context, actor models.Actor, availabilityID string) error {
	m.retracted = availabilityID
	return m.err
}

func TestAvailabilityHandlerDeclare(t *testing.T) {
	mock := &availabilityServiceMock{}
	h := NewAvailabilityHandler(mock)
	c, w := newTestContext(t, http.MethodPost, "/availability", dto.DeclareAvailabilityRequest{Date: "2025-03-02", StartTime: "09:00", EndTime: "10:00"}, &teacherActor)

	h.Declare(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "09:00", mock.declared.StartTime)

	mock.err = appErrors.Clone(appErrors.ErrValidation, "end must be after start")
	c, w = newTestContext(t, http.MethodPost, "/availability", dto.DeclareAvailabilityRequest{Date: "2025-03-02", StartTime: "10:00", EndTime: "09:00"}, &teacherActor)
	h.Declare(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityHandlerListOpen(t *testing.T) {
	mock := &availabilityServiceMock{}
	h := NewAvailabilityHandler(mock)
	c, w := newTestContext(t, http.MethodGet, "/teachers/teacher-1/availability?from=2025-03-01&to=2025-03-07", nil, &studentActor)
	c.Params = gin.Params{{Key: "id", Value: "teacher-1"}}

	h.ListOpen(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher-1", mock.teacherID)
	assert.Equal(t, dto.AvailabilityQuery{From: "2025-03-01", To: "2025-03-07"}, mock.query)
	assert.Equal(t, "[]", string(decodeEnvelope(t, w).Data))
}

func TestAvailabilityHandlerRetract(t *testing.T) {
	mock := &availabilityServiceMock{}
	h := NewAvailabilityHandler(mock)
	c, w := newTestContext(t, http.MethodDelete, "/availability/slot-9", nil, &teacherActor)
	c.Params = gin.Params{{Key: "id", Value: "slot-9"}}

	h.Retract(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "slot-9", mock.retracted)
}
