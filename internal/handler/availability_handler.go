package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

type availabilityService interface {
	Declare(ctx context.Context, actor models.Actor, req dto.DeclareAvailabilityRequest) (*models.Availability, error)
	ListOpen(ctx context.Context, teacherID string, query dto.AvailabilityQuery) ([]models.Availability, error)
	Retract(ctx context.Context, actor models.Actor, availabilityID string) error
}

// AvailabilityHandler exposes teacher availability endpoints.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Declare godoc
// @Summary Declare an open availability window
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.DeclareAvailabilityRequest true "Window"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability [post]
func (h *AvailabilityHandler) Declare(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.DeclareAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid availability payload"))
		return
	}
	slot, err := h.service.Declare(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// ListOpen godoc
// @Summary List a teacher's open availability
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string false "First day (YYYY-MM-DD), defaults to today"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) ListOpen(c *gin.Context) {
	var query dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid availability query"))
		return
	}
	slots, err := h.service.ListOpen(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Retract godoc
// @Summary Retract an availability window
// @Description Deleting a window that no longer exists succeeds silently.
// @Tags Availability
// @Param id path string true "Availability ID"
// @Success 204
// @Router /availability/{id} [delete]
func (h *AvailabilityHandler) Retract(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Retract(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
