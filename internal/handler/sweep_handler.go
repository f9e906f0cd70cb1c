package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context) (*models.SweepResult, error)
}

// SweepHandler lets the external scheduler trigger the approval-expiry sweep.
type SweepHandler struct {
	sweeper expirySweeper
}

// NewSweepHandler constructs the handler.
func NewSweepHandler(sweeper expirySweeper) *SweepHandler {
	return &SweepHandler{sweeper: sweeper}
}

// Sweep godoc
// @Summary Cancel pending lessons whose approval window elapsed
// @Tags Internal
// @Produce json
// @Param X-Sweep-Token header string true "Shared sweep secret"
// @Success 200 {object} response.Envelope
// @Router /internal/lessons/sweep [post]
func (h *SweepHandler) Sweep(c *gin.Context) {
	result, err := h.sweeper.SweepExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
