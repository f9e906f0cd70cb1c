package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

type bookingService interface {
	DirectSubmit(ctx context.Context, actor models.Actor, req dto.DirectBookingRequest) (*models.Lesson, error)
	ClaimSlot(ctx context.Context, actor models.Actor, availabilityID string, req dto.ClaimSlotRequest) (*models.Lesson, error)
}

type lessonReviewer interface {
	Approve(ctx context.Context, actor models.Actor, lessonID string) (*models.Lesson, error)
	Reject(ctx context.Context, actor models.Actor, lessonID string) (*models.Lesson, error)
}

type completionService interface {
	CompleteLesson(ctx context.Context, actor models.Actor, lessonID string, req dto.CompleteLessonRequest) (*dto.CompleteLessonResponse, error)
	MarkFollowUp(ctx context.Context, actor models.Actor, lessonID string) (*models.Lesson, error)
	GetSummary(ctx context.Context, actor models.Actor, lessonID string) (*models.LessonSummary, error)
}

type lessonQueries interface {
	List(ctx context.Context, actor models.Actor, query dto.LessonListQuery) ([]models.Lesson, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, lessonID string) (*models.Lesson, error)
	CalendarICS(ctx context.Context, actor models.Actor) ([]byte, error)
}

// LessonHandler exposes booking, review, completion and lesson query endpoints.
type LessonHandler struct {
	booking    bookingService
	reviewer   lessonReviewer
	completion completionService
	queries    lessonQueries
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(booking bookingService, reviewer lessonReviewer, completion completionService, queries lessonQueries) *LessonHandler {
	return &LessonHandler{booking: booking, reviewer: reviewer, completion: completion, queries: queries}
}

// Submit godoc
// @Summary Request a lesson for teacher approval
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.DirectBookingRequest true "Lesson request"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.DirectBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid lesson request"))
		return
	}
	lesson, err := h.booking.DirectSubmit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Claim godoc
// @Summary Claim an open availability window
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Availability ID"
// @Param payload body dto.ClaimSlotRequest false "Student the booking is for (parents only)"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /availability/{id}/claim [post]
func (h *LessonHandler) Claim(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ClaimSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, bindError(err, "invalid claim payload"))
		return
	}
	lesson, err := h.booking.ClaimSlot(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Approve godoc
// @Summary Approve a pending lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/approve [post]
func (h *LessonHandler) Approve(c *gin.Context) {
	h.review(c, h.reviewer.Approve)
}

// Reject godoc
// @Summary Reject a pending lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/reject [post]
func (h *LessonHandler) Reject(c *gin.Context) {
	h.review(c, h.reviewer.Reject)
}

func (h *LessonHandler) review(c *gin.Context, apply func(context.Context, models.Actor, string) (*models.Lesson, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lesson, err := apply(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Complete godoc
// @Summary Complete a lesson with its summary
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.CompleteLessonRequest true "Summary"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *LessonHandler) Complete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CompleteLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid completion payload"))
		return
	}
	resp, err := h.completion.CompleteLesson(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// FollowUp godoc
// @Summary Mark the screening follow-up of a completed lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/follow-up [post]
func (h *LessonHandler) FollowUp(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lesson, err := h.completion.MarkFollowUp(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// List godoc
// @Summary List lessons visible to the caller
// @Tags Lessons
// @Produce json
// @Param status query string false "Lesson status"
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.LessonListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid lesson query"))
		return
	}
	lessons, pagination, err := h.queries.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, pagination)
}

// Get godoc
// @Summary Get a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lesson, err := h.queries.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Summary godoc
// @Summary Get the completion summary of a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/summary [get]
func (h *LessonHandler) Summary(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	summary, err := h.completion.GetSummary(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Calendar godoc
// @Summary Download the caller's lessons as an iCalendar file
// @Tags Lessons
// @Produce text/calendar
// @Success 200 {file} file
// @Router /lessons/calendar.ics [get]
func (h *LessonHandler) Calendar(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	body, err := h.queries.CalendarICS(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "lessons.ics", "text/calendar; charset=utf-8", body)
}
