package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

type profileService interface {
	ListTeachers(ctx context.Context) ([]models.TeacherListing, error)
	GetTeacherProfile(ctx context.Context, actor models.Actor) (*models.TeacherProfile, error)
	UpdateTeacherProfile(ctx context.Context, actor models.Actor, req dto.UpdateTeacherProfileRequest) (*models.TeacherProfile, error)
	GetStudentProfile(ctx context.Context, actor models.Actor) (*models.StudentProfile, error)
	UpdateStudentProfile(ctx context.Context, actor models.Actor, req dto.UpdateStudentProfileRequest) (*models.StudentProfile, error)
}

// ProfileHandler exposes the teacher directory and the caller's own profiles.
type ProfileHandler struct {
	service profileService
}

// NewProfileHandler constructs the handler.
func NewProfileHandler(service profileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// ListTeachers godoc
// @Summary Teacher directory
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *ProfileHandler) ListTeachers(c *gin.Context) {
	teachers, err := h.service.ListTeachers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// GetTeacher godoc
// @Summary Get the caller's teacher profile
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/teacher-profile [get]
func (h *ProfileHandler) GetTeacher(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	profile, err := h.service.GetTeacherProfile(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateTeacher godoc
// @Summary Update the caller's teacher profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body dto.UpdateTeacherProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Router /me/teacher-profile [put]
func (h *ProfileHandler) UpdateTeacher(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateTeacherProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid teacher profile payload"))
		return
	}
	profile, err := h.service.UpdateTeacherProfile(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// GetStudent godoc
// @Summary Get the caller's student profile
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/student-profile [get]
func (h *ProfileHandler) GetStudent(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	profile, err := h.service.GetStudentProfile(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateStudent godoc
// @Summary Update the caller's student profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body dto.UpdateStudentProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Router /me/student-profile [put]
func (h *ProfileHandler) UpdateStudent(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStudentProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid student profile payload"))
		return
	}
	profile, err := h.service.UpdateStudentProfile(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}
