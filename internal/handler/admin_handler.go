package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

type adminLessonQueries interface {
	Pending(ctx context.Context, actor models.Actor) ([]dto.PendingLesson, error)
	ExportCSV(ctx context.Context, actor models.Actor, query dto.LessonExportQuery) ([]byte, string, error)
}

type roleChanger interface {
	ChangeRole(ctx context.Context, actor models.Actor, userID string, req dto.ChangeRoleRequest) (*models.User, error)
}

// AdminHandler exposes the admin backlog, export and role management endpoints.
type AdminHandler struct {
	lessons adminLessonQueries
	users   roleChanger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(lessons adminLessonQueries, users roleChanger) *AdminHandler {
	return &AdminHandler{lessons: lessons, users: users}
}

// Pending godoc
// @Summary List lessons awaiting approval
// @Description Includes requests whose approval window already elapsed but were not swept yet.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/lessons/pending [get]
func (h *AdminHandler) Pending(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.lessons.Pending(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// Export godoc
// @Summary Export lessons in a day range as CSV
// @Tags Admin
// @Produce text/csv
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Param status query string false "Lesson status"
// @Success 200 {file} file
// @Router /admin/lessons/export.csv [get]
func (h *AdminHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.LessonExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid export query"))
		return
	}
	body, filename, err := h.lessons.ExportCSV(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv; charset=utf-8", body)
}

// ChangeRole godoc
// @Summary Change a user's role
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.ChangeRoleRequest true "Role"
// @Success 200 {object} response.Envelope
// @Router /admin/users/{id}/role [put]
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid role payload"))
		return
	}
	user, err := h.users.ChangeRole(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}
