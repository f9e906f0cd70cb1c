package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/service"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

type reportOpener interface {
	Open(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler serves lesson summary PDFs behind signed links.
type ReportHandler struct {
	reports reportOpener
}

// NewReportHandler constructs the handler.
func NewReportHandler(reports reportOpener) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Download godoc
// @Summary Download a lesson summary PDF
// @Description The token is the signed link mailed on completion; no session is required.
// @Tags Reports
// @Produce application/pdf
// @Param token path string true "Signed link token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /public/reports/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.reports.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, download.Filename, "application/pdf", download.Data)
}
