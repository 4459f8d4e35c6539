package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/internal/service"
	"github.com/noah-isme/newsdesk/pkg/response"
)

type deskReporter interface {
	DeskReport(ctx context.Context, session models.Session, format string) (*service.DeskReport, error)
}

// ReportHandler serves dashboard exports.
type ReportHandler struct {
	reports deskReporter
}

func NewReportHandler(reports deskReporter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// DeskReport downloads the caller's dashboard as csv or pdf (?format=).
//
// @Summary Export dashboard
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /articles/export [get]
func (h *ReportHandler) DeskReport(c *gin.Context) {
	report, err := h.reports.DeskReport(c.Request.Context(), sessionFromContext(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	c.Header("X-Report-Rows", strconv.Itoa(report.Rows))
	c.Data(http.StatusOK, report.ContentType, report.Body)
}
