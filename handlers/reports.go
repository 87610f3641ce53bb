package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type DailyReporter interface {
	DailyReport(ctx context.Context, date time.Time) ([]byte, error)
}

type ReportHandler struct {
	reports DailyReporter
	loc     *time.Location
	now     func() time.Time
}

func NewReportHandler(reports DailyReporter, loc *time.Location) *ReportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportHandler{reports: reports, loc: loc, now: time.Now}
}

// GetDailyReport serves GET /api/reports/daily?date=YYYY-MM-DD; today by default.
func (h *ReportHandler) GetDailyReport(c *gin.Context) {
	date := h.now().In(h.loc)
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = d
	}

	report, err := h.reports.DailyReport(c.Request.Context(), date)
	if err != nil {
		respondError(c, err, "report generation failed")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="passenger-report-`+date.Format(time.DateOnly)+`.txt"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", report)
}
