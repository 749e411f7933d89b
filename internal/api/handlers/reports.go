package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

type ReportHandler struct {
	integrity *services.IntegrityReporter
}

func NewReportHandler(integrity *services.IntegrityReporter) *ReportHandler {
	return &ReportHandler{integrity: integrity}
}

// GetIntegrityReport computes the report on every request. It never applies
// the known-bad corrections; that is the report command's --fix flag.
func (h *ReportHandler) GetIntegrityReport(c *gin.Context) {
	report, err := h.integrity.Report(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
