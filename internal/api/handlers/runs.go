package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

const maxRunListLimit = 500

type RunHandler struct {
	tracker     *services.RunTracker
	priceWorker *services.PriceWorker
}

func NewRunHandler(tracker *services.RunTracker, priceWorker *services.PriceWorker) *RunHandler {
	return &RunHandler{
		tracker:     tracker,
		priceWorker: priceWorker,
	}
}

// ListRuns returns recent pipeline runs, newest first.
// Query: pipeline, limit (default 50).
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunListLimit)
	}

	runs, err := h.tracker.List(c.Request.Context(), c.Query("pipeline"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []models.PipelineRun{}
	}

	c.JSON(http.StatusOK, models.RunHistoryResponse{
		Runs:  runs,
		Total: len(runs),
	})
}

func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// TriggerRun queues a pipeline on the background worker. The run itself
// shows up in ListRuns once the worker starts it.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	if h.priceWorker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price worker is disabled"})
		return
	}

	name := c.Param("pipeline")
	pos, err := h.priceWorker.QueueRun(name)
	if errors.Is(err, services.ErrUnknownPipeline) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"pipeline":       name,
		"queue_position": pos,
	})
}
