package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

type PriceHandler struct {
	priceWorker  *services.PriceWorker
	priceService *services.PriceService
}

func NewPriceHandler(priceWorker *services.PriceWorker, priceService *services.PriceService) *PriceHandler {
	return &PriceHandler{
		priceWorker:  priceWorker,
		priceService: priceService,
	}
}

// HistoryResponse is a product's price series plus its current price.
type HistoryResponse struct {
	ProductID string                 `json:"product_id"`
	Current   *services.CurrentPrice `json:"current"`
	History   []models.PriceHistory  `json:"history"`
}

// GetPriceStatus returns the scheduler state
func (h *PriceHandler) GetPriceStatus(c *gin.Context) {
	if h.priceWorker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price worker is disabled"})
		return
	}
	c.JSON(http.StatusOK, h.priceWorker.GetStatus())
}

// GetProductHistory returns the stored history of a product or card id.
// Query: from, to (YYYY-MM-DD), condition, grade, variant, limit.
func (h *PriceHandler) GetProductHistory(c *gin.Context) {
	productID := c.Param("id")

	q := services.HistoryQuery{
		From:      c.Query("from"),
		To:        c.Query("to"),
		Condition: c.Query("condition"),
		Grade:     c.Query("grade"),
		Variant:   c.Query("variant"),
	}
	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
			return
		}
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		q.Limit = n
	}

	ctx := c.Request.Context()
	history, err := h.priceService.History(ctx, productID, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	current, err := h.priceService.GetPrice(ctx, productID, models.NormalizeCondition(q.Condition))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if current == nil && len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prices stored for this product"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		ProductID: productID,
		Current:   current,
		History:   history,
	})
}
