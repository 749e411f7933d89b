package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

type CardHandler struct {
	db           *gorm.DB
	priceService *services.PriceService
}

func NewCardHandler(db *gorm.DB, priceService *services.PriceService) *CardHandler {
	return &CardHandler{
		db:           db,
		priceService: priceService,
	}
}

// CardResponse is a stored card with the price it is currently shown at.
type CardResponse struct {
	models.CardWithSet
	Price *services.CurrentPrice `json:"price"`
}

func (h *CardHandler) SearchCards(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	limit := defaultSearchLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSearchLimit)
	}

	tx := h.db.WithContext(c.Request.Context()).
		Table("cards").
		Select("cards.*, COALESCE(sets.name, '') AS set_name").
		Joins("LEFT JOIN sets ON sets.id = cards.set_id").
		Where("cards.name LIKE ?", "%"+query+"%")

	// Optional set filter: comma-separated set ids
	if setIDs := strings.TrimSpace(c.Query("set_ids")); setIDs != "" {
		var ids []string
		for _, id := range strings.Split(setIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, strings.ToLower(id))
			}
		}
		if len(ids) > 0 {
			tx = tx.Where("LOWER(cards.set_id) IN ?", ids)
		}
	}

	var cards []models.CardWithSet
	if err := tx.Order("cards.current_value DESC, cards.name").Limit(limit).Scan(&cards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cards":       cards,
		"total_count": len(cards),
	})
}

func (h *CardHandler) GetCard(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var card models.CardWithSet
	err := h.db.WithContext(ctx).
		Table("cards").
		Select("cards.*, COALESCE(sets.name, '') AS set_name").
		Joins("LEFT JOIN sets ON sets.id = cards.set_id").
		Where("cards.id = ?", id).
		Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	price, err := h.priceService.GetPrice(ctx, id, models.NormalizeCondition(c.Query("condition")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, CardResponse{CardWithSet: card, Price: price})
}
