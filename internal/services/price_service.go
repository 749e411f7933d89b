package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const (
	// PriceStalenessThreshold is how old a price can be before it's considered stale
	PriceStalenessThreshold = 24 * time.Hour

	defaultHistoryLimit = 1000
	maxHistoryLimit     = 10000
)

// PriceService reads stored prices. It never calls a provider.
type PriceService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPriceService creates a new price service
func NewPriceService(db *gorm.DB) *PriceService {
	return &PriceService{db: db, now: time.Now}
}

// HistoryQuery filters a product's price history. Zero fields do not filter.
type HistoryQuery struct {
	From      string
	To        string
	Condition string
	Grade     string
	Variant   string
	Limit     int
}

// CurrentPrice is the price a product or card is shown at.
type CurrentPrice struct {
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
	Source    string  `json:"source"`
	Date      string  `json:"date,omitempty"`
	Condition string  `json:"condition,omitempty"`
	Stale     bool    `json:"stale"`
}

// History returns the history rows of one product or card, oldest first.
func (s *PriceService) History(ctx context.Context, productID string, q HistoryQuery) ([]models.PriceHistory, error) {
	tx := s.db.WithContext(ctx).Where("product_id = ?", productID)
	if q.From != "" {
		tx = tx.Where("date >= ?", q.From)
	}
	if q.To != "" {
		tx = tx.Where("date <= ?", q.To)
	}
	if q.Condition != "" {
		tx = tx.Where("condition = ?", string(models.NormalizeCondition(q.Condition)))
	}
	if q.Grade != "" {
		tx = tx.Where("grade = ?", models.GradeLabel(q.Grade))
	}
	if q.Variant != "" {
		tx = tx.Where("variant = ?", q.Variant)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	var rows []models.PriceHistory
	if err := tx.Order("date DESC, condition DESC, grade DESC, variant DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read price history: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// GetPrice returns the stored price for a product or card.
// Fallback order: latest history in the requested condition -> latest Near
// Mint or Market history -> the products/cards base price. A nil result
// means nothing is stored.
func (s *PriceService) GetPrice(ctx context.Context, productID string, condition models.PriceCondition) (*CurrentPrice, error) {
	if condition != "" {
		row, err := s.latest(ctx, productID, condition)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return s.fromHistory(row), nil
		}
	}

	if condition != models.ConditionNearMint && condition != models.ConditionMarket {
		row, err := s.latest(ctx, productID, models.ConditionMarket, models.ConditionNearMint)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return s.fromHistory(row), nil
		}
	}

	return s.basePrice(ctx, productID)
}

func (s *PriceService) latest(ctx context.Context, productID string, conditions ...models.PriceCondition) (*models.PriceHistory, error) {
	names := make([]string, len(conditions))
	for i, c := range conditions {
		names[i] = string(c)
	}

	var row models.PriceHistory
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND condition IN ? AND price > 0", productID, names).
		Order("date DESC, price DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest price: %w", err)
	}
	return &row, nil
}

func (s *PriceService) fromHistory(row *models.PriceHistory) *CurrentPrice {
	p := &CurrentPrice{
		ProductID: row.ProductID,
		Price:     row.Price,
		Source:    row.Source,
		Date:      row.Date,
		Condition: row.Condition,
	}
	updated := row.UpdatedAt
	if !s.isFresh(&updated) {
		p.Source += " (stale)"
		p.Stale = true
	}
	return p
}

// basePrice reads products.market_price for numeric ids and
// cards.current_value otherwise.
func (s *PriceService) basePrice(ctx context.Context, productID string) (*CurrentPrice, error) {
	db := s.db.WithContext(ctx)

	if id, err := strconv.Atoi(productID); err == nil {
		var p models.Product
		err := db.Where("product_id = ?", id).First(&p).Error
		if err == nil && p.MarketPrice > 0 {
			return s.base(productID, p.MarketPrice, p.UpdatedAt), nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to read product: %w", err)
		}
	}

	var c models.Card
	err := db.Where("id = ?", productID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read card: %w", err)
	}
	if c.CurrentValue <= 0 {
		return nil, nil
	}
	return s.base(productID, c.CurrentValue, c.UpdatedAt), nil
}

func (s *PriceService) base(productID string, price float64, updated time.Time) *CurrentPrice {
	p := &CurrentPrice{ProductID: productID, Price: price, Source: "cached"}
	if !s.isFresh(&updated) {
		p.Source += " (stale)"
		p.Stale = true
	}
	return p
}

func (s *PriceService) isFresh(updatedAt *time.Time) bool {
	if updatedAt == nil || updatedAt.IsZero() {
		return false
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return now().Sub(*updatedAt) < PriceStalenessThreshold
}
