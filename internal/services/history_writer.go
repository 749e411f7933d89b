package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const historyBatchSize = 200

// SourceArchive is recorded on history rows that preserve a card's previous
// current_value before it is overwritten.
const SourceArchive = "archive"

var historyKeyColumns = []clause.Column{
	{Name: "product_id"},
	{Name: "date"},
	{Name: "condition"},
	{Name: "grade"},
	{Name: "variant"},
}

// HistoryWriter is the only component that writes price_history and the
// denormalised price columns on cards and products.
type HistoryWriter struct {
	db *gorm.DB
}

func NewHistoryWriter(db *gorm.DB) *HistoryWriter {
	return &HistoryWriter{db: db}
}

// HistoryTx groups history writes and the matching current-value refreshes
// into one transaction.
type HistoryTx struct {
	tx      *gorm.DB
	written map[string]int
}

// Transaction runs fn inside a database transaction. Any error returned by fn
// rolls back every write made through the HistoryTx.
func (w *HistoryWriter) Transaction(ctx context.Context, fn func(tx *HistoryTx) error) error {
	written := make(map[string]int)
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&HistoryTx{tx: tx, written: written})
	})
	if err != nil {
		return err
	}
	for source, n := range written {
		metrics.PricePointsWrittenTotal.WithLabelValues(source).Add(float64(n))
	}
	return nil
}

// Upsert writes points in a single transaction and returns how many rows
// were written.
func (w *HistoryWriter) Upsert(ctx context.Context, points []models.PricePoint) (int, error) {
	var n int
	err := w.Transaction(ctx, func(tx *HistoryTx) error {
		var err error
		n, err = tx.Upsert(points)
		return err
	})
	return n, err
}

// Upsert inserts each point or replaces the row holding the same
// (product_id, date, condition, grade, variant). When the same key appears
// more than once in points, the last one wins. Points without a positive
// finite price are dropped.
func (t *HistoryTx) Upsert(points []models.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	index := make(map[string]int, len(points))
	rows := make([]models.PriceHistory, 0, len(points))
	for _, p := range points {
		if p.ProductID == "" || p.Date == "" || p.Price <= 0 || !pricing.IsFinite(p.Price) {
			continue
		}
		row := p.History()
		if i, ok := index[p.Key()]; ok {
			rows[i] = row
			continue
		}
		index[p.Key()] = len(rows)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := t.tx.Clauses(clause.OnConflict{
		Columns:   historyKeyColumns,
		DoUpdates: clause.AssignmentColumns([]string{"price", "volume", "population", "source", "updated_at"}),
	}).CreateInBatches(&rows, historyBatchSize).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert price history: %w", err)
	}

	for _, r := range rows {
		t.written[r.Source]++
	}
	return len(rows), nil
}

// ArchivePrevious stores oldPrice as a Near Mint point for productID on date
// unless a row with that key already exists.
func (t *HistoryTx) ArchivePrevious(productID, date string, oldPrice float64) error {
	if oldPrice <= 0 {
		return nil
	}
	row := models.PriceHistory{
		ProductID: productID,
		Date:      date,
		Condition: string(models.ConditionNearMint),
		Price:     oldPrice,
		Source:    SourceArchive,
	}
	err := t.tx.Clauses(clause.OnConflict{
		Columns:   historyKeyColumns,
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to archive previous price for %s: %w", productID, err)
	}
	return nil
}

// CardValue reads cards.current_value inside the transaction. ok is false
// for unknown ids.
func (t *HistoryTx) CardValue(cardID string) (value float64, ok bool, err error) {
	var values []float64
	err = t.tx.Model(&models.Card{}).Where("id = ?", cardID).Limit(1).Pluck("current_value", &values).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to read current value for %s: %w", cardID, err)
	}
	if len(values) == 0 {
		return 0, false, nil
	}
	return values[0], true, nil
}

// RefreshCardValue sets cards.current_value. Unknown ids are ignored.
func (t *HistoryTx) RefreshCardValue(cardID string, price float64) error {
	err := t.tx.Model(&models.Card{}).
		Where("id = ?", cardID).
		Updates(map[string]any{"current_value": price, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to refresh current value for %s: %w", cardID, err)
	}
	return nil
}

// RefreshProductPrices sets the price columns of a products row. Unknown ids
// are ignored.
func (t *HistoryTx) RefreshProductPrices(productID int, p pricing.ProductPrice) error {
	err := t.tx.Model(&models.Product{}).
		Where("product_id = ?", productID).
		Updates(map[string]any{
			"market_price": p.Market,
			"low_price":    p.Low,
			"mid_price":    p.Mid,
			"high_price":   p.High,
			"updated_at":   time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to refresh prices for product %d: %w", productID, err)
	}
	return nil
}

// UpsertProducts inserts or fully replaces catalogue rows, keeping
// created_at and the price columns owned by RefreshProductPrices.
func (t *HistoryTx) UpsertProducts(products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	err := t.tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "clean_name", "group_id", "category_id", "image_url", "url", "modified_on",
			"ext_number", "ext_rarity", "ext_card_type", "ext_hp", "ext_stage", "ext_card_text",
			"ext_attack1", "ext_attack2", "ext_weakness", "ext_resistance", "ext_retreat_cost",
			"ext_regulation", "sub_type_name", "artist", "language", "updated_at",
		}),
	}).CreateInBatches(&products, historyBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert products: %w", err)
	}
	return nil
}

// UpsertGroup inserts or updates one TCGCSV group row.
func (t *HistoryTx) UpsertGroup(g models.Group) error {
	err := t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "abbreviation", "published_on", "category_id", "language", "updated_at"}),
	}).Create(&g).Error
	if err != nil {
		return fmt.Errorf("failed to upsert group %d: %w", g.GroupID, err)
	}
	return nil
}

// ProductKey renders a TCGplayer product id the way price_history stores it.
func ProductKey(productID int) string {
	return strconv.Itoa(productID)
}
