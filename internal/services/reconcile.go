package services

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const PipelineReconcile = "reconcile"

// Reconciler pairs API cards with TCGCSV products through the matcher and
// copies data across: battle stats from cards to products, market prices
// from products to cards.
type Reconciler struct {
	db      *gorm.DB
	Aliases *AliasTable
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

func (r *Reconciler) Name() string { return PipelineReconcile }

type reconcileCard struct {
	ID           string
	Name         string
	Number       string
	SetName      string
	Weaknesses   string
	Resistances  string
	RetreatCost  string
	CurrentValue float64
}

type reconcileProduct struct {
	ProductID   int
	Name        string
	ExtNumber   string
	GroupName   string
	MarketPrice float64
}

func (r *Reconciler) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	db := r.db.WithContext(ctx)

	var cards []reconcileCard
	err := db.Table("cards AS c").
		Select("c.id, c.name, c.number, COALESCE(s.name, '') AS set_name, c.weaknesses, c.resistances, c.retreat_cost, c.current_value").
		Joins("LEFT JOIN sets s ON c.set_id = s.id").
		Scan(&cards).Error
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to load cards: %w", err)
	}

	var products []reconcileProduct
	err = db.Table("products AS p").
		Select("p.product_id, p.name, p.ext_number, COALESCE(g.name, '') AS group_name, p.market_price").
		Joins("LEFT JOIN groups g ON p.group_id = g.group_id").
		Scan(&products).Error
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to load products: %w", err)
	}
	runLog.Infof("reconciling %d cards against %d products", len(cards), len(products))

	byID := make(map[string]reconcileProduct, len(products))
	records := make([]MatchRecord, 0, len(products))
	for _, p := range products {
		id := strconv.Itoa(p.ProductID)
		byID[id] = p
		records = append(records, MatchRecord{ID: id, Name: p.Name, Set: p.GroupName, Number: p.ExtNumber})
	}
	matcher := NewMatcher(records, r.Aliases)

	var stats RunStats
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, c := range cards {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Processed++

			// Card ids and product ids never overlap, so only name, set and
			// number take part in the match.
			res := matcher.Match(MatchRecord{Name: c.Name, Set: c.SetName, Number: c.Number})
			if !res.Matched() {
				stats.Unmatched = append(stats.Unmatched, describeRow(c.Name, c.SetName))
				continue
			}
			p := byID[res.Record.ID]

			changed := false
			if cols := battleStatColumns(c); len(cols) > 0 {
				if err := tx.Model(&models.Product{}).Where("product_id = ?", p.ProductID).Updates(cols).Error; err != nil {
					return err
				}
				changed = true
			}
			if p.MarketPrice > 0 && p.MarketPrice != c.CurrentValue {
				if err := tx.Model(&models.Card{}).Where("id = ?", c.ID).Update("current_value", p.MarketPrice).Error; err != nil {
					return err
				}
				changed = true
			}
			if changed {
				stats.Updated++
			} else {
				stats.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to reconcile: %w", err)
	}

	runLog.Infof("reconcile: %d matched and updated, %d unchanged, %d unmatched", stats.Updated, stats.Skipped, len(stats.Unmatched))
	return stats, nil
}

// battleStatColumns returns the product columns to copy from a card. Empty
// card stats never overwrite product data.
func battleStatColumns(c reconcileCard) map[string]any {
	cols := make(map[string]any)
	for col, v := range map[string]string{
		"ext_weakness":     c.Weaknesses,
		"ext_resistance":   c.Resistances,
		"ext_retreat_cost": c.RetreatCost,
	} {
		if v != "" && v != "[]" {
			cols[col] = v
		}
	}
	return cols
}
