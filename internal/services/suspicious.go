package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const PipelineFixSuspicious = "fix-suspicious-prices"

// Price caps applied by the suspicious-price cleanup.
const (
	suspiciousThreshold = 10000
	goldStarCap         = 25000
	starCap             = 15000
	defaultCap          = 5000
	implausiblePrice    = 50000
	historyCap          = 15000
)

// latestHistoryPrice is the most recent ungraded history price for a card.
// Market and Near Mint rows win over other conditions on the same date.
const latestHistoryPrice = `(
	SELECT ph.price FROM price_history ph
	WHERE ph.product_id = cards.id AND ph.condition != 'Graded' AND ph.price > 0
	ORDER BY ph.date DESC,
		CASE WHEN ph.condition IN ('Market', 'Near Mint') THEN 0 ELSE 1 END,
		ph.price DESC
	LIMIT 1
)`

// recomputeCardValues sets current_value to the latest history price for
// every card that has history. With ids it is limited to those cards.
func recomputeCardValues(tx *gorm.DB, ids ...string) (int64, error) {
	q := tx.Model(&models.Card{}).
		Where("EXISTS (SELECT 1 FROM price_history ph WHERE ph.product_id = cards.id AND ph.condition != 'Graded' AND ph.price > 0)")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.UpdateColumn("current_value", gorm.Expr(latestHistoryPrice))
	return res.RowsAffected, res.Error
}

// PriceCap returns the highest believable value for a card. Gold Star cards
// get the highest cap, other Star (★) cards a lower one.
func PriceCap(name, rarity string) float64 {
	text := strings.ToLower(name + " " + rarity)
	switch {
	case strings.Contains(text, "gold star"):
		return goldStarCap
	case strings.Contains(text, "★") || hasWord(text, "star"):
		return starCap
	default:
		return defaultCap
	}
}

func hasWord(text, word string) bool {
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

// SuspiciousPriceFixer caps or clears implausible current values and history
// rows, then re-derives current values from the cleaned history.
type SuspiciousPriceFixer struct {
	db     *gorm.DB
	DryRun bool
}

func NewSuspiciousPriceFixer(db *gorm.DB) *SuspiciousPriceFixer {
	return &SuspiciousPriceFixer{db: db}
}

func (f *SuspiciousPriceFixer) Name() string { return PipelineFixSuspicious }

type suspiciousCard struct {
	ID           string
	Name         string
	Rarity       string
	CurrentValue float64
}

func (f *SuspiciousPriceFixer) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	db := f.db.WithContext(ctx)

	var cards []suspiciousCard
	err := db.Model(&models.Card{}).
		Select("id, name, rarity, current_value").
		Where("current_value > ?", suspiciousThreshold).
		Order("current_value DESC").
		Scan(&cards).Error
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to find suspicious cards: %w", err)
	}

	var historyDelete, historyCapped int64
	if err := db.Model(&models.PriceHistory{}).Where("price > ?", implausiblePrice).Count(&historyDelete).Error; err != nil {
		return RunStats{}, err
	}
	if err := db.Model(&models.PriceHistory{}).Where("price > ? AND price <= ?", historyCap, implausiblePrice).Count(&historyCapped).Error; err != nil {
		return RunStats{}, err
	}

	stats := RunStats{Processed: len(cards)}
	values := make(map[string]float64)
	for _, c := range cards {
		limit := PriceCap(c.Name, c.Rarity)
		switch {
		case c.CurrentValue <= limit:
			stats.Skipped++
		case c.CurrentValue > implausiblePrice:
			runLog.Warnf("%s (%s): $%.2f cleared", c.Name, c.ID, c.CurrentValue)
			values[c.ID] = 0
		default:
			runLog.Warnf("%s (%s): $%.2f capped at $%.0f", c.Name, c.ID, c.CurrentValue, limit)
			values[c.ID] = limit
		}
	}
	runLog.Infof("%d cards to fix, %d history rows to delete, %d to cap", len(values), historyDelete, historyCapped)

	if f.DryRun {
		runLog.Infof("dry run: no changes written")
		return stats, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for id, v := range values {
			if err := tx.Model(&models.Card{}).Where("id = ?", id).UpdateColumn("current_value", v).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("price > ?", implausiblePrice).Delete(&models.PriceHistory{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PriceHistory{}).
			Where("price > ? AND price <= ?", historyCap, implausiblePrice).
			UpdateColumn("price", historyCap).Error; err != nil {
			return err
		}
		n, err := recomputeCardValues(tx)
		if err != nil {
			return err
		}
		runLog.Infof("recomputed current value for %d cards from history", n)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to fix suspicious prices: %w", err)
	}

	stats.Updated = len(values) + int(historyDelete) + int(historyCapped)
	return stats, nil
}
