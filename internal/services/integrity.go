package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/database"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const PipelineIntegrity = "report-integrity"

// Price jump detection: an increase above jumpThreshold dollars between two
// history rows of one card, the earlier row within the jump window.
const (
	jumpThreshold = 500
	jumpWindow    = 7 * 24 * time.Hour
	jumpLimit     = 20
)

// KnownBadPrices maps card ids to their corrected market price.
var KnownBadPrices = map[string]float64{
	"ex7-108": 8700, // Torchic ★
}

// IntegrityReport summarises the state of card pricing data.
type IntegrityReport struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	TotalCards        int             `json:"total_cards" db:"total_cards"`
	CardsWithPrices   int             `json:"cards_with_prices" db:"cards_with_prices"`
	AverageValue      float64         `json:"average_value" db:"average_value"`
	MaxValue          float64         `json:"max_value" db:"max_value"`
	SuspiciousCards   int             `json:"suspicious_cards" db:"suspicious_cards"`
	HistoryRows       int             `json:"history_rows" db:"history_rows"`
	CardsWithHistory  int             `json:"cards_with_history" db:"cards_with_history"`
	LatestHistoryDate string          `json:"latest_history_date" db:"latest_history_date"`
	CoveragePercent   float64         `json:"coverage_percent"`
	KnownBad          []KnownBadPrice `json:"known_bad"`
	Jumps             []PriceJump     `json:"jumps"`
}

// KnownBadPrice is the state of one entry from KnownBadPrices.
type KnownBadPrice struct {
	CardID   string  `json:"card_id"`
	Expected float64 `json:"expected"`
	Current  float64 `json:"current"`
	Fixed    bool    `json:"fixed"`
}

// PriceJump is a suspicious increase between two history rows.
type PriceJump struct {
	ProductID string  `json:"product_id" db:"product_id"`
	Name      string  `json:"name" db:"name"`
	SetName   string  `json:"set_name" db:"set_name"`
	OldPrice  float64 `json:"old_price" db:"old_price"`
	NewPrice  float64 `json:"new_price" db:"new_price"`
	Change    float64 `json:"change" db:"price_change"`
	OldDate   string  `json:"old_date" db:"old_date"`
	NewDate   string  `json:"new_date" db:"new_date"`
}

const integritySummaryQuery = `
SELECT
	(SELECT COUNT(*) FROM cards) AS total_cards,
	(SELECT COUNT(*) FROM cards WHERE current_value > 0) AS cards_with_prices,
	(SELECT COALESCE(AVG(current_value), 0) FROM cards WHERE current_value > 0) AS average_value,
	(SELECT COALESCE(MAX(current_value), 0) FROM cards) AS max_value,
	(SELECT COUNT(*) FROM cards WHERE current_value > 10000) AS suspicious_cards,
	(SELECT COUNT(*) FROM price_history) AS history_rows,
	(SELECT COUNT(DISTINCT ph.product_id) FROM price_history ph JOIN cards c ON c.id = ph.product_id) AS cards_with_history,
	(SELECT COALESCE(MAX(date), '') FROM price_history) AS latest_history_date`

const priceJumpQuery = `
SELECT
	ph1.product_id,
	c.name,
	COALESCE(s.name, '') AS set_name,
	ph1.price AS old_price,
	ph2.price AS new_price,
	ph2.price - ph1.price AS price_change,
	ph1.date AS old_date,
	ph2.date AS new_date
FROM price_history ph1
JOIN price_history ph2 ON ph1.product_id = ph2.product_id
	AND ph1.condition = ph2.condition AND ph1.grade = ph2.grade AND ph1.variant = ph2.variant
JOIN cards c ON ph1.product_id = c.id
LEFT JOIN sets s ON c.set_id = s.id
WHERE ph2.date > ph1.date
	AND ph2.price - ph1.price > ?
	AND ph1.date >= ?
ORDER BY price_change DESC
LIMIT ?`

// IntegrityReporter builds the pricing integrity report. With Fix set,
// known bad prices are corrected first.
type IntegrityReporter struct {
	db  *gorm.DB
	Fix bool

	// Last holds the report of the most recent Run.
	Last *IntegrityReport

	now func() time.Time
}

func NewIntegrityReporter(db *gorm.DB) *IntegrityReporter {
	return &IntegrityReporter{db: db, now: time.Now}
}

func (r *IntegrityReporter) Name() string { return PipelineIntegrity }

func (r *IntegrityReporter) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	var stats RunStats
	if r.Fix {
		fixed, err := r.FixKnownBadPrices(ctx)
		if err != nil {
			return stats, err
		}
		stats.Updated = fixed
		runLog.Infof("corrected %d known bad prices", fixed)
	}

	report, err := r.Report(ctx)
	if err != nil {
		return stats, err
	}
	r.Last = report
	stats.Processed = report.TotalCards

	runLog.Infof("cards: %d total, %d priced (%.1f%% with history), average $%.2f, max $%.2f",
		report.TotalCards, report.CardsWithPrices, report.CoveragePercent, report.AverageValue, report.MaxValue)
	runLog.Infof("history: %d rows, latest %s", report.HistoryRows, report.LatestHistoryDate)
	if report.SuspiciousCards > 0 {
		runLog.Warnf("%d cards valued above $10000", report.SuspiciousCards)
	}
	for _, kb := range report.KnownBad {
		if !kb.Fixed {
			runLog.Warnf("known bad price %s: current $%.2f, expected $%.2f", kb.CardID, kb.Current, kb.Expected)
		}
	}
	for _, j := range report.Jumps {
		runLog.Warnf("price jump %s (%s): $%.2f on %s -> $%.2f on %s", j.Name, j.ProductID, j.OldPrice, j.OldDate, j.NewPrice, j.NewDate)
	}
	return stats, nil
}

// Report reads the integrity summary. It only reads.
func (r *IntegrityReporter) Report(ctx context.Context) (*IntegrityReport, error) {
	sqlDB, err := database.SQLX(r.db)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{GeneratedAt: r.now().UTC()}
	if err := sqlDB.GetContext(ctx, report, integritySummaryQuery); err != nil {
		return nil, fmt.Errorf("failed to read integrity summary: %w", err)
	}
	if report.TotalCards > 0 {
		report.CoveragePercent = float64(report.CardsWithHistory) / float64(report.TotalCards) * 100
	}

	since := models.Today(r.now().Add(-jumpWindow))
	report.Jumps = []PriceJump{}
	if err := sqlDB.SelectContext(ctx, &report.Jumps, priceJumpQuery, jumpThreshold, since, jumpLimit); err != nil {
		return nil, fmt.Errorf("failed to find price jumps: %w", err)
	}

	report.KnownBad = []KnownBadPrice{}
	for id, expected := range KnownBadPrices {
		var current []float64
		if err := sqlDB.SelectContext(ctx, &current, "SELECT current_value FROM cards WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("failed to read card %s: %w", id, err)
		}
		if len(current) == 0 {
			continue
		}
		report.KnownBad = append(report.KnownBad, KnownBadPrice{
			CardID:   id,
			Expected: expected,
			Current:  current[0],
			Fixed:    current[0] == expected,
		})
	}

	metrics.CardDatabaseSize.Set(float64(report.TotalCards))
	metrics.CardsWithPrices.Set(float64(report.CardsWithPrices))
	return report, nil
}

// FixKnownBadPrices writes the corrected price to each known card's latest
// history date and recomputes its current value from history. Cards without
// history get the corrected price directly.
func (r *IntegrityReporter) FixKnownBadPrices(ctx context.Context) (int, error) {
	fixed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, price := range KnownBadPrices {
			var count int64
			if err := tx.Model(&models.Card{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				continue
			}

			err := tx.Model(&models.PriceHistory{}).
				Where("product_id = ? AND condition != ? AND date = (SELECT MAX(date) FROM price_history WHERE product_id = ?)",
					id, models.ConditionGraded, id).
				UpdateColumn("price", price).Error
			if err != nil {
				return err
			}

			n, err := recomputeCardValues(tx, id)
			if err != nil {
				return err
			}
			if n == 0 {
				if err := tx.Model(&models.Card{}).Where("id = ?", id).UpdateColumn("current_value", price).Error; err != nil {
					return err
				}
			}
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fix known bad prices: %w", err)
	}
	return fixed, nil
}
