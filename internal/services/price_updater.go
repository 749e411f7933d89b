package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const (
	PipelineTCGdex     = "tcgdex"
	PipelinePokemonTCG = "pokemontcg"
)

// cardFetcher returns the provider payload for a card, or nil when the
// provider does not know it.
type cardFetcher func(ctx context.Context, card models.CardWithSet) (pricing.ProviderPriceResponse, error)

// PriceUpdater refreshes cards.current_value from a per-card provider. Every
// candidate price is validated against the card's previous value and
// written to the price-updates report; only valid prices reach the
// database, after the previous value is archived.
type PriceUpdater struct {
	name      string
	db        *gorm.DB
	writer    *HistoryWriter
	validator *pricing.Validator
	fetch     cardFetcher
	staleOnly bool

	ReportDir     string
	MaxConcurrent int
	// StaleAfter selects cards not updated for this long (pokemontcg only).
	StaleAfter time.Duration
	Limit      int

	now func() time.Time
}

// NewTCGdexUpdater updates every card that already has a value, highest
// first, from TCGdex.
func NewTCGdexUpdater(db *gorm.DB, tcgdex *TCGdexService, writer *HistoryWriter) *PriceUpdater {
	u := newPriceUpdater(PipelineTCGdex, db, writer)
	u.fetch = func(ctx context.Context, card models.CardWithSet) (pricing.ProviderPriceResponse, error) {
		c, err := tcgdex.GetCard(ctx, card.ID)
		if err != nil || c == nil {
			return nil, err
		}
		resp := c.PriceResponse()
		return resp, nil
	}
	return u
}

// NewPokemonTCGUpdater updates cards without a value or with a stale one
// from pokemontcg.io.
func NewPokemonTCGUpdater(db *gorm.DB, ptcg *PokemonTCGService, writer *HistoryWriter) *PriceUpdater {
	u := newPriceUpdater(PipelinePokemonTCG, db, writer)
	u.staleOnly = true
	u.fetch = func(ctx context.Context, card models.CardWithSet) (pricing.ProviderPriceResponse, error) {
		c, err := ptcg.FindCard(ctx, card.ID, card.Name, card.SetName)
		if err != nil || c == nil {
			return nil, err
		}
		return c.PokemonTcgIo, nil
	}
	return u
}

func newPriceUpdater(name string, db *gorm.DB, writer *HistoryWriter) *PriceUpdater {
	return &PriceUpdater{
		name:          name,
		db:            db,
		writer:        writer,
		validator:     pricing.NewValidator(),
		ReportDir:     ".",
		MaxConcurrent: 5,
		StaleAfter:    7 * 24 * time.Hour,
		now:           time.Now,
	}
}

func (u *PriceUpdater) Name() string { return u.name }

func (u *PriceUpdater) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	cards, err := u.selectCards(ctx)
	if err != nil {
		return RunStats{}, err
	}
	runLog.Infof("found %d cards to update", len(cards))

	report, err := NewPriceReport(u.ReportDir)
	if err != nil {
		return RunStats{}, err
	}

	var stats statsCollector
	stats.add(func(s *RunStats) { s.ReportPath = report.Path() })

	limit := u.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, card := range cards {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			u.updateCard(gctx, card, report, runLog, &stats)
			if n := i + 1; n%100 == 0 {
				s := stats.snapshot()
				runLog.Infof("progress %d/%d: updated=%d rejected=%d errors=%d", n, len(cards), s.Updated, s.Rejected, s.Errors)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := report.Close(); err != nil {
		runLog.Errorf("%v", err)
	}
	runLog.Infof("report written to %s (%d rows)", report.Path(), report.Rows())
	return stats.snapshot(), ctx.Err()
}

func (u *PriceUpdater) selectCards(ctx context.Context) ([]models.CardWithSet, error) {
	q := u.db.WithContext(ctx).
		Table("cards AS c").
		Select("c.*, s.name AS set_name").
		Joins("LEFT JOIN sets s ON c.set_id = s.id")
	if u.staleOnly {
		q = q.Where("c.current_value IS NULL OR c.current_value = 0 OR c.updated_at < ?", u.now().Add(-u.StaleAfter))
	} else {
		q = q.Where("c.current_value > 0")
	}
	q = q.Order("c.current_value DESC")
	if u.Limit > 0 {
		q = q.Limit(u.Limit)
	}

	var cards []models.CardWithSet
	if err := q.Scan(&cards).Error; err != nil {
		return nil, fmt.Errorf("failed to select cards: %w", err)
	}
	return cards, nil
}

func (u *PriceUpdater) updateCard(ctx context.Context, card models.CardWithSet, report *PriceReport, runLog *RunLogger, stats *statsCollector) {
	stats.add(func(s *RunStats) { s.Processed++ })

	resp, err := u.fetch(ctx, card)
	if err != nil {
		if ctx.Err() == nil {
			runLog.Errorf("%s (%s): %v", card.Name, card.ID, err)
			stats.add(func(s *RunStats) { s.Errors++ })
		}
		return
	}
	newPrice := pricing.CurrentValue(resp)
	if resp == nil || newPrice <= 0 {
		stats.add(func(s *RunStats) { s.Skipped++ })
		return
	}

	now := u.now()
	oldPrice := card.CurrentValue
	result := u.validator.Validate(newPrice, card.Rarity, oldPrice)

	row := ReportRow{
		CardID:           card.ID,
		CardName:         card.Name,
		SetName:          card.SetName,
		OldPrice:         oldPrice,
		NewPrice:         newPrice,
		PriceChange:      pricing.ChangePercent(oldPrice, newPrice),
		UpdateTimestamp:  now,
		ValidationStatus: result.Status(),
	}
	if err := report.Add(row); err != nil {
		runLog.Errorf("%v", err)
	}

	if !result.Valid {
		metrics.ValidationsTotal.WithLabelValues("rejected").Inc()
		runLog.Warnf("%s (%s): %s ($%.2f)", card.Name, card.ID, result.Reason, newPrice)
		stats.add(func(s *RunStats) { s.Rejected++ })
		return
	}
	metrics.ValidationsTotal.WithLabelValues("valid").Inc()

	today := models.Today(now)
	points := pricing.Normalize(resp, pricing.Options{ProductID: card.ID, Date: today})
	err = u.writer.Transaction(ctx, func(tx *HistoryTx) error {
		if err := tx.ArchivePrevious(card.ID, models.Today(now.AddDate(0, 0, -1)), oldPrice); err != nil {
			return err
		}
		if _, err := tx.Upsert(points); err != nil {
			return err
		}
		return tx.RefreshCardValue(card.ID, newPrice)
	})
	if err != nil {
		if ctx.Err() == nil {
			runLog.Errorf("%s (%s): %v", card.Name, card.ID, err)
			stats.add(func(s *RunStats) { s.Errors++ })
		}
		return
	}

	runLog.Infof("%s: $%.2f -> $%.2f (%.2f%%)", card.Name, oldPrice, newPrice, row.PriceChange)
	stats.add(func(s *RunStats) { s.Updated++ })
}
