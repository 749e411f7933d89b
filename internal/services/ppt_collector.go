package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const (
	PipelinePPTCollect = "ppt-collect"
	PipelinePPTGraded  = "ppt-graded"

	progressEvery = 50
)

// highValueRarities limits per-card collection to rarities worth a paid
// lookup.
var highValueRarities = []string{"Holo", "Rare", "Secret", "Ultra", "Promo", "Star", "Gold", "Rainbow"}

// sealedProductWords exclude sealed products from per-card collection.
var sealedProductWords = []string{"Box", "Pack", "Bundle", "Collection", "Tin", "Case", "Display", "Elite Trainer", "Premium"}

// AdaptiveDelay is the pause between per-card requests. The delay shortens
// after a skipped card and grows once errors accumulate or right after an
// error.
type AdaptiveDelay struct {
	Base       time.Duration
	AfterSkip  time.Duration
	Throttled  time.Duration
	AfterError time.Duration
	// ErrorThreshold is the error count above which Throttled applies.
	ErrorThreshold int
}

func DefaultAdaptiveDelay() AdaptiveDelay {
	return AdaptiveDelay{
		Base:           200 * time.Millisecond,
		AfterSkip:      100 * time.Millisecond,
		Throttled:      500 * time.Millisecond,
		AfterError:     time.Second,
		ErrorThreshold: 10,
	}
}

// Next returns the pause after a card given its outcome and the errors so
// far.
func (d AdaptiveDelay) Next(skipped, failed bool, errorsSoFar int) time.Duration {
	switch {
	case failed:
		return d.AfterError
	case skipped:
		return d.AfterSkip
	case errorsSoFar > d.ErrorThreshold:
		return d.Throttled
	default:
		return d.Base
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type collectTarget struct {
	ProductID   int
	Name        string
	ExtRarity   string
	MarketPrice float64
}

// collectQuery selects products for a per-product provider.
type collectQuery struct {
	MinMarketPrice float64
	Limit          int
	HighValueOnly  bool
	// SourcePatterns are LIKE patterns; products with a history row from a
	// matching source dated today are skipped.
	SourcePatterns []string
}

func selectCollectTargets(ctx context.Context, db *gorm.DB, today string, q collectQuery) ([]collectTarget, error) {
	tx := db.WithContext(ctx).
		Table("products AS p").
		Select("p.product_id, p.name, p.ext_rarity, p.market_price").
		Where("p.ext_rarity IS NOT NULL AND p.ext_rarity != ''").
		Where("p.market_price > ?", q.MinMarketPrice)

	if q.HighValueOnly {
		for _, w := range sealedProductWords {
			tx = tx.Where("p.name NOT LIKE ?", "%"+w+"%")
		}
		clauses := make([]string, len(highValueRarities))
		args := make([]any, len(highValueRarities))
		for i, r := range highValueRarities {
			clauses[i] = "p.ext_rarity LIKE ?"
			args[i] = "%" + r + "%"
		}
		tx = tx.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	if len(q.SourcePatterns) > 0 {
		collected := db.Table("price_history").Select("CAST(product_id AS INTEGER)").Where("date = ?", today)
		var or []string
		var args []any
		for _, p := range q.SourcePatterns {
			or = append(or, "source LIKE ?")
			args = append(args, p)
		}
		collected = collected.Where("("+strings.Join(or, " OR ")+")", args...)
		tx = tx.Where("p.product_id NOT IN (?)", collected)
	}

	tx = tx.Order("p.market_price DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var targets []collectTarget
	if err := tx.Scan(&targets).Error; err != nil {
		return nil, err
	}
	return targets, nil
}

// PPTCollector fetches PokemonPriceTracker prices one product at a time and
// writes every point the payload yields. Graded switches from the v2 card
// endpoint to the raw + PSA endpoints.
type PPTCollector struct {
	db     *gorm.DB
	ppt    *PokemonPriceTrackerService
	writer *HistoryWriter
	graded bool

	MinMarketPrice float64
	Limit          int
	Delay          AdaptiveDelay

	now func() time.Time
}

func NewPPTCollector(db *gorm.DB, ppt *PokemonPriceTrackerService, writer *HistoryWriter) *PPTCollector {
	return &PPTCollector{
		db:             db,
		ppt:            ppt,
		writer:         writer,
		MinMarketPrice: 10,
		Limit:          1000,
		Delay:          DefaultAdaptiveDelay(),
		now:            time.Now,
	}
}

// NewPPTGradedCollector collects raw and PSA graded prices.
func NewPPTGradedCollector(db *gorm.DB, ppt *PokemonPriceTrackerService, writer *HistoryWriter) *PPTCollector {
	c := NewPPTCollector(db, ppt, writer)
	c.graded = true
	c.MinMarketPrice = 0
	c.Limit = 50
	return c
}

func (c *PPTCollector) Name() string {
	if c.graded {
		return PipelinePPTGraded
	}
	return PipelinePPTCollect
}

func (c *PPTCollector) query() collectQuery {
	if c.graded {
		return collectQuery{
			MinMarketPrice: c.MinMarketPrice,
			Limit:          c.Limit,
			SourcePatterns: []string{"pokemonpricetracker-psa-%", "pokemonpricetracker-raw"},
		}
	}
	return collectQuery{
		MinMarketPrice: c.MinMarketPrice,
		Limit:          c.Limit,
		HighValueOnly:  true,
		SourcePatterns: []string{"pokemonpricetracker-%"},
	}
}

func (c *PPTCollector) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	today := models.Today(c.now())
	targets, err := selectCollectTargets(ctx, c.db, today, c.query())
	if err != nil {
		return RunStats{}, err
	}
	runLog.Infof("found %d products to collect", len(targets))

	var stats RunStats
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++

		written, err := c.collect(ctx, target.ProductID, today)
		failed := err != nil
		skipped := !failed && written == 0
		switch {
		case failed:
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Errors++
			runLog.Errorf("product %d (%s): %v", target.ProductID, target.Name, err)
		case skipped:
			stats.Skipped++
		default:
			stats.Updated += written
		}

		if (i+1)%progressEvery == 0 {
			runLog.Infof("progress %d/%d: records=%d skipped=%d errors=%d",
				i+1, len(targets), stats.Updated, stats.Skipped, stats.Errors)
		}

		if i < len(targets)-1 {
			if err := sleepCtx(ctx, c.Delay.Next(skipped, failed, stats.Errors)); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// collect fetches one product and writes its points, returning the number of
// history rows written. Zero means the provider had nothing for it.
func (c *PPTCollector) collect(ctx context.Context, productID int, today string) (int, error) {
	var resp pricing.ProviderPriceResponse
	if c.graded {
		grading, err := c.ppt.GetPSAGrading(ctx, productID)
		if err != nil || grading == nil {
			return 0, err
		}
		resp = grading
	} else {
		card, err := c.ppt.GetCard(ctx, productID)
		if err != nil || card == nil {
			return 0, err
		}
		resp = card
	}

	points := pricing.Normalize(resp, pricing.Options{ProductID: ProductKey(productID), Date: today})
	if len(points) == 0 {
		return 0, nil
	}
	return c.writer.Upsert(ctx, points)
}
