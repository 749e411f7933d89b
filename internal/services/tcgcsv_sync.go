package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const PipelineTCGCSV = "tcgcsv"

// TCGCSVSync downloads every group's products and prices, refreshes the
// products catalogue and appends one TCGCSV history point per product and
// sub type.
type TCGCSVSync struct {
	tcgcsv *TCGCSVService
	writer *HistoryWriter

	// GroupListPath is the group list CSV. Empty lists groups from the API.
	GroupListPath string
	MaxConcurrent int
	BatchDelay    time.Duration

	now func() time.Time
}

func NewTCGCSVSync(tcgcsv *TCGCSVService, writer *HistoryWriter) *TCGCSVSync {
	return &TCGCSVSync{
		tcgcsv:        tcgcsv,
		writer:        writer,
		MaxConcurrent: 5,
		BatchDelay:    time.Second,
		now:           time.Now,
	}
}

func (s *TCGCSVSync) Name() string { return PipelineTCGCSV }

func (s *TCGCSVSync) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	sources, err := s.sources(ctx)
	if err != nil {
		return RunStats{}, err
	}
	runLog.Infof("syncing %d groups, %d at a time", len(sources), s.MaxConcurrent)

	batchSize := s.MaxConcurrent
	if batchSize <= 0 {
		batchSize = 5
	}
	today := models.Today(s.now())
	var stats statsCollector

	for start := 0; start < len(sources); start += batchSize {
		if start > 0 && s.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return stats.snapshot(), ctx.Err()
			case <-time.After(s.BatchDelay):
			}
		}

		end := min(start+batchSize, len(sources))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchSize)
		for _, src := range sources[start:end] {
			g.Go(func() error {
				res, err := s.syncGroup(gctx, src, today)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					runLog.Errorf("group %d (%s): %v", src.GroupID, src.Name, err)
					stats.add(func(st *RunStats) { st.Errors++ })
					return nil
				}
				stats.add(func(st *RunStats) {
					st.Processed += res.processed
					st.Updated += res.written
					if res.skipped {
						st.Skipped++
					}
				})
				runLog.Infof("group %d (%s): %d products, %d history rows", src.GroupID, src.Name, res.products, res.written)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats.snapshot(), err
		}
		runLog.Infof("batch %d/%d done", start/batchSize+1, (len(sources)+batchSize-1)/batchSize)
	}

	return stats.snapshot(), nil
}

func (s *TCGCSVSync) sources(ctx context.Context) ([]GroupSource, error) {
	if s.GroupListPath == "" {
		return s.tcgcsv.GroupSources(ctx)
	}
	f, err := os.Open(s.GroupListPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open group list: %w", err)
	}
	defer f.Close()
	return ReadGroupSources(f)
}

type groupSyncResult struct {
	products  int
	processed int
	written   int
	skipped   bool
}

func (s *TCGCSVSync) syncGroup(ctx context.Context, src GroupSource, today string) (groupSyncResult, error) {
	var res groupSyncResult

	var products []models.Product
	if src.ProductsURL != "" {
		raw, err := s.tcgcsv.GetProducts(ctx, src)
		if err != nil {
			return res, err
		}
		for _, p := range raw {
			if p.GroupID == 0 {
				p.GroupID = src.GroupID
			}
			products = append(products, p.ToModel(src.Language))
		}
	}

	doc, err := s.tcgcsv.GetPrices(ctx, src)
	if err != nil {
		return res, err
	}
	if doc == nil && len(products) == 0 {
		res.skipped = true
		return res, nil
	}

	var points []models.PricePoint
	var summaries map[int]pricing.ProductPrice
	if doc != nil {
		points = pricing.Normalize(doc, pricing.Options{Date: today})
		summaries = pricing.SummarizeTcgCsv(*doc)
		res.processed = len(doc.Results)
	}
	res.products = len(products)

	group := models.Group{GroupID: src.GroupID, Name: src.Name, CategoryID: pokemonCategoryID, Language: src.Language}
	if cached, ok := s.tcgcsv.Group(src.GroupID); ok {
		group.Abbreviation = cached.Abbreviation
		group.PublishedOn = cached.PublishedOn
	}

	err = s.writer.Transaction(ctx, func(tx *HistoryTx) error {
		if err := tx.UpsertGroup(group); err != nil {
			return err
		}
		if err := tx.UpsertProducts(products); err != nil {
			return err
		}
		n, err := tx.Upsert(points)
		if err != nil {
			return err
		}
		res.written = n
		for productID, p := range summaries {
			if err := tx.RefreshProductPrices(productID, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, fmt.Errorf("failed to store group: %w", err)
	}
	return res, err
}
