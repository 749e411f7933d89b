package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const (
	PipelineImportPrices = "import-prices"

	// SourceCSVImport is recorded on history rows written from a price CSV.
	SourceCSVImport = "csv-import"

	importBatchSize = 500
)

var rowValidator = validator.New()

// PriceImportRow is one price from an import CSV. ID is a card id or a
// TCGplayer product id; both key price_history.
type PriceImportRow struct {
	Line   int
	ID     string  `validate:"required"`
	Market float64 `validate:"gte=0"`
	Low    float64 `validate:"gte=0"`
	Mid    float64 `validate:"gte=0"`
	High   float64 `validate:"gte=0"`
}

// ReadPriceImport parses either a product price export
// (productId,marketPrice,lowPrice[,midPrice,highPrice]) or a price-updates
// report (card_id,...,new_price,...,validation_status). Report rows marked
// REJECTED are left out. Rows that fail to parse are returned as errors
// alongside the good rows.
func ReadPriceImport(r io.Reader) ([]PriceImportRow, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read import header: %w", err)
	}
	col := headerIndex(header)

	idCol, priceCol := "", ""
	for _, c := range []string{"productid", "product_id", "card_id"} {
		if _, ok := col[c]; ok {
			idCol = c
			break
		}
	}
	for _, c := range []string{"marketprice", "market_price", "new_price"} {
		if _, ok := col[c]; ok {
			priceCol = c
			break
		}
	}
	if idCol == "" || priceCol == "" {
		return nil, nil, fmt.Errorf("import file needs an id column (productId or card_id) and a price column (marketPrice or new_price)")
	}

	var (
		rows    []PriceImportRow
		rowErrs []error
		line    = 1
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if strings.HasPrefix(strings.ToUpper(field(rec, col, "validation_status")), "REJECTED") {
			continue
		}

		row := PriceImportRow{Line: line, ID: field(rec, col, idCol)}
		var parseErr error
		parse := func(names ...string) float64 {
			for _, name := range names {
				raw := strings.TrimPrefix(field(rec, col, name), "$")
				if raw == "" {
					continue
				}
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil || !pricing.IsFinite(v) {
					parseErr = fmt.Errorf("line %d: invalid %s %q", line, name, raw)
					return 0
				}
				return v
			}
			return 0
		}
		row.Market = parse(priceCol)
		row.Low = parse("lowprice", "low_price")
		row.Mid = parse("midprice", "mid_price")
		row.High = parse("highprice", "high_price")
		if parseErr != nil {
			rowErrs = append(rowErrs, parseErr)
			continue
		}
		if err := rowValidator.Struct(row); err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

// PriceImporter applies an import CSV: the previous current value is
// archived, today's point is upserted and the card and product prices are
// refreshed, all in one transaction per batch.
type PriceImporter struct {
	writer    *HistoryWriter
	validator *pricing.Validator
	Path      string

	now func() time.Time
}

func NewPriceImporter(writer *HistoryWriter, path string) *PriceImporter {
	return &PriceImporter{
		writer:    writer,
		validator: pricing.NewValidator(),
		Path:      path,
		now:       time.Now,
	}
}

func (p *PriceImporter) Name() string { return PipelineImportPrices }

func (p *PriceImporter) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	rows, rowErrs, err := ReadPriceImport(f)
	if err != nil {
		return RunStats{}, err
	}
	var stats RunStats
	for _, e := range rowErrs {
		runLog.Errorf("%v", e)
		stats.Errors++
	}
	runLog.Infof("importing %d rows from %s", len(rows), p.Path)

	now := p.now()
	for start := 0; start < len(rows); start += importBatchSize {
		batch := rows[start:min(start+importBatchSize, len(rows))]
		var batchStats RunStats
		err := p.writer.Transaction(ctx, func(tx *HistoryTx) error {
			batchStats = RunStats{}
			for _, row := range batch {
				if err := p.importRow(tx, row, now, runLog, &batchStats); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			runLog.Errorf("batch starting at line %d: %v", batch[0].Line, err)
			stats.Errors += len(batch)
			continue
		}
		stats.Processed += batchStats.Processed
		stats.Updated += batchStats.Updated
		stats.Rejected += batchStats.Rejected
		stats.Skipped += batchStats.Skipped
	}
	return stats, nil
}

func (p *PriceImporter) importRow(tx *HistoryTx, row PriceImportRow, now time.Time, runLog *RunLogger, stats *RunStats) error {
	stats.Processed++
	if row.Market <= 0 {
		stats.Skipped++
		return nil
	}

	oldPrice, isCard, err := tx.CardValue(row.ID)
	if err != nil {
		return err
	}

	result := p.validator.Validate(row.Market, "", oldPrice)
	if !result.Valid {
		metrics.ValidationsTotal.WithLabelValues("rejected").Inc()
		runLog.Warnf("line %d (%s): %s", row.Line, row.ID, result.Reason)
		stats.Rejected++
		return nil
	}
	metrics.ValidationsTotal.WithLabelValues("valid").Inc()

	if isCard && oldPrice > 0 && oldPrice != row.Market {
		if err := tx.ArchivePrevious(row.ID, models.Today(now.AddDate(0, 0, -1)), oldPrice); err != nil {
			return err
		}
	}

	_, err = tx.Upsert([]models.PricePoint{{
		ProductID: row.ID,
		Date:      models.Today(now),
		Price:     row.Market,
		Condition: models.ConditionNearMint,
		Source:    SourceCSVImport,
	}})
	if err != nil {
		return err
	}

	if isCard {
		if err := tx.RefreshCardValue(row.ID, row.Market); err != nil {
			return err
		}
	}
	if productID, err := strconv.Atoi(row.ID); err == nil {
		err := tx.RefreshProductPrices(productID, pricing.ProductPrice{
			Market: row.Market, Low: row.Low, Mid: row.Mid, High: row.High,
		})
		if err != nil {
			return err
		}
	}

	stats.Updated++
	return nil
}
