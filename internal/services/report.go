package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

// ReportHeader is the header of the price-updates CSV.
var ReportHeader = []string{
	"card_id", "card_name", "set_name", "old_price", "new_price",
	"price_change", "update_timestamp", "validation_status",
}

// ReportRow is one validated price update.
type ReportRow struct {
	CardID           string
	CardName         string
	SetName          string
	OldPrice         float64
	NewPrice         float64
	PriceChange      float64
	UpdateTimestamp  time.Time
	ValidationStatus string
}

func (r ReportRow) record() []string {
	setName := r.SetName
	if setName == "" {
		setName = "Unknown"
	}
	return []string{
		r.CardID,
		r.CardName,
		setName,
		strconv.FormatFloat(r.OldPrice, 'f', 2, 64),
		strconv.FormatFloat(r.NewPrice, 'f', 2, 64),
		strconv.FormatFloat(r.PriceChange, 'f', 2, 64),
		r.UpdateTimestamp.UTC().Format(time.RFC3339),
		r.ValidationStatus,
	}
}

// PriceReport appends rows to a price-updates-YYYY-MM-DD.csv file. It is
// safe for concurrent use.
type PriceReport struct {
	mu   sync.Mutex
	w    *csv.Writer
	f    *os.File
	path string
	rows int
}

// NewPriceReport creates today's report file in dir, truncating an earlier
// report from the same day.
func NewPriceReport(dir string) (*PriceReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("price-updates-%s.csv", models.Today(time.Now())))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	r := newPriceReport(f)
	r.f = f
	r.path = path
	if err := r.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// NewPriceReportTo writes the report to w.
func NewPriceReportTo(w io.Writer) (*PriceReport, error) {
	r := newPriceReport(w)
	if err := r.writeHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func newPriceReport(w io.Writer) *PriceReport {
	return &PriceReport{w: csv.NewWriter(w)}
}

func (r *PriceReport) writeHeader() error {
	if err := r.w.Write(ReportHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	return nil
}

// Add appends one row.
func (r *PriceReport) Add(row ReportRow) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Write(row.record()); err != nil {
		return fmt.Errorf("failed to write report row: %w", err)
	}
	r.rows++
	return nil
}

// Rows returns the number of data rows written.
func (r *PriceReport) Rows() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

func (r *PriceReport) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Close flushes buffered rows and closes the file.
func (r *PriceReport) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}
