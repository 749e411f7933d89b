package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"gorm.io/gorm"
)

// cardRecord is the matcher-facing view of a card row.
type cardRecord struct {
	ID      string
	Name    string
	Number  string
	Artist  string
	SetName string
}

// loadCardRecords reads every card with its set name and returns the rows
// together with a matcher indexed on them.
func loadCardRecords(ctx context.Context, db *gorm.DB, aliases *AliasTable) (map[string]cardRecord, *Matcher, error) {
	var rows []cardRecord
	err := db.WithContext(ctx).
		Table("cards AS c").
		Select("c.id, c.name, c.number, c.artist, COALESCE(s.name, '') AS set_name").
		Joins("LEFT JOIN sets s ON c.set_id = s.id").
		Scan(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cards: %w", err)
	}

	byID := make(map[string]cardRecord, len(rows))
	records := make([]MatchRecord, 0, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
		records = append(records, MatchRecord{ID: r.ID, Name: r.Name, Set: r.SetName, Number: r.Number})
	}
	return byID, NewMatcher(records, aliases), nil
}

// csvRow is one data row of a headed CSV file.
type csvRow struct {
	line   int
	record []string
	col    map[string]int
}

// get returns the first non-empty value among the named columns.
func (r csvRow) get(names ...string) string {
	for _, name := range names {
		if v := field(r.record, r.col, name); v != "" {
			return v
		}
	}
	return ""
}

// has reports whether any of the named columns exists in the header.
func (r csvRow) has(names ...string) bool {
	for _, name := range names {
		if _, ok := r.col[name]; ok {
			return true
		}
	}
	return false
}

// readCSVFile reads a headed CSV file. A missing file is an error; blank
// lines are skipped by encoding/csv.
func readCSVFile(path string) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([]csvRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := headerIndex(header)

	var rows []csvRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if strings.TrimSpace(strings.Join(rec, "")) == "" {
			continue
		}
		rows = append(rows, csvRow{line: line, record: rec, col: col})
	}
	return rows, nil
}

func describeRow(name, set string) string {
	if set == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, set)
}
