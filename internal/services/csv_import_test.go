package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestPriceImportEndToEnd(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&models.Card{ID: "123", Name: "Pikachu", CurrentValue: 0}).Error; err != nil {
		t.Fatalf("failed to seed card: %v", err)
	}
	path := writeFile(t, "prices.csv", "productId,marketPrice,lowPrice\n123,12.50,10.00\n")

	importer := NewPriceImporter(NewHistoryWriter(db), path)
	now := time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)
	importer.now = func() time.Time { return now }

	stats, err := importer.Run(context.Background(), NewRunLoggerTo(nil, "test"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Updated != 1 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want 1 updated and no errors", stats)
	}

	rows := historyRows(t, db, "123")
	if len(rows) != 1 {
		t.Fatalf("expected one history row, got %d: %+v", len(rows), rows)
	}
	if rows[0].Date != "2025-10-15" || rows[0].Price != 12.50 {
		t.Errorf("history row = %+v, want (123, 2025-10-15, 12.50)", rows[0])
	}

	var card models.Card
	db.First(&card, "id = ?", "123")
	if card.CurrentValue != 12.50 {
		t.Errorf("current_value = %v, want 12.50", card.CurrentValue)
	}
}

func TestPriceImportArchivesPreviousValue(t *testing.T) {
	db := newTestDB(t)
	db.Create(&models.Card{ID: "sv1-1", Name: "Sprigatito", CurrentValue: 2})
	db.Create(&models.Product{ProductID: 555, Name: "Sprigatito"})
	path := writeFile(t, "report.csv", strings.Join([]string{
		"card_id,card_name,set_name,old_price,new_price,price_change,update_timestamp,validation_status",
		"sv1-1,Sprigatito,Scarlet & Violet,2.00,3.00,50.00,2025-10-15T09:00:00Z,VALID",
		"555,Sprigatito,Scarlet & Violet,0,4.00,0,2025-10-15T09:00:00Z,VALID",
		"sv1-2,Floragato,Scarlet & Violet,2.00,10000.00,0,2025-10-15T09:00:00Z,REJECTED: Suspicious round number: $10000",
		"sv1-3,Meowscarada,Scarlet & Violet,2.00,abc,0,2025-10-15T09:00:00Z,VALID",
	}, "\n"))

	importer := NewPriceImporter(NewHistoryWriter(db), path)
	importer.now = func() time.Time { return time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC) }

	stats, err := importer.Run(context.Background(), NewRunLoggerTo(nil, "test"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Updated != 2 || stats.Errors != 1 {
		t.Errorf("stats = %+v, want 2 updated, 1 error", stats)
	}

	rows := historyRows(t, db, "sv1-1")
	if len(rows) != 2 {
		t.Fatalf("expected archived and new rows, got %+v", rows)
	}
	if rows[0].Date != "2025-10-14" || rows[0].Price != 2 || rows[0].Source != SourceArchive {
		t.Errorf("archived row = %+v", rows[0])
	}
	if rows[1].Date != "2025-10-15" || rows[1].Price != 3 {
		t.Errorf("new row = %+v", rows[1])
	}

	var p models.Product
	db.First(&p, "product_id = ?", 555)
	if p.MarketPrice != 4 {
		t.Errorf("product market_price = %v, want 4", p.MarketPrice)
	}
}

func TestReadPriceImport(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		wantRows int
		wantErrs int
		wantErr  bool
	}{
		{"product export", "productId,marketPrice,lowPrice,midPrice,highPrice\n1,2.5,2,3,4\n2,$1.00,,,\n", 2, 0, false},
		{"snake case", "product_id,market_price\n1,2.5\n", 1, 0, false},
		{"negative price", "productId,marketPrice\n1,-1\n", 0, 1, false},
		{"missing id", "productId,marketPrice\n,3\n", 0, 1, false},
		{"non-finite price", "productId,marketPrice\n1,inf\n2,NaN\n3,Infinity\n", 0, 3, false},
		{"stray quote", "productId,marketPrice,name\n1,2.5,Pikachu \"Promo\"\n", 1, 0, false},
		{"unknown layout", "name,price\nx,1\n", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, rowErrs, err := ReadPriceImport(strings.NewReader(tt.csv))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadPriceImport() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(rows) != tt.wantRows || len(rowErrs) != tt.wantErrs {
				t.Errorf("ReadPriceImport() = %d rows, %d errors; want %d, %d (%v)", len(rows), len(rowErrs), tt.wantRows, tt.wantErrs, rowErrs)
			}
		})
	}
}
