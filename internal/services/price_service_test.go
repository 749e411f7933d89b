package services

import (
	"context"
	"testing"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

func TestIsFresh(t *testing.T) {
	svc := &PriceService{}

	// nil should not be fresh
	if svc.isFresh(nil) {
		t.Error("nil time should not be fresh")
	}

	// Time within threshold should be fresh
	recent := time.Now().Add(-1 * time.Hour)
	if !svc.isFresh(&recent) {
		t.Error("Time 1 hour ago should be fresh")
	}

	threshold := time.Now().Add(-PriceStalenessThreshold + time.Minute)
	if !svc.isFresh(&threshold) {
		t.Error("Time just within threshold should be fresh")
	}

	old := time.Now().Add(-PriceStalenessThreshold - time.Hour)
	if svc.isFresh(&old) {
		t.Error("Time beyond threshold should not be fresh")
	}
}

func seedHistory(t *testing.T, svc *PriceService, rows ...models.PriceHistory) {
	t.Helper()
	for _, row := range rows {
		if err := svc.db.Create(&row).Error; err != nil {
			t.Fatalf("failed to seed history: %v", err)
		}
	}
}

func TestPriceServiceHistory(t *testing.T) {
	svc := NewPriceService(newTestDB(t))
	seedHistory(t, svc,
		models.PriceHistory{ProductID: "42", Date: "2025-10-01", Condition: "Market", Price: 10, Source: "TCGCSV"},
		models.PriceHistory{ProductID: "42", Date: "2025-10-02", Condition: "Market", Price: 11, Source: "TCGCSV"},
		models.PriceHistory{ProductID: "42", Date: "2025-10-03", Condition: "Market", Price: 12, Source: "TCGCSV"},
		models.PriceHistory{ProductID: "42", Date: "2025-10-03", Condition: "Near Mint", Price: 13, Source: "pokemonpricetracker-near-mint"},
		models.PriceHistory{ProductID: "42", Date: "2025-10-03", Condition: "Graded", Grade: "PSA 10", Price: 90, Source: "pokemonpricetracker-psa10"},
		models.PriceHistory{ProductID: "43", Date: "2025-10-03", Condition: "Market", Price: 1, Source: "TCGCSV"},
	)

	tests := []struct {
		name  string
		query HistoryQuery
		want  []float64
	}{
		{"all", HistoryQuery{}, []float64{10, 11, 90, 12, 13}},
		{"range", HistoryQuery{From: "2025-10-02", To: "2025-10-02"}, []float64{11}},
		{"condition spelling", HistoryQuery{Condition: "nm"}, []float64{13}},
		{"grade key", HistoryQuery{Grade: "psa10"}, []float64{90}},
		{"limit keeps newest", HistoryQuery{Condition: "market", Limit: 2}, []float64{11, 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := svc.History(context.Background(), "42", tt.query)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			got := make([]float64, len(rows))
			for i, r := range rows {
				got[i] = r.Price
			}
			if len(got) != len(tt.want) {
				t.Fatalf("History(%+v) = %v, want %v", tt.query, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("History(%+v) = %v, want %v", tt.query, got, tt.want)
					break
				}
			}
		})
	}
}

func TestPriceServiceGetPrice(t *testing.T) {
	db := newTestDB(t)
	svc := NewPriceService(db)
	now := time.Now()
	svc.now = func() time.Time { return now }

	seedHistory(t, svc,
		models.PriceHistory{ProductID: "42", Date: "2025-10-02", Condition: "Market", Price: 11, Source: "TCGCSV"},
		models.PriceHistory{ProductID: "42", Date: "2025-10-03", Condition: "Lightly Played", Price: 8, Source: "pokemonpricetracker-lightly-played"},
		models.PriceHistory{ProductID: "42", Date: "2025-10-03", Condition: "Near Mint", Price: 12, Source: "pokemonpricetracker-near-mint", UpdatedAt: now.Add(-48 * time.Hour)},
	)
	if err := db.Create(&models.Product{ProductID: 77, Name: "Booster Box", MarketPrice: 140}).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	if err := db.Create(&models.Card{ID: "base1-4", Name: "Charizard", CurrentValue: 350}).Error; err != nil {
		t.Fatalf("failed to seed card: %v", err)
	}

	tests := []struct {
		id        string
		condition models.PriceCondition
		want      float64
		source    string
	}{
		{"42", models.ConditionLightlyPlayed, 8, "pokemonpricetracker-lightly-played"},
		{"42", models.ConditionDamaged, 12, "pokemonpricetracker-near-mint (stale)"},
		{"42", "", 12, "pokemonpricetracker-near-mint (stale)"},
		{"42", models.ConditionMarket, 11, "TCGCSV"},
		{"77", models.ConditionNearMint, 140, "cached"},
		{"base1-4", "", 350, "cached"},
	}
	for _, tt := range tests {
		got, err := svc.GetPrice(context.Background(), tt.id, tt.condition)
		if err != nil {
			t.Fatalf("GetPrice(%q, %q) error = %v", tt.id, tt.condition, err)
		}
		if got == nil {
			t.Fatalf("GetPrice(%q, %q) = nil, want %v", tt.id, tt.condition, tt.want)
		}
		if got.Price != tt.want || got.Source != tt.source {
			t.Errorf("GetPrice(%q, %q) = %v from %q, want %v from %q", tt.id, tt.condition, got.Price, got.Source, tt.want, tt.source)
		}
	}

	missing, err := svc.GetPrice(context.Background(), "nope", "")
	if err != nil || missing != nil {
		t.Errorf("GetPrice(missing) = %+v, %v, want nil, nil", missing, err)
	}
}
