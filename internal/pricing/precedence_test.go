package pricing

import (
	"math"
	"testing"
)

func TestCanonicalVariant(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Holofoil", "holofoil"},
		{"Reverse Holofoil", "reverseHolofoil"},
		{"reverse-holofoil", "reverseHolofoil"},
		{"reverseHolofoil", "reverseHolofoil"},
		{"1st Edition Holofoil", "1stEditionHolofoil"},
		{"Normal", "normal"},
		{"", "normal"},
		{"Unlimited", "unlimited"},
		{"Shadowless", "shadowless"},
	}

	for _, tt := range tests {
		if got := CanonicalVariant(tt.in); got != tt.want {
			t.Errorf("CanonicalVariant(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVariantPriceBest(t *testing.T) {
	tests := []struct {
		name string
		in   VariantPrice
		want float64
	}{
		{"market wins", VariantPrice{Low: 5, Mid: 8, High: 20, Market: 7}, 7},
		{"stale market uses mid", VariantPrice{Low: 10, Mid: 12, Market: 4}, 12},
		{"mid without market", VariantPrice{Low: 5, Mid: 8, High: 20}, 8},
		{"low high midpoint", VariantPrice{Low: 4, High: 10}, 7},
		{"low with markup", VariantPrice{Low: 10}, 12},
		{"nothing", VariantPrice{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Best(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Best() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBestPrice(t *testing.T) {
	tests := []struct {
		name        string
		prices      map[string]VariantPrice
		cardmarket  *CardmarketPrices
		wantPrice   float64
		wantVariant string
	}{
		{
			name: "holofoil before normal",
			prices: map[string]VariantPrice{
				"normal":   {Market: 3},
				"holofoil": {Market: 9},
			},
			wantPrice:   9,
			wantVariant: "holofoil",
		},
		{
			name: "skips empty variant",
			prices: map[string]VariantPrice{
				"holofoil":        {},
				"reverseHolofoil": {Market: 4},
			},
			wantPrice:   4,
			wantVariant: "reverseHolofoil",
		},
		{
			name:        "unknown variant after known",
			prices:      map[string]VariantPrice{"shadowless": {Market: 40}, "unlimited": {Market: 20}},
			wantPrice:   20,
			wantVariant: "unlimited",
		},
		{
			name:        "cardmarket fallback",
			prices:      map[string]VariantPrice{"normal": {}},
			cardmarket:  &CardmarketPrices{Avg7: 10, TrendPrice: 50},
			wantPrice:   11,
			wantVariant: "cardmarket",
		},
		{
			name:        "cardmarket trend only",
			cardmarket:  &CardmarketPrices{TrendPrice: 20},
			wantPrice:   22,
			wantVariant: "cardmarket",
		},
		{
			name:        "nothing usable",
			wantPrice:   0,
			wantVariant: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, variant := BestPrice(tt.prices, tt.cardmarket)
			if math.Abs(price-tt.wantPrice) > 1e-9 || variant != tt.wantVariant {
				t.Errorf("BestPrice() = (%v, %q), want (%v, %q)", price, variant, tt.wantPrice, tt.wantVariant)
			}
		})
	}
}
