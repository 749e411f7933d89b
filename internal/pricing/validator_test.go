package pricing

import (
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		price      float64
		rarity     string
		oldPrice   float64
		wantValid  bool
		wantReason string
	}{
		{"ordinary price", 12.5, "Rare Holo", 10, true, ""},
		{"no old price", 250, "Rare", 0, true, ""},
		{"negative", -1, "Rare", 0, false, "Invalid price"},
		{"zero", 0, "Rare", 0, false, "Invalid price"},
		{"NaN", math.NaN(), "Rare", 0, false, "Invalid price"},
		{"above ceiling", 10001, "Rare", 0, false, "Price too high: $10001"},
		{"at ceiling is round", 10000, "Rare", 0, false, "Suspicious round number: $10000"},
		{"too low", 0.005, "Common", 0, false, "Price too low: $0.005"},
		{"round 5000", 5000, "Rare Holo", 0, false, "Suspicious round number: $5000"},
		{"round 1000", 1000, "Rare Holo", 0, false, "Suspicious round number: $1000"},
		{"star at ceiling", 5000, "Rare Holo Star ★", 0, true, ""},
		{"star above ceiling", 5001, "Rare Holo ★", 0, false, "Price too high: $5001"},
		{"star round number under ceiling", 2000, "★", 0, true, ""},
		{"retail style", 199.99, "Rare", 0, false, "Retail-style pricing: $199.99"},
		{"retail style below floor", 99.99, "Rare", 0, true, ""},
		{"extreme increase", 500, "Rare", 10, false, "Extreme price change: 4900.0%"},
		{"just under change limit", 109, "Rare", 10, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.price, tt.rarity, tt.oldPrice)
			if got.Valid != tt.wantValid {
				t.Errorf("Validate(%v, %q, %v).Valid = %v, want %v (reason %q)",
					tt.price, tt.rarity, tt.oldPrice, got.Valid, tt.wantValid, got.Reason)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Validate(%v, %q, %v).Reason = %q, want %q",
					tt.price, tt.rarity, tt.oldPrice, got.Reason, tt.wantReason)
			}
		})
	}
}

func TestResultStatus(t *testing.T) {
	if got := (Result{Valid: true}).Status(); got != "VALID" {
		t.Errorf("Status() = %q, want VALID", got)
	}
	r := Result{Reason: "Price too high: $10001"}
	if got := r.Status(); got != "REJECTED: Price too high: $10001" {
		t.Errorf("Status() = %q", got)
	}
}

func TestValidatorWithRules(t *testing.T) {
	rules := DefaultRules()
	rules.MaxPrice = 100
	v := NewValidatorWithRules(rules)

	if got := v.Validate(150, "Rare", 0); got.Valid {
		t.Errorf("expected 150 to be rejected with MaxPrice 100")
	}
}

func TestChangePercent(t *testing.T) {
	tests := []struct {
		old, new float64
		want     float64
	}{
		{10, 15, 50},
		{10, 5, -50},
		{3, 4, 33.33},
		{0, 10, 0},
		{-1, 10, 0},
	}

	for _, tt := range tests {
		if got := ChangePercent(tt.old, tt.new); got != tt.want {
			t.Errorf("ChangePercent(%v, %v) = %v, want %v", tt.old, tt.new, got, tt.want)
		}
	}
}

func TestIsStarRarity(t *testing.T) {
	if !IsStarRarity("Rare Holo Star ★") {
		t.Error("expected ★ rarity to be detected")
	}
	if IsStarRarity("Rare Holo Star") {
		t.Error("plain Star text is not a ★ rarity")
	}
}
