package models

import (
	"testing"
	"time"
)

func TestNormalizeCondition(t *testing.T) {
	tests := []struct {
		input    string
		expected PriceCondition
	}{
		{"NM", ConditionNearMint},
		{"Near Mint", ConditionNearMint},
		{"near-mint", ConditionNearMint},
		{"LIGHTLY PLAYED", ConditionLightlyPlayed},
		{"lp", ConditionLightlyPlayed},
		{"Moderately Played", ConditionModeratelyPlayed},
		{"HP", ConditionHeavilyPlayed},
		{"Damaged", ConditionDamaged},
		{"market", ConditionMarket},
		{"Graded", ConditionGraded},
		{"  Sealed ", PriceCondition("Sealed")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeCondition(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeCondition(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestAllPriceConditions(t *testing.T) {
	conditions := AllPriceConditions()

	if len(conditions) != 5 {
		t.Errorf("AllPriceConditions() returned %d conditions, want 5", len(conditions))
	}

	for _, cond := range conditions {
		if cond == ConditionMarket || cond == ConditionGraded {
			t.Errorf("AllPriceConditions() should only list ungraded buckets, got %s", cond)
		}
	}
}

func TestGradeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"psa10", "PSA 10"},
		{"PSA9", "PSA 9"},
		{"psa-8", "PSA 8"},
		{"10", "PSA 10"},
		{"", ""},
		{"psa", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := GradeLabel(tt.input); got != tt.expected {
				t.Errorf("GradeLabel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Near Mint", "near-mint"},
		{"Reverse  Holofoil", "reverse-holofoil"},
		{"1st Edition", "1st-edition"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Slug(tt.input); got != tt.expected {
			t.Errorf("Slug(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestPricePointHistory(t *testing.T) {
	p := PricePoint{
		ProductID:  "123",
		Date:       "2025-10-15",
		Price:      12.5,
		Volume:     3,
		Condition:  ConditionGraded,
		Grade:      "PSA 10",
		Population: 42,
		Source:     "pokemonpricetracker-psa-10",
	}

	h := p.History()
	if h.ProductID != "123" || h.Date != "2025-10-15" || h.Condition != "Graded" || h.Grade != "PSA 10" {
		t.Errorf("History() key fields = %+v", h)
	}
	if h.Price != 12.5 || h.Volume != 3 || h.Population != 42 {
		t.Errorf("History() value fields = %+v", h)
	}

	other := p
	other.Price = 99
	if p.Key() != other.Key() {
		t.Error("Key() should not depend on price")
	}
	other.Grade = "PSA 9"
	if p.Key() == other.Key() {
		t.Error("Key() should depend on grade")
	}
}

func TestToday(t *testing.T) {
	ts := time.Date(2025, 10, 15, 23, 59, 0, 0, time.UTC)
	if got := Today(ts); got != "2025-10-15" {
		t.Errorf("Today() = %q, want 2025-10-15", got)
	}
}
