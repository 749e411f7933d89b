package pricing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rules are the sanity bounds a new price has to pass before it replaces a
// card's current value.
type Rules struct {
	MaxPrice         float64
	MinPrice         float64
	MaxChangePercent float64
	MaxStarPrice     float64
	RoundNumbers     []float64
	RetailFloor      float64
}

// DefaultRules returns the fixed production bounds.
func DefaultRules() Rules {
	return Rules{
		MaxPrice:         10000,
		MinPrice:         0.01,
		MaxChangePercent: 1000,
		MaxStarPrice:     5000,
		RoundNumbers:     []float64{1000, 2000, 3000, 4000, 5000, 10000, 20000, 50000},
		RetailFloor:      100,
	}
}

// Result is the outcome of validating one price.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Status renders the result the way the price-update report stores it.
func (r Result) Status() string {
	if r.Valid {
		return "VALID"
	}
	return "REJECTED: " + r.Reason
}

// Validator checks prices against a fixed set of Rules.
type Validator struct {
	rules Rules
}

// NewValidator creates a validator with the default rules.
func NewValidator() *Validator {
	return &Validator{rules: DefaultRules()}
}

// NewValidatorWithRules creates a validator with custom rules.
func NewValidatorWithRules(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// IsStarRarity reports whether the rarity marks a ★ card.
func IsStarRarity(rarity string) bool {
	return strings.Contains(rarity, "★")
}

// Validate checks price for a card of the given rarity whose stored value is
// oldPrice (0 when unknown). Star (★) cards have their own lower ceiling and
// are exempt from the round-number rule.
func (v *Validator) Validate(price float64, rarity string, oldPrice float64) Result {
	if math.IsNaN(price) || price <= 0 {
		return Result{Reason: "Invalid price"}
	}

	star := IsStarRarity(rarity)
	ceiling := v.rules.MaxPrice
	if star {
		ceiling = v.rules.MaxStarPrice
	}
	if price > ceiling {
		return Result{Reason: fmt.Sprintf("Price too high: $%s", formatPrice(price))}
	}

	if price < v.rules.MinPrice {
		return Result{Reason: fmt.Sprintf("Price too low: $%s", formatPrice(price))}
	}

	if !star && v.isRoundNumber(price) {
		return Result{Reason: fmt.Sprintf("Suspicious round number: $%s", formatPrice(price))}
	}

	if price > v.rules.RetailFloor && strings.HasSuffix(formatPrice(price), ".99") {
		return Result{Reason: fmt.Sprintf("Retail-style pricing: $%s", formatPrice(price))}
	}

	if oldPrice > 0 {
		change := math.Abs((price-oldPrice)/oldPrice) * 100
		if change > v.rules.MaxChangePercent {
			return Result{Reason: fmt.Sprintf("Extreme price change: %.1f%%", change)}
		}
	}

	return Result{Valid: true}
}

func (v *Validator) isRoundNumber(price float64) bool {
	for _, n := range v.rules.RoundNumbers {
		if price == n {
			return true
		}
	}
	return false
}

// ChangePercent returns the change from old to new in percent rounded to two
// decimals, or 0 when there is no old price.
func ChangePercent(oldPrice, newPrice float64) float64 {
	if oldPrice <= 0 {
		return 0
	}
	return math.Round((newPrice-oldPrice)/oldPrice*100*100) / 100
}

// formatPrice prints the shortest decimal form of a price (12.5, 199.99, 10001).
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
