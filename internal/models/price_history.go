package models

import (
	"fmt"
	"strings"
	"time"
)

// PriceCondition is the condition bucket a price was observed for.
type PriceCondition string

const (
	ConditionMarket           PriceCondition = "Market"
	ConditionNearMint         PriceCondition = "Near Mint"
	ConditionLightlyPlayed    PriceCondition = "Lightly Played"
	ConditionModeratelyPlayed PriceCondition = "Moderately Played"
	ConditionHeavilyPlayed    PriceCondition = "Heavily Played"
	ConditionDamaged          PriceCondition = "Damaged"
	ConditionGraded           PriceCondition = "Graded"
)

// DateLayout is the layout of price_history.date.
const DateLayout = "2006-01-02"

// PriceHistory is one observation in the price time series. At most one row
// exists per (product_id, date, condition, grade, variant); writing the same
// key again replaces the price.
type PriceHistory struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ProductID  string    `json:"product_id" gorm:"not null;uniqueIndex:idx_price_history_key;index:idx_price_history_product_date"`
	Date       string    `json:"date" gorm:"not null;uniqueIndex:idx_price_history_key;index:idx_price_history_product_date"`
	Condition  string    `json:"condition" gorm:"not null;default:'';uniqueIndex:idx_price_history_key"`
	Grade      string    `json:"grade" gorm:"not null;default:'';uniqueIndex:idx_price_history_key"`
	Variant    string    `json:"variant" gorm:"not null;default:'';uniqueIndex:idx_price_history_key"`
	Price      float64   `json:"price"`
	Volume     int       `json:"volume"`
	Population int       `json:"population"`
	Source     string    `json:"source" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (PriceHistory) TableName() string {
	return "price_history"
}

// PricePoint is the provider-independent tuple every normaliser emits.
type PricePoint struct {
	ProductID  string         `json:"product_id"`
	Date       string         `json:"date"`
	Price      float64        `json:"price"`
	Volume     int            `json:"volume"`
	Condition  PriceCondition `json:"condition"`
	Grade      string         `json:"grade,omitempty"`
	Variant    string         `json:"variant,omitempty"`
	Population int            `json:"population,omitempty"`
	Source     string         `json:"source"`
}

// Key identifies the history row a point lands in.
func (p PricePoint) Key() string {
	return strings.Join([]string{p.ProductID, p.Date, string(p.Condition), p.Grade, p.Variant}, "|")
}

// History converts the point into its storage row.
func (p PricePoint) History() PriceHistory {
	return PriceHistory{
		ProductID:  p.ProductID,
		Date:       p.Date,
		Condition:  string(p.Condition),
		Grade:      p.Grade,
		Variant:    p.Variant,
		Price:      p.Price,
		Volume:     p.Volume,
		Population: p.Population,
		Source:     p.Source,
	}
}

// Today returns t's calendar date in price_history.date format.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeCondition maps provider spellings ("NM", "near-mint", "LIGHTLY PLAYED")
// to a PriceCondition. Unknown values are returned trimmed and unchanged so that
// new provider buckets still get stored.
func NormalizeCondition(condition string) PriceCondition {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(condition), "-", " ")) {
	case "nm", "near mint", "mint":
		return ConditionNearMint
	case "lp", "lightly played", "light play", "excellent":
		return ConditionLightlyPlayed
	case "mp", "moderately played", "good":
		return ConditionModeratelyPlayed
	case "hp", "heavily played", "played":
		return ConditionHeavilyPlayed
	case "dmg", "damaged", "poor":
		return ConditionDamaged
	case "market":
		return ConditionMarket
	case "graded":
		return ConditionGraded
	default:
		return PriceCondition(strings.TrimSpace(condition))
	}
}

// AllPriceConditions returns the ungraded condition buckets.
func AllPriceConditions() []PriceCondition {
	return []PriceCondition{
		ConditionNearMint,
		ConditionLightlyPlayed,
		ConditionModeratelyPlayed,
		ConditionHeavilyPlayed,
		ConditionDamaged,
	}
}

// GradeLabel turns a grading key such as "psa10", "PSA-9" or "10" into the
// display label stored in price_history.grade ("PSA 10").
func GradeLabel(grade string) string {
	g := strings.ToLower(strings.TrimSpace(grade))
	g = strings.TrimPrefix(g, "psa")
	g = strings.TrimLeft(g, " -_")
	if g == "" {
		return ""
	}
	return fmt.Sprintf("PSA %s", g)
}

// Slug lowercases s and joins whitespace-separated words with dashes, the
// form used in provider source names ("Near Mint" -> "near-mint").
func Slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
