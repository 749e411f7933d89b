package pricing

import (
	"bytes"
	"encoding/json"
	"math"
)

// ProviderPriceResponse is a price payload from one of the supported
// providers. The concrete types below are the only implementations;
// Normalize switches on them.
type ProviderPriceResponse interface {
	Provider() string
}

// TcgTrackerV2 is a PokemonPriceTracker v2 card with market, per-condition,
// per-variant and eBay graded prices.
type TcgTrackerV2 struct {
	ID          string     `json:"id"`
	TCGPlayerID ID         `json:"tcgPlayerId"`
	Name        string     `json:"name"`
	SetName     string     `json:"setName"`
	CardNumber  string     `json:"cardNumber"`
	Rarity      string     `json:"rarity"`
	Prices      *PPTPrices `json:"prices"`
	Ebay        *PPTEbay   `json:"ebay"`
}

func (TcgTrackerV2) Provider() string { return "pokemonpricetracker" }

type PPTPrices struct {
	Market     Number                                  `json:"market"`
	Listings   Number                                  `json:"listings"`
	Conditions map[string]PPTConditionPrice            `json:"conditions"`
	Variants   map[string]map[string]PPTConditionPrice `json:"variants"`
}

type PPTConditionPrice struct {
	Price    Number `json:"price"`
	Listings Number `json:"listings"`
}

// UnmarshalJSON ignores non-object values so one malformed condition does
// not discard the rest of the card.
func (p *PPTConditionPrice) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		*p = PPTConditionPrice{}
		return nil
	}
	type plain PPTConditionPrice
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		*p = PPTConditionPrice{}
		return nil
	}
	*p = PPTConditionPrice(v)
	return nil
}

type PPTEbay struct {
	SalesByGrade map[string]PPTGradeSales `json:"salesByGrade"`
}

type PPTGradeSales struct {
	MarketPrice7Day Number `json:"marketPrice7Day"`
	Count           Number `json:"count"`
}

// PsaGrading is the legacy PokemonPriceTracker raw + PSA price pair for one
// product. ProductID is set by the caller since neither endpoint echoes it.
type PsaGrading struct {
	ProductID string
	Raw       *PriceRange
	Grades    map[string]GradePrice
}

func (PsaGrading) Provider() string { return "pokemonpricetracker-psa" }

type PriceRange struct {
	Low  Number `json:"low"`
	Mid  Number `json:"mid"`
	High Number `json:"high"`
}

type GradePrice struct {
	Low        Number `json:"low"`
	Mid        Number `json:"mid"`
	High       Number `json:"high"`
	Population Number `json:"population"`
}

// TcgCsv is a TCGCSV group prices document: one row per product and sub type.
type TcgCsv struct {
	Success bool          `json:"success"`
	Errors  []string      `json:"errors"`
	Results []TcgCsvPrice `json:"results"`
}

func (TcgCsv) Provider() string { return "tcgcsv" }

type TcgCsvPrice struct {
	ProductID      Number `json:"productId"`
	LowPrice       Number `json:"lowPrice"`
	MidPrice       Number `json:"midPrice"`
	HighPrice      Number `json:"highPrice"`
	MarketPrice    Number `json:"marketPrice"`
	DirectLowPrice Number `json:"directLowPrice"`
	SubTypeName    string `json:"subTypeName"`
}

// Product returns the row's product id, or 0 when it is missing or not a
// positive whole number.
func (p TcgCsvPrice) Product() int {
	id := p.ProductID.Float()
	if id <= 0 || id != math.Trunc(id) || id > math.MaxInt32 {
		return 0
	}
	return int(id)
}

// VariantPrice converts the row into the shared variant price shape.
func (p TcgCsvPrice) VariantPrice() VariantPrice {
	return VariantPrice{
		Low:       p.LowPrice,
		Mid:       p.MidPrice,
		High:      p.HighPrice,
		Market:    p.MarketPrice,
		DirectLow: p.DirectLowPrice,
	}
}

// PokemonTcgIo is a card carrying TCGplayer variant prices and optionally
// Cardmarket prices in EUR. pokemontcg.io returns this shape directly; the
// TCGdex client converts its own payload into it and sets Source.
type PokemonTcgIo struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Rarity     string           `json:"rarity"`
	TCGPlayer  *TCGPlayerBlock  `json:"tcgplayer"`
	Cardmarket *CardmarketBlock `json:"cardmarket"`
	Source     string           `json:"-"`
}

func (p PokemonTcgIo) Provider() string {
	if p.Source != "" {
		return p.Source
	}
	return "tcgplayer"
}

type TCGPlayerBlock struct {
	URL       string                  `json:"url"`
	UpdatedAt string                  `json:"updatedAt"`
	Prices    map[string]VariantPrice `json:"prices"`
}

type VariantPrice struct {
	Low       Number `json:"low"`
	Mid       Number `json:"mid"`
	High      Number `json:"high"`
	Market    Number `json:"market"`
	DirectLow Number `json:"directLow"`
}

type CardmarketBlock struct {
	URL       string           `json:"url"`
	UpdatedAt string           `json:"updatedAt"`
	Prices    CardmarketPrices `json:"prices"`
}

type CardmarketPrices struct {
	AverageSellPrice Number `json:"averageSellPrice"`
	LowPrice         Number `json:"lowPrice"`
	TrendPrice       Number `json:"trendPrice"`
	Avg1             Number `json:"avg1"`
	Avg7             Number `json:"avg7"`
	Avg30            Number `json:"avg30"`
}
