package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const trackerPayload = `{
	"tcgPlayerId": 233294,
	"name": "Charizard ex",
	"prices": {
		"market": 12.5,
		"listings": "41",
		"conditions": {
			"Near Mint": {"price": 12.0, "listings": 20},
			"Lightly Played": {"price": 10.25, "listings": 5},
			"Damaged": {"price": 0},
			"Broken": "N/A"
		},
		"variants": {
			"Reverse Holofoil": {
				"Near Mint": {"price": 14.0, "listings": 3}
			}
		}
	},
	"ebay": {
		"salesByGrade": {
			"psa10": {"marketPrice7Day": 220.0, "count": 7},
			"psa9": {"marketPrice7Day": null, "count": 2}
		}
	}
}`

func TestNormalizeTracker(t *testing.T) {
	var card TcgTrackerV2
	if err := json.Unmarshal([]byte(trackerPayload), &card); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	points := Normalize(&card, Options{Date: "2025-01-15"})

	want := []models.PricePoint{
		{ProductID: "233294", Date: "2025-01-15", Price: 12.5, Volume: 41, Condition: models.ConditionMarket, Source: "pokemonpricetracker-market"},
		{ProductID: "233294", Date: "2025-01-15", Price: 10.25, Volume: 5, Condition: models.ConditionLightlyPlayed, Source: "pokemonpricetracker-lightly-played"},
		{ProductID: "233294", Date: "2025-01-15", Price: 12.0, Volume: 20, Condition: models.ConditionNearMint, Source: "pokemonpricetracker-near-mint"},
		{ProductID: "233294", Date: "2025-01-15", Price: 14.0, Volume: 3, Condition: models.ConditionNearMint, Variant: "reverseHolofoil", Source: "pokemonpricetracker-reverse-holofoil-near-mint"},
		{ProductID: "233294", Date: "2025-01-15", Price: 220.0, Volume: 7, Condition: models.ConditionGraded, Grade: "PSA 10", Source: "pokemonpricetracker-psa10-graded"},
	}

	if len(points) != len(want) {
		t.Fatalf("Normalize returned %d points, want %d: %+v", len(points), len(want), points)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("point[%d] = %+v, want %+v", i, points[i], want[i])
		}
	}
}

func TestNormalizeTrackerWithoutPrices(t *testing.T) {
	card := TcgTrackerV2{TCGPlayerID: "1"}
	if got := Normalize(card, Options{}); len(got) != 0 {
		t.Errorf("expected no points for card without prices, got %+v", got)
	}
}

func TestNormalizeProductIDOverride(t *testing.T) {
	card := TcgTrackerV2{TCGPlayerID: "1", Prices: &PPTPrices{Market: 3}}
	points := Normalize(card, Options{ProductID: "base1-4", Date: "2025-01-01"})
	if len(points) != 1 || points[0].ProductID != "base1-4" {
		t.Errorf("expected override product id, got %+v", points)
	}
}

func TestNormalizePSA(t *testing.T) {
	g := PsaGrading{
		ProductID: "base1-4",
		Raw:       &PriceRange{Low: 300, Mid: 350},
		Grades: map[string]GradePrice{
			"10": {Mid: 9000, Population: 120},
			"9":  {Low: 1200},
			"8":  {},
		},
	}

	points := Normalize(g, Options{Date: "2025-02-01"})
	if len(points) != 3 {
		t.Fatalf("Normalize returned %d points, want 3: %+v", len(points), points)
	}

	raw := points[0]
	if raw.Price != 350 || raw.Condition != models.ConditionNearMint || raw.Source != "pokemonpricetracker-raw" {
		t.Errorf("raw point = %+v", raw)
	}

	psa10 := points[1]
	if psa10.Grade != "PSA 10" || psa10.Price != 9000 || psa10.Population != 120 || psa10.Source != "pokemonpricetracker-psa-10" {
		t.Errorf("psa10 point = %+v", psa10)
	}

	psa9 := points[2]
	if psa9.Grade != "PSA 9" || psa9.Price != 1200 || psa9.Condition != models.ConditionGraded {
		t.Errorf("psa9 point = %+v", psa9)
	}
}

func TestNormalizeTcgCsv(t *testing.T) {
	doc := TcgCsv{
		Success: true,
		Results: []TcgCsvPrice{
			{ProductID: 100, MarketPrice: 2.5, SubTypeName: "Normal"},
			{ProductID: 100, LowPrice: 4, HighPrice: 6, SubTypeName: "Reverse Holofoil"},
			{ProductID: 101, SubTypeName: "Holofoil"},
			{ProductID: 0, MarketPrice: 9},
		},
	}

	points := Normalize(doc, Options{ProductID: "ignored", Date: "2025-03-01"})
	if len(points) != 2 {
		t.Fatalf("Normalize returned %d points, want 2: %+v", len(points), points)
	}
	for _, p := range points {
		if p.ProductID != "100" || p.Source != SourceTCGCSV || p.Condition != models.ConditionNearMint {
			t.Errorf("unexpected point %+v", p)
		}
	}
	if points[0].Variant != "normal" || points[1].Variant != "reverseHolofoil" || points[1].Price != 5 {
		t.Errorf("unexpected variants %+v", points)
	}
}

func TestNormalizeTcgIo(t *testing.T) {
	card := PokemonTcgIo{
		ID: "sv3-125",
		TCGPlayer: &TCGPlayerBlock{Prices: map[string]VariantPrice{
			"normal":   {Market: 1.5},
			"holofoil": {Market: 3},
		}},
		Cardmarket: &CardmarketBlock{Prices: CardmarketPrices{Avg1: 100}},
	}

	points := Normalize(card, Options{Date: "2025-04-01"})
	if len(points) != 2 {
		t.Fatalf("Normalize returned %d points, want 2: %+v", len(points), points)
	}
	if points[0].Variant != "holofoil" || points[1].Variant != "normal" {
		t.Errorf("variants not in canonical order: %+v", points)
	}
	if points[0].Source != "tcgplayer" {
		t.Errorf("source = %q, want tcgplayer", points[0].Source)
	}
}

func TestNormalizeTcgIoCardmarketFallback(t *testing.T) {
	card := PokemonTcgIo{
		ID:         "swsh1-1",
		Source:     "tcgdex",
		Cardmarket: &CardmarketBlock{Prices: CardmarketPrices{Avg30: 10}},
	}

	points := Normalize(card, Options{Date: "2025-04-01"})
	if len(points) != 1 {
		t.Fatalf("Normalize returned %d points, want 1", len(points))
	}
	p := points[0]
	if p.Variant != "cardmarket" || p.Source != "tcgdex" || math.Abs(p.Price-11) > 1e-9 {
		t.Errorf("fallback point = %+v", p)
	}
}

func TestCurrentValue(t *testing.T) {
	tests := []struct {
		name string
		resp ProviderPriceResponse
		want float64
	}{
		{"tracker market", TcgTrackerV2{Prices: &PPTPrices{Market: 5}}, 5},
		{"tracker near mint", &TcgTrackerV2{Prices: &PPTPrices{Conditions: map[string]PPTConditionPrice{"NM": {Price: 4}}}}, 4},
		{"psa raw", PsaGrading{Raw: &PriceRange{Low: 2}}, 2},
		{"tcgio", PokemonTcgIo{TCGPlayer: &TCGPlayerBlock{Prices: map[string]VariantPrice{"normal": {Mid: 7}}}}, 7},
		{"tcgcsv", TcgCsv{}, 0},
		{"nil pointer", (*PsaGrading)(nil), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentValue(tt.resp); got != tt.want {
				t.Errorf("CurrentValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummarizeTcgCsv(t *testing.T) {
	doc := TcgCsv{Results: []TcgCsvPrice{
		{ProductID: 7, MarketPrice: 1, LowPrice: 0.5, SubTypeName: "Normal"},
		{ProductID: 7, MarketPrice: 6, LowPrice: 4, MidPrice: 5, HighPrice: 9, SubTypeName: "Holofoil"},
		{ProductID: 8},
	}}

	got := SummarizeTcgCsv(doc)
	if len(got) != 1 {
		t.Fatalf("SummarizeTcgCsv returned %d products, want 1", len(got))
	}
	want := ProductPrice{Market: 6, Low: 4, Mid: 5, High: 9, Variant: "holofoil"}
	if got[7] != want {
		t.Errorf("SummarizeTcgCsv()[7] = %+v, want %+v", got[7], want)
	}
}

func TestNumberUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`12.5`, 12.5},
		{`"7.25"`, 7.25},
		{`null`, 0},
		{`""`, 0},
		{`"N/A"`, 0},
		{`{"nested": 1}`, 0},
		{`"Infinity"`, 0},
		{`"-inf"`, 0},
		{`"NaN"`, 0},
		{`1e400`, 0},
	}

	for _, tt := range tests {
		var n Number
		if err := json.Unmarshal([]byte(tt.in), &n); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.in, err)
			continue
		}
		if n.Float() != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, n.Float(), tt.want)
		}
	}
}

func TestIDUnmarshal(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a": 233294, "b": "base1-4"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != "233294" || v.B != "base1-4" {
		t.Errorf("got %q %q", v.A, v.B)
	}
}

func TestNormalizeDropsNonFinitePrices(t *testing.T) {
	payload := `{
		"tcgPlayerId": "42",
		"prices": {
			"market": "Infinity",
			"conditions": {
				"Near Mint": {"price": "NaN"},
				"Lightly Played": {"price": "inf"},
				"Moderately Played": {"price": 3.5}
			}
		}
	}`
	var card TcgTrackerV2
	if err := json.Unmarshal([]byte(payload), &card); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	points := Normalize(card, Options{Date: "2025-01-15"})
	if len(points) != 1 || points[0].Price != 3.5 || points[0].Condition != models.ConditionModeratelyPlayed {
		t.Errorf("Normalize() = %+v, want only the Moderately Played point", points)
	}
	if got := CurrentValue(card); got != 0 {
		t.Errorf("CurrentValue() = %v, want 0", got)
	}

	// Values built in code bypass Number decoding.
	built := TcgTrackerV2{TCGPlayerID: "42", Prices: &PPTPrices{
		Market: Number(math.Inf(1)),
		Conditions: map[string]PPTConditionPrice{
			"Near Mint": {Price: Number(math.NaN())},
		},
	}}
	if points := Normalize(built, Options{Date: "2025-01-15"}); len(points) != 0 {
		t.Errorf("Normalize() = %+v, want no points", points)
	}
	if got := CurrentValue(built); got != 0 {
		t.Errorf("CurrentValue() = %v, want 0", got)
	}

	doc := TcgCsv{Results: []TcgCsvPrice{{ProductID: 9, MarketPrice: Number(math.Inf(1)), LowPrice: 2}}}
	points = Normalize(doc, Options{Date: "2025-01-15"})
	if len(points) != 1 || points[0].Price != 2.4 {
		t.Errorf("Normalize(tcgcsv) = %+v, want the low price fallback", points)
	}
}

func TestCurrentValueConditionOrder(t *testing.T) {
	card := TcgTrackerV2{Prices: &PPTPrices{Conditions: map[string]PPTConditionPrice{
		"nm":        {Price: 11},
		"Near Mint": {Price: 12},
	}}}
	for i := 0; i < 20; i++ {
		if got := CurrentValue(card); got != 12 {
			t.Fatalf("CurrentValue() = %v, want 12", got)
		}
	}
}

func TestTcgCsvStringProductID(t *testing.T) {
	var doc TcgCsv
	payload := `{"success": true, "results": [
		{"productId": "42348", "marketPrice": 350.12, "subTypeName": "Holofoil"},
		{"productId": "abc", "marketPrice": 1}
	]}`
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	points := Normalize(doc, Options{Date: "2025-01-15"})
	if len(points) != 1 || points[0].ProductID != "42348" {
		t.Errorf("Normalize() = %+v, want one point for 42348", points)
	}
	if got := SummarizeTcgCsv(doc); len(got) != 1 || got[42348].Market != 350.12 {
		t.Errorf("SummarizeTcgCsv() = %+v", got)
	}
}
