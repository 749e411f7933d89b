package pricing

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

// SourceTCGCSV is the source recorded for TCGCSV price rows.
const SourceTCGCSV = "TCGCSV"

// Options carries what a payload does not say about itself.
type Options struct {
	// ProductID overrides the id found in the payload. TcgCsv rows always
	// use their own productId.
	ProductID string
	// Date is the history date (YYYY-MM-DD); today when empty.
	Date string
}

// Normalize turns a provider payload into canonical price points. Zero,
// missing and non-finite prices are skipped; the result is ordered
// deterministically.
func Normalize(resp ProviderPriceResponse, opts Options) []models.PricePoint {
	if opts.Date == "" {
		opts.Date = models.Today(time.Now())
	}

	points := normalize(resp, opts)
	kept := points[:0]
	for _, p := range points {
		if p.Price > 0 && IsFinite(p.Price) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func normalize(resp ProviderPriceResponse, opts Options) []models.PricePoint {
	switch r := resp.(type) {
	case TcgTrackerV2:
		return normalizeTracker(r, opts)
	case *TcgTrackerV2:
		if r != nil {
			return normalizeTracker(*r, opts)
		}
	case PsaGrading:
		return normalizePSA(r, opts)
	case *PsaGrading:
		if r != nil {
			return normalizePSA(*r, opts)
		}
	case TcgCsv:
		return normalizeTcgCsv(r, opts)
	case *TcgCsv:
		if r != nil {
			return normalizeTcgCsv(*r, opts)
		}
	case PokemonTcgIo:
		return normalizeTcgIo(r, opts)
	case *PokemonTcgIo:
		if r != nil {
			return normalizeTcgIo(*r, opts)
		}
	}
	return nil
}

func normalizeTracker(c TcgTrackerV2, opts Options) []models.PricePoint {
	if c.Prices == nil {
		return nil
	}
	id := opts.ProductID
	if id == "" {
		id = c.TCGPlayerID.String()
	}

	point := func(price float64, volume Number, cond models.PriceCondition, source string) models.PricePoint {
		return models.PricePoint{
			ProductID: id,
			Date:      opts.Date,
			Price:     price,
			Volume:    toInt(volume),
			Condition: cond,
			Source:    source,
		}
	}

	var points []models.PricePoint

	if market := positive(c.Prices.Market); market > 0 {
		points = append(points, point(market, c.Prices.Listings, models.ConditionMarket, "pokemonpricetracker-market"))
	}

	for _, cond := range sortedKeys(c.Prices.Conditions) {
		cp := c.Prices.Conditions[cond]
		if positive(cp.Price) <= 0 {
			continue
		}
		points = append(points, point(cp.Price.Float(), cp.Listings, models.NormalizeCondition(cond),
			"pokemonpricetracker-"+models.Slug(cond)))
	}

	for _, variant := range sortedKeys(c.Prices.Variants) {
		conditions := c.Prices.Variants[variant]
		for _, cond := range sortedKeys(conditions) {
			cp := conditions[cond]
			if positive(cp.Price) <= 0 {
				continue
			}
			p := point(cp.Price.Float(), cp.Listings, models.NormalizeCondition(cond),
				"pokemonpricetracker-"+models.Slug(variant)+"-"+models.Slug(cond))
			p.Variant = CanonicalVariant(variant)
			points = append(points, p)
		}
	}

	if c.Ebay != nil {
		for _, grade := range sortedKeys(c.Ebay.SalesByGrade) {
			sales := c.Ebay.SalesByGrade[grade]
			if positive(sales.MarketPrice7Day) <= 0 {
				continue
			}
			p := point(sales.MarketPrice7Day.Float(), sales.Count, models.ConditionGraded,
				"pokemonpricetracker-"+strings.ToLower(grade)+"-graded")
			p.Grade = models.GradeLabel(grade)
			points = append(points, p)
		}
	}

	return points
}

func normalizePSA(g PsaGrading, opts Options) []models.PricePoint {
	id := opts.ProductID
	if id == "" {
		id = g.ProductID
	}

	var points []models.PricePoint

	if g.Raw != nil {
		if price := firstPositive(g.Raw.Mid, g.Raw.Low); price > 0 {
			points = append(points, models.PricePoint{
				ProductID: id,
				Date:      opts.Date,
				Price:     price,
				Condition: models.ConditionNearMint,
				Source:    "pokemonpricetracker-raw",
			})
		}
	}

	for _, grade := range sortedKeys(g.Grades) {
		gp := g.Grades[grade]
		price := firstPositive(gp.Mid, gp.Low)
		if price <= 0 {
			continue
		}
		label := models.GradeLabel(grade)
		points = append(points, models.PricePoint{
			ProductID:  id,
			Date:       opts.Date,
			Price:      price,
			Condition:  models.ConditionGraded,
			Grade:      label,
			Population: toInt(gp.Population),
			Source:     "pokemonpricetracker-psa-" + strings.TrimPrefix(label, "PSA "),
		})
	}

	return points
}

func normalizeTcgCsv(doc TcgCsv, opts Options) []models.PricePoint {
	var points []models.PricePoint
	for _, row := range doc.Results {
		productID := row.Product()
		if productID == 0 {
			continue
		}
		price := row.VariantPrice().Best()
		if price <= 0 {
			continue
		}
		points = append(points, models.PricePoint{
			ProductID: strconv.Itoa(productID),
			Date:      opts.Date,
			Price:     price,
			Condition: models.ConditionNearMint,
			Variant:   CanonicalVariant(row.SubTypeName),
			Source:    SourceTCGCSV,
		})
	}
	return points
}

func normalizeTcgIo(c PokemonTcgIo, opts Options) []models.PricePoint {
	id := opts.ProductID
	if id == "" {
		id = c.ID
	}

	var points []models.PricePoint
	if c.TCGPlayer != nil {
		byVariant := make(map[string]VariantPrice, len(c.TCGPlayer.Prices))
		for name, p := range c.TCGPlayer.Prices {
			byVariant[CanonicalVariant(name)] = p
		}
		for _, variant := range orderedVariants(byVariant) {
			price := byVariant[variant].Best()
			if price <= 0 {
				continue
			}
			points = append(points, models.PricePoint{
				ProductID: id,
				Date:      opts.Date,
				Price:     price,
				Condition: models.ConditionNearMint,
				Variant:   variant,
				Source:    c.Provider(),
			})
		}
	}

	if len(points) == 0 && c.Cardmarket != nil {
		if price := c.Cardmarket.Prices.USD(); price > 0 {
			points = append(points, models.PricePoint{
				ProductID: id,
				Date:      opts.Date,
				Price:     price,
				Condition: models.ConditionNearMint,
				Variant:   "cardmarket",
				Source:    c.Provider(),
			})
		}
	}

	return points
}

// CurrentValue picks the single price used for a card's current value from a
// per-card payload. TcgCsv documents cover many products; use
// SummarizeTcgCsv for those.
func CurrentValue(resp ProviderPriceResponse) float64 {
	switch r := resp.(type) {
	case *TcgTrackerV2:
		if r == nil {
			return 0
		}
		return CurrentValue(*r)
	case TcgTrackerV2:
		if r.Prices == nil {
			return 0
		}
		if market := positive(r.Prices.Market); market > 0 {
			return market
		}
		for _, cond := range sortedKeys(r.Prices.Conditions) {
			if models.NormalizeCondition(cond) != models.ConditionNearMint {
				continue
			}
			if price := positive(r.Prices.Conditions[cond].Price); price > 0 {
				return price
			}
		}
	case *PsaGrading:
		if r == nil {
			return 0
		}
		return CurrentValue(*r)
	case PsaGrading:
		if r.Raw != nil {
			return firstPositive(r.Raw.Mid, r.Raw.Low)
		}
	case *PokemonTcgIo:
		if r == nil {
			return 0
		}
		return CurrentValue(*r)
	case PokemonTcgIo:
		var prices map[string]VariantPrice
		if r.TCGPlayer != nil {
			prices = r.TCGPlayer.Prices
		}
		var cm *CardmarketPrices
		if r.Cardmarket != nil {
			cm = &r.Cardmarket.Prices
		}
		price, _ := BestPrice(prices, cm)
		return price
	}
	return 0
}

// ProductPrice is the denormalised price block written to a products row.
type ProductPrice struct {
	Market  float64
	Low     float64
	Mid     float64
	High    float64
	Variant string
}

// SummarizeTcgCsv picks one price block per product from a TCGCSV prices
// document, preferring sub types in VariantOrder.
func SummarizeTcgCsv(doc TcgCsv) map[int]ProductPrice {
	rows := make(map[int]map[string]TcgCsvPrice)
	for _, row := range doc.Results {
		productID := row.Product()
		if productID == 0 {
			continue
		}
		if rows[productID] == nil {
			rows[productID] = make(map[string]TcgCsvPrice)
		}
		rows[productID][CanonicalVariant(row.SubTypeName)] = row
	}

	out := make(map[int]ProductPrice, len(rows))
	for productID, variants := range rows {
		prices := make(map[string]VariantPrice, len(variants))
		for v, row := range variants {
			prices[v] = row.VariantPrice()
		}
		market, variant := BestPrice(prices, nil)
		if market <= 0 {
			continue
		}
		row := variants[variant]
		out[productID] = ProductPrice{
			Market:  market,
			Low:     row.LowPrice.Float(),
			Mid:     row.MidPrice.Float(),
			High:    row.HighPrice.Float(),
			Variant: variant,
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstPositive(values ...Number) float64 {
	for _, v := range values {
		if p := positive(v); p > 0 {
			return p
		}
	}
	return 0
}

// positive returns n, or 0 when n is not a positive finite price.
func positive(n Number) float64 {
	f := n.Float()
	if f <= 0 || !IsFinite(f) {
		return 0
	}
	return f
}

func toInt(n Number) int {
	if n <= 0 {
		return 0
	}
	return int(math.Round(n.Float()))
}
