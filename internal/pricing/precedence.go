package pricing

import (
	"sort"
	"strings"
)

// EURToUSD is the fixed conversion applied to Cardmarket prices.
const EURToUSD = 1.10

// VariantOrder is the canonical preference between printings when a single
// "current value" has to be picked for a card.
var VariantOrder = []string{
	"holofoil",
	"normal",
	"reverseHolofoil",
	"1stEditionHolofoil",
	"1stEditionNormal",
	"unlimitedHolofoil",
	"unlimitedNormal",
	"unlimited",
}

// CanonicalVariant maps the spellings used by TCGCSV sub types
// ("Reverse Holofoil"), TCGdex keys ("reverse-holofoil") and pokemontcg.io
// keys ("reverseHolofoil") onto one key from VariantOrder. Unknown names are
// returned in lower camel form.
func CanonicalVariant(name string) string {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name))
	switch key {
	case "holofoil", "holo", "foil":
		return "holofoil"
	case "normal", "":
		return "normal"
	case "reverseholofoil", "reverseholo", "reverse":
		return "reverseHolofoil"
	case "1steditionholofoil", "1steditionholo":
		return "1stEditionHolofoil"
	case "1steditionnormal", "1stedition":
		return "1stEditionNormal"
	case "unlimitedholofoil", "unlimitedholo":
		return "unlimitedHolofoil"
	case "unlimitednormal":
		return "unlimitedNormal"
	case "unlimited":
		return "unlimited"
	default:
		return key
	}
}

// Best returns the price picked from one variant: market, unless it sits
// below half the low (a stale market), then mid, then the low/high midpoint,
// then low with a 20% markup. Zero means no usable price.
func (v VariantPrice) Best() float64 {
	market, low, mid, high := positive(v.Market), positive(v.Low), positive(v.Mid), positive(v.High)

	if market > 0 {
		if low > 0 && mid > 0 && market < 0.5*low {
			return mid
		}
		return market
	}
	if mid > 0 {
		return mid
	}
	if low > 0 && high > 0 {
		return (low + high) / 2
	}
	if low > 0 {
		return low * 1.2
	}
	return 0
}

// USD returns the Cardmarket fallback in dollars: the most recent average
// available (1 day, 7 day, 30 day, overall) or the trend price.
func (c CardmarketPrices) USD() float64 {
	for _, eur := range []Number{c.Avg1, c.Avg7, c.Avg30, c.AverageSellPrice, c.TrendPrice} {
		if eur := positive(eur); eur > 0 {
			return eur * EURToUSD
		}
	}
	return 0
}

// BestPrice applies the canonical precedence to a set of variant prices and
// an optional Cardmarket block. It returns the price and the variant it came
// from ("cardmarket" for the EUR fallback, "" when nothing is usable).
func BestPrice(prices map[string]VariantPrice, cardmarket *CardmarketPrices) (float64, string) {
	byVariant := make(map[string]VariantPrice, len(prices))
	for name, p := range prices {
		byVariant[CanonicalVariant(name)] = p
	}

	for _, variant := range orderedVariants(byVariant) {
		if price := byVariant[variant].Best(); price > 0 {
			return price, variant
		}
	}

	if cardmarket != nil {
		if price := cardmarket.USD(); price > 0 {
			return price, "cardmarket"
		}
	}
	return 0, ""
}

// orderedVariants lists the keys present in prices: known variants in
// VariantOrder first, then unknown ones alphabetically.
func orderedVariants(prices map[string]VariantPrice) []string {
	known := make(map[string]bool, len(VariantOrder))
	ordered := make([]string, 0, len(prices))
	for _, v := range VariantOrder {
		known[v] = true
		if _, ok := prices[v]; ok {
			ordered = append(ordered, v)
		}
	}

	var rest []string
	for v := range prices {
		if !known[v] {
			rest = append(rest, v)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}
