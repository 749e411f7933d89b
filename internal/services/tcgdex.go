package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const (
	tcgdexBaseURL      = "https://api.tcgdex.net/v2/en"
	tcgdexProviderName = "tcgdex"
)

type TCGdexService struct {
	http    *providerClient
	baseURL string
}

func NewTCGdexService(baseURL string, opts ClientOptions) *TCGdexService {
	if baseURL == "" {
		baseURL = tcgdexBaseURL
	}
	return &TCGdexService{
		http:    newProviderClient(tcgdexProviderName, opts),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// TCGdexCard is the subset of a TCGdex card the pipelines read.
type TCGdexCard struct {
	ID          string         `json:"id"`
	LocalID     string         `json:"localId"`
	Name        string         `json:"name"`
	Rarity      string         `json:"rarity"`
	Illustrator string         `json:"illustrator"`
	Set         tcgdexSet      `json:"set"`
	Pricing     *tcgdexPricing `json:"pricing"`
}

type tcgdexSet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type tcgdexPricing struct {
	TCGPlayer  map[string]json.RawMessage `json:"tcgplayer"`
	Cardmarket *tcgdexCardmarket          `json:"cardmarket"`
}

type tcgdexPriceVariant struct {
	LowPrice       pricing.Number `json:"lowPrice"`
	MidPrice       pricing.Number `json:"midPrice"`
	HighPrice      pricing.Number `json:"highPrice"`
	MarketPrice    pricing.Number `json:"marketPrice"`
	DirectLowPrice pricing.Number `json:"directLowPrice"`
}

type tcgdexCardmarket struct {
	Updated string         `json:"updated"`
	Unit    string         `json:"unit"`
	Avg     pricing.Number `json:"avg"`
	Low     pricing.Number `json:"low"`
	Trend   pricing.Number `json:"trend"`
	Avg1    pricing.Number `json:"avg1"`
	Avg7    pricing.Number `json:"avg7"`
	Avg30   pricing.Number `json:"avg30"`
}

// GetCard fetches a single card with pricing data from TCGdex. It returns
// nil for unknown ids.
func (s *TCGdexService) GetCard(ctx context.Context, id string) (*TCGdexCard, error) {
	reqURL := fmt.Sprintf("%s/cards/%s", s.baseURL, url.PathEscape(id))

	var card TCGdexCard
	if err := s.http.getJSON(ctx, reqURL, &card); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card from tcgdex: %w", err)
	}
	return &card, nil
}

// PriceResponse converts the TCGdex pricing block into the shared
// TCGplayer/Cardmarket shape. Non-object tcgplayer entries ("updated",
// "unit") are skipped.
func (c TCGdexCard) PriceResponse() pricing.PokemonTcgIo {
	resp := pricing.PokemonTcgIo{
		ID:     c.ID,
		Name:   c.Name,
		Rarity: c.Rarity,
		Source: tcgdexProviderName,
	}
	if c.Pricing == nil {
		return resp
	}

	if len(c.Pricing.TCGPlayer) > 0 {
		prices := make(map[string]pricing.VariantPrice)
		for key, raw := range c.Pricing.TCGPlayer {
			if len(raw) == 0 || raw[0] != '{' {
				continue
			}
			var v tcgdexPriceVariant
			if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			prices[pricing.CanonicalVariant(key)] = pricing.VariantPrice{
				Low:       v.LowPrice,
				Mid:       v.MidPrice,
				High:      v.HighPrice,
				Market:    v.MarketPrice,
				DirectLow: v.DirectLowPrice,
			}
		}
		if len(prices) > 0 {
			resp.TCGPlayer = &pricing.TCGPlayerBlock{Prices: prices}
		}
	}

	if cm := c.Pricing.Cardmarket; cm != nil {
		resp.Cardmarket = &pricing.CardmarketBlock{
			UpdatedAt: cm.Updated,
			Prices: pricing.CardmarketPrices{
				AverageSellPrice: cm.Avg,
				LowPrice:         cm.Low,
				TrendPrice:       cm.Trend,
				Avg1:             cm.Avg1,
				Avg7:             cm.Avg7,
				Avg30:            cm.Avg30,
			},
		}
	}
	return resp
}
