package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const (
	pokemonPriceTrackerBaseURL = "https://www.pokemonpricetracker.com/api/v2"
	pokemonPriceTrackerPSAURL  = "https://pokemonpricetracker.com/api"
	pptProviderName            = "pokemonpricetracker"
)

// PokemonPriceTrackerService fetches per-card prices from PokemonPriceTracker.
// The v2 API serves market, condition, variant and eBay graded prices; the
// legacy API serves raw and PSA graded prices with population counts.
type PokemonPriceTrackerService struct {
	http       *providerClient
	baseURL    string
	psaBaseURL string
}

func NewPokemonPriceTrackerService(apiKey, baseURL, psaBaseURL string, opts ClientOptions) *PokemonPriceTrackerService {
	if baseURL == "" {
		baseURL = pokemonPriceTrackerBaseURL
	}
	if psaBaseURL == "" {
		psaBaseURL = pokemonPriceTrackerPSAURL
	}
	client := newProviderClient(pptProviderName, opts)
	client.header.Set("Authorization", "Bearer "+apiKey)

	return &PokemonPriceTrackerService{
		http:       client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		psaBaseURL: strings.TrimRight(psaBaseURL, "/"),
	}
}

// pptCardResponse wraps the v2 card lookup. data is an object for an exact
// tcgPlayerId match and an array for searches.
type pptCardResponse struct {
	Data json.RawMessage `json:"data"`
}

// GetCard fetches the v2 card for a TCGplayer product id. It returns nil
// when the product is unknown or has no data.
func (s *PokemonPriceTrackerService) GetCard(ctx context.Context, productID int) (*pricing.TcgTrackerV2, error) {
	url := fmt.Sprintf("%s/cards?tcgPlayerId=%d&includeBoth=true", s.baseURL, productID)

	var resp pptCardResponse
	if err := s.http.getJSON(ctx, url, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card %d: %w", productID, err)
	}

	card, err := decodePPTCard(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode card %d: %w", productID, err)
	}
	return card, nil
}

func decodePPTCard(data json.RawMessage) (*pricing.TcgTrackerV2, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	if data[0] == '[' {
		var cards []pricing.TcgTrackerV2
		if err := json.Unmarshal(data, &cards); err != nil {
			return nil, err
		}
		if len(cards) == 0 {
			return nil, nil
		}
		return &cards[0], nil
	}

	var card pricing.TcgTrackerV2
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GetPSAGrading fetches the raw and PSA graded prices for a product. Either
// half may be missing; nil is returned when both are.
func (s *PokemonPriceTrackerService) GetPSAGrading(ctx context.Context, productID int) (*pricing.PsaGrading, error) {
	grading := pricing.PsaGrading{ProductID: ProductKey(productID)}

	var raw pricing.PriceRange
	err := s.http.getJSON(ctx, fmt.Sprintf("%s/prices/raw/%d", s.psaBaseURL, productID), &raw)
	switch {
	case err == nil:
		grading.Raw = &raw
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("failed to get raw price for %d: %w", productID, err)
	}

	var grades map[string]pricing.GradePrice
	err = s.http.getJSON(ctx, fmt.Sprintf("%s/prices/psa/%d", s.psaBaseURL, productID), &grades)
	switch {
	case err == nil:
		grading.Grades = grades
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("failed to get PSA prices for %d: %w", productID, err)
	}

	if grading.Raw == nil && len(grading.Grades) == 0 {
		return nil, nil
	}
	return &grading, nil
}
