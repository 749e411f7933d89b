package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const (
	pokemonTCGBaseURL      = "https://api.pokemontcg.io/v2"
	pokemonTCGProviderName = "pokemontcg"
)

type PokemonTCGService struct {
	http    *providerClient
	baseURL string
}

// NewPokemonTCGService creates a pokemontcg.io client. The API works without
// a key at a lower rate limit.
func NewPokemonTCGService(apiKey, baseURL string, opts ClientOptions) *PokemonTCGService {
	if baseURL == "" {
		baseURL = pokemonTCGBaseURL
	}
	client := newProviderClient(pokemonTCGProviderName, opts)
	if apiKey != "" {
		client.header.Set("X-Api-Key", apiKey)
	}
	return &PokemonTCGService{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// PokemonTCGCard is a pokemontcg.io card: the shared price shape plus the
// set it belongs to.
type PokemonTCGCard struct {
	pricing.PokemonTcgIo
	Number string        `json:"number"`
	Artist string        `json:"artist"`
	Set    pokemonTCGSet `json:"set"`
}

type pokemonTCGSet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type pokemonTCGSearchResponse struct {
	Data       []PokemonTCGCard `json:"data"`
	TotalCount int              `json:"totalCount"`
}

// GetCard looks a card up by its pokemontcg.io id. Unknown ids return nil.
func (s *PokemonTCGService) GetCard(ctx context.Context, id string) (*PokemonTCGCard, error) {
	reqURL := fmt.Sprintf("%s/cards/%s", s.baseURL, url.PathEscape(id))

	var resp struct {
		Data *PokemonTCGCard `json:"data"`
	}
	if err := s.http.getJSON(ctx, reqURL, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card from pokemon tcg: %w", err)
	}
	return resp.Data, nil
}

// SearchCards runs a Lucene-style query such as `name:"Pikachu" set.name:"Base"`.
func (s *PokemonTCGService) SearchCards(ctx context.Context, query string, pageSize int) ([]PokemonTCGCard, error) {
	reqURL := fmt.Sprintf("%s/cards?q=%s", s.baseURL, url.QueryEscape(query))
	if pageSize > 0 {
		reqURL += fmt.Sprintf("&pageSize=%d", pageSize)
	}

	var resp pokemonTCGSearchResponse
	if err := s.http.getJSON(ctx, reqURL, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search pokemon tcg: %w", err)
	}
	return resp.Data, nil
}

// FindCard resolves a database card: by id first, then by name within the
// set, then by name alone keeping only a result whose set name contains
// setName. Nil means no card in that set was found.
func (s *PokemonTCGService) FindCard(ctx context.Context, id, name, setName string) (*PokemonTCGCard, error) {
	if id != "" {
		card, err := s.GetCard(ctx, id)
		if err != nil || card != nil {
			return card, err
		}
	}
	if name == "" {
		return nil, nil
	}

	if setName != "" {
		cards, err := s.SearchCards(ctx, fmt.Sprintf("name:%q set.name:%q", name, setName), 0)
		if err != nil {
			return nil, err
		}
		if len(cards) > 0 {
			return &cards[0], nil
		}
	}

	cards, err := s.SearchCards(ctx, fmt.Sprintf("name:%q", name), 5)
	if err != nil || len(cards) == 0 {
		return nil, err
	}
	if setName == "" {
		return &cards[0], nil
	}
	want := strings.ToLower(setName)
	for i := range cards {
		if strings.Contains(strings.ToLower(cards[i].Set.Name), want) {
			return &cards[i], nil
		}
	}
	return nil, nil
}
