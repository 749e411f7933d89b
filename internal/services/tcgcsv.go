package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const (
	tcgcsvBaseURL        = "https://tcgcsv.com/tcgplayer"
	pokemonCategoryID    = 3
	tcgcsvGroupCacheSize = 512
	tcgcsvProviderName   = "tcgcsv"
)

// TCGCSVService downloads TCGplayer catalogue and price dumps from tcgcsv.com.
type TCGCSVService struct {
	http    *providerClient
	baseURL string

	// groups caches group metadata by id across one process.
	groups *lru.Cache[int, TCGCSVGroup]
}

// GroupSource is one row of the group list CSV: a set and the URLs of its
// product and price dumps.
type GroupSource struct {
	GroupID     int
	Name        string
	ProductsURL string
	PricesURL   string
	Language    string
}

type TCGCSVGroup struct {
	GroupID      int    `json:"groupId"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	PublishedOn  string `json:"publishedOn"`
	ModifiedOn   string `json:"modifiedOn"`
	CategoryID   int    `json:"categoryId"`
}

type tcgcsvGroupsResponse struct {
	Success bool          `json:"success"`
	Errors  []string      `json:"errors"`
	Results []TCGCSVGroup `json:"results"`
}

type TCGCSVProduct struct {
	ProductID    int                  `json:"productId"`
	Name         string               `json:"name"`
	CleanName    string               `json:"cleanName"`
	ImageURL     string               `json:"imageUrl"`
	CategoryID   int                  `json:"categoryId"`
	GroupID      int                  `json:"groupId"`
	URL          string               `json:"url"`
	ModifiedOn   string               `json:"modifiedOn"`
	ExtendedData []TCGCSVExtendedData `json:"extendedData"`
	PresaleInfo  map[string]any       `json:"presaleInfo,omitempty"`
	ImageCount   int                  `json:"imageCount"`
	SubTypeName  string               `json:"subTypeName,omitempty"`
	MarketPrice  pricing.Number       `json:"marketPrice,omitempty"`
	LowPrice     pricing.Number       `json:"lowPrice,omitempty"`
	MidPrice     pricing.Number       `json:"midPrice,omitempty"`
	HighPrice    pricing.Number       `json:"highPrice,omitempty"`
}

type TCGCSVExtendedData struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Value       any    `json:"value"`
}

type tcgcsvProductsResponse struct {
	Success bool            `json:"success"`
	Errors  []string        `json:"errors"`
	Results []TCGCSVProduct `json:"results"`
}

func NewTCGCSVService(baseURL string, opts ClientOptions) *TCGCSVService {
	if baseURL == "" {
		baseURL = tcgcsvBaseURL
	}
	cache, _ := lru.New[int, TCGCSVGroup](tcgcsvGroupCacheSize)
	return &TCGCSVService{
		http:    newProviderClient(tcgcsvProviderName, opts),
		baseURL: strings.TrimRight(baseURL, "/"),
		groups:  cache,
	}
}

// GetGroups lists the Pokémon groups (sets) published by TCGCSV.
func (s *TCGCSVService) GetGroups(ctx context.Context) ([]TCGCSVGroup, error) {
	url := fmt.Sprintf("%s/%d/groups", s.baseURL, pokemonCategoryID)

	var resp tcgcsvGroupsResponse
	if err := s.http.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch groups: %w", err)
	}
	for _, g := range resp.Results {
		s.groups.Add(g.GroupID, g)
	}
	return resp.Results, nil
}

// Group returns cached metadata for a group fetched by GetGroups.
func (s *TCGCSVService) Group(groupID int) (TCGCSVGroup, bool) {
	return s.groups.Get(groupID)
}

// GroupSources turns the published group list into download sources.
func (s *TCGCSVService) GroupSources(ctx context.Context) ([]GroupSource, error) {
	groups, err := s.GetGroups(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]GroupSource, 0, len(groups))
	for _, g := range groups {
		sources = append(sources, GroupSource{
			GroupID:     g.GroupID,
			Name:        g.Name,
			ProductsURL: fmt.Sprintf("%s/%d/%d/products", s.baseURL, pokemonCategoryID, g.GroupID),
			PricesURL:   fmt.Sprintf("%s/%d/%d/prices", s.baseURL, pokemonCategoryID, g.GroupID),
			Language:    "en",
		})
	}
	return sources, nil
}

// GetProducts downloads a group's product dump. A missing dump returns
// (nil, nil).
func (s *TCGCSVService) GetProducts(ctx context.Context, src GroupSource) ([]TCGCSVProduct, error) {
	var resp tcgcsvProductsResponse
	if err := s.http.getJSON(ctx, src.ProductsURL, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch products for %s: %w", src.Name, err)
	}
	return resp.Results, nil
}

// GetPrices downloads a group's price dump. A missing dump returns (nil, nil).
func (s *TCGCSVService) GetPrices(ctx context.Context, src GroupSource) (*pricing.TcgCsv, error) {
	var doc pricing.TcgCsv
	if err := s.http.getJSON(ctx, src.PricesURL, &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch prices for %s: %w", src.Name, err)
	}
	return &doc, nil
}

// ReadGroupSources parses the group list CSV
// (Group ID,Group Name,Products,Prices[,Language]). Rows without a numeric
// group id or a prices URL are skipped.
func ReadGroupSources(r io.Reader) ([]GroupSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read group list header: %w", err)
	}
	col := headerIndex(header)
	for _, required := range []string{"group id", "group name", "prices"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("group list is missing column %q", required)
		}
	}

	var sources []GroupSource
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read group list: %w", err)
		}

		id, err := strconv.Atoi(field(rec, col, "group id"))
		if err != nil || id <= 0 {
			continue
		}
		src := GroupSource{
			GroupID:     id,
			Name:        field(rec, col, "group name"),
			ProductsURL: field(rec, col, "products"),
			PricesURL:   field(rec, col, "prices"),
			Language:    field(rec, col, "language"),
		}
		if src.PricesURL == "" {
			continue
		}
		if src.Language == "" {
			src.Language = "en"
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// ToModel flattens a TCGCSV product, mapping extendedData entries onto the
// ext_* columns with case-insensitive key matching. The first value found
// for a column wins.
func (p TCGCSVProduct) ToModel(language string) models.Product {
	m := models.Product{
		ProductID:   p.ProductID,
		Name:        p.Name,
		CleanName:   p.CleanName,
		GroupID:     p.GroupID,
		CategoryID:  p.CategoryID,
		ImageURL:    p.ImageURL,
		URL:         p.URL,
		ModifiedOn:  p.ModifiedOn,
		SubTypeName: p.SubTypeName,
		Language:    language,
		MarketPrice: p.MarketPrice.Float(),
		LowPrice:    p.LowPrice.Float(),
		MidPrice:    p.MidPrice.Float(),
		HighPrice:   p.HighPrice.Float(),
	}
	if m.CategoryID == 0 {
		m.CategoryID = pokemonCategoryID
	}
	if m.CleanName == "" {
		m.CleanName = cleanProductName(p.Name)
	}
	if m.Language == "" {
		m.Language = "en"
	}

	set := func(dst *string, v any) {
		if *dst == "" {
			*dst = extValue(v)
		}
	}

	var rawRarity string
	for _, item := range p.ExtendedData {
		name := strings.ToLower(strings.TrimSpace(item.Name))
		if name == "" {
			name = strings.ToLower(strings.TrimSpace(item.DisplayName))
		}

		switch {
		case name == "number" || name == "no" || name == "card number":
			set(&m.ExtNumber, item.Value)
		case name == "hp":
			set(&m.ExtHP, item.Value)
		case name == "cardtype" || name == "card type" || name == "type":
			set(&m.ExtCardType, item.Value)
		case name == "stage":
			set(&m.ExtStage, item.Value)
		case name == "weakness":
			set(&m.ExtWeakness, item.Value)
		case name == "resistance":
			set(&m.ExtResistance, item.Value)
		case name == "retreatcost" || name == "retreat cost" || name == "retreat":
			set(&m.ExtRetreatCost, item.Value)
		case name == "rarity":
			if rawRarity == "" {
				rawRarity = extValue(item.Value)
			}
		case name == "attack 1" || name == "attack1":
			set(&m.ExtAttack1, item.Value)
		case name == "attack 2" || name == "attack2":
			set(&m.ExtAttack2, item.Value)
		case name == "cardtext" || name == "card text" || name == "description":
			set(&m.ExtCardText, item.Value)
		case name == "artist" || name == "illustrator":
			set(&m.Artist, item.Value)
		case name == "regulation":
			set(&m.ExtRegulation, item.Value)
		}
	}
	m.ExtRarity = productRarity(rawRarity, m.ExtHP, m.ExtCardType)

	return m
}

// productRarity resolves TCGCSV's rarity placeholders: "None" means Common
// for Pokémon and no rarity for Trainers and Energy.
func productRarity(raw, hp, cardType string) string {
	r := strings.TrimSpace(raw)
	switch strings.ToLower(r) {
	case "none":
		ct := strings.ToLower(cardType)
		if hp != "" || strings.Contains(ct, "pokemon") || strings.Contains(ct, "pokémon") {
			return "Common"
		}
		return ""
	case "unconfirmed", "null":
		return ""
	}
	return r
}

func extValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func cleanProductName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// headerIndex maps lowercased, trimmed header names to column positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		idx[h] = i
	}
	return idx
}

func field(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
