package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

var fixedNow = time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)

func TestTCGCSVSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/604/products":
			fmt.Fprint(w, `{"success": true, "results": [
				{"productId": 42348, "name": "Charizard", "groupId": 604, "extendedData": [{"name": "Number", "value": "4/102"}, {"name": "Rarity", "value": "Holo Rare"}]},
				{"productId": 42349, "name": "Bill", "groupId": 604, "extendedData": [{"name": "CardType", "value": "Trainer"}, {"name": "Rarity", "value": "None"}]}
			]}`)
		case "/604/prices":
			fmt.Fprint(w, `{"success": true, "results": [
				{"productId": 42348, "marketPrice": 350, "lowPrice": 300, "subTypeName": "Holofoil"},
				{"productId": 42348, "marketPrice": 120, "subTypeName": "Unlimited Holofoil"},
				{"productId": 42349, "marketPrice": 0, "lowPrice": 0, "subTypeName": "Normal"}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	groupList := writeFile(t, "groups.csv", strings.Join([]string{
		"Group ID,Group Name,Products,Prices",
		fmt.Sprintf("604,Base Set,%s/604/products,%s/604/prices", server.URL, server.URL),
		fmt.Sprintf("605,Gone,%s/605/products,%s/605/prices", server.URL, server.URL),
	}, "\n"))

	db := newTestDB(t)
	sync := NewTCGCSVSync(NewTCGCSVService(server.URL, testClientOptions()), NewHistoryWriter(db))
	sync.GroupListPath = groupList
	sync.BatchDelay = 0
	sync.now = func() time.Time { return fixedNow }

	stats, err := sync.Run(context.Background(), NewRunLoggerTo(nil, "test"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Errors != 0 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want no errors and the missing group skipped", stats)
	}

	var products []models.Product
	db.Order("product_id").Find(&products)
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	if products[0].MarketPrice != 350 || products[0].ExtNumber != "4/102" {
		t.Errorf("Charizard = %+v", products[0])
	}
	if products[1].ExtRarity != "" {
		t.Errorf("trainer rarity = %q, want empty", products[1].ExtRarity)
	}

	rows := historyRows(t, db, "42348")
	if len(rows) != 2 {
		t.Fatalf("expected one history row per sub type, got %+v", rows)
	}
	for _, r := range rows {
		if r.Source != "TCGCSV" || r.Date != "2025-10-15" {
			t.Errorf("history row = %+v", r)
		}
	}

	var group models.Group
	if err := db.First(&group, "group_id = ?", 604).Error; err != nil || group.Name != "Base Set" {
		t.Errorf("group = %+v, %v", group, err)
	}
}

func TestPPTCollectorSelectsAndWrites(t *testing.T) {
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("tcgPlayerId")
		requested = append(requested, id)
		switch id {
		case "1":
			fmt.Fprint(w, `{"data": {"tcgPlayerId": 1, "prices": {"market": 50, "listings": 4,
				"conditions": {"Near Mint": {"price": 48}, "Damaged": {"price": 0}}}}}`)
		case "2":
			fmt.Fprint(w, `{"data": []}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	db := newTestDB(t)
	for _, p := range []models.Product{
		{ProductID: 1, Name: "Charizard ex", ExtRarity: "Special Illustration Rare", MarketPrice: 300},
		{ProductID: 2, Name: "Mew ex", ExtRarity: "Ultra Rare", MarketPrice: 40},
		{ProductID: 3, Name: "Umbreon VMAX", ExtRarity: "Secret Rare", MarketPrice: 20},
		{ProductID: 4, Name: "Surging Sparks Booster Box", ExtRarity: "Rare", MarketPrice: 200},
		{ProductID: 5, Name: "Pikachu", ExtRarity: "Common", MarketPrice: 15},
		{ProductID: 6, Name: "Cheap Holo", ExtRarity: "Holo Rare", MarketPrice: 5},
		{ProductID: 7, Name: "Collected Today", ExtRarity: "Rare", MarketPrice: 100},
	} {
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("failed to seed product: %v", err)
		}
	}
	db.Create(&models.PriceHistory{ProductID: "7", Date: "2025-10-15", Price: 99, Source: "pokemonpricetracker-market", Condition: "Market"})

	collector := NewPPTCollector(db, NewPokemonPriceTrackerService("k", server.URL, server.URL, testClientOptions()), NewHistoryWriter(db))
	collector.Delay = AdaptiveDelay{}
	collector.now = func() time.Time { return fixedNow }

	stats, err := collector.Run(context.Background(), NewRunLoggerTo(nil, "test"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := strings.Join(requested, ","); got != "1,2,3" {
		t.Errorf("requested products %s, want 1,2,3 by market price", got)
	}
	if stats.Processed != 3 || stats.Updated != 2 || stats.Skipped != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rows := historyRows(t, db, "1")
	if len(rows) != 2 {
		t.Fatalf("expected market and near mint rows, got %+v", rows)
	}
}

func TestAdaptiveDelay(t *testing.T) {
	d := DefaultAdaptiveDelay()
	tests := []struct {
		name    string
		skipped bool
		failed  bool
		errors  int
		want    time.Duration
	}{
		{"base", false, false, 0, 200 * time.Millisecond},
		{"skip", true, false, 0, 100 * time.Millisecond},
		{"many errors", false, false, 11, 500 * time.Millisecond},
		{"after error", false, true, 1, time.Second},
	}
	for _, tt := range tests {
		if got := d.Next(tt.skipped, tt.failed, tt.errors); got != tt.want {
			t.Errorf("Next(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPriceUpdaterValidatesAndReports(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cards/base1-4":
			fmt.Fprint(w, `{"id": "base1-4", "name": "Charizard", "pricing": {"tcgplayer": {"holofoil": {"marketPrice": 360}}}}`)
		case "/cards/base1-2":
			fmt.Fprint(w, `{"id": "base1-2", "name": "Blastoise", "pricing": {"tcgplayer": {"holofoil": {"marketPrice": 5000}}}}`)
		case "/cards/base1-58":
			fmt.Fprint(w, `{"id": "base1-58", "name": "Pikachu", "pricing": {"cardmarket": {"avg7": 10}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	db := newTestDB(t)
	db.Create(&models.Set{ID: "base1", Name: "Base"})
	for _, c := range []models.Card{
		{ID: "base1-4", Name: "Charizard", SetID: "base1", Rarity: "Rare Holo", CurrentValue: 300},
		{ID: "base1-2", Name: "Blastoise", SetID: "base1", Rarity: "Rare Holo", CurrentValue: 150},
		{ID: "base1-58", Name: "Pikachu", SetID: "base1", Rarity: "Common", CurrentValue: 8},
		{ID: "base1-99", Name: "Unknown", SetID: "base1", CurrentValue: 1},
		{ID: "base1-100", Name: "No Value", SetID: "base1"},
	} {
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("failed to seed card: %v", err)
		}
	}

	reportDir := t.TempDir()
	updater := NewTCGdexUpdater(db, NewTCGdexService(server.URL, testClientOptions()), NewHistoryWriter(db))
	updater.ReportDir = reportDir
	updater.MaxConcurrent = 2
	updater.now = func() time.Time { return fixedNow }

	stats, err := updater.Run(context.Background(), NewRunLoggerTo(nil, "test"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Processed != 4 || stats.Updated != 2 || stats.Rejected != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 4 processed, 2 updated, 1 rejected, 1 skipped", stats)
	}

	values := map[string]float64{}
	var cards []models.Card
	db.Find(&cards)
	for _, c := range cards {
		values[c.ID] = c.CurrentValue
	}
	if values["base1-4"] != 360 {
		t.Errorf("Charizard current_value = %v, want 360", values["base1-4"])
	}
	if values["base1-2"] != 150 {
		t.Errorf("rejected Blastoise current_value = %v, want unchanged 150", values["base1-2"])
	}
	if got := values["base1-58"]; got < 10.99 || got > 11.01 {
		t.Errorf("Pikachu current_value = %v, want cardmarket 11.00", got)
	}

	rows := historyRows(t, db, "base1-4")
	if len(rows) != 2 || rows[0].Source != SourceArchive || rows[0].Price != 300 || rows[1].Price != 360 {
		t.Errorf("Charizard history = %+v, want archive 300 then 360", rows)
	}

	data, err := os.ReadFile(filepath.Join(reportDir, "price-updates-"+models.Today(time.Now())+".csv"))
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	report := string(data)
	if !strings.Contains(report, "REJECTED: Suspicious round number: $5000") {
		t.Errorf("report missing rejected row:\n%s", report)
	}
	if strings.Count(report, ",VALID") != 2 {
		t.Errorf("report should hold two VALID rows:\n%s", report)
	}
}
