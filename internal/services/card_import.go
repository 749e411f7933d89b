package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/pricing"
)

const PipelineImportCards = "import-cards"

const cardImportBatchSize = 500

// CardImporter loads the card catalogue from a TCGdex/pokemontcg.io style
// export: one row per card carrying its set columns. Sets are upserted
// before cards so every card's set_id resolves.
//
// current_value is only taken from the file for cards that do not exist
// yet; price pipelines own it afterwards.
type CardImporter struct {
	db   *gorm.DB
	Path string
}

func NewCardImporter(db *gorm.DB, path string) *CardImporter {
	return &CardImporter{db: db, Path: path}
}

func (c *CardImporter) Name() string { return PipelineImportCards }

func (c *CardImporter) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	rows, err := readCSVFile(c.Path)
	if err != nil {
		return RunStats{}, err
	}
	runLog.Infof("importing %d card rows from %s", len(rows), c.Path)

	var (
		stats  RunStats
		sets   []models.Set
		seen   = make(map[string]bool)
		cards  []models.Card
		byCard = make(map[string]int)
	)
	now := time.Now()
	for _, row := range rows {
		stats.Processed++
		card, ok := cardFromRow(row, now)
		if !ok {
			runLog.Errorf("line %d: card row needs an id and a name", row.line)
			stats.Errors++
			continue
		}
		if i, dup := byCard[card.ID]; dup {
			cards[i] = card
			stats.Skipped++
		} else {
			byCard[card.ID] = len(cards)
			cards = append(cards, card)
		}

		setName := row.get("set_name", "set name")
		if card.SetID == "" || setName == "" || seen[card.SetID] {
			continue
		}
		seen[card.SetID] = true
		printed, _ := strconv.Atoi(row.get("printed_total"))
		sets = append(sets, models.Set{
			ID:           card.SetID,
			Name:         setName,
			Series:       row.get("series"),
			PrintedTotal: printed,
			ReleaseDate:  row.get("release_date"),
		})
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(sets) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "series", "printed_total", "release_date"}),
			}).CreateInBatches(&sets, cardImportBatchSize).Error
			if err != nil {
				return fmt.Errorf("failed to upsert sets: %w", err)
			}
		}
		if len(cards) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "set_id", "number", "rarity", "artist", "types", "attacks", "abilities",
					"weaknesses", "resistances", "retreat_cost", "updated_at",
				}),
			}).CreateInBatches(&cards, cardImportBatchSize).Error
			if err != nil {
				return fmt.Errorf("failed to upsert cards: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.Updated = len(cards)

	runLog.Infof("cards: %d sets, %d cards upserted, %d errors", len(sets), stats.Updated, stats.Errors)
	return stats, nil
}

func cardFromRow(row csvRow, now time.Time) (models.Card, bool) {
	card := models.Card{
		ID:           row.get("card_id", "id"),
		Name:         row.get("name", "card_name"),
		SetID:        row.get("set_id"),
		Number:       row.get("number", "local_id"),
		Rarity:       row.get("rarity"),
		Artist:       row.get("artist", "illustrator"),
		Types:        jsonList(row.get("types")),
		Attacks:      jsonList(row.get("attacks")),
		Abilities:    jsonList(row.get("abilities")),
		Weaknesses:   jsonList(row.get("weaknesses")),
		Resistances:  jsonList(row.get("resistances")),
		RetreatCost:  jsonList(row.get("retreat", "retreat_cost")),
		CurrentValue: importValue(row.get("tcgplayer_normal_market", "tcgplayer_holofoil_market")),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return card, card.ID != "" && card.Name != ""
}

// jsonList keeps a JSON array column as-is and turns anything else into "[]".
func jsonList(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && json.Valid([]byte(s)) {
		return s
	}
	return "[]"
}

func importValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil || !pricing.IsFinite(v) || v <= 0 {
		return 0
	}
	return v
}
