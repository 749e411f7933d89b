package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const PipelineFixBattleStats = "fix-battle-stats"

// TypeModifier is one weakness or resistance entry as stored on cards.
type TypeModifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// BattleStats holds the JSON text written to the cards battle-stat columns.
type BattleStats struct {
	Weaknesses  string
	Resistances string
	RetreatCost string
}

// ConvertBattleStats turns TCGCSV-style battle stat strings into the JSON
// arrays the cards table stores.
func ConvertBattleStats(weakness, resistance, retreat string) BattleStats {
	return BattleStats{
		Weaknesses:  ConvertTypeModifier(weakness),
		Resistances: ConvertTypeModifier(resistance),
		RetreatCost: ConvertRetreatCost(retreat),
	}
}

func isEmptyStat(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "null", "none", "n/a":
		return true
	}
	return false
}

// ConvertTypeModifier converts "Grass×2", "Fire-30" or "Water+20" into
// [{"type","value"}]. Values that are already a JSON array pass through.
func ConvertTypeModifier(v string) string {
	v = strings.TrimSpace(v)
	if isEmptyStat(v) {
		return "[]"
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return v
	}

	mod := TypeModifier{Type: v}
	for _, sep := range []string{"×", "+", "-"} {
		if typ, amount, ok := strings.Cut(v, sep); ok {
			mod = TypeModifier{Type: strings.TrimSpace(typ), Value: sep + strings.TrimSpace(amount)}
			break
		}
	}
	out, _ := json.Marshal([]TypeModifier{mod})
	return string(out)
}

// ConvertRetreatCost turns a retreat cost count into that many "Colorless"
// energies. JSON arrays pass through; anything else is empty.
func ConvertRetreatCost(v string) string {
	v = strings.TrimSpace(v)
	if isEmptyStat(v) {
		return "[]"
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return v
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return "[]"
	}
	cost := make([]string, n)
	for i := range cost {
		cost[i] = "Colorless"
	}
	out, _ := json.Marshal(cost)
	return string(out)
}

// BattleStatsFixer rewrites cards' weaknesses, resistances and retreat cost
// from a TCGCSV export, joining rows to cards through the matcher.
type BattleStatsFixer struct {
	db      *gorm.DB
	Path    string
	Aliases *AliasTable
}

func NewBattleStatsFixer(db *gorm.DB, path string) *BattleStatsFixer {
	return &BattleStatsFixer{db: db, Path: path}
}

func (f *BattleStatsFixer) Name() string { return PipelineFixBattleStats }

func (f *BattleStatsFixer) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	rows, err := readCSVFile(f.Path)
	if err != nil {
		return RunStats{}, err
	}
	_, matcher, err := loadCardRecords(ctx, f.db, f.Aliases)
	if err != nil {
		return RunStats{}, err
	}
	runLog.Infof("read %d rows from %s", len(rows), f.Path)

	var stats RunStats
	updates := make(map[string]BattleStats)
	for _, row := range rows {
		name := row.get("card name", "name", "product name", "card_name")
		set := row.get("set name", "set", "group name", "set_name")
		if name == "" || set == "" {
			stats.Skipped++
			continue
		}
		if !row.has("extweakness", "weakness", "extresistance", "resistance", "extretreatcost", "retreat cost", "retreatcost") {
			stats.Skipped++
			continue
		}
		stats.Processed++

		res := matcher.Match(MatchRecord{
			ID:     row.get("card_id", "id"),
			Name:   name,
			Set:    set,
			Number: row.get("number", "card number", "extnumber", "set_num"),
		})
		if !res.Matched() {
			stats.Unmatched = append(stats.Unmatched, describeRow(name, set))
			continue
		}

		updates[res.Record.ID] = ConvertBattleStats(
			row.get("extweakness", "weakness"),
			row.get("extresistance", "resistance"),
			row.get("extretreatcost", "retreat cost", "retreatcost"),
		)
	}

	err = f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, bs := range updates {
			res := tx.Model(&models.Card{}).Where("id = ?", id).Updates(map[string]any{
				"weaknesses":   bs.Weaknesses,
				"resistances":  bs.Resistances,
				"retreat_cost": bs.RetreatCost,
			})
			if res.Error != nil {
				return res.Error
			}
			stats.Updated += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	runLog.Infof("battle stats: %d processed, %d updated, %d unmatched", stats.Processed, stats.Updated, len(stats.Unmatched))
	return stats, nil
}
