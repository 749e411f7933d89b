package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const PipelineFixArtists = "fix-artists"

// ArtistSync fills cards.artist from an illustrator list. Existing artists
// are kept unless Overwrite is set.
type ArtistSync struct {
	db        *gorm.DB
	Path      string
	Overwrite bool
	Aliases   *AliasTable
}

func NewArtistSync(db *gorm.DB, path string) *ArtistSync {
	return &ArtistSync{db: db, Path: path}
}

func (s *ArtistSync) Name() string { return PipelineFixArtists }

func (s *ArtistSync) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	rows, err := readCSVFile(s.Path)
	if err != nil {
		return RunStats{}, err
	}
	cards, matcher, err := loadCardRecords(ctx, s.db, s.Aliases)
	if err != nil {
		return RunStats{}, err
	}
	runLog.Infof("matching %d illustrator rows against %d cards", len(rows), len(cards))

	var stats RunStats
	artists := make(map[string]string)
	for _, row := range rows {
		name := row.get("card_name", "card name", "name")
		set := row.get("set", "set name", "set_name")
		artist := row.get("artist", "illustrator")
		if name == "" || artist == "" {
			stats.Skipped++
			continue
		}
		stats.Processed++

		res := matcher.Match(MatchRecord{
			ID:     row.get("id", "card_id"),
			Name:   name,
			Set:    set,
			Number: row.get("set_num", "number", "card number"),
		})
		if !res.Matched() {
			stats.Unmatched = append(stats.Unmatched, describeRow(name, set))
			continue
		}

		card := cards[res.Record.ID]
		current := strings.TrimSpace(card.Artist)
		switch {
		case current == artist:
			stats.Skipped++
		case current != "" && !s.Overwrite:
			stats.Skipped++
		default:
			artists[card.ID] = artist
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, artist := range artists {
			if err := tx.Model(&models.Card{}).Where("id = ?", id).Update("artist", artist).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.Updated = len(artists)

	runLog.Infof("artists: %d updated, %d skipped, %d unmatched", stats.Updated, stats.Skipped, len(stats.Unmatched))
	return stats, nil
}
