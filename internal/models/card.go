package models

import (
	"time"
)

// Card is one canonical card printing from the API-sourced catalogue.
// Battle stats and move lists are stored as JSON text columns.
type Card struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"not null;index"`
	SetID        string    `json:"set_id" gorm:"index"`
	Number       string    `json:"number"`
	Rarity       string    `json:"rarity"`
	Artist       string    `json:"artist"`
	Types        string    `json:"types" gorm:"default:'[]'"`
	Attacks      string    `json:"attacks" gorm:"default:'[]'"`
	Abilities    string    `json:"abilities" gorm:"default:'[]'"`
	Weaknesses   string    `json:"weaknesses" gorm:"default:'[]'"`
	Resistances  string    `json:"resistances" gorm:"default:'[]'"`
	RetreatCost  string    `json:"retreat_cost" gorm:"column:retreat_cost;default:'[]'"`
	CurrentValue float64   `json:"current_value" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Set is an API-sourced release (sv08, swsh12pt5, ...).
type Set struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Name         string `json:"name" gorm:"not null;index"`
	Series       string `json:"series"`
	PrintedTotal int    `json:"printed_total"`
	ReleaseDate  string `json:"release_date"`
}

// CardWithSet is the read model used by pipelines that need the set name
// next to the card row.
type CardWithSet struct {
	Card
	SetName string `json:"set_name"`
}
