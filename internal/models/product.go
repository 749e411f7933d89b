package models

import (
	"time"
)

// Product is a sellable TCGplayer SKU as published by TCGCSV. Extended
// attributes are flattened into ext_* columns.
type Product struct {
	ProductID      int       `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	Name           string    `json:"name" gorm:"not null;index"`
	CleanName      string    `json:"clean_name"`
	GroupID        int       `json:"group_id" gorm:"index"`
	CategoryID     int       `json:"category_id" gorm:"default:3"`
	ImageURL       string    `json:"image_url"`
	URL            string    `json:"url"`
	ModifiedOn     string    `json:"modified_on"`
	ExtNumber      string    `json:"ext_number" gorm:"column:ext_number"`
	ExtRarity      string    `json:"ext_rarity" gorm:"column:ext_rarity;index"`
	ExtCardType    string    `json:"ext_card_type" gorm:"column:ext_card_type"`
	ExtHP          string    `json:"ext_hp" gorm:"column:ext_hp"`
	ExtStage       string    `json:"ext_stage" gorm:"column:ext_stage"`
	ExtCardText    string    `json:"ext_card_text" gorm:"column:ext_card_text"`
	ExtAttack1     string    `json:"ext_attack1" gorm:"column:ext_attack1"`
	ExtAttack2     string    `json:"ext_attack2" gorm:"column:ext_attack2"`
	ExtWeakness    string    `json:"ext_weakness" gorm:"column:ext_weakness"`
	ExtResistance  string    `json:"ext_resistance" gorm:"column:ext_resistance"`
	ExtRetreatCost string    `json:"ext_retreat_cost" gorm:"column:ext_retreat_cost"`
	ExtRegulation  string    `json:"ext_regulation" gorm:"column:ext_regulation"`
	SubTypeName    string    `json:"sub_type_name"`
	Artist         string    `json:"artist"`
	Language       string    `json:"language" gorm:"default:'en'"`
	MarketPrice    float64   `json:"market_price" gorm:"index"`
	LowPrice       float64   `json:"low_price"`
	MidPrice       float64   `json:"mid_price"`
	HighPrice      float64   `json:"high_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Group is a TCGCSV set. It only joins to Set through the matcher.
type Group struct {
	GroupID      int       `json:"group_id" gorm:"primaryKey;autoIncrement:false"`
	Name         string    `json:"name" gorm:"not null;index"`
	Abbreviation string    `json:"abbreviation"`
	PublishedOn  string    `json:"published_on"`
	CategoryID   int       `json:"category_id" gorm:"default:3"`
	Language     string    `json:"language" gorm:"default:'en'"`
	UpdatedAt    time.Time `json:"updated_at"`
}
