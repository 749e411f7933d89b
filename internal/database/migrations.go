package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

const legacyHistoryTable = "price_history_legacy"

// cleanupDuplicatePriceHistory prepares price_history before the unique key
// is created. Tables written by the old import scripts (no id or no
// product_id column) are set
// aside for migrateLegacyHistory; for current tables, NULL key parts become
// '' (NULLs never collide in a SQLite unique index) and duplicate keys are
// collapsed onto the newest row.
// This runs BEFORE AutoMigrate to prevent constraint violations.
func cleanupDuplicatePriceHistory(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable("price_history") {
		return nil
	}

	if !m.HasColumn("price_history", "id") || !m.HasColumn("price_history", "product_id") {
		log.Println("Found legacy price_history table, moving it aside for import")
		return db.Exec(`ALTER TABLE price_history RENAME TO ` + legacyHistoryTable).Error
	}

	groupBy := []string{"product_id", "date"}
	for _, col := range []string{"condition", "grade", "variant"} {
		if !m.HasColumn("price_history", col) {
			continue
		}
		result := db.Exec(`UPDATE price_history SET "` + col + `" = '' WHERE "` + col + `" IS NULL`)
		if result.Error != nil {
			log.Printf("Warning: failed to normalize price_history.%s: %v", col, result.Error)
		}
		groupBy = append(groupBy, `"`+col+`"`)
	}

	result := db.Exec(`
		DELETE FROM price_history
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM price_history
			GROUP BY ` + strings.Join(groupBy, ", ") + `
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d duplicate price_history entries", result.RowsAffected)
	}

	return nil
}

// RunMigrations runs data migrations after schema changes. Each step only
// touches rows still in the legacy shape, so it is safe to run on every open.
func RunMigrations(db *gorm.DB) error {
	if err := migrateLegacyHistory(db); err != nil {
		return err
	}
	if err := migrateNullPrices(db); err != nil {
		return err
	}
	if err := migrateBattleStatDefaults(db); err != nil {
		return err
	}
	return nil
}

// migrateLegacyHistory copies the set-aside legacy table into price_history.
// Legacy tables used card_id or product_id and sometimes market_price instead
// of price; missing key columns become ''. Rows are replayed in insertion
// order so the newest duplicate wins, then the legacy table is dropped.
func migrateLegacyHistory(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(legacyHistoryTable) {
		return nil
	}

	col := func(name, fallback string) string {
		if m.HasColumn(legacyHistoryTable, name) {
			return `"` + name + `"`
		}
		return fallback
	}

	productCol := col("product_id", col("card_id", ""))
	if productCol == "" {
		return fmt.Errorf("legacy price_history has neither product_id nor card_id")
	}

	price := col("price", "0")
	if m.HasColumn(legacyHistoryTable, "market_price") {
		price = fmt.Sprintf(`COALESCE(NULLIF(%s, 0), "market_price")`, price)
	}

	stmt := fmt.Sprintf(`
		INSERT OR REPLACE INTO price_history
			(product_id, date, condition, grade, variant, price, volume, population, source, created_at, updated_at)
		SELECT CAST(%s AS TEXT), date, COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''),
			COALESCE(%s, 0), COALESCE(%s, 0), 0, COALESCE(%s, 'legacy'), CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
		FROM %s
		WHERE %s IS NOT NULL AND date IS NOT NULL
		ORDER BY rowid`,
		productCol, col("condition", "''"), col("grade", "''"), col("variant", "''"),
		price, col("volume", "0"), col("source", "'legacy'"),
		legacyHistoryTable, productCol)

	result := db.Exec(stmt)
	if result.Error != nil {
		return fmt.Errorf("failed to import legacy price history: %w", result.Error)
	}
	log.Printf("Imported %d legacy price_history rows", result.RowsAffected)

	return m.DropTable(legacyHistoryTable)
}

// migrateNullPrices zeroes NULL denormalised prices left by the old scripts.
func migrateNullPrices(db *gorm.DB) error {
	if err := db.Exec(`UPDATE cards SET current_value = 0 WHERE current_value IS NULL`).Error; err != nil {
		log.Printf("Warning: failed to default cards.current_value: %v", err)
	}
	if err := db.Exec(`UPDATE products SET market_price = 0 WHERE market_price IS NULL`).Error; err != nil {
		log.Printf("Warning: failed to default products.market_price: %v", err)
	}
	return nil
}

// migrateBattleStatDefaults replaces empty battle-stat columns with an empty
// JSON array so readers can always decode them.
func migrateBattleStatDefaults(db *gorm.DB) error {
	for _, col := range []string{"types", "attacks", "abilities", "weaknesses", "resistances", "retreat_cost"} {
		result := db.Exec(`UPDATE cards SET ` + col + ` = '[]' WHERE ` + col + ` IS NULL OR ` + col + ` = '' OR ` + col + ` = 'null'`)
		if result.Error != nil {
			log.Printf("Warning: failed to default cards.%s: %v", col, result.Error)
		}
	}
	return nil
}
