package database

import (
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

// Open connects to the SQLite file at dbPath, migrates the schema and returns
// the handle. There is no package-level handle: callers pass the returned
// *gorm.DB to every service that needs it and close it with Close.
func Open(dbPath string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// SQLite allows one writer; a single connection serialises pipeline writes
	// and keeps in-memory databases alive for the lifetime of the handle.
	sqlDB.SetMaxOpenConns(1)

	log.Printf("Database connected: %s", dbPath)

	if err := cleanupDuplicatePriceHistory(db); err != nil {
		return nil, fmt.Errorf("failed to clean up price history: %w", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run data migrations: %w", err)
	}

	log.Println("Database migration completed")
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLX wraps the connection pool behind db for hand-written read queries.
// It shares the single connection, so it must not be used inside a gorm
// transaction.
func SQLX(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(sqlDB, "sqlite3"), nil
}

func dsn(dbPath string) string {
	if dbPath == ":memory:" || strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_busy_timeout=5000"
}
