package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/gorm/logger"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/api"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/config"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/database"
)

// The server reads its settings from CONFIG_PATH (optional YAML), the
// environment and .env. It is the same as `pricing serve`.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := logger.Warn
	if cfg.Verbose {
		logLevel = logger.Info
	}
	db, err := database.Open(cfg.Database.Path, logLevel)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := api.Serve(ctx, cfg, db); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
