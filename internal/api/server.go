package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/config"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

const (
	shutdownTimeout    = 30 * time.Second
	workerRestartDelay = 30 * time.Second
)

// Serve runs the status API and the background price worker until ctx is
// cancelled. The worker always accepts queued runs; its schedule is only
// active when worker.enabled is set.
func Serve(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pipelines := services.NewPipelines(cfg, db)
	runner := pipelines.Runner()

	var schedule []string
	if cfg.Worker.Enabled {
		schedule = cfg.Worker.Pipelines
	}
	priceWorker := services.NewPriceWorker(runner, cfg.Worker.Interval, schedule, pipelines.Schedulable()...)
	workerDone := startWorker(ctx, priceWorker)
	// The caller closes db after Serve returns, so an in-flight run must
	// record its final state first.
	defer func() {
		cancel()
		<-workerDone
		log.Println("Price worker stopped")
	}()

	router := SetupRouter(cfg.Server, db, runner.Tracker(), priceWorker,
		services.NewPriceService(db), services.NewIntegrityReporter(db))

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Println("Shutting down server...")

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// startWorker runs w under superviseWorker. The returned channel is closed
// once the worker has returned, including any run it was in the middle of.
func startWorker(ctx context.Context, w *services.PriceWorker) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		superviseWorker(ctx, w)
	}()
	return done
}

// superviseWorker restarts the worker after a panic until ctx is done.
func superviseWorker(ctx context.Context, w *services.PriceWorker) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("PANIC in price worker: %v - restarting in %v", r, workerRestartDelay)
				}
			}()
			w.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			return
		case <-time.After(workerRestartDelay):
			log.Println("Price worker restarting after panic recovery...")
		}
	}
}
