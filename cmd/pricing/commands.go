package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/api"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/config"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/database"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

// app is what every subcommand needs: config, the database and the
// pipeline factory built over it.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	pipelines *services.Pipelines
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path, cmd.Flags())
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.Verbose {
		logLevel = logger.Info
	}
	db, err := database.Open(cfg.Database.Path, logLevel)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, db: db, pipelines: services.NewPipelines(cfg, db)}, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

// runContext is cancelled on SIGINT/SIGTERM and after pipeline.timeout.
func (a *app) runContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if a.cfg.Pipeline.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Pipeline.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// runPipeline builds one pipeline and runs it under the run lock. A run
// that finished with record errors returns an error wrapping
// services.ErrCompletedWithErrors.
func runPipeline(cmd *cobra.Command, build func(a *app) (services.Pipeline, error)) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := build(a)
	if err != nil {
		return err
	}

	ctx, cancel := a.runContext()
	defer cancel()

	run, err := a.pipelines.Runner().Run(ctx, p)
	if run != nil {
		printRun(cmd.OutOrStdout(), run)
	}
	return err
}

func printRun(w io.Writer, run *models.PipelineRun) {
	fmt.Fprintf(w, "%s run %s: %s\n", run.Pipeline, run.ID, run.Status)
	fmt.Fprintf(w, "  processed=%d updated=%d rejected=%d skipped=%d errors=%d\n",
		run.Processed, run.Updated, run.Rejected, run.Skipped, run.Errors)
	if run.Message != "" {
		fmt.Fprintf(w, "  %s\n", run.Message)
	}
	if run.ReportPath != "" {
		fmt.Fprintf(w, "  report: %s\n", run.ReportPath)
	}
}

func printIntegrity(w io.Writer, r *services.IntegrityReport, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "\ncards:    %d total, %d priced, average $%.2f, max $%.2f\n",
		r.TotalCards, r.CardsWithPrices, r.AverageValue, r.MaxValue)
	fmt.Fprintf(w, "history:  %d rows, %d cards (%.1f%%), latest %s\n",
		r.HistoryRows, r.CardsWithHistory, r.CoveragePercent, r.LatestHistoryDate)
	fmt.Fprintf(w, "above $10000: %d\n", r.SuspiciousCards)

	for _, kb := range r.KnownBad {
		state := "ok"
		if !kb.Fixed {
			state = "BAD"
		}
		fmt.Fprintf(w, "known bad %s: $%.2f (expected $%.2f) %s\n", kb.CardID, kb.Current, kb.Expected, state)
	}

	if len(r.Jumps) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nprice jumps:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tSET\tOLD\tNEW\tCHANGE")
	for _, j := range r.Jumps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t$%.2f (%s)\t$%.2f (%s)\t$%.2f\n",
			j.ProductID, j.Name, j.SetName, j.OldPrice, j.OldDate, j.NewPrice, j.NewDate, j.Change)
	}
	return tw.Flush()
}

func listRuns(cmd *cobra.Command, pipeline string, limit int) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	runs, err := a.pipelines.Runner().Tracker().List(cmd.Context(), pipeline, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPIPELINE\tSTATUS\tSTARTED\tDURATION\tPROCESSED\tUPDATED\tERRORS")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Pipeline, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04"), duration,
			r.Processed, r.Updated, r.Errors)
	}
	return tw.Flush()
}

func runServe(cmd *cobra.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return api.Serve(ctx, a.cfg, a.db)
}
