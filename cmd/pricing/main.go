package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

// Exit codes
const (
	exitOK                  = 0
	exitFatal               = 1
	exitCompletedWithErrors = 2
)

var cfgFile string

func main() {
	err := rootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, services.ErrCompletedWithErrors):
		return exitCompletedWithErrors
	default:
		return exitFatal
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pricing",
		Short:         "Collect, validate and repair Pokémon card prices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml if present)")
	root.PersistentFlags().String("db", "", "SQLite database path (default ./cards.db)")
	root.PersistentFlags().Bool("verbose", false, "log SQL and debug output")
	root.PersistentFlags().Duration("timeout", 0, "abort the run after this long (0 = no limit)")

	root.AddCommand(tcgcsvCmd())
	root.AddCommand(pptCmd())
	root.AddCommand(tcgdexCmd())
	root.AddCommand(pokemonTCGCmd())
	root.AddCommand(importCmd())
	root.AddCommand(fixCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(serveCmd())

	return root
}

func tcgcsvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tcgcsv",
		Short: "TCGCSV product and price sync",
	}

	var groups string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Download groups, products and prices from TCGCSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				return a.pipelines.TCGCSV(groups), nil
			})
		},
	}
	sync.Flags().StringVar(&groups, "groups", "", "group list CSV (Group ID,Group Name,...); default lists groups from the API")

	cmd.AddCommand(sync)
	return cmd
}

func pptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ppt",
		Short: "PokemonPriceTracker collection",
	}

	var (
		limit    int
		minPrice float64
	)
	collect := &cobra.Command{
		Use:   "collect",
		Short: "Collect per-condition prices for high-value singles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				c, err := a.pipelines.PPTCollect()
				if err != nil {
					return nil, err
				}
				if limit > 0 {
					c.Limit = limit
				}
				if cmd.Flags().Changed("min-price") {
					c.MinMarketPrice = minPrice
				}
				return c, nil
			})
		},
	}
	collect.Flags().IntVar(&limit, "limit", 0, "max products to fetch (default: pipeline.collect_limit)")
	collect.Flags().Float64Var(&minPrice, "min-price", 0, "minimum TCGCSV market price (default: pipeline.min_market_price)")

	var gradedLimit int
	graded := &cobra.Command{
		Use:   "graded",
		Short: "Collect raw and PSA graded prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				c, err := a.pipelines.PPTGraded()
				if err != nil {
					return nil, err
				}
				if gradedLimit > 0 {
					c.Limit = gradedLimit
				}
				return c, nil
			})
		},
	}
	graded.Flags().IntVar(&gradedLimit, "limit", 0, "max products to fetch (default 50)")

	cmd.AddCommand(collect, graded)
	return cmd
}

func tcgdexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tcgdex",
		Short: "TCGdex price updates",
	}

	var limit int
	update := &cobra.Command{
		Use:   "update",
		Short: "Validate and apply TCGdex prices to valued cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				u := a.pipelines.TCGdex()
				u.Limit = limit
				return u, nil
			})
		},
	}
	update.Flags().IntVar(&limit, "limit", 0, "max cards to update (0 = all)")

	cmd.AddCommand(update)
	return cmd
}

func pokemonTCGCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pokemontcg",
		Short: "pokemontcg.io price updates",
	}

	var (
		limit      int
		staleAfter time.Duration
	)
	update := &cobra.Command{
		Use:   "update",
		Short: "Validate and apply pokemontcg.io prices to unpriced or stale cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				u := a.pipelines.PokemonTCG()
				u.Limit = limit
				if staleAfter > 0 {
					u.StaleAfter = staleAfter
				}
				return u, nil
			})
		},
	}
	update.Flags().IntVar(&limit, "limit", 0, "max cards to update (0 = all)")
	update.Flags().DurationVar(&staleAfter, "stale-after", 0, "update cards older than this (default: pipeline.stale_after)")

	cmd.AddCommand(update)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import cards and prices from CSV exports",
	}

	prices := &cobra.Command{
		Use:   "prices <csv>",
		Short: "Import a price CSV into price history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				return a.pipelines.PriceImport(args[0]), nil
			})
		},
	}

	cards := &cobra.Command{
		Use:   "cards <csv>",
		Short: "Import card and set reference data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				return a.pipelines.CardImport(args[0]), nil
			})
		},
	}

	cmd.AddCommand(cards, prices)
	return cmd
}

func fixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Repair card data",
	}

	battleStats := &cobra.Command{
		Use:   "battle-stats <csv>",
		Short: "Convert weakness, resistance and retreat cost to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				return services.NewBattleStatsFixer(a.db, args[0]), nil
			})
		},
	}

	var overwrite bool
	artists := &cobra.Command{
		Use:   "artists <csv>",
		Short: "Fill card artists from an illustrator CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				s := services.NewArtistSync(a.db, args[0])
				s.Overwrite = overwrite
				return s, nil
			})
		},
	}
	artists.Flags().BoolVar(&overwrite, "overwrite", false, "replace artists that are already set")

	var dryRun bool
	suspicious := &cobra.Command{
		Use:   "suspicious-prices",
		Short: "Cap implausible card values and history rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				f := services.NewSuspiciousPriceFixer(a.db)
				f.DryRun = dryRun
				return f, nil
			})
		},
	}
	suspicious.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")

	cmd.AddCommand(battleStats, artists, suspicious)
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Data quality reports",
	}

	var (
		fix        bool
		jsonOutput bool
	)
	integrity := &cobra.Command{
		Use:   "integrity",
		Short: "Summarise price coverage, known bad prices and price jumps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reporter *services.IntegrityReporter
			err := runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				reporter = services.NewIntegrityReporter(a.db)
				reporter.Fix = fix
				return reporter, nil
			})
			if reporter != nil && reporter.Last != nil {
				if perr := printIntegrity(cmd.OutOrStdout(), reporter.Last, jsonOutput); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	integrity.Flags().BoolVar(&fix, "fix", false, "correct known bad prices before reporting")
	integrity.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	cmd.AddCommand(integrity)
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Copy battle stats to products and market prices to cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(a *app) (services.Pipeline, error) {
				return services.NewReconciler(a.db), nil
			})
		},
	}
}

func runsCmd() *cobra.Command {
	var (
		pipeline string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(cmd, pipeline, limit)
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "only runs of this pipeline")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status API and the background price worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().Int("port", 8080, "server port (default: server.port)")
	return cmd
}
