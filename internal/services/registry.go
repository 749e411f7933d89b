package services

import (
	"log"

	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/config"
)

// Pipelines builds provider clients and pipelines from the loaded config.
// All of them share one database handle and history writer.
type Pipelines struct {
	cfg    *config.Config
	db     *gorm.DB
	writer *HistoryWriter
	opts   ClientOptions
}

func NewPipelines(cfg *config.Config, db *gorm.DB) *Pipelines {
	return &Pipelines{
		cfg:    cfg,
		db:     db,
		writer: NewHistoryWriter(db),
		opts: ClientOptions{
			Timeout:           cfg.Providers.HTTPTimeout,
			RequestsPerSecond: cfg.Providers.RequestsPerSecond,
			Retry:             RetryPolicyFromConfig(cfg.Pipeline.Retry),
		},
	}
}

// Runner returns a runner that records runs under the configured lock TTL
// and writes run logs to the configured directory.
func (p *Pipelines) Runner() *Runner {
	return NewRunner(NewRunTracker(p.db, p.cfg.Pipeline.LockTTL), p.cfg.Pipeline.LogDir)
}

func (p *Pipelines) TCGCSV(groupListPath string) *TCGCSVSync {
	s := NewTCGCSVSync(NewTCGCSVService(p.cfg.Providers.TCGCSVBaseURL, p.opts), p.writer)
	s.GroupListPath = groupListPath
	s.MaxConcurrent = p.cfg.Pipeline.MaxConcurrent
	s.BatchDelay = p.cfg.Pipeline.BatchDelay
	return s
}

func (p *Pipelines) pokemonPriceTracker() (*PokemonPriceTrackerService, error) {
	key := p.cfg.Providers.PokemonPriceTrackerAPIKey
	if err := config.RequireAPIKey(key, "POKEMON_PRICE_TRACKER_API_KEY"); err != nil {
		return nil, err
	}
	return NewPokemonPriceTrackerService(key, p.cfg.Providers.PokemonPriceTrackerBaseURL, p.cfg.Providers.PSABaseURL, p.opts), nil
}

// PPTCollect fails with config.ErrMissingAPIKey when no PokemonPriceTracker
// key is configured.
func (p *Pipelines) PPTCollect() (*PPTCollector, error) {
	ppt, err := p.pokemonPriceTracker()
	if err != nil {
		return nil, err
	}
	c := NewPPTCollector(p.db, ppt, p.writer)
	c.MinMarketPrice = p.cfg.Pipeline.MinMarketPrice
	c.Limit = p.cfg.Pipeline.CollectLimit
	return c, nil
}

func (p *Pipelines) PPTGraded() (*PPTCollector, error) {
	ppt, err := p.pokemonPriceTracker()
	if err != nil {
		return nil, err
	}
	return NewPPTGradedCollector(p.db, ppt, p.writer), nil
}

func (p *Pipelines) TCGdex() *PriceUpdater {
	u := NewTCGdexUpdater(p.db, NewTCGdexService(p.cfg.Providers.TCGdexBaseURL, p.opts), p.writer)
	p.tuneUpdater(u)
	return u
}

func (p *Pipelines) PokemonTCG() *PriceUpdater {
	svc := NewPokemonTCGService(p.cfg.Providers.PokemonTCGAPIKey, p.cfg.Providers.PokemonTCGBaseURL, p.opts)
	u := NewPokemonTCGUpdater(p.db, svc, p.writer)
	p.tuneUpdater(u)
	u.StaleAfter = p.cfg.Pipeline.StaleAfter
	return u
}

func (p *Pipelines) tuneUpdater(u *PriceUpdater) {
	u.ReportDir = p.cfg.Pipeline.ReportDir
	u.MaxConcurrent = p.cfg.Pipeline.MaxConcurrent
}

func (p *Pipelines) PriceImport(path string) *PriceImporter {
	return NewPriceImporter(p.writer, path)
}

func (p *Pipelines) CardImport(path string) *CardImporter {
	return NewCardImporter(p.db, path)
}

// Schedulable returns every pipeline the background worker can run. The
// PokemonPriceTracker collectors are left out when their key is missing.
func (p *Pipelines) Schedulable() []Pipeline {
	pipelines := []Pipeline{
		p.TCGCSV(""),
		p.TCGdex(),
		p.PokemonTCG(),
		NewReconciler(p.db),
		NewIntegrityReporter(p.db),
	}
	if c, err := p.PPTCollect(); err == nil {
		pipelines = append(pipelines, c)
	} else {
		log.Printf("Pipelines: %s unavailable: %v", PipelinePPTCollect, err)
	}
	if c, err := p.PPTGraded(); err == nil {
		pipelines = append(pipelines, c)
	} else {
		log.Printf("Pipelines: %s unavailable: %v", PipelinePPTGraded, err)
	}
	return pipelines
}
