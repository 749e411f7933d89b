// Package config loads pipeline configuration from defaults, an optional YAML
// file, the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every structured environment override.
// PRICING_PIPELINE__MAX_CONCURRENT maps to pipeline.max_concurrent.
const EnvPrefix = "PRICING_"

// ErrMissingAPIKey is returned when a command needs a provider key that is
// not configured.
var ErrMissingAPIKey = errors.New("missing API key")

// Config is the root configuration.
type Config struct {
	Verbose   bool            `koanf:"verbose"`
	Database  DatabaseConfig  `koanf:"database"`
	Providers ProvidersConfig `koanf:"providers"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Server    ServerConfig    `koanf:"server"`
	Worker    WorkerConfig    `koanf:"worker"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ProvidersConfig holds API credentials and endpoints. Keys are read from
// the bare variables (POKEMON_PRICE_TRACKER_API_KEY, ...) as well as the
// PRICING_PROVIDERS__ form.
type ProvidersConfig struct {
	PokemonPriceTrackerAPIKey string `koanf:"pokemon_price_tracker_api_key"`
	TCGPlayerAPIKey           string `koanf:"tcgplayer_api_key"`
	PokemonTCGAPIKey          string `koanf:"pokemon_tcg_api_key"`
	EbayAppID                 string `koanf:"ebay_app_id"`
	EbayAffiliateID           string `koanf:"ebay_affiliate_id"`

	TCGCSVBaseURL              string `koanf:"tcgcsv_base_url" validate:"required,url"`
	PokemonPriceTrackerBaseURL string `koanf:"pokemon_price_tracker_base_url" validate:"required,url"`
	PSABaseURL                 string `koanf:"psa_base_url" validate:"required,url"`
	TCGdexBaseURL              string `koanf:"tcgdex_base_url" validate:"required,url"`
	PokemonTCGBaseURL          string `koanf:"pokemon_tcg_base_url" validate:"required,url"`

	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	HTTPTimeout       time.Duration `koanf:"http_timeout" validate:"gt=0"`
}

type PipelineConfig struct {
	ReportDir     string        `koanf:"report_dir" validate:"required"`
	LogDir        string        `koanf:"log_dir" validate:"required"`
	MaxConcurrent int           `koanf:"max_concurrent" validate:"min=1,max=32"`
	BatchDelay    time.Duration `koanf:"batch_delay" validate:"min=0"`
	Timeout       time.Duration `koanf:"timeout" validate:"min=0"`
	LockTTL       time.Duration `koanf:"lock_ttl" validate:"gt=0"`
	Retry         RetryConfig   `koanf:"retry"`

	// CollectLimit caps how many products one PokemonPriceTracker run fetches.
	CollectLimit   int           `koanf:"collect_limit" validate:"min=1"`
	MinMarketPrice float64       `koanf:"min_market_price" validate:"min=0"`
	StaleAfter     time.Duration `koanf:"stale_after" validate:"gt=0"`
}

type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts" validate:"min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `koanf:"max_interval" validate:"gtefield=InitialInterval"`
}

type ServerConfig struct {
	Port        int      `koanf:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// WorkerConfig schedules pipelines from the serve command.
type WorkerConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval" validate:"gt=0"`
	Pipelines []string      `koanf:"pipelines" validate:"dive,oneof=tcgcsv ppt-collect ppt-graded tcgdex pokemontcg reconcile report-integrity"`
}

// Default returns a Config with production defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./cards.db"},
		Providers: ProvidersConfig{
			TCGCSVBaseURL:              "https://tcgcsv.com/tcgplayer",
			PokemonPriceTrackerBaseURL: "https://www.pokemonpricetracker.com/api/v2",
			PSABaseURL:                 "https://pokemonpricetracker.com/api",
			TCGdexBaseURL:              "https://api.tcgdex.net/v2/en",
			PokemonTCGBaseURL:          "https://api.pokemontcg.io/v2",
			RequestsPerSecond:          5,
			HTTPTimeout:                30 * time.Second,
		},
		Pipeline: PipelineConfig{
			ReportDir:     ".",
			LogDir:        "./logs",
			MaxConcurrent: 5,
			BatchDelay:    time.Second,
			LockTTL:       6 * time.Hour,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
			},
			CollectLimit:   500,
			MinMarketPrice: 10,
			StaleAfter:     7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Worker: WorkerConfig{
			Interval:  24 * time.Hour,
			Pipelines: []string{"tcgcsv"},
		},
	}
}

// bareEnv maps the unprefixed variables shared with the rest of the tooling
// onto config keys.
var bareEnv = map[string]string{
	"POKEMON_PRICE_TRACKER_API_KEY": "providers.pokemon_price_tracker_api_key",
	"TCGPLAYER_API_KEY":             "providers.tcgplayer_api_key",
	"POKEMON_TCG_API_KEY":           "providers.pokemon_tcg_api_key",
	"EBAY_APP_ID":                   "providers.ebay_app_id",
	"EBAY_AFFILIATE_ID":             "providers.ebay_affiliate_id",
	"DB_PATH":                       "database.path",
	"PORT":                          "server.port",
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"db":      "database.path",
	"verbose": "verbose",
	"timeout": "pipeline.timeout",
	"port":    "server.port",
}

// listKeys are split on commas when they arrive as a single string.
var listKeys = map[string]bool{
	"server.cors_origins": true,
	"worker.pipelines":    true,
}

// Load builds the configuration. path may be empty; flags may be nil. Only
// flags the user actually set override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	bare := make(map[string]interface{})
	for name, key := range bareEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			bare[key] = v
		}
	}
	if err := k.Load(confmap.Provider(bare, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load %s environment: %w", EnvPrefix, err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagValue(flags)), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of a loaded config.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireAPIKey fails fast when a provider key is empty. envName is the
// variable the user is expected to set.
func RequireAPIKey(value, envName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: set %s", ErrMissingAPIKey, envName)
	}
	return nil
}

// envKey turns PRICING_PIPELINE__MAX_CONCURRENT into pipeline.max_concurrent.
func envKey(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func flagValue(fs *pflag.FlagSet) func(f *pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		if f.Value.Type() == "stringSlice" {
			v, _ := fs.GetStringSlice(f.Name)
			return key, v
		}
		return key, f.Value.String()
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// defaultMap flattens Default() into koanf keys.
func defaultMap() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"verbose":                                  d.Verbose,
		"database.path":                            d.Database.Path,
		"providers.pokemon_price_tracker_api_key":  "",
		"providers.tcgplayer_api_key":              "",
		"providers.pokemon_tcg_api_key":            "",
		"providers.ebay_app_id":                    "",
		"providers.ebay_affiliate_id":              "",
		"providers.tcgcsv_base_url":                d.Providers.TCGCSVBaseURL,
		"providers.pokemon_price_tracker_base_url": d.Providers.PokemonPriceTrackerBaseURL,
		"providers.psa_base_url":                   d.Providers.PSABaseURL,
		"providers.tcgdex_base_url":                d.Providers.TCGdexBaseURL,
		"providers.pokemon_tcg_base_url":           d.Providers.PokemonTCGBaseURL,
		"providers.requests_per_second":            d.Providers.RequestsPerSecond,
		"providers.http_timeout":                   d.Providers.HTTPTimeout,
		"pipeline.report_dir":                      d.Pipeline.ReportDir,
		"pipeline.log_dir":                         d.Pipeline.LogDir,
		"pipeline.max_concurrent":                  d.Pipeline.MaxConcurrent,
		"pipeline.batch_delay":                     d.Pipeline.BatchDelay,
		"pipeline.timeout":                         d.Pipeline.Timeout,
		"pipeline.lock_ttl":                        d.Pipeline.LockTTL,
		"pipeline.retry.max_attempts":              d.Pipeline.Retry.MaxAttempts,
		"pipeline.retry.initial_interval":          d.Pipeline.Retry.InitialInterval,
		"pipeline.retry.max_interval":              d.Pipeline.Retry.MaxInterval,
		"pipeline.collect_limit":                   d.Pipeline.CollectLimit,
		"pipeline.min_market_price":                d.Pipeline.MinMarketPrice,
		"pipeline.stale_after":                     d.Pipeline.StaleAfter,
		"server.port":                              d.Server.Port,
		"server.cors_origins":                      d.Server.CORSOrigins,
		"worker.enabled":                           d.Worker.Enabled,
		"worker.interval":                          d.Worker.Interval,
		"worker.pipelines":                         d.Worker.Pipelines,
	}
}
