// Package metrics provides Prometheus metrics for the pricing pipeline.
// Scrape these at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_http_requests_total",
			Help: "Total number of HTTP requests served by the status API",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Provider Metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_provider_requests_total",
			Help: "Total number of requests made to pricing providers",
		},
		[]string{"provider", "status"}, // status: HTTP code or "error"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_provider_request_duration_seconds",
			Help:    "Pricing provider request latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_provider_retries_total",
			Help: "Requests retried after a 429 or transport error",
		},
		[]string{"provider"},
	)

	// Pipeline Metrics
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_pipeline_runs_total",
			Help: "Pipeline runs by final status",
		},
		[]string{"pipeline", "status"},
	)

	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_pipeline_run_duration_seconds",
			Help:    "Time taken by one pipeline run",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"pipeline"},
	)

	PipelineLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricing_pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without a fatal error",
		},
		[]string{"pipeline"},
	)

	RecordErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_record_errors_total",
			Help: "Per-record errors logged and skipped during pipeline runs",
		},
		[]string{"pipeline"},
	)

	// Price Metrics
	PricePointsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_price_points_written_total",
			Help: "Price history points upserted",
		},
		[]string{"source"},
	)

	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_validations_total",
			Help: "Validator outcomes",
		},
		[]string{"result"}, // "valid" or "rejected"
	)

	// Matcher Metrics
	MatcherDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_matcher_decisions_total",
			Help: "Matcher results by cascade stage",
		},
		[]string{"stage"}, // "exact", "number", "alias", "name_set", "similarity", "none"
	)

	// Database Metrics
	CardDatabaseSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricing_card_database_size",
			Help: "Number of cards in the database",
		},
	)

	CardsWithPrices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricing_cards_with_prices",
			Help: "Number of cards with a positive current value",
		},
	)

	// Scheduler Metrics
	SchedulerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricing_scheduler_queue_size",
			Help: "Pipeline runs requested through the API and not started yet",
		},
	)
)
