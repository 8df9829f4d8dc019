package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_cache_actions_total",
		Help: "Total number of actions applied to the review cache",
	}, []string{"type"})

	CacheProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "review_cache_products",
		Help: "Number of product slices currently held in the review cache",
	})

	CacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_cache_evictions_total",
		Help: "Total number of stale product slices evicted by the sweeper",
	})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_cache_lookups_total",
		Help: "Total number of product review lookups by outcome",
	}, []string{"outcome"})

	ReviewFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_fetch_total",
		Help: "Total number of remote review fetches",
	}, []string{"result"})

	ReviewFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_fetch_latency_seconds",
		Help:    "Latency of remote review fetches",
		Buckets: prometheus.DefBuckets,
	})

	ReviewMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_mutations_total",
		Help: "Total number of review mutations sent to the review service",
	}, []string{"operation", "result"})

	ReviewAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_api_requests_total",
		Help: "Total number of HTTP calls made to the review service",
	}, []string{"operation", "status"})

	ReviewAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_api_latency_seconds",
		Help:    "Latency of HTTP calls made to the review service",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "review_api_circuit_breaker_state",
		Help: "Current state of the review service circuit breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	ClientBootstrapAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_client_bootstrap_attempts_total",
		Help: "Total number of review client bootstrap attempts",
	}, []string{"result"})

	ReviewServiceOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "review_service_online",
		Help: "Whether the review service is reachable (1) or not (0)",
	})

	ReviewEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_events_total",
		Help: "Total number of review events consumed by outcome",
	}, []string{"type", "outcome"})

	LedgerPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_event_ledger_pruned_total",
		Help: "Total number of processed event ledger entries pruned",
	})

	InvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_cache_invalidations_total",
		Help: "Total number of cross-instance cache invalidations",
	}, []string{"direction"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
