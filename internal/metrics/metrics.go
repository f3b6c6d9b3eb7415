package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "growth_sync_runs_total",
			Help: "Snapshot runs per account by sync type and final status",
		},
		[]string{"sync_type", "status"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "growth_sync_run_duration_seconds",
			Help:    "Duration of a single account snapshot run",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"sync_type"},
	)

	BatchAccountsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "growth_batch_accounts_total",
			Help: "Accounts visited by batch collections by outcome",
		},
		[]string{"batch", "outcome"},
	)

	InstagramRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "growth_instagram_requests_total",
			Help: "Instagram Graph API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "growth_token_refresh_total",
			Help: "Credential refresh attempts by result",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "growth_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	AnalyticsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "growth_analytics_cache_total",
			Help: "Growth analytics cache lookups by result",
		},
		[]string{"result"},
	)
)
