package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecomputeRunsTotal counts full allocator recompute passes by trigger.
	RecomputeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lutece_featured_recompute_runs_total",
		Help: "Number of featured schedule recompute passes.",
	}, []string{"trigger"})

	// RecomputeErrorsTotal counts failed recompute passes by stage.
	RecomputeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lutece_featured_recompute_errors_total",
		Help: "Number of failed featured schedule recompute passes.",
	}, []string{"stage"})

	// RecomputeDuration observes recompute pass latency.
	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lutece_featured_recompute_duration_seconds",
		Help:    "Duration of featured schedule recompute passes.",
		Buckets: prometheus.DefBuckets,
	})

	// ScheduledEntries tracks the size of the scheduled pool after recompute.
	ScheduledEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lutece_featured_scheduled_entries",
		Help: "Entries currently in scheduled status.",
	})

	// SweepTicksTotal counts periodic sweep iterations.
	SweepTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lutece_featured_sweep_ticks_total",
		Help: "Number of periodic sweep iterations.",
	})

	// APIRequestsTotal counts admin API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lutece_api_requests_total",
		Help: "Admin API requests by endpoint, method and status code.",
	}, []string{"endpoint", "method", "status"})

	// APIRequestDuration observes admin API latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lutece_api_request_duration_seconds",
		Help:    "Admin API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})

	// APIActiveConnections tracks in-flight admin API requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lutece_api_active_connections",
		Help: "In-flight admin API requests.",
	})

	// DatabaseQueryDuration observes gorm operation latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lutece_db_query_duration_seconds",
		Help:    "Database operation duration by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lutece_db_errors_total",
		Help: "Failed database operations by operation.",
	}, []string{"operation"})

	// DatabaseConnectionsActive tracks open connections in the pool.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lutece_db_connections_active",
		Help: "Open database connections.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
