package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	// DBConnectionsOpen is the total number of open connections to the database
	DBConnectionsOpen = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Total number of open database connections",
		},
	)

	// DBConnectionsMaxOpen is the maximum number of open database connections
	DBConnectionsMaxOpen = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_max_open",
			Help:      "Maximum number of open database connections allowed",
		},
	)

	// DBQueryDuration records database query latency
	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			// Buckets: 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend", "operation"},
	)

	// DBErrors counts database errors by type
	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"backend", "operation", "error_type"},
	)
)

// PoolStats is the subset of connection pool statistics exported as gauges.
type PoolStats struct {
	Open    int
	MaxOpen int
}

// ObservePool records a snapshot of connection pool statistics.
func ObservePool(stats PoolStats) {
	DBConnectionsOpen.Set(float64(stats.Open))
	DBConnectionsMaxOpen.Set(float64(stats.MaxOpen))
}

// RecordQuery records metrics for a database query
// Call this function with defer to capture duration:
//
//	start := time.Now()
//	defer func() { metrics.RecordQuery("postgres", "upsert", start, err) }()
func RecordQuery(backend, operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	DBQueryDuration.WithLabelValues(backend, operation).Observe(duration)

	if err != nil {
		errorType := "query_error"
		if errors.Is(err, context.Canceled) {
			errorType = "canceled"
		} else if errors.Is(err, context.DeadlineExceeded) {
			errorType = "timeout"
		}
		DBErrors.WithLabelValues(backend, operation, errorType).Inc()
	}
}
