// Package metrics provides Prometheus metrics for the database pool.
package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dbPoolConnections = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "radiorelay",
		Subsystem: "db",
		Name:      "pool_connections",
		Help:      "Number of database connections by state",
	},
	[]string{"state"},
)

// RecordDBPoolMetrics updates database pool metrics.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	dbPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	dbPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	dbPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}
