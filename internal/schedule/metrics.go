package schedule

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "radiorelay"

var (
	deletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "deletions_total",
			Help:      "Delete attempts by final disposition (done, failed, retry)",
		},
		[]string{"disposition"},
	)

	dueRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "due_records",
			Help:      "Records due at the start of the last reconciliation cycle",
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "cycle_duration_seconds",
			Help:      "Reconciliation cycle duration",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
	)

	storageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "storage_errors_total",
			Help:      "Cycles aborted because the storage backend was unavailable",
		},
	)
)

func recordDeletion(disposition string) {
	deletionsTotal.WithLabelValues(disposition).Inc()
}

func recordDueRecords(count int) {
	dueRecords.Set(float64(count))
}

func recordCycleDuration(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}

func recordStorageError() {
	storageErrors.Inc()
}
