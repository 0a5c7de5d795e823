// Package observability wires run-level Prometheus metrics around pipeline
// execution. Deliberately scoped to the orchestrator's own lifecycle, not
// per-connector throughput, since this system's unit of work is a run, not
// a streaming byte rate.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms the orchestrator updates
// around a run. A nil *Metrics is valid and every method on it is a no-op,
// so metrics collection is opt-in.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewMetrics registers the orchestrator's metrics on registry and returns
// the handle used to record observations.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_runs_total",
			Help: "Total number of pipeline runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_run_duration_seconds",
			Help:    "Pipeline run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
	}

	registry.MustRegister(m.runsTotal, m.runDuration)
	return m
}

// ObserveRun records one terminated run's status and duration.
func (m *Metrics) ObserveRun(pipeline, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}
