package observability

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_ObserveRunRecordsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun("orders-sync", "success", 2*time.Second)
	m.ObserveRun("orders-sync", "failure", time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)

	var runsTotal *dto.MetricFamily
	var runDuration *dto.MetricFamily
	for _, f := range families {
		switch f.GetName() {
		case "etl_runs_total":
			runsTotal = f
		case "etl_run_duration_seconds":
			runDuration = f
		}
	}

	require.NotNil(t, runsTotal)
	require.NotNil(t, runDuration)
	assert.Len(t, runsTotal.GetMetric(), 2, "success and failure are distinct label values")
}

func TestMetrics_NilMetricsObserveRunIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("orders-sync", "success", time.Second)
	})
}
