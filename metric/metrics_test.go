package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/errors"
)

func TestNewRegistryExposesCoreMetrics(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.Metrics)

	r.Metrics.PropagationsTotal.WithLabelValues("Source").Inc()
	r.Metrics.DeliveriesTotal.WithLabelValues("Sink").Add(3)
	r.Metrics.BlockFaultsTotal.WithLabelValues("Faulty").Inc()
	r.Metrics.ComputeDuration.WithLabelValues("process.gain").Observe(0.001)
	r.Metrics.MutationsTotal.WithLabelValues("connect", "applied").Inc()
	r.Metrics.ActiveBlocks.Set(4)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	for _, want := range []string{
		"workbench_graph_propagations_total",
		"workbench_graph_deliveries_total",
		"workbench_graph_block_faults_total",
		"workbench_graph_compute_duration_seconds",
		"workbench_graph_mutations_total",
		"workbench_graph_active_blocks",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "scope_history_samples"})
	require.NoError(t, r.Register("scope", "history", gauge))

	err := r.Register("scope", "history", prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "scope_history_samples_other"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateName)

	// same collector under a different key collides in prometheus itself
	err = r.Register("scope", "history2", gauge)
	require.Error(t, err)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "scope_history_samples"})
	require.NoError(t, r.Register("scope", "history", gauge))

	assert.True(t, r.Unregister("scope", "history"))
	assert.False(t, r.Unregister("scope", "history"))

	// the key is free again after unregistering
	require.NoError(t, r.Register("scope", "history", gauge))
}
