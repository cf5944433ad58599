// Package metric manages the registration and lifecycle of the engine's
// Prometheus metrics.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Steve19802/workbench/errors"
)

// Metrics holds the core processing-graph metrics.
type Metrics struct {
	// PropagationsTotal counts completed propagation chains by origin block
	PropagationsTotal *prometheus.CounterVec
	// DeliveriesTotal counts individual port deliveries by destination block
	DeliveriesTotal *prometheus.CounterVec
	// BlockFaultsTotal counts isolated block computation faults
	BlockFaultsTotal *prometheus.CounterVec
	// ComputeDuration observes strategy execution time by block type
	ComputeDuration *prometheus.HistogramVec
	// MutationsTotal counts topology mutations by operation and status
	MutationsTotal *prometheus.CounterVec
	// ActiveBlocks tracks the number of blocks currently in the graph
	ActiveBlocks prometheus.Gauge
}

// Registry wraps a Prometheus registry with duplicate-registration guarding
// and the pre-registered core graph metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registered         map[string]prometheus.Collector
	mu                 sync.Mutex
}

// NewRegistry creates a metrics registry with the core graph metrics
// registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		registered:         make(map[string]prometheus.Collector),
	}

	r.Metrics = &Metrics{
		PropagationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workbench",
			Subsystem: "graph",
			Name:      "propagations_total",
			Help:      "Total number of completed propagation chains",
		}, []string{"block"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workbench",
			Subsystem: "graph",
			Name:      "deliveries_total",
			Help:      "Total number of values delivered to input ports",
		}, []string{"block"}),
		BlockFaultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workbench",
			Subsystem: "graph",
			Name:      "block_faults_total",
			Help:      "Total number of isolated block computation faults",
		}, []string{"block"}),
		ComputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workbench",
			Subsystem: "graph",
			Name:      "compute_duration_seconds",
			Help:      "Strategy execution duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"block_type"}),
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workbench",
			Subsystem: "graph",
			Name:      "mutations_total",
			Help:      "Total number of topology mutations by operation and status",
		}, []string{"operation", "status"}),
		ActiveBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workbench",
			Subsystem: "graph",
			Name:      "active_blocks",
			Help:      "Number of blocks currently in the graph",
		}),
	}

	r.prometheusRegistry.MustRegister(
		r.Metrics.PropagationsTotal,
		r.Metrics.DeliveriesTotal,
		r.Metrics.BlockFaultsTotal,
		r.Metrics.ComputeDuration,
		r.Metrics.MutationsTotal,
		r.Metrics.ActiveBlocks,
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry, e.g. for
// exposing a scrape handler.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Register adds a caller-owned collector under a namespaced key. Duplicate
// keys and duplicate collectors are rejected.
func (r *Registry) Register(owner, name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", owner, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metric %s", errors.ErrDuplicateName, key),
			"Registry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", "Register", "duplicate collector registration")
		}
		return errors.Wrap(err, "Registry", "Register", "prometheus registration")
	}

	r.registered[key] = collector
	return nil
}

// Unregister removes a caller-owned collector. It reports whether the
// collector was registered.
func (r *Registry) Unregister(owner, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", owner, name)
	collector, exists := r.registered[key]
	if !exists {
		return false
	}

	delete(r.registered, key)
	return r.prometheusRegistry.Unregister(collector)
}
