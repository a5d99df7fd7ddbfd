package prometheus

import (
	"time"

	"finledger/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements metrics.Collector for Prometheus.
type PrometheusCollector struct {
	namespace string

	operations      *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	latency         *prometheus.HistogramVec

	invalidations *prometheus.CounterVec
	driftRepairs  prometheus.Counter

	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
}

// NewPrometheusCollector creates a collector whose metric names are prefixed
// with namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		namespace: namespace,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of ledger operations per operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_errors_total",
				Help:      "Total number of failed ledger operations per operation",
			},
			[]string{"operation"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Ledger operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3s
			},
			[]string{"operation"},
		),
		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidations_total",
				Help:      "Total number of change notifications per outcome",
			},
			[]string{"outcome"},
		),
		driftRepairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_repairs_total",
				Help:      "Total number of account balances repaired by recompute",
			},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
}

// Register registers all metrics with the given registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.operations,
		pc.operationErrors,
		pc.latency,
		pc.invalidations,
		pc.driftRepairs,
		pc.circuitOpens,
		pc.circuitState,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func (pc *PrometheusCollector) RecordOperation(op string, outcome string, duration time.Duration) {
	pc.operations.WithLabelValues(op, outcome).Inc()
	if outcome != metrics.OutcomeSuccess {
		pc.operationErrors.WithLabelValues(op).Inc()
	}
	pc.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordInvalidation(outcome string) {
	pc.invalidations.WithLabelValues(outcome).Inc()
}

func (pc *PrometheusCollector) RecordDriftRepair() {
	pc.driftRepairs.Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}
