package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"finledger/internal/metrics"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "|" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	pc := NewPrometheusCollector("test")
	if err := pc.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pc.RecordOperation("create_account", metrics.OutcomeSuccess, 5*time.Millisecond)
	pc.RecordOperation("create_account", "validation", time.Millisecond)
	pc.RecordInvalidation(metrics.OutcomeFailure)
	pc.RecordDriftRepair()
	pc.RecordCircuitState("amqp-publish", metrics.CircuitOpen)

	got := gather(t, reg)
	want := map[string]float64{
		"test_operations_total|create_account|success":    1,
		"test_operations_total|create_account|validation": 1,
		"test_operation_errors_total|create_account":      1,
		"test_operation_duration_seconds|create_account":  2,
		"test_invalidations_total|failure":                1,
		"test_drift_repairs_total":                        1,
		"test_circuit_opens_total|amqp-publish":           1,
		"test_circuit_state|amqp-publish":                 float64(metrics.CircuitOpen),
	}
	for key, v := range want {
		if got[key] != v {
			t.Errorf("%s = %v, want %v", key, got[key], v)
		}
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	pc := NewPrometheusCollector("dup")
	if err := pc.Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := pc.Register(reg); err == nil {
		t.Fatal("second Register should fail with a duplicate collector")
	}
}
