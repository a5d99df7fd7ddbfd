package metrics

import (
	"time"
)

// Collector receives ledger operation metrics. Implementations export them to
// a backend; the ledger itself never reads them back.
type Collector interface {
	// RecordOperation records one facade call. outcome is "success" or the
	// error kind that ended it.
	RecordOperation(op string, outcome string, duration time.Duration)

	// RecordInvalidation records a change notification attempt.
	RecordInvalidation(outcome string)

	// RecordDriftRepair records a cached balance overwritten by a recompute.
	RecordDriftRepair()

	// RecordCircuitState records the broker circuit breaker state.
	RecordCircuitState(name string, state CircuitState)
}

// Outcome labels shared by every collector.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is used when metrics are disabled.
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(op string, outcome string, duration time.Duration) {}

func (NoOpCollector) RecordInvalidation(outcome string) {}

func (NoOpCollector) RecordDriftRepair() {}

func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}
