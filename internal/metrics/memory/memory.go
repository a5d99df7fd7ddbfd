package memory

import (
	"sync"
	"time"

	"finledger/internal/metrics"
)

// MemoryCollector implements metrics.Collector in memory, for tests.
type MemoryCollector struct {
	mu sync.RWMutex

	operations    map[string]map[string]int64
	latencies     map[string][]time.Duration
	invalidations map[string]int64
	driftRepairs  int64
	circuitStates map[string]metrics.CircuitState
}

func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		operations:    make(map[string]map[string]int64),
		latencies:     make(map[string][]time.Duration),
		invalidations: make(map[string]int64),
		circuitStates: make(map[string]metrics.CircuitState),
	}
}

func (mc *MemoryCollector) RecordOperation(op string, outcome string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.operations[op] == nil {
		mc.operations[op] = make(map[string]int64)
	}
	mc.operations[op][outcome]++
	mc.latencies[op] = append(mc.latencies[op], duration)
}

func (mc *MemoryCollector) RecordInvalidation(outcome string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.invalidations[outcome]++
}

func (mc *MemoryCollector) RecordDriftRepair() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.driftRepairs++
}

func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.circuitStates[name] = state
}

// Operations returns how many times op ended with outcome.
func (mc *MemoryCollector) Operations(op, outcome string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.operations[op][outcome]
}

func (mc *MemoryCollector) Invalidations(outcome string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.invalidations[outcome]
}

func (mc *MemoryCollector) DriftRepairs() int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.driftRepairs
}

func (mc *MemoryCollector) CircuitState(name string) metrics.CircuitState {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.circuitStates[name]
}
