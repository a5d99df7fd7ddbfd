package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"finledger/internal/metrics"
	"finledger/internal/services"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Publisher sends ledger changed messages to the broker.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *LedgerChangedMessage) error
}

type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts are cleared. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures that trip the breaker.
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Invalidator publishes ledger changes for downstream views. A broker that
// keeps failing trips the breaker so mutations stop waiting on it.
type Invalidator struct {
	publisher Publisher
	cb        *gobreaker.CircuitBreaker
	timeout   time.Duration
	metrics   metrics.Collector
}

func NewInvalidator(publisher Publisher, config BreakerConfig, collector metrics.Collector) *Invalidator {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}

	inv := &Invalidator{
		publisher: publisher,
		timeout:   publishTimeout,
		metrics:   collector,
	}

	settings := gobreaker.Settings{
		Name:        "amqp-publish",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			inv.metrics.RecordCircuitState(name, state)
		},
	}
	inv.cb = gobreaker.NewCircuitBreaker(settings)
	return inv
}

func (i *Invalidator) Invalidate(ctx context.Context, change services.Change) error {
	msg := NewLedgerChangedMessage(string(change.Operation), change.UserID, change.AccountIDs, change.At)

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	_, err := i.cb.Execute(func() (interface{}, error) {
		return nil, i.publisher.PublishLedgerChanged(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("publish ledger change: %w", ErrCircuitOpen)
	}
	return err
}

// State reports the breaker state, for health checks.
func (i *Invalidator) State() gobreaker.State {
	return i.cb.State()
}
