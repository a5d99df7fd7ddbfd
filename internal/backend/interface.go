package backend

import (
	"context"
	"net/http"
	"time"

	"finledger/internal/amqp"
	"finledger/internal/cache"
	"finledger/internal/guard"
	"finledger/internal/identity"
	"finledger/internal/metrics"
	"finledger/internal/middleware/ratelimit"
	"finledger/internal/services"
	"finledger/internal/storage"
)

// CleanupFunc releases what a Backend holds.
type CleanupFunc func() error

// Backend is the wired object graph the binaries run on.
type Backend struct {
	Store    *storage.SQLiteRepository
	Ledger   *services.Ledger
	Resolver *identity.TokenResolver
	Guard    *guard.Guard

	// HTTPLimiter throttles the API per client IP.
	HTTPLimiter *ratelimit.Limiter

	// AMQP is nil when no broker is configured or it was unreachable.
	AMQP *amqp.Client

	Metrics metrics.Collector
	// MetricsHandler serves the Prometheus registry; nil when metrics are off.
	MetricsHandler http.Handler

	Caches  *cache.Manager
	Cleanup CleanupFunc
}

// Factory builds a Backend from configuration.
type Factory interface {
	Build(ctx context.Context, config Config) (*Backend, error)
}

type Config struct {
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireAMQP makes an unreachable broker fatal instead of a warning.
	RequireAMQP bool
	Breaker     amqp.BreakerConfig

	Metrics MetricsType

	RateLimitPerMinute      int
	AccountCreatesPerMinute int
	BlockedUsers            []string

	IdentityCacheSize int
	IdentityCacheTTL  time.Duration

	Location *time.Location
}

// MetricsType selects the metrics sink.
type MetricsType string

const (
	PrometheusMetrics MetricsType = "prometheus"
	NoMetrics         MetricsType = "none"
)

func (mt MetricsType) String() string {
	return string(mt)
}

func (mt MetricsType) IsValid() bool {
	switch mt {
	case PrometheusMetrics, NoMetrics:
		return true
	default:
		return false
	}
}
