package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finledger/internal/amqp"
	"finledger/internal/cache"
	"finledger/internal/guard"
	"finledger/internal/identity"
	"finledger/internal/metrics"
	promcollector "finledger/internal/metrics/prometheus"
	"finledger/internal/middleware/ratelimit"
	"finledger/internal/services"
	"finledger/internal/storage"
)

const metricsNamespace = "finledger"

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// Build opens the store and wires every collaborator of the ledger around it.
// On error everything opened so far is released.
func (f *DefaultFactory) Build(ctx context.Context, config Config) (b *Backend, err error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	b = &Backend{Caches: cache.NewManager()}
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	b.Metrics, b.MetricsHandler, err = f.createMetrics(config)
	if err != nil {
		return nil, err
	}

	b.Store, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	closers = append(closers, b.Store.Close)

	idCache := cache.NewLRUCache[string](config.IdentityCacheSize, config.IdentityCacheTTL)
	b.Caches.Register("identity", idCache)
	b.Resolver = identity.NewTokenResolver(b.Store.Queries(), idCache)

	b.HTTPLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: config.RateLimitPerMinute})
	closers = append(closers, stopper(b.HTTPLimiter))
	createLimiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: config.AccountCreatesPerMinute})
	closers = append(closers, stopper(createLimiter))
	b.Guard = guard.New(createLimiter, config.BlockedUsers)

	var invalidator services.ViewInvalidator = services.NopInvalidator{}
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case err != nil && config.RequireAMQP:
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, continuing without change notifications", "error", err)
		default:
			b.AMQP = client
			closers = append(closers, client.Close)
			invalidator = amqp.NewInvalidator(client, config.Breaker, b.Metrics)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	b.Ledger = services.NewLedger(b.Store, services.Options{
		Identity:    b.Resolver,
		Guard:       b.Guard,
		Invalidator: invalidator,
		Metrics:     b.Metrics,
		Location:    config.Location,
	})

	closers = append(closers, func() error { b.Caches.Stop(); return nil })
	b.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized ledger backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", b.AMQP != nil,
		"metrics", config.Metrics)
	return b, nil
}

func (f *DefaultFactory) createMetrics(config Config) (metrics.Collector, http.Handler, error) {
	if config.Metrics != PrometheusMetrics {
		return metrics.NoOpCollector{}, nil, nil
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, nil, fmt.Errorf("register process collector: %w", err)
	}

	collector := promcollector.NewPrometheusCollector(metricsNamespace)
	if err := collector.Register(registry); err != nil {
		return nil, nil, fmt.Errorf("register ledger metrics: %w", err)
	}
	return collector, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

func stopper(l *ratelimit.Limiter) func() error {
	return func() error {
		l.Stop()
		return nil
	}
}
