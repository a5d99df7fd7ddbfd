package backend

import (
	"fmt"

	"finledger/internal/amqp"
	"finledger/internal/config"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	metricsType := NoMetrics
	if appConfig.MetricsEnabled {
		metricsType = PrometheusMetrics
	}

	return Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		Breaker:      amqp.DefaultBreakerConfig(),

		Metrics: metricsType,

		RateLimitPerMinute:      appConfig.RateLimitPerMinute,
		AccountCreatesPerMinute: appConfig.AccountCreatesPerMinute,
		BlockedUsers:            appConfig.BlockedUsers,

		IdentityCacheSize: appConfig.IdentityCacheSize,
		IdentityCacheTTL:  appConfig.IdentityCacheTTL,

		Location: appConfig.Location(),
	}, nil
}

func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}
	if !c.Metrics.IsValid() {
		return fmt.Errorf("invalid metrics type: %s", c.Metrics)
	}
	if c.RequireAMQP && c.AMQPURL == "" {
		return fmt.Errorf("AMQP URL is required")
	}
	if c.IdentityCacheSize < 1 {
		return fmt.Errorf("identity cache size must be positive")
	}
	return nil
}
