package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP. An empty URL disables change notifications.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Abuse protection
	RateLimitPerMinute      int
	AccountCreatesPerMinute int
	BlockedUsers            []string

	// Identity
	IdentityCacheSize int
	IdentityCacheTTL  time.Duration

	// Ledger
	BudgetTimezone    string
	DriftScanInterval time.Duration

	// Observability
	LogLevel       string
	MetricsEnabled bool
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finledger.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_changed"),

		RateLimitPerMinute:      getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		AccountCreatesPerMinute: getEnvInt("ACCOUNT_CREATES_PER_MINUTE", 10),
		BlockedUsers:            getEnvList("BLOCKED_USERS"),

		IdentityCacheSize: getEnvInt("IDENTITY_CACHE_SIZE", 1000),
		IdentityCacheTTL:  getEnvDuration("IDENTITY_CACHE_TTL", 5*time.Minute),

		BudgetTimezone:    getEnv("BUDGET_TIMEZONE", "UTC"),
		DriftScanInterval: getEnvDuration("DRIFT_SCAN_INTERVAL", time.Hour),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	return cfg
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	if c.AccountCreatesPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid account create limit %d: must be at least 1", c.AccountCreatesPerMinute))
	}

	if c.IdentityCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid identity cache size %d: must be at least 1", c.IdentityCacheSize))
	}
	if c.IdentityCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid identity cache TTL %v: must be at least 1 second", c.IdentityCacheTTL))
	}

	if _, err := time.LoadLocation(c.BudgetTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid budget timezone '%s': %v", c.BudgetTimezone, err))
	}

	if c.DriftScanInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid drift scan interval %v: must be at least 1 minute", c.DriftScanInterval))
	} else if c.DriftScanInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid drift scan interval %v: must be at most 7 days", c.DriftScanInterval))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location is the time zone budget months are cut in. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BudgetTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlogLevel is LOG_LEVEL as a slog level, Info when unparsable.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be debug, info, warn or error", s)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
