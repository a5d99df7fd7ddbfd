// Package cli holds the bootstrap steps shared by the finledger binaries.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"finledger/internal/backend"
	"finledger/internal/config"
	applog "finledger/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger for component at the configured
// level and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logCfg := applog.DefaultConfig()
	logCfg.Level = cfg.SlogLevel()
	logCfg.Component = component
	logger := applog.New(logCfg)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and exits the process when it is invalid.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// BuildBackend wires the backend. mutate adjusts the derived backend config
// before it is built. Failures are logged here and returned.
func BuildBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config, mutate func(*backend.Config)) (*backend.Backend, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		return nil, err
	}
	if mutate != nil {
		mutate(&bcfg)
	}
	b, err := backend.NewFactory(logger.Logger).Build(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "path", cfg.SQLiteDBPath)
		return nil, err
	}
	return b, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}
