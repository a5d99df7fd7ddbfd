package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finledger/internal/cli"
	apphttp "finledger/internal/http"
	applog "finledger/internal/log"
)

func main() {
	os.Exit(run())
}

// run returns the exit code instead of exiting so deferred cleanup runs.
func run() int {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	b, err := cli.BuildBackend(ctx, logger, cfg, nil)
	if err != nil {
		return 1
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Ledger:  b.Ledger,
		Limiter: b.HTTPLimiter,
		Logger:  logger.WithComponent(applog.ComponentHTTP),
		Ready:   b.Store.Ping,
		Metrics: b.MetricsHandler,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	b.Caches.StartCleanup(ctx, 10*time.Minute)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledgerd", "port", cfg.Port, "amqp_enabled", b.AMQP != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		return 1
	}
	logger.Info("Server stopped gracefully")
	return 0
}
