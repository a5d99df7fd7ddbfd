package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finledger/internal/backend"
	"finledger/internal/cli"
	applog "finledger/internal/log"
	"finledger/internal/services"
	"finledger/internal/worker"
)

func main() {
	os.Exit(run())
}

// run returns the exit code instead of exiting so deferred cleanup runs.
func run() int {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		return 1
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	b, err := cli.BuildBackend(ctx, logger, cfg, func(c *backend.Config) {
		c.RequireAMQP = true
		c.Metrics = backend.NoMetrics
	})
	if err != nil {
		return 1
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	reconciler := b.Ledger.Reconciler()
	driftWorker := worker.NewDriftWorker(reconciler, b.Metrics)
	scanner := services.NewDriftScanner(b.Store, reconciler, b.Metrics, services.DriftScannerConfig{
		ScanInterval: cfg.DriftScanInterval,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := b.AMQP.ConsumeLedgerChanged(gctx, driftWorker.HandleLedgerChanged)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := scanner.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return scanner.Stop(stopCtx)
	})

	logger.Info("Starting ledger-worker",
		"queue", cfg.AMQPQueue,
		"drift_scan_interval", cfg.DriftScanInterval)

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		return 1
	}
	logger.Info("Worker stopped gracefully")
	return 0
}
