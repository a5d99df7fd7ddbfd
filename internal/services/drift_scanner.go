package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finledger/internal/metrics"
	"finledger/internal/storage"
)

// DriftScannerConfig holds configuration for the drift scanner
type DriftScannerConfig struct {
	// ScanInterval is how often every account is recomputed (default: 1h)
	ScanInterval time.Duration
}

func DefaultDriftScannerConfig() DriftScannerConfig {
	return DriftScannerConfig{
		ScanInterval: 1 * time.Hour,
	}
}

// ScanReport summarises one full pass over the ledger.
type ScanReport struct {
	Checked  int
	Repaired int
	Failed   int
}

// DriftScanner periodically recomputes every account balance from its
// transaction log and repairs any drift it finds.
type DriftScanner struct {
	store      *storage.SQLiteRepository
	reconciler *BalanceReconciler
	metrics    metrics.Collector
	config     DriftScannerConfig

	mu      sync.Mutex
	running bool
	stop    func()
	doneCh  chan struct{}
}

func NewDriftScanner(store *storage.SQLiteRepository, reconciler *BalanceReconciler, collector metrics.Collector, config DriftScannerConfig) *DriftScanner {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultDriftScannerConfig().ScanInterval
	}
	return &DriftScanner{
		store:      store,
		reconciler: reconciler,
		metrics:    collector,
		config:     config,
	}
}

// Start begins the scan loop. Returns an error if already running.
func (s *DriftScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("drift scanner is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	doneCh := make(chan struct{})
	s.running = true
	s.stop = cancel
	s.doneCh = doneCh
	s.mu.Unlock()

	go s.runLoop(runCtx, doneCh)

	slog.InfoContext(ctx, "Drift scanner started", "scan_interval", s.config.ScanInterval)
	return nil
}

// Stop cancels the loop, including a pass in progress, and waits for it to
// exit. It is safe to call repeatedly and concurrently; a call that times
// out leaves the loop winding down and a later call can wait again.
func (s *DriftScanner) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stop, doneCh := s.stop, s.doneCh
	s.mu.Unlock()

	stop()

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Drift scanner stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Drift scanner stop timed out")
		return ctx.Err()
	}
}

func (s *DriftScanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *DriftScanner) runLoop(ctx context.Context, doneCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.stop = nil
		s.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	// Scan immediately on startup
	s.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *DriftScanner) scan(ctx context.Context) {
	report, err := s.ScanOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.ErrorContext(ctx, "Drift scan failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "Drift scan completed",
		"checked", report.Checked,
		"repaired", report.Repaired,
		"failed", report.Failed)
}

// ScanOnce recomputes every account once. A failing account is logged and
// skipped; the pass continues with the rest.
func (s *DriftScanner) ScanOnce(ctx context.Context) (ScanReport, error) {
	var report ScanReport

	refs, err := s.store.Queries().ListAccountRefs(ctx)
	if err != nil {
		return report, fmt.Errorf("list accounts: %w", err)
	}

	for _, ref := range refs {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		report.Checked++
		drift, err := s.reconciler.Recompute(ctx, ref.UserID, ref.AccountID)
		if err != nil {
			report.Failed++
			slog.ErrorContext(ctx, "Failed to recompute balance",
				"user_id", ref.UserID, "account_id", ref.AccountID, "error", err)
			continue
		}
		if drift.Repaired {
			report.Repaired++
			s.metrics.RecordDriftRepair()
		}
	}
	return report, nil
}
