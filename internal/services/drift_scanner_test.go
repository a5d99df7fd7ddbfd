package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finledger/internal/core"
	"finledger/internal/storage"
)

func TestDefaultDriftScannerConfig(t *testing.T) {
	config := DefaultDriftScannerConfig()
	if config.ScanInterval != 1*time.Hour {
		t.Errorf("expected ScanInterval 1h, got %v", config.ScanInterval)
	}

	scanner := NewDriftScanner(nil, nil, nil, DriftScannerConfig{})
	if scanner.config.ScanInterval != 1*time.Hour {
		t.Errorf("zero interval should fall back to default, got %v", scanner.config.ScanInterval)
	}
}

func TestDriftScanner_StopNotRunning(t *testing.T) {
	scanner := NewDriftScanner(nil, nil, nil, DefaultDriftScannerConfig())
	if scanner.IsRunning() {
		t.Error("scanner should not be running initially")
	}
	if err := scanner.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestDriftScanner_StartTwice(t *testing.T) {
	scanner := NewDriftScanner(nil, nil, nil, DefaultDriftScannerConfig())

	scanner.mu.Lock()
	scanner.running = true
	scanner.mu.Unlock()

	if err := scanner.Start(context.Background()); err == nil {
		t.Error("expected error when starting already running scanner")
	}
}

func TestDriftScanner_ScanOnceRepairsEveryAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred1, user1 := f.user(t)
	cred2, user2 := f.user(t)
	a := f.account(t, cred1, "10", false)
	b := f.account(t, cred2, "20", false)
	f.account(t, cred2, "30", false)

	tamper := func(userID, accountID string) {
		err := f.store.InTx(ctx, userID, func(q *storage.Queries) error {
			return q.SetBalance(ctx, userID, accountID, 999, fixedNow)
		})
		if err != nil {
			t.Fatalf("SetBalance: %v", err)
		}
	}
	tamper(user1, a.ID)
	tamper(user2, b.ID)

	scanner := NewDriftScanner(f.store, f.ledger.Reconciler(), f.metrics, DefaultDriftScannerConfig())
	report, err := scanner.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if report.Checked != 3 || report.Repaired != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	f.assertBalanceMatchesLog(t, user1, a.ID)
	f.assertBalanceMatchesLog(t, user2, b.ID)
	if n := f.metrics.DriftRepairs(); n != 2 {
		t.Errorf("drift repairs = %d, want 2", n)
	}

	report, err = scanner.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("second ScanOnce: %v", err)
	}
	if report.Repaired != 0 {
		t.Errorf("second pass repaired %d accounts", report.Repaired)
	}
}

func TestDriftScanner_StartStop(t *testing.T) {
	f := newFixture(t)
	cred, userID := f.user(t)
	a := f.account(t, cred, "5", false)

	ctx := context.Background()
	if err := f.store.InTx(ctx, userID, func(q *storage.Queries) error {
		return q.SetBalance(ctx, userID, a.ID, 0, fixedNow)
	}); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	scanner := NewDriftScanner(f.store, f.ledger.Reconciler(), f.metrics, DriftScannerConfig{ScanInterval: time.Hour})
	if err := scanner.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.metrics.DriftRepairs() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := scanner.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if scanner.IsRunning() {
		t.Error("scanner still running after Stop")
	}
	if got := f.balance(t, userID, a.ID); got != core.MustParseMoney("5").Cents {
		t.Errorf("startup scan did not repair balance: %d", got)
	}
}

func TestDriftScanner_RepeatedStopWhileScanBlocked(t *testing.T) {
	f := newFixture(t)
	cred, userID := f.user(t)
	f.account(t, cred, "5", false)

	ctx := context.Background()
	held := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- f.store.InTx(ctx, userID, func(q *storage.Queries) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer func() {
		close(release)
		if err := <-holderDone; err != nil {
			t.Errorf("holder InTx: %v", err)
		}
	}()

	scanner := NewDriftScanner(f.store, f.ledger.Reconciler(), f.metrics, DriftScannerConfig{ScanInterval: time.Hour})
	if err := scanner.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	expired, cancelExpired := context.WithCancel(ctx)
	cancelExpired()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scanner.Stop(expired); err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Stop with expired context: %v", err)
			}
		}()
	}
	wg.Wait()

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := scanner.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if scanner.IsRunning() {
		t.Fatal("scanner still running after Stop")
	}

	if err := scanner.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := scanner.Stop(stopCtx); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
}

func TestDriftScanner_RestartAfterContextCancel(t *testing.T) {
	f := newFixture(t)
	scanner := NewDriftScanner(f.store, f.ledger.Reconciler(), f.metrics, DriftScannerConfig{ScanInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	if err := scanner.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for scanner.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if scanner.IsRunning() {
		t.Fatal("scanner still running after its context was cancelled")
	}

	if err := scanner.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := scanner.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
