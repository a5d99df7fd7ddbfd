package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/metrics"
	"finledger/internal/services"
)

// Recomputer rebuilds one account's balance from its transaction log.
type Recomputer interface {
	Recompute(ctx context.Context, ownerID, accountID string) (*services.Drift, error)
}

// DriftWorker re-checks the balances touched by every committed ledger
// change. The ledger keeps balances exact on its own; this catches drift
// introduced outside it, such as manual edits to the database.
type DriftWorker struct {
	reconciler Recomputer
	metrics    metrics.Collector
}

func NewDriftWorker(reconciler Recomputer, collector metrics.Collector) *DriftWorker {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &DriftWorker{reconciler: reconciler, metrics: collector}
}

// HandleLedgerChanged recomputes every account named in msg. Accounts that
// no longer resolve for the user are skipped; any other failure is returned
// so the message is redelivered.
func (w *DriftWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if msg.Operation == string(services.OpRecompute) {
		return nil
	}

	slog.DebugContext(ctx, "Processing ledger changed message",
		"operation", msg.Operation,
		"user_id", msg.UserID,
		"accounts", len(msg.AccountIDs))

	var failed []error
	for _, accountID := range msg.AccountIDs {
		drift, err := w.reconciler.Recompute(ctx, msg.UserID, accountID)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Account from ledger change not found",
				"user_id", msg.UserID, "account_id", accountID)
			continue
		}
		if err != nil {
			failed = append(failed, fmt.Errorf("recompute account %s: %w", accountID, err))
			continue
		}
		if drift.Repaired {
			w.metrics.RecordDriftRepair()
			slog.WarnContext(ctx, "Drift found after ledger change",
				"operation", msg.Operation,
				"user_id", msg.UserID,
				"account_id", accountID,
				"drift_cents", drift.Drift.Cents)
		}
	}
	return errors.Join(failed...)
}
