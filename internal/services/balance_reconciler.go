package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"finledger/internal/core"
	"finledger/internal/storage"
)

// MaxBulkDelete caps how many ids a single delete may name.
const MaxBulkDelete = 500

// BalanceReconciler keeps each account's cached balance equal to the signed
// sum of its transactions. Every path that adds or removes transactions goes
// through it, inside the same atomic unit as the row changes.
type BalanceReconciler struct {
	store *storage.SQLiteRepository
	now   func() time.Time
}

func NewBalanceReconciler(store *storage.SQLiteRepository, now func() time.Time) *BalanceReconciler {
	if now == nil {
		now = time.Now
	}
	return &BalanceReconciler{store: store, now: now}
}

// AccountDelta is the balance change applied to one account.
type AccountDelta struct {
	AccountID string     `json:"accountId"`
	Delta     core.Money `json:"delta"`
	Balance   core.Money `json:"balance"`
}

type DeleteSummary struct {
	Deleted  int            `json:"deleted"`
	Accounts []AccountDelta `json:"accounts"`
}

// AccountIDs lists the accounts touched by the delete.
func (s *DeleteSummary) AccountIDs() []string {
	ids := make([]string, len(s.Accounts))
	for i, a := range s.Accounts {
		ids[i] = a.AccountID
	}
	return ids
}

// Drift is the difference between an account's cached balance and the
// balance its transaction log implies.
type Drift struct {
	AccountID string     `json:"accountId"`
	Stored    core.Money `json:"stored"`
	Computed  core.Money `json:"computed"`
	Drift     core.Money `json:"drift"`
	Repaired  bool       `json:"repaired"`
}

// ReversalDeltas groups transactions by account and sums the delta that
// undoes their original effect: removing an expense gives the money back,
// removing income takes it away. Output is ordered by account id. A sum that
// overflows the cent range fails with core.ErrValidation.
func ReversalDeltas(txs []core.Transaction) ([]AccountDelta, error) {
	sums := make(map[string]core.Money)
	for _, t := range txs {
		sum, err := sums[t.AccountID].Add(t.Kind.Reversal(t.Amount))
		if err != nil {
			return nil, fmt.Errorf("%w: reversal for account %s: %v", core.ErrValidation, t.AccountID, err)
		}
		sums[t.AccountID] = sum
	}
	out := make([]AccountDelta, 0, len(sums))
	for id, delta := range sums {
		out = append(out, AccountDelta{AccountID: id, Delta: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// normalizeIDs trims, drops blanks and removes duplicates while keeping order.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DeleteTransactions removes the owner's transactions among ids and reverses
// their effect on every affected balance, all in one atomic unit.
//
// Ids that are unknown or belong to someone else are dropped silently. If
// nothing resolves the call fails with core.ErrEmptySelection and nothing is
// written, which also makes repeating a delete harmless.
func (r *BalanceReconciler) DeleteTransactions(ctx context.Context, ownerID string, ids []string) (*DeleteSummary, error) {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return nil, core.ErrEmptySelection
	}
	if len(ids) > MaxBulkDelete {
		return nil, fmt.Errorf("%w: at most %d transactions can be deleted at once", core.ErrValidation, MaxBulkDelete)
	}

	var summary *DeleteSummary
	err := r.store.InTx(ctx, ownerID, func(q *storage.Queries) error {
		resolved, err := q.GetTransactionsForOwner(ctx, ownerID, ids)
		if err != nil {
			return fmt.Errorf("resolve transactions: %w", err)
		}
		if len(resolved) == 0 {
			return core.ErrEmptySelection
		}

		deleted, err := q.DeleteTransactionsForOwner(ctx, ownerID, transactionIDs(resolved))
		if err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		if deleted != int64(len(resolved)) {
			return fmt.Errorf("%w: deleted %d of %d resolved transactions", core.ErrStoreFailure, deleted, len(resolved))
		}

		now := r.now()
		deltas, err := ReversalDeltas(resolved)
		if err != nil {
			return err
		}
		for i, d := range deltas {
			balance, err := q.IncrementBalance(ctx, ownerID, d.AccountID, d.Delta.Cents, now)
			if err != nil {
				return fmt.Errorf("apply delta to account %s: %w", d.AccountID, err)
			}
			deltas[i].Balance = core.Money{Cents: balance}
		}

		summary = &DeleteSummary{Deleted: len(resolved), Accounts: deltas}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Transactions deleted",
		"user_id", ownerID,
		"requested", len(ids),
		"deleted", summary.Deleted,
		"accounts", len(summary.Accounts))
	return summary, nil
}

func transactionIDs(txs []core.Transaction) []string {
	ids := make([]string, len(txs))
	for i, t := range txs {
		ids[i] = t.ID
	}
	return ids
}

// applyCreation records t and applies its live effect to the account balance.
// It must run inside an atomic unit.
func (r *BalanceReconciler) applyCreation(ctx context.Context, q *storage.Queries, t core.Transaction) (core.Money, error) {
	if err := q.InsertTransaction(ctx, t); err != nil {
		return core.Money{}, fmt.Errorf("insert transaction: %w", err)
	}
	balance, err := q.IncrementBalance(ctx, t.UserID, t.AccountID, t.Kind.Signed(t.Amount).Cents, r.now())
	if err != nil {
		return core.Money{}, fmt.Errorf("apply transaction to account %s: %w", t.AccountID, err)
	}
	return core.Money{Cents: balance}, nil
}

// CreateTransaction validates spec and appends it to the owner's account.
func (r *BalanceReconciler) CreateTransaction(ctx context.Context, ownerID string, spec core.TransactionSpec) (*core.Transaction, core.Money, error) {
	amount, err := spec.Validate()
	if err != nil {
		return nil, core.Money{}, err
	}
	status := spec.Status
	if status == "" {
		status = core.StatusCompleted
	}

	now := r.now()
	t := core.Transaction{
		ID:          uuid.NewString(),
		AccountID:   spec.AccountID,
		UserID:      ownerID,
		Kind:        spec.Kind,
		Amount:      amount,
		Description: strings.TrimSpace(spec.Description),
		Date:        spec.Date.UTC(),
		Category:    strings.TrimSpace(spec.Category),
		Status:      status,
		CreatedAt:   now.UTC(),
	}

	var balance core.Money
	err = r.store.InTx(ctx, ownerID, func(q *storage.Queries) error {
		if _, err := q.GetAccountForOwner(ctx, ownerID, spec.AccountID); err != nil {
			return err
		}
		balance, err = r.applyCreation(ctx, q, t)
		return err
	})
	if err != nil {
		return nil, core.Money{}, err
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"user_id", ownerID,
		"account_id", t.AccountID,
		"transaction_id", t.ID,
		"kind", t.Kind,
		"amount_cents", t.Amount.Cents,
		"balance_cents", balance.Cents)
	return &t, balance, nil
}

// Recompute rebuilds the account's balance from its full transaction log and
// overwrites the cached value when they disagree. It is a repair tool, not
// part of any hot path.
func (r *BalanceReconciler) Recompute(ctx context.Context, ownerID, accountID string) (*Drift, error) {
	var drift *Drift
	err := r.store.InTx(ctx, ownerID, func(q *storage.Queries) error {
		account, err := q.GetAccountForOwner(ctx, ownerID, accountID)
		if err != nil {
			return err
		}
		computed, err := q.SumSignedAmounts(ctx, ownerID, accountID)
		if err != nil {
			return fmt.Errorf("sum transactions: %w", err)
		}

		drift = &Drift{
			AccountID: accountID,
			Stored:    account.Balance,
			Computed:  core.Money{Cents: computed},
			Drift:     core.Money{Cents: account.Balance.Cents - computed},
		}
		if drift.Drift.IsZero() {
			return nil
		}
		if err := q.SetBalance(ctx, ownerID, accountID, computed, r.now()); err != nil {
			return fmt.Errorf("repair balance: %w", err)
		}
		drift.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if drift.Repaired {
		slog.WarnContext(ctx, "Balance drift repaired",
			"user_id", ownerID,
			"account_id", accountID,
			"stored_cents", drift.Stored.Cents,
			"computed_cents", drift.Computed.Cents)
	}
	return drift, nil
}
