package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"finledger/internal/core"
	"finledger/internal/metrics"
	"finledger/internal/storage"
)

// OpeningBalanceDescription labels the transaction that carries the balance
// supplied when an account is created.
const OpeningBalanceDescription = "Opening balance"

// Options configures a Ledger. Every field is optional except Identity.
type Options struct {
	Identity    IdentityResolver
	Guard       AbuseGuard
	Invalidator ViewInvalidator
	Metrics     metrics.Collector
	Location    *time.Location
	Now         func() time.Time
}

// Ledger is the operation surface of the system. Each call resolves the
// caller first, runs the mutation inside one atomic unit and notifies
// downstream views after it committed.
type Ledger struct {
	store      *storage.SQLiteRepository
	reconciler *BalanceReconciler
	defaults   *DefaultAccountManager
	budgets    *BudgetAggregator
	view       *AccountView

	identity    IdentityResolver
	guard       AbuseGuard
	invalidator ViewInvalidator
	metrics     metrics.Collector
	now         func() time.Time
}

func NewLedger(store *storage.SQLiteRepository, opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Identity == nil {
		opts.Identity = noIdentity{}
	}
	if opts.Guard == nil {
		opts.Guard = AllowAll{}
	}
	if opts.Invalidator == nil {
		opts.Invalidator = NopInvalidator{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpCollector{}
	}
	return &Ledger{
		store:       store,
		reconciler:  NewBalanceReconciler(store, opts.Now),
		defaults:    NewDefaultAccountManager(store, opts.Now),
		budgets:     NewBudgetAggregator(store, opts.Location, opts.Now),
		view:        NewAccountView(store),
		identity:    opts.Identity,
		guard:       opts.Guard,
		invalidator: opts.Invalidator,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
}

// Reconciler exposes the balance reconciler for maintenance tooling.
func (l *Ledger) Reconciler() *BalanceReconciler {
	return l.reconciler
}

type noIdentity struct{}

func (noIdentity) Resolve(context.Context, core.Credential) (string, error) {
	return "", core.ErrUnauthorized
}

func (l *Ledger) resolve(ctx context.Context, cred core.Credential) (string, error) {
	if strings.TrimSpace(string(cred)) == "" {
		return "", core.ErrUnauthorized
	}
	userID, err := l.identity.Resolve(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	return userID, nil
}

func (l *Ledger) record(ctx context.Context, op string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		kind := core.KindOf(err)
		outcome = string(kind)
		if kind == core.KindStoreFailure {
			slog.ErrorContext(ctx, "Ledger operation failed", "operation", op, "error", err)
		} else {
			slog.WarnContext(ctx, "Ledger operation rejected", "operation", op, "kind", kind, "error", err)
		}
	}
	l.metrics.RecordOperation(op, outcome, time.Since(start))
}

// notify tells downstream views about a committed change. The mutation is
// already durable, so a failure is logged and counted only.
func (l *Ledger) notify(ctx context.Context, op Operation, userID string, accountIDs ...string) {
	change := Change{
		Operation:  op,
		UserID:     userID,
		AccountIDs: accountIDs,
		At:         l.now().UTC(),
	}
	if err := l.invalidator.Invalidate(ctx, change); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"operation", op, "user_id", userID, "error", err)
		l.metrics.RecordInvalidation(metrics.OutcomeFailure)
		return
	}
	l.metrics.RecordInvalidation(metrics.OutcomeSuccess)
}

// CreateAccount opens an account for the caller. The caller's first account
// becomes the default regardless of spec.IsDefault; a later one requesting
// it takes the flag over in the same atomic unit. A non-zero balance is
// recorded as an opening INCOME transaction so the balance always matches
// the transaction log.
func (l *Ledger) CreateAccount(ctx context.Context, cred core.Credential, spec core.AccountSpec) (res core.Result[*core.Account]) {
	start := time.Now()
	defer func() { l.record(ctx, string(OpCreateAccount), start, res.Err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return core.Fail[*core.Account](err)
	}
	if err := l.guard.Check(ctx, userID).Err(); err != nil {
		return core.Fail[*core.Account](err)
	}
	opening, err := spec.Validate()
	if err != nil {
		return core.Fail[*core.Account](err)
	}

	now := l.now().UTC()
	account := core.Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(spec.Name),
		Kind:      spec.Kind,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = l.store.InTx(ctx, userID, func(q *storage.Queries) error {
		isDefault, err := l.defaults.OnCreate(ctx, q, userID, spec.IsDefault)
		if err != nil {
			return err
		}
		account.IsDefault = isDefault
		if err := q.InsertAccount(ctx, account); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}

		if !opening.IsZero() {
			t := core.Transaction{
				ID:          uuid.NewString(),
				AccountID:   account.ID,
				UserID:      userID,
				Kind:        core.Income,
				Amount:      opening,
				Description: OpeningBalanceDescription,
				Date:        now,
				Status:      core.StatusCompleted,
				CreatedAt:   now,
			}
			if _, err := l.reconciler.applyCreation(ctx, q, t); err != nil {
				return err
			}
		}

		account, err = q.GetAccountForOwner(ctx, userID, account.ID)
		return err
	})
	if err != nil {
		return core.Fail[*core.Account](err)
	}

	slog.InfoContext(ctx, "Account created",
		"user_id", userID,
		"account_id", account.ID,
		"kind", account.Kind,
		"is_default", account.IsDefault,
		"balance_cents", account.Balance.Cents)

	l.notify(ctx, OpCreateAccount, userID, account.ID)
	return core.OK(&account)
}

// CreateTransaction appends a transaction and applies it to the balance.
func (l *Ledger) CreateTransaction(ctx context.Context, cred core.Credential, spec core.TransactionSpec) (res core.Result[*core.Transaction]) {
	start := time.Now()
	defer func() { l.record(ctx, string(OpCreateTransaction), start, res.Err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return core.Fail[*core.Transaction](err)
	}
	t, _, err := l.reconciler.CreateTransaction(ctx, userID, spec)
	if err != nil {
		return core.Fail[*core.Transaction](err)
	}

	l.notify(ctx, OpCreateTransaction, userID, t.AccountID)
	return core.OK(t)
}

// DeleteTransactions bulk-deletes the caller's transactions and reverses
// their balance effects. See BalanceReconciler.DeleteTransactions.
func (l *Ledger) DeleteTransactions(ctx context.Context, cred core.Credential, ids []string) (res core.Result[*DeleteSummary]) {
	start := time.Now()
	defer func() { l.record(ctx, string(OpDeleteTransactions), start, res.Err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return core.Fail[*DeleteSummary](err)
	}
	summary, err := l.reconciler.DeleteTransactions(ctx, userID, ids)
	if err != nil {
		return core.Fail[*DeleteSummary](err)
	}

	l.notify(ctx, OpDeleteTransactions, userID, summary.AccountIDs()...)
	return core.OK(summary)
}

// SetDefaultAccount moves the caller's default flag to accountID.
func (l *Ledger) SetDefaultAccount(ctx context.Context, cred core.Credential, accountID string) (res core.Result[*core.Account]) {
	start := time.Now()
	defer func() { l.record(ctx, string(OpSetDefault), start, res.Err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return core.Fail[*core.Account](err)
	}
	account, err := l.defaults.SetDefault(ctx, userID, accountID)
	if err != nil {
		return core.Fail[*core.Account](err)
	}

	l.notify(ctx, OpSetDefault, userID, account.ID)
	return core.OK(account)
}

// RecomputeBalance rebuilds an account's balance from its transactions.
func (l *Ledger) RecomputeBalance(ctx context.Context, cred core.Credential, accountID string) (res core.Result[*Drift]) {
	start := time.Now()
	defer func() { l.record(ctx, string(OpRecompute), start, res.Err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return core.Fail[*Drift](err)
	}
	drift, err := l.reconciler.Recompute(ctx, userID, accountID)
	if err != nil {
		return core.Fail[*Drift](err)
	}

	if drift.Repaired {
		l.metrics.RecordDriftRepair()
		l.notify(ctx, OpRecompute, userID, accountID)
	}
	return core.OK(drift)
}

// Reads. "No data" is never an error: a missing or foreign account is nil
// and an empty history is an empty slice. The error return carries identity
// and store failures only.

func (l *Ledger) FetchAccountWithTransactions(ctx context.Context, cred core.Credential, accountID string) (detail *AccountDetail, err error) {
	start := time.Now()
	defer func() { l.record(ctx, "fetch_account", start, err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return nil, err
	}
	return l.view.Get(ctx, userID, accountID)
}

func (l *Ledger) ListAccounts(ctx context.Context, cred core.Credential) (accounts []core.Account, err error) {
	start := time.Now()
	defer func() { l.record(ctx, "list_accounts", start, err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return []core.Account{}, err
	}
	accounts, err = l.store.ListAccounts(ctx, userID)
	if err != nil {
		return []core.Account{}, err
	}
	return accounts, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, cred core.Credential) (txs []core.Transaction, err error) {
	start := time.Now()
	defer func() { l.record(ctx, "list_transactions", start, err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return []core.Transaction{}, err
	}
	txs, err = l.store.ListTransactions(ctx, userID)
	if err != nil {
		return []core.Transaction{}, err
	}
	return txs, nil
}

// CurrentBudgetStatus returns nil when accountID is not one of the caller's
// accounts, so a foreign account's spending is never exposed.
func (l *Ledger) CurrentBudgetStatus(ctx context.Context, cred core.Credential, accountID string) (status *BudgetStatus, err error) {
	start := time.Now()
	defer func() { l.record(ctx, "budget_status", start, err) }()

	userID, err := l.resolve(ctx, cred)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.Queries().GetAccountForOwner(ctx, userID, accountID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return l.budgets.CurrentUtilization(ctx, userID, accountID)
}
