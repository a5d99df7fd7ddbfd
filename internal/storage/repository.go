package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"finledger/internal/core"

	_ "modernc.org/sqlite"
)

// dsnParams are applied to every pooled connection. _txlock=immediate makes
// BEGIN take SQLite's write lock up front, so concurrent atomic units queue
// instead of failing on lock upgrade.
const dsnParams = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// SQLiteRepository is the ledger store: a process-wide connection pool plus
// the atomic-unit runner every multi-row mutation goes through.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	locks   *userLocks
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + dsnParams

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Ledger store ready", "db_path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		locks:   newUserLocks(),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the store is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Queries returns the statements bound to the pool, for reads outside any
// atomic unit.
func (r *SQLiteRepository) Queries() *Queries {
	return r.queries
}

// InTx runs fn as one atomic unit scoped to userID's account set.
//
// The per-user lock is held for the whole unit and the transaction is rolled
// back on any error or panic, so callers never observe a partial write and
// never leak the lock or the connection. Errors that are not already one of
// the domain kinds are reported as core.ErrStoreFailure.
func (r *SQLiteRepository) InTx(ctx context.Context, userID string, fn func(q *Queries) error) (err error) {
	unlock, err := r.locks.lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: acquire lock: %w", core.ErrStoreFailure, err)
	}
	defer unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrStoreFailure, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "user_id", userID, "error", rbErr)
		}
	}()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrStoreFailure, err)
	}
	committed = true
	return nil
}

func classify(err error) error {
	if core.KindOf(err) == core.KindStoreFailure && !errors.Is(err, core.ErrStoreFailure) {
		return fmt.Errorf("%w: %w", core.ErrStoreFailure, err)
	}
	return err
}

// ListAccounts returns the owner's accounts, newest first. No rows is an
// empty slice, not an error.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	accounts, err := r.queries.ListAccountsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", classify(err))
	}
	return accounts, nil
}

// ListTransactions returns the owner's transactions, most recent date first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactionsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", classify(err))
	}
	return txs, nil
}

// FetchAccount loads an account and its transactions. Existence and
// ownership are one predicate, so a foreign account is reported exactly like
// a missing one.
func (r *SQLiteRepository) FetchAccount(ctx context.Context, userID, accountID string) (core.Account, []core.Transaction, error) {
	account, err := r.queries.GetAccountForOwner(ctx, userID, accountID)
	if err != nil {
		return core.Account{}, nil, classify(err)
	}
	txs, err := r.queries.ListTransactionsByAccount(ctx, userID, accountID)
	if err != nil {
		return core.Account{}, nil, fmt.Errorf("list account transactions: %w", classify(err))
	}
	return account, txs, nil
}

// CreateUser provisions an identity. Users are owned by the external
// identity flow; this exists for that flow and for tooling.
func (r *SQLiteRepository) CreateUser(ctx context.Context, tokenHash string) (string, error) {
	id := uuid.NewString()
	if err := r.queries.InsertUser(ctx, id, tokenHash, time.Now()); err != nil {
		return "", fmt.Errorf("create user: %w", classify(err))
	}
	slog.InfoContext(ctx, "User provisioned", "user_id", id)
	return id, nil
}

// SetBudget configures the user's monthly budget.
func (r *SQLiteRepository) SetBudget(ctx context.Context, userID string, amount core.Money) error {
	b := core.Budget{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
		Period: core.Monthly,
	}
	if err := r.queries.UpsertBudget(ctx, b, time.Now()); err != nil {
		return fmt.Errorf("set budget: %w", classify(err))
	}
	slog.InfoContext(ctx, "Budget configured", "user_id", userID, "amount", amount.String())
	return nil
}
