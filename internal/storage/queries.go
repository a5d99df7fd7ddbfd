package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"finledger/internal/core"
)

// timeLayout is fixed-width so that TEXT ordering matches chronological ordering.
const timeLayout = "2006-01-02 15:04:05.000000000"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the ledger's SQL statements. Outside an atomic unit it runs
// against the pool; inside one it is bound to the unit's *sql.Tx.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// AccountRef identifies an account together with its owner.
type AccountRef struct {
	UserID    string
	AccountID string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

const accountColumns = `id, user_id, name, kind, balance_cents, is_default, created_at, updated_at`

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a                    core.Account
		isDefault            int64
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.Balance.Cents, &isDefault, &createdAt, &updatedAt); err != nil {
		return core.Account{}, err
	}
	a.IsDefault = isDefault == 1
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Account{}, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Account{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return a, nil
}

const transactionColumns = `id, account_id, user_id, kind, amount_cents, description, date, category, status, created_at`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t               core.Transaction
		date, createdAt string
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.UserID, &t.Kind, &t.Amount.Cents, &t.Description, &date, &t.Category, &t.Status, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if t.Date, err = parseTime(date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at: %w", err)
	}
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Users

func (q *Queries) InsertUser(ctx context.Context, id, tokenHash string, createdAt time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, token_hash, created_at) VALUES (?, ?, ?)`,
		id, tokenHash, formatTime(createdAt))
	return err
}

func (q *Queries) GetUserIDByTokenHash(ctx context.Context, tokenHash string) (string, error) {
	var id string
	err := q.db.QueryRowContext(ctx, `SELECT id FROM users WHERE token_hash = ?`, tokenHash).Scan(&id)
	if err != nil {
		return "", notFound(err, "get user by token")
	}
	return id, nil
}

// User is a provisioned identity.
type User struct {
	ID        string
	CreatedAt time.Time
}

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var (
		u         User
		createdAt string
	)
	err := q.db.QueryRowContext(ctx, `SELECT id, created_at FROM users WHERE id = ?`, id).Scan(&u.ID, &createdAt)
	if err != nil {
		return User{}, notFound(err, "get user")
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return User{}, fmt.Errorf("parse created_at: %w", err)
	}
	return u, nil
}

// Accounts

func (q *Queries) CountAccounts(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) error {
	isDefault := 0
	if a.IsDefault {
		isDefault = 1
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Kind), a.Balance.Cents, isDefault, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return err
}

// ClearDefaultAccounts unsets the default flag on every account of the user
// and returns how many rows were flagged.
func (q *Queries) ClearDefaultAccounts(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET is_default = 0, updated_at = ? WHERE user_id = ? AND is_default = 1`,
		formatTime(now), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) MarkDefaultAccount(ctx context.Context, userID, accountID string, now time.Time) (core.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`UPDATE accounts SET is_default = 1, updated_at = ? WHERE id = ? AND user_id = ? RETURNING `+accountColumns,
		formatTime(now), accountID, userID)
	a, err := scanAccount(row)
	if err != nil {
		return core.Account{}, notFound(err, "mark default account")
	}
	return a, nil
}

// GetAccountForOwner checks existence and ownership in the same predicate.
func (q *Queries) GetAccountForOwner(ctx context.Context, userID, accountID string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND user_id = ?`,
		accountID, userID)
	a, err := scanAccount(row)
	if err != nil {
		return core.Account{}, notFound(err, "get account")
	}
	return a, nil
}

func (q *Queries) ListAccountsByOwner(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) ListAccountRefs(ctx context.Context) ([]AccountRef, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT user_id, id FROM accounts ORDER BY user_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountRef
	for rows.Next() {
		var ref AccountRef
		if err := rows.Scan(&ref.UserID, &ref.AccountID); err != nil {
			return nil, fmt.Errorf("scan account ref: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// IncrementBalance applies delta at the store level and returns the new
// balance. It never reads the balance into the application first.
func (q *Queries) IncrementBalance(ctx context.Context, userID, accountID string, delta int64, now time.Time) (int64, error) {
	var balance int64
	err := q.db.QueryRowContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ?
		 WHERE id = ? AND user_id = ? RETURNING balance_cents`,
		delta, formatTime(now), accountID, userID).Scan(&balance)
	if err != nil {
		return 0, notFound(err, "increment balance")
	}
	return balance, nil
}

func (q *Queries) SetBalance(ctx context.Context, userID, accountID string, cents int64, now time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		cents, formatTime(now), accountID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("set balance: %w", core.ErrNotFound)
	}
	return nil
}

// Transactions

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.UserID, string(t.Kind), t.Amount.Cents, t.Description,
		formatTime(t.Date), t.Category, string(t.Status), formatTime(t.CreatedAt))
	return err
}

// GetTransactionsForOwner resolves ids to rows owned by userID. Unknown or
// foreign ids are simply absent from the result.
func (q *Queries) GetTransactionsForOwner(ctx context.Context, userID string, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return []core.Transaction{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *Queries) DeleteTransactionsForOwner(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ListTransactionsByOwner(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? ORDER BY date DESC, created_at DESC, rowid DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, userID, accountID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = ? AND user_id = ? ORDER BY date DESC, created_at DESC, rowid DESC`,
		accountID, userID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// SumSignedAmounts is the balance the transaction log implies for an account.
func (q *Queries) SumSignedAmounts(ctx context.Context, userID, accountID string) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE kind WHEN 'INCOME' THEN amount_cents ELSE -amount_cents END), 0)
		 FROM transactions WHERE account_id = ? AND user_id = ?`,
		accountID, userID).Scan(&sum)
	return sum, err
}

// SumExpenses totals EXPENSE amounts dated within [from, to).
func (q *Queries) SumExpenses(ctx context.Context, userID, accountID string, from, to time.Time) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE user_id = ? AND account_id = ? AND kind = 'EXPENSE' AND date >= ? AND date < ?`,
		userID, accountID, formatTime(from), formatTime(to)).Scan(&sum)
	return sum, err
}

// Budgets

func (q *Queries) GetBudgetByOwner(ctx context.Context, userID string) (core.Budget, error) {
	var b core.Budget
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount_cents, period FROM budgets WHERE user_id = ?`,
		userID).Scan(&b.ID, &b.UserID, &b.Amount.Cents, &b.Period)
	if err != nil {
		return core.Budget{}, notFound(err, "get budget")
	}
	return b, nil
}

func (q *Queries) UpsertBudget(ctx context.Context, b core.Budget, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, amount_cents, period, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET amount_cents = excluded.amount_cents,
		     period = excluded.period, updated_at = excluded.updated_at`,
		b.ID, b.UserID, b.Amount.Cents, string(b.Period), formatTime(now))
	return err
}
