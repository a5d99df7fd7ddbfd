package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/core"
	"finledger/internal/storage"
)

// DefaultAccountManager keeps exactly one default account per user that has
// any account at all.
type DefaultAccountManager struct {
	store *storage.SQLiteRepository
	now   func() time.Time
}

func NewDefaultAccountManager(store *storage.SQLiteRepository, now func() time.Time) *DefaultAccountManager {
	if now == nil {
		now = time.Now
	}
	return &DefaultAccountManager{store: store, now: now}
}

// OnCreate decides the default flag of an account about to be inserted and,
// when the new account takes over, clears the current default. It runs in
// the caller's atomic unit so the swap and the insert commit together.
//
// A user's first account is always the default, whatever was requested.
func (m *DefaultAccountManager) OnCreate(ctx context.Context, q *storage.Queries, ownerID string, requested bool) (bool, error) {
	n, err := q.CountAccounts(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	if n == 0 {
		return true, nil
	}
	if !requested {
		return false, nil
	}
	if _, err := q.ClearDefaultAccounts(ctx, ownerID, m.now()); err != nil {
		return false, fmt.Errorf("clear default accounts: %w", err)
	}
	return true, nil
}

// SetDefault makes accountID the owner's only default account. The clear and
// the set are one atomic unit; an account that is missing or not the
// owner's fails with core.ErrNotFound and changes nothing.
func (m *DefaultAccountManager) SetDefault(ctx context.Context, ownerID, accountID string) (*core.Account, error) {
	var account core.Account
	err := m.store.InTx(ctx, ownerID, func(q *storage.Queries) error {
		if _, err := q.GetAccountForOwner(ctx, ownerID, accountID); err != nil {
			return err
		}
		now := m.now()
		cleared, err := q.ClearDefaultAccounts(ctx, ownerID, now)
		if err != nil {
			return fmt.Errorf("clear default accounts: %w", err)
		}
		if cleared > 1 {
			slog.WarnContext(ctx, "Multiple default accounts found", "user_id", ownerID, "count", cleared)
		}
		account, err = q.MarkDefaultAccount(ctx, ownerID, accountID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Default account switched", "user_id", ownerID, "account_id", accountID)
	return &account, nil
}
