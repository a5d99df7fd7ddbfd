package services

import (
	"context"
	"errors"

	"finledger/internal/core"
	"finledger/internal/storage"
)

// AccountDetail is an account with its full history, newest first.
type AccountDetail struct {
	core.Account
	Transactions     []core.Transaction `json:"transactions"`
	TransactionCount int                `json:"transactionCount"`
}

// AccountView is the read side of a single account.
type AccountView struct {
	store *storage.SQLiteRepository
}

func NewAccountView(store *storage.SQLiteRepository) *AccountView {
	return &AccountView{store: store}
}

// Get returns nil without error when the account does not exist or belongs
// to someone else; the two cases are indistinguishable on purpose.
func (v *AccountView) Get(ctx context.Context, ownerID, accountID string) (*AccountDetail, error) {
	account, txs, err := v.store.FetchAccount(ctx, ownerID, accountID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &AccountDetail{
		Account:          account,
		Transactions:     txs,
		TransactionCount: len(txs),
	}, nil
}
