package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	AccountCurrent AccountKind = "CURRENT"
	AccountSavings AccountKind = "SAVINGS"

	Income  TransactionKind = "INCOME"
	Expense TransactionKind = "EXPENSE"

	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"

	Monthly BudgetPeriod = "MONTHLY"
)

type (
	AccountKind       string
	TransactionKind   string
	TransactionStatus string
	BudgetPeriod      string

	// Credential is the opaque caller credential handed to every ledger
	// operation. It is resolved to a user id by an IdentityResolver.
	Credential string

	Account struct {
		ID        string      `json:"id"`
		UserID    string      `json:"userId"`
		Name      string      `json:"name"`
		Kind      AccountKind `json:"kind"`
		Balance   Money       `json:"balance"`
		IsDefault bool        `json:"isDefault"`
		CreatedAt time.Time   `json:"createdAt"`
		UpdatedAt time.Time   `json:"updatedAt"`
	}

	Transaction struct {
		ID          string            `json:"id"`
		AccountID   string            `json:"accountId"`
		UserID      string            `json:"userId"`
		Kind        TransactionKind   `json:"kind"`
		Amount      Money             `json:"amount"`
		Description string            `json:"description,omitempty"`
		Date        time.Time         `json:"date"`
		Category    string            `json:"category"`
		Status      TransactionStatus `json:"status"`
		CreatedAt   time.Time         `json:"createdAt"`
	}

	Budget struct {
		ID     string       `json:"id"`
		UserID string       `json:"userId"`
		Amount Money        `json:"amount"`
		Period BudgetPeriod `json:"period"`
	}

	// AccountSpec is the raw input of account creation. Balance is kept as
	// the caller's string so that parsing failures surface as validation errors.
	AccountSpec struct {
		Name      string      `json:"name"`
		Kind      AccountKind `json:"kind"`
		Balance   string      `json:"balance"`
		IsDefault bool        `json:"isDefault"`
	}

	TransactionSpec struct {
		AccountID   string            `json:"accountId"`
		Kind        TransactionKind   `json:"kind"`
		Amount      string            `json:"amount"`
		Description string            `json:"description"`
		Date        time.Time         `json:"date"`
		Category    string            `json:"category"`
		Status      TransactionStatus `json:"status"`
	}
)

func (k AccountKind) Valid() bool {
	return k == AccountCurrent || k == AccountSavings
}

func (k TransactionKind) Valid() bool {
	return k == Income || k == Expense
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Signed returns the effect a live transaction of this kind has on its
// account balance: expenses decrease it, income increases it.
func (k TransactionKind) Signed(m Money) Money {
	if k == Expense {
		return m.Neg()
	}
	return m
}

// Reversal returns the balance delta that undoes Signed.
func (k TransactionKind) Reversal(m Money) Money {
	if k == Expense {
		return m
	}
	return m.Neg()
}

// Validate checks the spec and returns the parsed opening balance.
func (s AccountSpec) Validate() (Money, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return Money{}, fmt.Errorf("%w: account name is required", ErrValidation)
	}
	if len(name) > 100 {
		return Money{}, fmt.Errorf("%w: account name too long (max 100 characters)", ErrValidation)
	}
	if !s.Kind.Valid() {
		return Money{}, fmt.Errorf("%w: invalid account kind %q", ErrValidation, s.Kind)
	}
	balance, err := ParseMoney(s.Balance)
	if err != nil {
		return Money{}, fmt.Errorf("%w: balance: %v", ErrValidation, err)
	}
	return balance, nil
}

// Validate checks the spec and returns the parsed amount.
func (s TransactionSpec) Validate() (Money, error) {
	if strings.TrimSpace(s.AccountID) == "" {
		return Money{}, fmt.Errorf("%w: account id is required", ErrValidation)
	}
	if !s.Kind.Valid() {
		return Money{}, fmt.Errorf("%w: invalid transaction kind %q", ErrValidation, s.Kind)
	}
	if s.Status != "" && !s.Status.Valid() {
		return Money{}, fmt.Errorf("%w: invalid transaction status %q", ErrValidation, s.Status)
	}
	if s.Date.IsZero() {
		return Money{}, fmt.Errorf("%w: transaction date is required", ErrValidation)
	}
	if strings.TrimSpace(s.Category) == "" {
		return Money{}, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if len(s.Description) > 200 {
		return Money{}, fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	amount, err := ParseMoney(s.Amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: amount: %v", ErrValidation, err)
	}
	return amount, nil
}
