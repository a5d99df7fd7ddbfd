package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finledger/internal/core"
	"finledger/internal/storage"
)

// BudgetStatus is the raw material of a utilization figure. The fraction
// itself is left to the caller, which also owns the zero-budget policy.
type BudgetStatus struct {
	BudgetAmount    *core.Money `json:"budgetAmount"`
	CurrentExpenses core.Money  `json:"currentExpenses"`
	PeriodStart     time.Time   `json:"periodStart"`
	PeriodEnd       time.Time   `json:"periodEnd"`
}

// BudgetAggregator sums an account's expenses over the current calendar month.
type BudgetAggregator struct {
	store *storage.SQLiteRepository
	loc   *time.Location
	now   func() time.Time
}

func NewBudgetAggregator(store *storage.SQLiteRepository, loc *time.Location, now func() time.Time) *BudgetAggregator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &BudgetAggregator{store: store, loc: loc, now: now}
}

// CurrentUtilization returns the owner's budget, if any, and the account's
// expense total for the month containing now. A missing budget is not an
// error; BudgetAmount is simply nil.
func (b *BudgetAggregator) CurrentUtilization(ctx context.Context, ownerID, accountID string) (*BudgetStatus, error) {
	q := b.store.Queries()
	period := core.MonthOf(b.now(), b.loc)

	status := &BudgetStatus{PeriodStart: period.Start, PeriodEnd: period.End}

	budget, err := q.GetBudgetByOwner(ctx, ownerID)
	switch {
	case err == nil:
		amount := budget.Amount
		status.BudgetAmount = &amount
	case errors.Is(err, core.ErrNotFound):
	default:
		return nil, fmt.Errorf("get budget: %w", err)
	}

	spent, err := q.SumExpenses(ctx, ownerID, accountID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}
	status.CurrentExpenses = core.Money{Cents: spent}
	return status, nil
}
