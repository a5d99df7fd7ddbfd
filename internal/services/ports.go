package services

import (
	"context"
	"time"

	"finledger/internal/core"
)

// Collaborators consumed by the ledger. Each one lives outside the
// consistency boundary and is injected by the wiring layer.
type (
	IdentityResolver interface {
		// Resolve maps a credential to a user id. It fails with
		// core.ErrUnauthorized when the credential is empty and
		// core.ErrNotFound when it does not belong to a known user.
		Resolve(ctx context.Context, cred core.Credential) (string, error)
	}

	AbuseGuard interface {
		Check(ctx context.Context, userID string) Decision
	}

	ViewInvalidator interface {
		// Invalidate tells downstream views to refresh. It is called after a
		// mutation committed and its failure never undoes that mutation.
		Invalidate(ctx context.Context, change Change) error
	}
)

// DenyReason distinguishes the two ways an AbuseGuard can refuse.
type DenyReason string

const (
	ReasonRateLimited DenyReason = "rate-limited"
	ReasonBlocked     DenyReason = "blocked"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err converts a denial into the matching domain error.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonBlocked:
		return core.ErrBlocked
	default:
		return core.ErrRateLimited
	}
}

// Operation names a ledger mutation in change events, logs and metrics.
type Operation string

const (
	OpCreateAccount      Operation = "create_account"
	OpCreateTransaction  Operation = "create_transaction"
	OpDeleteTransactions Operation = "delete_transactions"
	OpSetDefault         Operation = "set_default_account"
	OpRecompute          Operation = "recompute_balance"
)

// Change describes a committed mutation.
type Change struct {
	Operation  Operation `json:"operation"`
	UserID     string    `json:"userId"`
	AccountIDs []string  `json:"accountIds"`
	At         time.Time `json:"at"`
}

// NopInvalidator drops every change. It is used when no broker is configured.
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, Change) error { return nil }

// AllowAll never denies.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string) Decision { return Allow() }
