package core

import "errors"

// ErrorKind classifies a failed ledger operation for callers and transports.
type ErrorKind string

const (
	KindUnauthorized   ErrorKind = "unauthorized"
	KindNotFound       ErrorKind = "not_found"
	KindValidation     ErrorKind = "validation"
	KindEmptySelection ErrorKind = "empty_selection"
	KindRateLimited    ErrorKind = "rate_limited"
	KindBlocked        ErrorKind = "blocked"
	KindStoreFailure   ErrorKind = "store_failure"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrEmptySelection = errors.New("empty selection")
	ErrRateLimited    = errors.New("rate limited")
	ErrBlocked        = errors.New("blocked")
	ErrStoreFailure   = errors.New("store failure")
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnauthorized, KindUnauthorized},
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
	{ErrEmptySelection, KindEmptySelection},
	{ErrRateLimited, KindRateLimited},
	{ErrBlocked, KindBlocked},
	{ErrStoreFailure, KindStoreFailure},
}

// KindOf maps an error chain to its kind. Anything unclassified is reported
// as a store failure since that is the only remaining source of errors.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindStoreFailure
}

// Message returns the caller-facing text for a failed operation.
func Message(err error) string {
	switch KindOf(err) {
	case KindUnauthorized:
		return "Unauthorized"
	case KindNotFound:
		return "Not found"
	case KindEmptySelection:
		return "No transactions found to delete"
	case KindRateLimited:
		return "Too many requests. Please try again later."
	case KindBlocked:
		return "Request blocked"
	case KindValidation:
		return err.Error()
	default:
		return "Operation failed"
	}
}

// Result is the uniform outcome of a mutating ledger operation.
type Result[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`

	// Err keeps the original chain for logging; it is never serialised.
	Err error `json:"-"`
}

func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{
		Error: Message(err),
		Kind:  KindOf(err),
		Err:   err,
	}
}
