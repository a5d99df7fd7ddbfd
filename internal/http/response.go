package http

import (
	"encoding/json"
	"net/http"

	"finledger/internal/core"
	applog "finledger/internal/log"
)

// statusFor maps an error kind onto the HTTP status that carries it.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindNotFound, core.KindEmptySelection:
		return http.StatusNotFound
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	case core.KindBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}

// writeResult sends a mutation outcome. okStatus is used on success.
func writeResult[T any](w http.ResponseWriter, r *http.Request, okStatus int, res core.Result[T]) {
	if !res.Success {
		writeJSON(w, r, statusFor(res.Kind), res)
		return
	}
	writeJSON(w, r, okStatus, res)
}

// writeRead sends a read outcome. A nil pointer from a read means "no such
// thing for this caller" and is reported as 404.
func writeRead[T any](w http.ResponseWriter, r *http.Request, data T, err error, missing bool) {
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if missing {
		writeFailure(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, core.OK(data))
}

func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	res := core.Fail[any](err)
	writeJSON(w, r, statusFor(res.Kind), res)
}
