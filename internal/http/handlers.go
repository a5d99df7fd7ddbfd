package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/services"
)

const maxBodyBytes = 1 << 20

// credential extracts the bearer token. A missing or malformed header yields
// an empty credential, which the ledger rejects as unauthorized.
func credential(r *http.Request) core.Credential {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return core.Credential(strings.TrimSpace(token))
}

// decodeBody reads one JSON object into dst. Any decoding problem is a
// validation error.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", core.ErrValidation)
		}
		return fmt.Errorf("%w: invalid request body: %v", core.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must hold a single object", core.ErrValidation)
	}
	return nil
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var spec core.AccountSpec
	if err := decodeBody(w, r, &spec); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeResult(w, r, http.StatusCreated, s.ledger.CreateAccount(r.Context(), credential(r), spec))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context(), credential(r))
	writeRead(w, r, accounts, err, false)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	detail, err := s.ledger.FetchAccountWithTransactions(r.Context(), credential(r), chi.URLParam(r, "id"))
	writeRead(w, r, detail, err, detail == nil)
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, http.StatusOK, s.ledger.SetDefaultAccount(r.Context(), credential(r), chi.URLParam(r, "id")))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, http.StatusOK, s.ledger.RecomputeBalance(r.Context(), credential(r), chi.URLParam(r, "id")))
}

// budgetResponse adds the utilization percentage to the raw status. It is
// null when there is no budget or the budget is zero.
type budgetResponse struct {
	*services.BudgetStatus
	Utilization *decimal.Decimal `json:"utilization"`
}

func newBudgetResponse(status *services.BudgetStatus) *budgetResponse {
	resp := &budgetResponse{BudgetStatus: status}
	if status.BudgetAmount == nil || status.BudgetAmount.IsZero() {
		return resp
	}
	pct := status.CurrentExpenses.Decimal().
		Div(status.BudgetAmount.Decimal()).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	resp.Utilization = &pct
	return resp
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ledger.CurrentBudgetStatus(r.Context(), credential(r), chi.URLParam(r, "id"))
	if err != nil || status == nil {
		writeRead[*budgetResponse](w, r, nil, err, true)
		return
	}
	writeRead(w, r, newBudgetResponse(status), nil, false)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListTransactions(r.Context(), credential(r))
	writeRead(w, r, txs, err, false)
}

// transactionRequest accepts the date either as RFC 3339 or as a plain
// calendar day.
type transactionRequest struct {
	AccountID   string                 `json:"accountId"`
	Kind        core.TransactionKind   `json:"kind"`
	Amount      string                 `json:"amount"`
	Description string                 `json:"description"`
	Date        string                 `json:"date"`
	Category    string                 `json:"category"`
	Status      core.TransactionStatus `json:"status"`
}

func (t transactionRequest) spec() (core.TransactionSpec, error) {
	spec := core.TransactionSpec{
		AccountID:   t.AccountID,
		Kind:        t.Kind,
		Amount:      t.Amount,
		Description: t.Description,
		Category:    t.Category,
		Status:      t.Status,
	}
	if t.Date == "" {
		return spec, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if d, err := time.Parse(layout, t.Date); err == nil {
			spec.Date = d
			return spec, nil
		}
	}
	return spec, fmt.Errorf("%w: invalid date %q", core.ErrValidation, t.Date)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeResult(w, r, http.StatusCreated, s.ledger.CreateTransaction(r.Context(), credential(r), spec))
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, s.ledger.DeleteTransactions(r.Context(), credential(r), req.IDs))
}
