package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finledger/internal/cache"
	"finledger/internal/core"
	"finledger/internal/identity"
	"finledger/internal/middleware/ratelimit"
	"finledger/internal/services"
	"finledger/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    core.ErrorKind  `json:"kind"`
}

type testServer struct {
	srv   *Server
	store *storage.SQLiteRepository
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	resolver := identity.NewTokenResolver(store.Queries(), cache.NewLRUCache[string](16, time.Minute))
	ledger := services.NewLedger(store, services.Options{Identity: resolver, Location: time.UTC})

	opts := Options{Ledger: ledger, Ready: store.Ping}
	for _, m := range mutate {
		m(&opts)
	}
	srv := NewServer(":0", opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{srv: srv, store: store}
}

func (ts *testServer) token(t *testing.T) (string, string) {
	t.Helper()
	userID, token, err := identity.Provision(context.Background(), ts.store)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return userID, token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "203.0.113.10:5000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr, env
}

func (ts *testServer) createAccount(t *testing.T, token, body string) core.Account {
	t.Helper()
	rr, env := ts.do(t, http.MethodPost, "/api/accounts", token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account status=%d body=%s", rr.Code, rr.Body.String())
	}
	var acc core.Account
	if err := json.Unmarshal(env.Data, &acc); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	return acc
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr, _ := ts.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if rr, _ := ts.do(t, http.MethodGet, "/healthz", "", ""); rr.Header().Get("X-Request-ID") == "" {
		t.Error("responses should carry a request id")
	}
}

func TestReadyFailure(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rr, _ := ts.do(t, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
}

func TestMetricsMounted(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})
	})
	rr, _ := ts.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestIdentityFailures(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		token  string
		status int
		kind   core.ErrorKind
	}{
		{"missing token", "", http.StatusUnauthorized, core.KindUnauthorized},
		{"unknown token", "deadbeef", http.StatusNotFound, core.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := ts.do(t, http.MethodGet, "/api/accounts", tt.token, "")
			if rr.Code != tt.status || env.Kind != tt.kind || env.Success {
				t.Fatalf("status=%d kind=%s body=%s", rr.Code, env.Kind, rr.Body.String())
			}
		})
	}
}

func TestAccountLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.token(t)

	first := ts.createAccount(t, token, `{"name":"Main","kind":"CURRENT","balance":"100.00"}`)
	if !first.IsDefault {
		t.Fatal("first account should be the default")
	}
	if first.Balance.Cents != 10000 {
		t.Fatalf("balance = %d, want 10000", first.Balance.Cents)
	}
	second := ts.createAccount(t, token, `{"name":"Savings","kind":"SAVINGS","balance":"0"}`)
	if second.IsDefault {
		t.Fatal("second account should not take the default")
	}

	rr, env := ts.do(t, http.MethodGet, "/api/accounts", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	var accounts []core.Account
	if err := json.Unmarshal(env.Data, &accounts); err != nil || len(accounts) != 2 {
		t.Fatalf("accounts = %v (%v)", accounts, err)
	}

	rr, env = ts.do(t, http.MethodPut, "/api/accounts/"+second.ID+"/default", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("set default status=%d body=%s", rr.Code, rr.Body.String())
	}
	var updated core.Account
	if err := json.Unmarshal(env.Data, &updated); err != nil || !updated.IsDefault {
		t.Fatalf("updated = %+v (%v)", updated, err)
	}

	rr, env = ts.do(t, http.MethodGet, "/api/accounts/"+first.ID, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	var detail services.AccountDetail
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.IsDefault || detail.TransactionCount != 1 {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.Transactions[0].Description != services.OpeningBalanceDescription {
		t.Errorf("opening transaction description = %q", detail.Transactions[0].Description)
	}
}

func TestForeignAccountIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.token(t)
	_, other := ts.token(t)
	acc := ts.createAccount(t, owner, `{"name":"Main","kind":"CURRENT","balance":"10"}`)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/accounts/" + acc.ID},
		{http.MethodGet, "/api/accounts/" + acc.ID + "/budget"},
		{http.MethodPut, "/api/accounts/" + acc.ID + "/default"},
		{http.MethodPost, "/api/accounts/" + acc.ID + "/recompute"},
		{http.MethodGet, "/api/accounts/missing"},
	} {
		rr, env := ts.do(t, tc.method, tc.path, other, "")
		if rr.Code != http.StatusNotFound || env.Kind != core.KindNotFound {
			t.Errorf("%s %s: status=%d kind=%s", tc.method, tc.path, rr.Code, env.Kind)
		}
	}
}

func TestTransactionsAndBudget(t *testing.T) {
	ts := newTestServer(t)
	userID, token := ts.token(t)
	acc := ts.createAccount(t, token, `{"name":"Main","kind":"CURRENT","balance":"200"}`)

	today := time.Now().UTC().Format(time.DateOnly)
	rr, env := ts.do(t, http.MethodPost, "/api/transactions", token,
		`{"accountId":"`+acc.ID+`","kind":"EXPENSE","amount":"50","date":"`+today+`","category":"food"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create transaction status=%d body=%s", rr.Code, rr.Body.String())
	}
	var tx core.Transaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}

	rr, env = ts.do(t, http.MethodGet, "/api/accounts/"+acc.ID+"/budget", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("budget status=%d body=%s", rr.Code, rr.Body.String())
	}
	var budget struct {
		BudgetAmount    *core.Money `json:"budgetAmount"`
		CurrentExpenses core.Money  `json:"currentExpenses"`
		Utilization     *string     `json:"utilization"`
	}
	if err := json.Unmarshal(env.Data, &budget); err != nil {
		t.Fatalf("decode budget: %v", err)
	}
	if budget.BudgetAmount != nil || budget.Utilization != nil {
		t.Fatalf("no budget set, got %+v", budget)
	}
	if budget.CurrentExpenses.Cents != 5000 {
		t.Fatalf("expenses = %d, want 5000", budget.CurrentExpenses.Cents)
	}

	if err := ts.store.SetBudget(context.Background(), userID, core.MustParseMoney("200")); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	_, env = ts.do(t, http.MethodGet, "/api/accounts/"+acc.ID+"/budget", token, "")
	if err := json.Unmarshal(env.Data, &budget); err != nil {
		t.Fatalf("decode budget: %v", err)
	}
	if budget.Utilization == nil || *budget.Utilization != "25" {
		t.Fatalf("utilization = %v, want 25", budget.Utilization)
	}

	rr, env = ts.do(t, http.MethodDelete, "/api/transactions", token, `{"ids":["`+tx.ID+`"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	var summary services.DeleteSummary
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Deleted != 1 || len(summary.Accounts) != 1 || summary.Accounts[0].Balance.Cents != 20000 {
		t.Fatalf("summary = %+v", summary)
	}

	rr, env = ts.do(t, http.MethodDelete, "/api/transactions", token, `{"ids":["`+tx.ID+`"]}`)
	if rr.Code != http.StatusNotFound || env.Kind != core.KindEmptySelection {
		t.Fatalf("repeat delete status=%d kind=%s", rr.Code, env.Kind)
	}

	rr, env = ts.do(t, http.MethodPost, "/api/accounts/"+acc.ID+"/recompute", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("recompute status=%d", rr.Code)
	}
	var drift services.Drift
	if err := json.Unmarshal(env.Data, &drift); err != nil || drift.Repaired {
		t.Fatalf("drift = %+v (%v)", drift, err)
	}
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.token(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"empty body", http.MethodPost, "/api/accounts", ""},
		{"malformed json", http.MethodPost, "/api/accounts", `{"name":`},
		{"unknown field", http.MethodPost, "/api/accounts", `{"name":"x","kind":"CURRENT","balance":"1","owner":"me"}`},
		{"bad kind", http.MethodPost, "/api/accounts", `{"name":"x","kind":"CHECKING","balance":"1"}`},
		{"negative balance", http.MethodPost, "/api/accounts", `{"name":"x","kind":"CURRENT","balance":"-1"}`},
		{"bad date", http.MethodPost, "/api/transactions", `{"accountId":"a","kind":"INCOME","amount":"1","date":"yesterday","category":"c"}`},
		{"two objects", http.MethodDelete, "/api/transactions", `{"ids":["a"]}{"ids":["b"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := ts.do(t, tt.method, tt.path, token, tt.body)
			if rr.Code != http.StatusUnprocessableEntity || env.Kind != core.KindValidation {
				t.Fatalf("status=%d kind=%s body=%s", rr.Code, env.Kind, rr.Body.String())
			}
		})
	}
}

func TestRateLimitAndSuspiciousRequests(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 2})
	ts := newTestServer(t, func(o *Options) { o.Limiter = limiter })
	_, token := ts.token(t)

	for i := 0; i < 2; i++ {
		if rr, _ := ts.do(t, http.MethodGet, "/api/accounts", token, ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr, env := ts.do(t, http.MethodGet, "/api/accounts", token, "")
	if rr.Code != http.StatusTooManyRequests || env.Kind != core.KindRateLimited {
		t.Fatalf("status=%d kind=%s", rr.Code, env.Kind)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}

	rr, _ = ts.do(t, http.MethodGet, "/.git/config", "", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("suspicious request status=%d, want 403", rr.Code)
	}
}

func TestCredential(t *testing.T) {
	tests := []struct {
		header string
		want   core.Credential
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		if got := credential(req); got != tt.want {
			t.Errorf("credential(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
