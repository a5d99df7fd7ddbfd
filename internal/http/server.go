// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finledger/internal/core"
	applog "finledger/internal/log"
	"finledger/internal/middleware/ratelimit"
	"finledger/internal/middleware/security"
	"finledger/internal/middleware/trace"
	"finledger/internal/services"
)

// Ledger is the operation surface the handlers drive. *services.Ledger
// implements it.
type Ledger interface {
	CreateAccount(ctx context.Context, cred core.Credential, spec core.AccountSpec) core.Result[*core.Account]
	CreateTransaction(ctx context.Context, cred core.Credential, spec core.TransactionSpec) core.Result[*core.Transaction]
	DeleteTransactions(ctx context.Context, cred core.Credential, ids []string) core.Result[*services.DeleteSummary]
	SetDefaultAccount(ctx context.Context, cred core.Credential, accountID string) core.Result[*core.Account]
	RecomputeBalance(ctx context.Context, cred core.Credential, accountID string) core.Result[*services.Drift]

	FetchAccountWithTransactions(ctx context.Context, cred core.Credential, accountID string) (*services.AccountDetail, error)
	ListAccounts(ctx context.Context, cred core.Credential) ([]core.Account, error)
	ListTransactions(ctx context.Context, cred core.Credential) ([]core.Transaction, error)
	CurrentBudgetStatus(ctx context.Context, cred core.Credential, accountID string) (*services.BudgetStatus, error)
}

type Options struct {
	Ledger Ledger
	// Limiter throttles /api per client IP. Nil disables it.
	Limiter *ratelimit.Limiter
	Logger  *applog.Logger
	// Ready backs /readyz; nil always reports ready.
	Ready func(ctx context.Context) error
	// Metrics is mounted at /metrics when set.
	Metrics        http.Handler
	RequestTimeout time.Duration
}

type Server struct {
	http.Server
	ledger   Ledger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	ready    func(ctx context.Context) error

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		ledger:   opts.Ledger,
		limiter:  opts.Limiter,
		detector: security.NewDetector(),
		tracer:   trace.NewMiddleware(),
		ready:    opts.Ready,
	}

	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(applog.Middleware(opts.Logger))
	r.Use(applog.RequestIDMiddleware(trace.RequestID))
	r.Use(applog.AccessLog(s.detector.ExtractClientIP))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		if s.limiter != nil {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
				writeFailure(w, r, core.ErrRateLimited)
			}))
		}

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAccount)
				r.Put("/default", s.handleSetDefault)
				r.Get("/budget", s.handleBudgetStatus)
				r.Post("/recompute", s.handleRecompute)
			})
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Delete("/", s.handleDeleteTransactions)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, core.ErrNotFound)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown drains in-flight requests and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
