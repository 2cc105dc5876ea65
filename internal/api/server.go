package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aether-vault/internal/auth"
	"aether-vault/internal/chain"
	"aether-vault/internal/domain"
	"aether-vault/internal/fetcher"
	"aether-vault/internal/guardian"
	"aether-vault/internal/insights"
	"aether-vault/internal/storage"
	"aether-vault/internal/strategy"
	"aether-vault/internal/vault"
)

// VaultService is the funding surface used by the handlers.
type VaultService interface {
	GetVault(ctx context.Context, owner string) (domain.Vault, error)
	Deposit(ctx context.Context, owner, wallet string, amount decimal.Decimal) (domain.Vault, error)
	Withdraw(ctx context.Context, owner, wallet string, amount decimal.Decimal) (domain.Vault, error)
	SetProfile(ctx context.Context, owner, wallet string, profile domain.StrategyProfile) (domain.Vault, error)
	SetGuardian(ctx context.Context, owner, wallet string, enabled bool) (domain.Vault, error)
	History(ctx context.Context, wallet string, limit int) ([]vault.HistoryEntry, error)
}

// Recommender produces strategy recommendations.
type Recommender interface {
	Recommend(ctx context.Context, pools []domain.Pool, profile domain.StrategyProfile) (strategy.Recommendation, error)
}

// Activator records strategy activations.
type Activator interface {
	Activate(ctx context.Context, id domain.Identity, req strategy.ActivateRequest) (strategy.Activation, error)
}

// WalletReader reads on-chain balances.
type WalletReader interface {
	Balance(ctx context.Context, address string) (chain.Balance, error)
}

// GuardianStatus exposes the server-side poller state.
type GuardianStatus interface {
	Active() bool
	Last() (guardian.Result, bool)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the routes. Nil members disable their
// routes with 503.
type Deps struct {
	Vaults     VaultService
	Pools      fetcher.PoolFetcher
	Advisor    Recommender
	Activator  Activator
	Checker    guardian.RiskChecker
	Guardian   GuardianStatus
	RiskEvents storage.RiskEventStore
	Insights   *insights.Service
	Wallets    WalletReader
	Validator  *auth.Validator
	Hub        *Hub
	Health     Pinger
}

// Options tune the HTTP server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
}

// Server is the HTTP API for the dashboard.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     zerolog.Logger
	startedAt  time.Time
}

// NewServer creates a new API server bound to opts.Addr.
func NewServer(opts Options, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		deps:      deps,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/pools", s.handlePools)
	mux.HandleFunc("POST /api/strategy/analyze", s.handleAnalyze)
	mux.Handle("POST /api/strategy/activate", s.authed(s.handleActivate))
	mux.HandleFunc("GET /api/guardian/check", s.handleGuardianCheck)
	mux.HandleFunc("GET /api/guardian/status", s.handleGuardianStatus)
	mux.HandleFunc("GET /api/risk-events", s.handleRiskEvents)
	mux.Handle("GET /api/vault", s.authed(s.handleVault))
	mux.Handle("POST /api/vault/deposit", s.authed(s.handleDeposit))
	mux.Handle("POST /api/vault/withdraw", s.authed(s.handleWithdraw))
	mux.Handle("PUT /api/vault/profile", s.authed(s.handleProfile))
	mux.Handle("PUT /api/vault/guardian", s.authed(s.handleGuardianToggle))
	mux.Handle("GET /api/transactions", s.authed(s.handleTransactions))
	mux.Handle("GET /api/transactions/stream", queryToken(s.authed(s.handleStream)))
	mux.HandleFunc("GET /api/predictions", s.handlePredictions)
	mux.HandleFunc("GET /api/wallet/{address}/balance", s.handleWalletBalance)
	return cors(s.recoverer(mux))
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("api server listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("api server stopped")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server and closes stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return auth.Require(s.deps.Validator, h)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
				writeJSONStatus(w, http.StatusInternalServerError, errorBody{Error: msgInternal})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors mirrors the headers of the hosted functions the dashboard talks to.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// queryToken lets browsers pass the bearer token as ?access_token= on the
// websocket handshake, where custom headers are not available.
func queryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if tok := r.URL.Query().Get("access_token"); tok != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "Invalid request body")
	}
	return nil
}
