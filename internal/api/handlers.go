package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"aether-vault/internal/auth"
	"aether-vault/internal/domain"
	"aether-vault/internal/insights"
	"aether-vault/internal/strategy"
)

const (
	defaultRiskEventLimit = 10
	maxListLimit          = 100
)

// GET /api/health: liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	}
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			resp["ok"] = false
			resp["store"] = err.Error()
			writeJSONStatus(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	s.writeJSON(w, resp)
}

// GET /api/pools: filtered AMM pools, never an error.
func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pools == nil {
		writeUnavailable(w)
		return
	}
	listing := s.deps.Pools.FetchPools(r.Context())
	s.writeJSON(w, map[string]any{"pools": listing.Pools, "source": listing.Source})
}

type analyzeRequest struct {
	Pools           []domain.Pool `json:"pools"`
	StrategyProfile string        `json:"strategyProfile"`
}

// POST /api/strategy/analyze: LLM recommendation over the given pools.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Advisor == nil {
		writeUnavailable(w)
		return
	}
	var req analyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Pools) == 0 && s.deps.Pools != nil {
		req.Pools = s.deps.Pools.FetchPools(r.Context()).Pools
	}
	profile := domain.StrategyProfile(strings.ToLower(strings.TrimSpace(req.StrategyProfile)))
	rec, err := s.deps.Advisor.Recommend(r.Context(), req.Pools, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, rec)
}

// POST /api/strategy/activate: requires the caller's own wallet.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Activator == nil {
		writeUnavailable(w)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	var req strategy.ActivateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Activator.Activate(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, res)
}

// GET /api/guardian/check: one risk evaluation.
func (s *Server) handleGuardianCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		writeUnavailable(w)
		return
	}
	res, err := s.deps.Checker.Check(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, res)
}

// GET /api/guardian/status: state of the server-side poller.
func (s *Server) handleGuardianStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Guardian == nil {
		writeUnavailable(w)
		return
	}
	resp := map[string]any{"active": s.deps.Guardian.Active()}
	if last, ok := s.deps.Guardian.Last(); ok {
		resp["last"] = last
	}
	s.writeJSON(w, resp)
}

type riskEventView struct {
	ID                string          `json:"id"`
	EventType         string          `json:"eventType"`
	Severity          domain.Severity `json:"severity"`
	Description       string          `json:"description"`
	TriggeredGuardian bool            `json:"triggeredGuardian"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// GET /api/risk-events: recent guardian findings.
func (s *Server) handleRiskEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.RiskEvents == nil {
		writeUnavailable(w)
		return
	}
	limit, err := limitParam(r, defaultRiskEventLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.deps.RiskEvents.ListRecentRiskEvents(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, domain.Upstream("store", err))
		return
	}
	views := make([]riskEventView, 0, len(events))
	for _, ev := range events {
		views = append(views, riskEventView{
			ID:                ev.ID,
			EventType:         ev.EventType,
			Severity:          domain.ParseSeverity(string(ev.Severity)),
			Description:       ev.Description,
			TriggeredGuardian: ev.TriggeredGuardian,
			CreatedAt:         ev.CreatedAt,
		})
	}
	s.writeJSON(w, map[string]any{"events": views})
}

type vaultView struct {
	ID              string                 `json:"id"`
	WalletAddress   string                 `json:"walletAddress"`
	Balance         string                 `json:"balance"`
	StrategyProfile domain.StrategyProfile `json:"strategyProfile"`
	GuardianEnabled bool                   `json:"guardianModeActive"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func viewVault(v domain.Vault) vaultView {
	return vaultView{
		ID:              v.ID,
		WalletAddress:   v.WalletAddress,
		Balance:         domain.FormatUSDC(v.Balance),
		StrategyProfile: v.StrategyProfile,
		GuardianEnabled: v.GuardianEnabled,
		UpdatedAt:       v.UpdatedAt,
	}
}

// GET /api/vault: the caller's vault.
func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	if s.deps.Vaults == nil {
		writeUnavailable(w)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	v, err := s.deps.Vaults.GetVault(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, viewVault(v))
}

// amountField accepts the amount as a JSON number or string.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*a = amountField(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*a = ""
		return nil
	}
	*a = amountField(s)
	return nil
}

type amountRequest struct {
	Amount amountField `json:"amount"`
}

func (s *Server) readAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return decimal.Zero, false
	}
	amount, err := domain.ParseAndValidateAmount(string(req.Amount))
	if err != nil {
		s.writeError(w, r, err)
		return decimal.Zero, false
	}
	return amount, true
}

// POST /api/vault/deposit
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Vaults == nil {
		writeUnavailable(w)
		return
	}
	amount, ok := s.readAmount(w, r)
	if !ok {
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	v, err := s.deps.Vaults.Deposit(r.Context(), id.UserID, id.WalletAddress, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, viewVault(v))
}

// POST /api/vault/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if s.deps.Vaults == nil {
		writeUnavailable(w)
		return
	}
	amount, ok := s.readAmount(w, r)
	if !ok {
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	v, err := s.deps.Vaults.Withdraw(r.Context(), id.UserID, id.WalletAddress, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, viewVault(v))
}

// PUT /api/vault/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Vaults == nil {
		writeUnavailable(w)
		return
	}
	var req struct {
		StrategyProfile string `json:"strategyProfile"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := domain.ParseProfile(req.StrategyProfile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	v, err := s.deps.Vaults.SetProfile(r.Context(), id.UserID, id.WalletAddress, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, viewVault(v))
}

// PUT /api/vault/guardian
func (s *Server) handleGuardianToggle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Vaults == nil {
		writeUnavailable(w)
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Enabled == nil {
		s.writeError(w, r, domain.NewValidationError("enabled", "enabled is required"))
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	v, err := s.deps.Vaults.SetGuardian(r.Context(), id.UserID, id.WalletAddress, *req.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, viewVault(v))
}

// GET /api/transactions: history for the caller's wallet.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Vaults == nil {
		writeUnavailable(w)
		return
	}
	limit, err := limitParam(r, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	if id.WalletAddress == "" {
		s.writeJSON(w, map[string]any{"transactions": []any{}})
		return
	}
	entries, err := s.deps.Vaults.History(r.Context(), id.WalletAddress, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, map[string]any{"transactions": entries})
}

// GET /api/transactions/stream: websocket feed of new transactions.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeUnavailable(w)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	if id.WalletAddress == "" {
		s.writeError(w, r, domain.NewValidationError("walletAddress", "Wallet address is required"))
		return
	}
	s.deps.Hub.Serve(w, r, id.WalletAddress)
}

// GET /api/predictions: AI forecasts with accuracy stats.
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Insights == nil {
		writeUnavailable(w)
		return
	}
	filter, err := insights.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	listing, err := s.deps.Insights.List(r.Context(), filter, insights.DefaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, listing)
}

// GET /api/wallet/{address}/balance: on-chain SOL balance.
func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil {
		writeUnavailable(w)
		return
	}
	bal, err := s.deps.Wallets.Balance(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, bal)
}

func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.NewValidationError("limit", "limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}
