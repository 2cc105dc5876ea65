package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
)

// Memory is an in-process Repository used for database.driver=memory and tests.
// Failure hooks let tests simulate a rejecting backend.
type Memory struct {
	mu          sync.Mutex
	now         func() time.Time
	vaults      map[string]*domain.Vault // keyed by vault id
	owners      map[string]string        // user id -> vault id
	txs         []domain.Transaction
	positions   []domain.Position
	riskEvents  []domain.RiskEvent
	predictions []domain.Prediction
	locks       map[int64]bool

	// FailWrites, when set, is returned by every mutating call.
	FailWrites error
	// FailReads, when set, is returned by every read.
	FailReads error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:    time.Now,
		vaults: make(map[string]*domain.Vault),
		owners: make(map[string]string),
		locks:  make(map[int64]bool),
	}
}

// WithClock overrides the timestamp source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Ping implements Repository.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Repository.
func (m *Memory) Close() {}

// TryAdvisoryLock mirrors the Postgres lock inside one process.
func (m *Memory) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return nil, false, nil
	}
	m.locks[key] = true
	return func() {
		m.mu.Lock()
		delete(m.locks, key)
		m.mu.Unlock()
	}, true, nil
}

func (m *Memory) GetVaultByOwner(_ context.Context, userID string) (domain.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return domain.Vault{}, m.FailReads
	}
	id, ok := m.owners[userID]
	if !ok {
		return domain.Vault{}, domain.ErrNotFound
	}
	return *m.vaults[id], nil
}

func (m *Memory) CreateVault(_ context.Context, vault domain.Vault) (domain.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Vault{}, m.FailWrites
	}
	if _, exists := m.owners[vault.UserID]; exists {
		return domain.Vault{}, ErrDuplicate
	}
	if vault.Balance.IsNegative() {
		return domain.Vault{}, fmt.Errorf("insert vault: negative balance %s", vault.Balance)
	}
	if vault.ID == "" {
		vault.ID = uuid.NewString()
	}
	now := m.now()
	vault.Version = 1
	vault.CreatedAt = now
	vault.UpdatedAt = now
	stored := vault
	m.vaults[vault.ID] = &stored
	m.owners[vault.UserID] = vault.ID
	return vault, nil
}

func (m *Memory) UpdateVaultPreferences(_ context.Context, vaultID string, profile domain.StrategyProfile, guardian bool) (domain.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Vault{}, m.FailWrites
	}
	v, ok := m.vaults[vaultID]
	if !ok {
		return domain.Vault{}, domain.ErrNotFound
	}
	v.StrategyProfile = profile
	v.GuardianEnabled = guardian
	v.Version++
	v.UpdatedAt = m.now()
	return *v, nil
}

func (m *Memory) UpdateVaultBalance(_ context.Context, vaultID string, balance decimal.Decimal, expectedVersion int64) (domain.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Vault{}, m.FailWrites
	}
	if balance.IsNegative() {
		return domain.Vault{}, fmt.Errorf("update vault balance: negative balance %s", balance)
	}
	v, ok := m.vaults[vaultID]
	if !ok {
		return domain.Vault{}, domain.ErrNotFound
	}
	if v.Version != expectedVersion {
		return domain.Vault{}, domain.ErrVersionConflict
	}
	v.Balance = balance
	v.Version++
	v.UpdatedAt = m.now()
	return *v, nil
}

func (m *Memory) InsertTransaction(_ context.Context, tx domain.Transaction) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Transaction{}, m.FailWrites
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = m.now()
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *Memory) ListTransactionsByWallet(_ context.Context, wallet string, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}
	out := make([]domain.Transaction, 0)
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].WalletAddress == wallet {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func (m *Memory) ListTransactionsByVault(_ context.Context, vaultID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}
	out := make([]domain.Transaction, 0)
	for _, tx := range m.txs {
		if tx.VaultID == vaultID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) InsertPosition(_ context.Context, pos domain.Position) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Position{}, m.FailWrites
	}
	if pos.Amount.IsNegative() {
		return domain.Position{}, fmt.Errorf("insert position: negative amount %s", pos.Amount)
	}
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	now := m.now()
	pos.CreatedAt = now
	pos.UpdatedAt = now
	m.positions = append(m.positions, pos)
	return pos, nil
}

func (m *Memory) ListPositionsByVault(_ context.Context, vaultID string) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}
	out := make([]domain.Position, 0)
	for i := len(m.positions) - 1; i >= 0; i-- {
		if m.positions[i].VaultID == vaultID {
			out = append(out, m.positions[i])
		}
	}
	return out, nil
}

func (m *Memory) InsertRiskEvent(_ context.Context, ev domain.RiskEvent) (domain.RiskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.RiskEvent{}, m.FailWrites
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedAt = m.now()
	m.riskEvents = append(m.riskEvents, ev)
	return ev, nil
}

func (m *Memory) ListRecentRiskEvents(_ context.Context, limit int) ([]domain.RiskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}
	out := make([]domain.RiskEvent, 0, limit)
	for i := len(m.riskEvents) - 1; i >= 0 && len(out) < limit; i-- {
		ev := m.riskEvents[i]
		ev.Severity = domain.ParseSeverity(string(ev.Severity))
		out = append(out, ev)
	}
	return out, nil
}

func (m *Memory) InsertPrediction(_ context.Context, p domain.Prediction) (domain.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Prediction{}, m.FailWrites
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = m.now()
	m.predictions = append(m.predictions, p)
	return p, nil
}

func (m *Memory) ListRecentPredictions(_ context.Context, limit int) ([]domain.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}
	sorted := make([]domain.Prediction, len(m.predictions))
	copy(sorted, m.predictions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PredictionTime.After(sorted[j].PredictionTime)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// Counts reports row counts; tests use it to assert nothing was written.
func (m *Memory) Counts() (vaults, transactions, positions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vaults), len(m.txs), len(m.positions)
}
