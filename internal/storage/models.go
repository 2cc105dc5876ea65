package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrDuplicate is returned by CreateVault when the owner already has a vault.
	ErrDuplicate = errors.New("storage: vault already exists for owner")
)

// VaultStore persists the one-per-owner vault row.
// Balance writes are compare-and-swap on the row version.
type VaultStore interface {
	GetVaultByOwner(ctx context.Context, userID string) (domain.Vault, error)
	CreateVault(ctx context.Context, vault domain.Vault) (domain.Vault, error)
	UpdateVaultPreferences(ctx context.Context, vaultID string, profile domain.StrategyProfile, guardian bool) (domain.Vault, error)
	UpdateVaultBalance(ctx context.Context, vaultID string, balance decimal.Decimal, expectedVersion int64) (domain.Vault, error)
}

// TransactionStore is append-only.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	ListTransactionsByWallet(ctx context.Context, wallet string, limit int) ([]domain.Transaction, error)
	ListTransactionsByVault(ctx context.Context, vaultID string) ([]domain.Transaction, error)
}

// PositionStore records strategy allocations.
type PositionStore interface {
	InsertPosition(ctx context.Context, pos domain.Position) (domain.Position, error)
	ListPositionsByVault(ctx context.Context, vaultID string) ([]domain.Position, error)
}

// RiskEventStore records guardian findings.
type RiskEventStore interface {
	InsertRiskEvent(ctx context.Context, ev domain.RiskEvent) (domain.RiskEvent, error)
	ListRecentRiskEvents(ctx context.Context, limit int) ([]domain.RiskEvent, error)
}

// PredictionStore reads AI forecasts.
type PredictionStore interface {
	InsertPrediction(ctx context.Context, p domain.Prediction) (domain.Prediction, error)
	ListRecentPredictions(ctx context.Context, limit int) ([]domain.Prediction, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Repository is everything the services need from a backend.
type Repository interface {
	VaultStore
	TransactionStore
	PositionStore
	RiskEventStore
	PredictionStore
	AdvisoryLocker
	Ping(ctx context.Context) error
	Close()
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*Memory)(nil)
)
