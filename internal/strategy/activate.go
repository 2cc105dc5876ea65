package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
	"aether-vault/internal/storage"
)

// Vaults is the vault access activation needs.
type Vaults interface {
	GetOrCreate(ctx context.Context, owner, wallet string, profile domain.StrategyProfile, guardian bool) (domain.Vault, bool, error)
	Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
}

// Selection is the strategy card the user picked.
type Selection struct {
	PoolID string  `json:"poolId"`
	Name   string  `json:"name"`
	APY    float64 `json:"apy"`
}

// ActivateRequest is the activation payload.
type ActivateRequest struct {
	Strategy      Selection `json:"strategy"`
	WalletAddress string    `json:"walletAddress"`
}

// Activation is the activation response.
type Activation struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	VaultID string `json:"vaultId"`
}

// Activator records strategy activations.
type Activator struct {
	vaults    Vaults
	positions storage.PositionStore
	logger    zerolog.Logger
}

// NewActivator wires the vault service and the position store.
func NewActivator(vaults Vaults, positions storage.PositionStore, logger zerolog.Logger) *Activator {
	return &Activator{
		vaults:    vaults,
		positions: positions,
		logger:    logger.With().Str("component", "strategy_activate").Logger(),
	}
}

// Activate opens a zero-amount position in the chosen pool and logs a
// strategy_activation transaction. The wallet check happens before any write.
func (a *Activator) Activate(ctx context.Context, id domain.Identity, req ActivateRequest) (Activation, error) {
	if id.UserID == "" {
		return Activation{}, domain.ErrUnauthenticated
	}
	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		return Activation{}, domain.NewValidationError("walletAddress", "Wallet address is required")
	}
	if id.WalletAddress != wallet {
		a.logger.Warn().Str("user_id", id.UserID).Str("wallet", wallet).Msg("wallet address mismatch")
		return Activation{}, domain.ErrAuthorization
	}

	a.logger.Info().
		Str("user_id", id.UserID).
		Str("pool_id", req.Strategy.PoolID).
		Str("pool", req.Strategy.Name).
		Msg("activating strategy")

	v, _, err := a.vaults.GetOrCreate(ctx, id.UserID, wallet, domain.DefaultProfile, true)
	if err != nil {
		return Activation{}, fmt.Errorf("activate strategy: %w", err)
	}

	apy := decimal.NewFromFloat(req.Strategy.APY)
	if _, err := a.positions.InsertPosition(ctx, domain.Position{
		UserID:        id.UserID,
		WalletAddress: wallet,
		VaultID:       v.ID,
		PoolID:        req.Strategy.PoolID,
		PoolName:      req.Strategy.Name,
		Amount:        decimal.Zero,
		CurrentAPY:    &apy,
	}); err != nil {
		return Activation{}, domain.Upstream("store", fmt.Errorf("insert position: %w", err))
	}

	if _, err := a.vaults.Append(ctx, domain.Transaction{
		UserID:        id.UserID,
		WalletAddress: wallet,
		VaultID:       v.ID,
		Kind:          domain.TxStrategyActivation,
		ToPool:        req.Strategy.Name,
		Status:        domain.TxCompleted,
	}); err != nil {
		return Activation{}, fmt.Errorf("activate strategy: %w", err)
	}

	return Activation{Success: true, Message: "Strategy activated successfully", VaultID: v.ID}, nil
}
