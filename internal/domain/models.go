package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultLabel is the pool name recorded on vault deposits and withdrawals.
const VaultLabel = "Vault"

// Identity is the authenticated caller. Either field may be empty when the
// user has not signed in or has no wallet connected.
type Identity struct {
	UserID        string
	WalletAddress string
}

// Complete reports whether both the owner id and wallet are known.
func (i Identity) Complete() bool {
	return i.UserID != "" && i.WalletAddress != ""
}

// Vault is the per-owner balance and policy record.
type Vault struct {
	ID              string
	UserID          string
	WalletAddress   string
	Balance         decimal.Decimal
	StrategyProfile StrategyProfile
	GuardianEnabled bool
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transaction is an immutable audit record.
type Transaction struct {
	ID            string
	UserID        string
	WalletAddress string
	VaultID       string
	Kind          TxKind
	Amount        *decimal.Decimal
	FromPool      string
	ToPool        string
	Status        TxStatus
	Signature     string
	CreatedAt     time.Time
}

// Position records funds allocated to an external pool.
type Position struct {
	ID            string
	UserID        string
	WalletAddress string
	VaultID       string
	PoolID        string
	PoolName      string
	Amount        decimal.Decimal
	EntryPrice    *decimal.Decimal
	CurrentAPY    *decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RiskEvent is written by the guardian whenever a threshold is crossed.
type RiskEvent struct {
	ID                string
	EventType         string
	Severity          Severity
	Description       string
	TriggeredGuardian bool
	CreatedAt         time.Time
}

// Prediction is an AI volume-spike forecast for a pool.
type Prediction struct {
	ID                   string           `json:"id"`
	PoolID               string           `json:"poolId"`
	PredictedVolumeSpike bool             `json:"predictedVolumeSpike"`
	ConfidenceScore      *decimal.Decimal `json:"confidenceScore"`
	PredictionTime       time.Time        `json:"predictionTime"`
	ActualResult         *bool            `json:"actualResult"`
	CreatedAt            time.Time        `json:"createdAt"`
}

// Pool is a liquidity pool as shown on the dashboard.
type Pool struct {
	PoolID    string    `json:"poolId"`
	Name      string    `json:"name"`
	APY       float64   `json:"apy"`
	TVL       float64   `json:"tvl"`
	Volume24h float64   `json:"volume24h"`
	RiskLevel RiskLevel `json:"riskLevel"`
	AIScore   float64   `json:"aiScore"`
	Type      string    `json:"type"`
}
