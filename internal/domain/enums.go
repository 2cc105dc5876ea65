package domain

import (
	"fmt"
	"strings"
)

// StrategyProfile controls recommendation weighting.
type StrategyProfile string

const (
	ProfileConservative StrategyProfile = "conservative"
	ProfileBalanced     StrategyProfile = "balanced"
	ProfileAggressive   StrategyProfile = "aggressive"
)

// DefaultProfile is used when nothing was chosen yet.
const DefaultProfile = ProfileBalanced

// Profiles lists the accepted profiles in display order.
var Profiles = []StrategyProfile{ProfileConservative, ProfileBalanced, ProfileAggressive}

// ParseProfile accepts one of the three profile names, case-insensitively.
func ParseProfile(raw string) (StrategyProfile, error) {
	switch p := StrategyProfile(strings.ToLower(strings.TrimSpace(raw))); p {
	case ProfileConservative, ProfileBalanced, ProfileAggressive:
		return p, nil
	default:
		return "", NewValidationError("strategyProfile", fmt.Sprintf("unknown strategy profile %q", raw))
	}
}

// Valid reports whether p is one of the known profiles.
func (p StrategyProfile) Valid() bool {
	_, err := ParseProfile(string(p))
	return err == nil
}

// TxKind is the type column of a transaction.
type TxKind string

const (
	TxDeposit            TxKind = "deposit"
	TxWithdraw           TxKind = "withdraw"
	TxRebalance          TxKind = "rebalance"
	TxStrategyActivation TxKind = "strategy_activation"
)

// ParseTxKind parses a stored transaction type.
func ParseTxKind(raw string) (TxKind, error) {
	switch k := TxKind(raw); k {
	case TxDeposit, TxWithdraw, TxRebalance, TxStrategyActivation:
		return k, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", raw)
	}
}

// TxStatus is the lifecycle state recorded on a transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// ParseTxStatus maps unknown stored statuses to pending.
func ParseTxStatus(raw string) TxStatus {
	switch s := TxStatus(raw); s {
	case TxPending, TxCompleted, TxFailed:
		return s
	default:
		return TxPending
	}
}

// Severity grades a risk event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalises stored severities; anything unrecognised reads as medium.
func ParseSeverity(raw string) Severity {
	switch s := Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s
	default:
		return SeverityMedium
	}
}

// TriggersGuardian reports whether the severity activates Guardian Mode.
func (s Severity) TriggersGuardian() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// RiskLevel is the liquidity tier shown next to a pool.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)
