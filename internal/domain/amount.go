package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// USDC amounts are bounded and carry at most six fractional digits.
const AmountPrecision = 6

var (
	MinAmount = decimal.RequireFromString("0.01")
	MaxAmount = decimal.RequireFromString("1000000")
)

// Amount validation messages shown to the user verbatim.
const (
	MsgInvalidNumber    = "Please enter a valid number"
	MsgBelowMinimum     = "Amount must be at least 0.01 USDC"
	MsgAboveMaximum     = "Amount cannot exceed 1,000,000 USDC"
	MsgInvalidPrecision = "Invalid decimal precision for USDC"
)

// ParseAmount turns user input into a decimal. It does not range-check.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, NewValidationError("amount", MsgInvalidNumber)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", MsgInvalidNumber)
	}
	return d, nil
}

// ValidateAmount enforces the funding range and precision.
func ValidateAmount(a decimal.Decimal) error {
	if a.LessThan(MinAmount) {
		return NewValidationError("amount", MsgBelowMinimum)
	}
	if a.GreaterThan(MaxAmount) {
		return NewValidationError("amount", MsgAboveMaximum)
	}
	if !a.Truncate(AmountPrecision).Equal(a) {
		return NewValidationError("amount", MsgInvalidPrecision)
	}
	return nil
}

// ParseAndValidateAmount combines both steps; non-numeric input fails before the range check.
func ParseAndValidateAmount(raw string) (decimal.Decimal, error) {
	a, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateAmount(a); err != nil {
		return decimal.Zero, err
	}
	return a, nil
}

// FormatUSDC renders a balance with two decimals for display.
func FormatUSDC(a decimal.Decimal) string {
	return a.StringFixed(2)
}
