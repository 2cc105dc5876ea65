package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance matches every InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAuthorization indicates an identity/wallet mismatch.
	ErrAuthorization = errors.New("wallet address mismatch")
	// ErrUnauthenticated indicates a missing or invalid bearer credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUpstream matches every UpstreamError.
	ErrUpstream = errors.New("upstream failure")
	// ErrVersionConflict indicates a concurrent write won the row.
	ErrVersionConflict = errors.New("vault was modified concurrently")
)

// ValidationError carries a user-facing message.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientBalanceError reports a withdrawal above the available balance.
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient balance. Available: %s USDC", e.Available.StringFixed(2))
}

// Is makes errors.Is(err, ErrInsufficientBalance) succeed.
func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// UpstreamError wraps a failure of an external collaborator.
type UpstreamError struct {
	Service string
	Err     error
}

// Upstream wraps err as an UpstreamError unless it already is one.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstream) succeed.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
