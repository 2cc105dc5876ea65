package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
)

// ErrNotReady is returned when Finish is called before the deposit step.
var ErrNotReady = errors.New("onboarding is not at the deposit step")

// Funding is the remote write path used on completion.
type Funding interface {
	SavePreferences(ctx context.Context, owner, wallet string, profile domain.StrategyProfile, guardian bool) (domain.Vault, error)
	Deposit(ctx context.Context, owner, wallet string, amount decimal.Decimal) (domain.Vault, error)
}

// LocalFlags is the client-side flag store.
type LocalFlags interface {
	SaveSelections(ctx context.Context, profile domain.StrategyProfile, guardian bool) error
	MarkOnboarded(ctx context.Context) error
}

// Mode tells a durable completion from a degraded one.
type Mode int

const (
	// Committed means the vault row holds the selections.
	Committed Mode = iota
	// Fallback means only the local flags were written.
	Fallback
)

func (m Mode) String() string {
	if m == Committed {
		return "committed"
	}
	return "fallback"
}

// Outcome is the result of Finish.
type Outcome struct {
	Mode Mode
	// Vault is set for Committed outcomes.
	Vault domain.Vault
	// Reason explains a Fallback.
	Reason string
	// DepositErr carries a validation failure of the optional deposit. The
	// preferences are still saved and the session stays on InitialDeposit.
	DepositErr error
	// LocalErr is a failed local flag write. It never blocks completion.
	LocalErr error
}

// Closed reports whether the dialog should close.
func (o Outcome) Closed() bool { return o.DepositErr == nil }

// Workflow persists a finished onboarding session.
type Workflow struct {
	funding Funding
	local   LocalFlags
	logger  zerolog.Logger
}

// NewWorkflow wires the remote and local write paths.
func NewWorkflow(funding Funding, local LocalFlags, logger zerolog.Logger) *Workflow {
	return &Workflow{
		funding: funding,
		local:   local,
		logger:  logger.With().Str("component", "onboarding").Logger(),
	}
}

// Finish persists the session selections and the optional initial deposit.
// Store failures degrade to local-only persistence; the only error surfaced
// is a deposit validation failure, in Outcome.DepositErr.
func (w *Workflow) Finish(ctx context.Context, s *Session, id domain.Identity, depositInput string) (Outcome, error) {
	if s.State != InitialDeposit {
		return Outcome{}, fmt.Errorf("finish from %s: %w", s.State, ErrNotReady)
	}

	var out Outcome
	if !id.Complete() {
		out = Outcome{Mode: Fallback, Reason: "no authenticated identity or wallet"}
	} else {
		out = w.commit(ctx, s, id, depositInput)
	}

	// 会话仍停留在存款步骤时不写本地标记，用户放弃后下次仍会看到引导
	if !out.Closed() {
		return out, nil
	}
	out.LocalErr = w.saveLocal(ctx, s)
	s.State = Done
	return out, nil
}

func (w *Workflow) commit(ctx context.Context, s *Session, id domain.Identity, depositInput string) Outcome {
	v, err := w.funding.SavePreferences(ctx, id.UserID, id.WalletAddress, s.Profile, s.Guardian)
	if err != nil {
		return w.degrade("save preferences", err)
	}

	amount, present, err := parseDeposit(depositInput)
	if err != nil {
		w.logger.Info().Str("user_id", id.UserID).Str("input", depositInput).Msg("initial deposit rejected")
		return Outcome{Mode: Committed, Vault: v, DepositErr: err}
	}
	if present {
		funded, err := w.funding.Deposit(ctx, id.UserID, id.WalletAddress, amount)
		switch {
		case errors.Is(err, domain.ErrValidation):
			return Outcome{Mode: Committed, Vault: v, DepositErr: err}
		case err != nil:
			return w.degrade("initial deposit", err)
		}
		v = funded
	}

	w.logger.Info().
		Str("user_id", id.UserID).
		Str("profile", string(s.Profile)).
		Bool("guardian", s.Guardian).
		Str("balance", v.Balance.String()).
		Msg("onboarding committed")
	return Outcome{Mode: Committed, Vault: v}
}

// degrade turns a store failure into a local-only completion.
func (w *Workflow) degrade(step string, err error) Outcome {
	w.logger.Warn().Err(err).Str("step", step).Msg("vault write failed, falling back to local storage")
	return Outcome{Mode: Fallback, Reason: fmt.Sprintf("%s: %v", step, err)}
}

// saveLocal writes the onboarded flag and the selections. When the combined
// write fails the onboarded flag is retried alone.
func (w *Workflow) saveLocal(ctx context.Context, s *Session) error {
	err := w.local.SaveSelections(ctx, s.Profile, s.Guardian)
	if err == nil {
		return nil
	}
	w.logger.Warn().Err(err).Msg("local selections not saved")
	if markErr := w.local.MarkOnboarded(ctx); markErr != nil {
		w.logger.Warn().Err(markErr).Msg("local onboarded flag not saved")
		return errors.Join(err, markErr)
	}
	return err
}

// parseDeposit reads the optional deposit field. Empty and non-positive
// inputs mean no deposit.
func parseDeposit(raw string) (decimal.Decimal, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, false, nil
	}
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, false, nil
	}
	return amount, true, nil
}
