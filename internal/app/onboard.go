package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
	"aether-vault/internal/onboarding"
)

// OnboardOptions configure the interactive onboarding dialog.
type OnboardOptions struct {
	Identity Identity
	// Reset shows the dialog again even when the local flag is set.
	Reset bool
}

// unavailableFunding lets the workflow degrade when the store cannot be opened.
type unavailableFunding struct{ err error }

func (u unavailableFunding) SavePreferences(context.Context, string, string, domain.StrategyProfile, bool) (domain.Vault, error) {
	return domain.Vault{}, u.err
}

func (u unavailableFunding) Deposit(context.Context, string, string, decimal.Decimal) (domain.Vault, error) {
	return domain.Vault{}, u.err
}

// Onboard walks the four onboarding steps on in/a.Out and persists the result.
func (a *App) Onboard(ctx context.Context, in io.Reader, opts OnboardOptions) error {
	local, err := a.openLocal(ctx)
	if err != nil {
		return err
	}
	defer local.Close()

	flags, err := local.Load(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("read local flags failed")
	}
	if flags.Onboarded && !opts.Reset {
		fmt.Fprintln(a.Out, "Already onboarded. Run with --reset to go through the setup again.")
		return nil
	}

	var funding onboarding.Funding
	if opts.Identity.Complete() {
		repo, err := a.openRepository(ctx)
		if err != nil {
			funding = unavailableFunding{err: domain.Upstream("store", err)}
		} else {
			defer repo.Close()
			funding = a.newVaultService(repo, nil)
		}
	} else {
		funding = unavailableFunding{err: domain.ErrUnauthenticated}
	}

	wf := onboarding.NewWorkflow(funding, local, a.Logger)
	session := onboarding.NewSession()
	if flags.Strategy != "" {
		_ = session.SelectProfile(flags.Strategy)
	}

	d := dialog{in: bufio.NewScanner(in), out: a.Out}
	for !session.Finished() {
		d.header(session.State)
		switch session.State {
		case onboarding.Welcome:
			fmt.Fprintln(a.Out, "Welcome to Aether Vault, an AI yield agent that keeps your strategy private.")
			if _, ok := d.ask("Press Enter to continue"); !ok {
				return io.ErrUnexpectedEOF
			}
			session.Advance()

		case onboarding.ProfileSelection:
			for i, p := range domain.Profiles {
				fmt.Fprintf(a.Out, "  [%d] %s\n", i+1, p)
			}
			answer, ok := d.ask(fmt.Sprintf("Strategy profile (current %s, b to go back)", session.Profile))
			if !ok {
				return io.ErrUnexpectedEOF
			}
			if answer == "b" {
				session.Retreat()
				continue
			}
			if answer != "" {
				if err := session.SelectProfile(pickProfile(answer)); err != nil {
					fmt.Fprintln(a.Out, err)
					continue
				}
			}
			session.Advance()

		case onboarding.GuardianToggle:
			answer, ok := d.ask(fmt.Sprintf("Enable Guardian Mode? [y/n] (current %s, b to go back)", onOff(session.Guardian)))
			if !ok {
				return io.ErrUnexpectedEOF
			}
			switch strings.ToLower(answer) {
			case "b":
				session.Retreat()
				continue
			case "y", "yes":
				session.SetGuardian(true)
			case "n", "no":
				session.SetGuardian(false)
			}
			session.Advance()

		case onboarding.InitialDeposit:
			answer, ok := d.ask("Initial deposit in USDC (empty to skip, b to go back)")
			if !ok {
				return io.ErrUnexpectedEOF
			}
			if answer == "b" {
				session.Retreat()
				continue
			}
			out, err := wf.Finish(ctx, &session, opts.Identity, answer)
			if err != nil {
				return err
			}
			a.reportOutcome(out)
		}
	}
	return nil
}

func (a *App) reportOutcome(out onboarding.Outcome) {
	if out.DepositErr != nil {
		fmt.Fprintln(a.Out, out.DepositErr)
		return
	}
	switch out.Mode {
	case onboarding.Committed:
		fmt.Fprintf(a.Out, "Vault ready. Balance: %s USDC\n", domain.FormatUSDC(out.Vault.Balance))
	default:
		fmt.Fprintln(a.Out, "Preferences saved on this device only.")
		a.Logger.Warn().Str("reason", out.Reason).Msg("onboarding completed in fallback mode")
	}
	if out.LocalErr != nil {
		fmt.Fprintln(a.Out, "Warning: local settings could not be saved.")
	}
}

// pickProfile accepts a menu number or a profile name.
func pickProfile(answer string) domain.StrategyProfile {
	for i, p := range domain.Profiles {
		if answer == fmt.Sprint(i+1) {
			return p
		}
	}
	return domain.StrategyProfile(strings.ToLower(answer))
}

type dialog struct {
	in  *bufio.Scanner
	out io.Writer
}

func (d dialog) header(s onboarding.State) {
	fmt.Fprintf(d.out, "\n== Step %d of 4: %s ==\n", s.Step(), s)
}

func (d dialog) ask(prompt string) (string, bool) {
	fmt.Fprintf(d.out, "%s: ", prompt)
	if !d.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(d.in.Text()), true
}
