package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aether-vault/internal/guardian"
	"aether-vault/internal/storage"
)

// RunGuardian polls the price feed until SIGINT/SIGTERM. Ticks are skipped
// while the local guardian toggle is off; each rising edge notifies once.
func (a *App) RunGuardian(ctx context.Context) error {
	if !a.Config.Guardian.Enabled {
		return errors.New("guardian.enabled is false")
	}
	ctx, cancel := signalContext(ctx)
	defer cancel()

	local, err := a.openLocal(ctx)
	if err != nil {
		return err
	}
	defer local.Close()

	var (
		events storage.RiskEventStore
		locker storage.AdvisoryLocker
	)
	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("store unavailable; risk events will not be persisted")
	} else {
		defer repo.Close()
		events, locker = repo, repo
	}

	checker := guardian.NewChecker(a.newPriceFetcher(), events, a.Logger)
	poller := a.newPoller(checker, local, locker)

	a.Logger.Info().Dur("interval", a.Config.Guardian.Interval).Bool("latch", a.Config.Guardian.Latch).Msg("starting guardian poller")
	err = poller.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("guardian poller terminated with error")
		return err
	}
	a.Logger.Info().Msg("guardian poller stopped")
	return nil
}

// CheckRisk runs one risk evaluation and prints it.
func (a *App) CheckRisk(ctx context.Context, asJSON bool) error {
	var events storage.RiskEventStore
	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("store unavailable; risk event will not be persisted")
	} else {
		defer repo.Close()
		events = repo
	}

	res, err := guardian.NewChecker(a.newPriceFetcher(), events, a.Logger).Check(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(a, res)
	}
	printRisk(a, res)
	return nil
}

// SetLocalGuardian flips the device-local guardian toggle.
func (a *App) SetLocalGuardian(ctx context.Context, enabled bool) error {
	local, err := a.openLocal(ctx)
	if err != nil {
		return err
	}
	defer local.Close()

	if err := local.SetGuardian(ctx, enabled); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Guardian Mode %s on this device.\n", onOff(enabled))
	return nil
}

// GuardianStatus prints the local flags.
func (a *App) GuardianStatus(ctx context.Context) error {
	local, err := a.openLocal(ctx)
	if err != nil {
		return err
	}
	defer local.Close()

	flags, err := local.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Guardian: %s\n", onOff(flags.Guardian))
	fmt.Fprintf(a.Out, "Onboarded: %t\n", flags.Onboarded)
	if flags.Strategy != "" {
		fmt.Fprintf(a.Out, "Strategy: %s\n", flags.Strategy)
	}
	fmt.Fprintf(a.Out, "Poll interval: %s\n", a.Config.Guardian.Interval)
	return nil
}

func printRisk(a *App, res guardian.Result) {
	if !res.RiskDetected {
		fmt.Fprintf(a.Out, "No risk detected. SOL $%s (%s%% 24h)\n",
			res.SolPrice.StringFixed(2), res.PriceChange24h.StringFixed(2))
		return
	}
	fmt.Fprintf(a.Out, "[%s] %s\n", res.Severity, res.Description)
	fmt.Fprintf(a.Out, "SOL $%s (%s%% 24h) at %s\n",
		res.SolPrice.StringFixed(2), res.PriceChange24h.StringFixed(2), res.CheckedAt.Format(time.RFC3339))
}
