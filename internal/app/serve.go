package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"aether-vault/internal/api"
	"aether-vault/internal/guardian"
	"aether-vault/internal/insights"
	"aether-vault/internal/strategy"
)

// Serve runs the HTTP API and, when guardian.server_poll is set, the
// server-side guardian poller until SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	validator, err := a.newValidator()
	if err != nil {
		return err
	}

	c := a.newCache()
	defer c.Close()

	wallets := a.newChain()
	defer wallets.Close()

	hub := api.NewHub(a.Logger)
	vaults := a.newVaultService(repo, hub)
	checker := guardian.NewChecker(a.newPriceFetcher(), repo, a.Logger)

	deps := api.Deps{
		Vaults:     vaults,
		Pools:      a.newPoolFetcher(c),
		Advisor:    strategy.NewAdvisor(a.newGenerator(ctx), a.Logger),
		Activator:  strategy.NewActivator(vaults, repo, a.Logger),
		Checker:    checker,
		RiskEvents: repo,
		Insights:   insights.NewService(repo, a.Logger),
		Wallets:    wallets,
		Validator:  validator,
		Hub:        hub,
		Health:     repo,
	}

	var poller *guardian.Poller
	if a.Config.Guardian.ServerPoll && a.Config.Guardian.Enabled {
		poller = a.newPoller(checker, guardian.AlwaysOn{}, repo)
		deps.Guardian = poller
	}

	srv := api.NewServer(api.Options{
		Addr:              a.Config.Server.Addr,
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
	}, deps, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if poller != nil {
		g.Go(func() error {
			a.Logger.Info().Dur("interval", a.Config.Guardian.Interval).Msg("starting server-side guardian poller")
			return poller.Run(gctx)
		})
	}

	a.Logger.Info().Str("addr", a.Config.Server.Addr).Msg("starting aetherd")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("aetherd terminated with error")
		return err
	}
	a.Logger.Info().Msg("aetherd stopped")
	return nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
