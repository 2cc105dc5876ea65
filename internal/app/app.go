package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"aether-vault/internal/alerting"
	"aether-vault/internal/auth"
	"aether-vault/internal/cache"
	"aether-vault/internal/chain"
	"aether-vault/internal/config"
	"aether-vault/internal/domain"
	"aether-vault/internal/fetcher"
	"aether-vault/internal/guardian"
	"aether-vault/internal/llm"
	"aether-vault/internal/localstore"
	"aether-vault/internal/scheduler"
	"aether-vault/internal/storage"
	"aether-vault/internal/vault"
	"aether-vault/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; os.Stdout unless replaced.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// Identity is the owner/wallet pair CLI commands act on.
type Identity = domain.Identity

func (a *App) openRepository(ctx context.Context) (storage.Repository, error) {
	switch a.Config.Database.Driver {
	case "memory":
		a.Logger.Warn().Msg("database.driver=memory; state is lost on exit")
		return storage.NewMemory(), nil
	default:
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		return storage.NewStore(pool), nil
	}
}

func (a *App) openLocal(ctx context.Context) (*localstore.Store, error) {
	return localstore.Open(ctx, a.Config.Local.Path)
}

func (a *App) newCache() cache.Cache {
	c, err := cache.New(a.Config.Cache)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("cache unavailable; continuing without last-good payloads")
		return cache.Noop{}
	}
	return c
}

func (a *App) newPoolFetcher(c cache.Cache) *fetcher.Raydium {
	cfg := a.Config.Raydium
	return fetcher.NewRaydium(fetcher.RaydiumOptions{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		MaxPools:  cfg.MaxPools,
		UserAgent: version.UserAgent(),
		Cache:     c,
		CacheTTL:  a.Config.Cache.TTL,
	}, a.Logger)
}

func (a *App) newPriceFetcher() *fetcher.CoinGecko {
	cfg := a.Config.PriceFeed
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:     cfg.BaseURL,
		CoinID:      cfg.CoinID,
		APIKey:      cfg.APIKey,
		Timeout:     cfg.Timeout,
		MinInterval: cfg.MinInterval,
		UserAgent:   version.UserAgent(),
	}, a.Logger)
}

// newGenerator returns nil when the provider is not configured; the advisor
// then answers with an upstream error.
func (a *App) newGenerator(ctx context.Context) llm.Generator {
	gen, err := llm.New(ctx, a.Config.LLM, version.UserAgent(), a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Str("provider", a.Config.LLM.Provider).Msg("llm provider unavailable")
		return nil
	}
	return gen
}

func (a *App) newChain() *chain.Client {
	cfg := a.Config.Solana
	return chain.NewClient(chain.Options{RPCURL: cfg.RPCURL, Network: cfg.Network, Timeout: cfg.Timeout}, a.Logger)
}

func (a *App) newValidator() (*auth.Validator, error) {
	if a.Config.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret not configured")
	}
	return auth.NewValidator(a.Config.Auth.JWTSecret, a.Config.Auth.Issuer), nil
}

// newNotifier always logs; Telegram is added when enabled.
func (a *App) newNotifier() alerting.Notifier {
	notifiers := alerting.Multi{alerting.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, version.UserAgent(), 10*time.Second, a.Logger))
	}
	return notifiers
}

func (a *App) newVaultService(repo storage.Repository, pub vault.Publisher) *vault.Service {
	return vault.NewService(repo, vault.Options{
		MaxRetries:   a.Config.Vault.MaxRetries,
		RetryBackoff: a.Config.Vault.RetryBackoff,
		Publisher:    pub,
	}, a.Logger)
}

func (a *App) newPoller(checker guardian.RiskChecker, toggle guardian.Toggle, locker storage.AdvisoryLocker) *guardian.Poller {
	cfg := a.Config.Guardian
	sched := scheduler.New(scheduler.Options{
		Interval:       cfg.Interval,
		RunImmediately: true,
		StartupDelay:   cfg.StartupDelay,
		Name:           "guardian",
	}, a.Logger)
	return guardian.NewPoller(sched, checker, toggle, a.newNotifier(), guardian.PollerOptions{
		Latch:   cfg.Latch,
		LockKey: cfg.AdvisoryLockKey,
		Locker:  locker,
	}, a.Logger)
}

// Migrate applies the embedded schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.Driver == "memory" {
		a.Logger.Info().Msg("memory driver needs no migration")
		return nil
	}
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	store := storage.NewStore(pool)
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema applied")
	return nil
}

// IssueToken signs a development bearer token for id.
func (a *App) IssueToken(id Identity, ttl time.Duration) (string, error) {
	if !id.Complete() {
		return "", fmt.Errorf("both --user and --wallet are required")
	}
	if !chain.ValidAddress(id.WalletAddress) {
		return "", domain.NewValidationError("wallet", "Invalid Solana wallet address")
	}
	validator, err := a.newValidator()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = a.Config.Auth.TokenTTL
	}
	return validator.Issue(id, ttl)
}

// ExportOptions hold parameters for exporting a vault balance history.
type ExportOptions struct {
	Owner     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ListOptions configure the listing commands.
type ListOptions struct {
	Limit  int
	Filter string
	JSON   bool
}
