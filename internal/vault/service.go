package vault

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
	"aether-vault/internal/storage"
)

// Store is the subset of the repository funding needs.
type Store interface {
	storage.VaultStore
	storage.TransactionStore
}

// Publisher receives every transaction appended by the service.
type Publisher interface {
	Publish(tx domain.Transaction)
}

// Options tune the service.
type Options struct {
	// MaxRetries bounds compare-and-swap attempts on a contended vault row.
	MaxRetries int
	// RetryBackoff is the base wait between attempts; each retry waits
	// attempt*RetryBackoff plus up to RetryBackoff of jitter.
	RetryBackoff time.Duration
	Publisher    Publisher
}

const (
	defaultMaxRetries   = 8
	defaultRetryBackoff = 10 * time.Millisecond
)

// Service implements vault funding operations.
type Service struct {
	store     Store
	opts      Options
	logger    zerolog.Logger
	publisher Publisher
}

// NewService wires a store into the funding service.
func NewService(store Store, opts Options, logger zerolog.Logger) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Service{
		store:     store,
		opts:      opts,
		logger:    logger.With().Str("component", "vault").Logger(),
		publisher: opts.Publisher,
	}
}

// SetPublisher attaches a transaction publisher after construction.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// GetVault returns the owner's vault or domain.ErrNotFound.
func (s *Service) GetVault(ctx context.Context, owner string) (domain.Vault, error) {
	v, err := s.store.GetVaultByOwner(ctx, owner)
	if err != nil {
		return domain.Vault{}, storeErr(err)
	}
	return v, nil
}

// GetOrCreate returns the owner's vault, creating it with balance 0 and the
// given preferences when absent. created reports whether a row was inserted.
func (s *Service) GetOrCreate(ctx context.Context, owner, wallet string, profile domain.StrategyProfile, guardian bool) (v domain.Vault, created bool, err error) {
	v, err = s.store.GetVaultByOwner(ctx, owner)
	if err == nil {
		return v, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Vault{}, false, storeErr(err)
	}

	v, err = s.store.CreateVault(ctx, domain.Vault{
		UserID:          owner,
		WalletAddress:   wallet,
		Balance:         decimal.Zero,
		StrategyProfile: profile,
		GuardianEnabled: guardian,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		// 并发创建时以已存在的行为准
		v, err = s.store.GetVaultByOwner(ctx, owner)
		if err != nil {
			return domain.Vault{}, false, storeErr(err)
		}
		return v, false, nil
	}
	if err != nil {
		return domain.Vault{}, false, storeErr(err)
	}
	s.logger.Info().Str("user_id", owner).Str("vault_id", v.ID).Msg("vault created")
	return v, true, nil
}

// SavePreferences creates the vault with the preferences, or updates them on
// an existing vault without touching its balance.
func (s *Service) SavePreferences(ctx context.Context, owner, wallet string, profile domain.StrategyProfile, guardian bool) (domain.Vault, error) {
	if !profile.Valid() {
		return domain.Vault{}, domain.NewValidationError("strategyProfile", fmt.Sprintf("unknown strategy profile %q", profile))
	}
	v, created, err := s.GetOrCreate(ctx, owner, wallet, profile, guardian)
	if err != nil {
		return domain.Vault{}, err
	}
	if created || (v.StrategyProfile == profile && v.GuardianEnabled == guardian) {
		return v, nil
	}
	v, err = s.store.UpdateVaultPreferences(ctx, v.ID, profile, guardian)
	if err != nil {
		return domain.Vault{}, storeErr(err)
	}
	return v, nil
}

// SetProfile changes only the strategy profile.
func (s *Service) SetProfile(ctx context.Context, owner, wallet string, profile domain.StrategyProfile) (domain.Vault, error) {
	v, _, err := s.GetOrCreate(ctx, owner, wallet, profile, true)
	if err != nil {
		return domain.Vault{}, err
	}
	return s.SavePreferences(ctx, owner, wallet, profile, v.GuardianEnabled)
}

// SetGuardian changes only the guardian flag.
func (s *Service) SetGuardian(ctx context.Context, owner, wallet string, enabled bool) (domain.Vault, error) {
	v, _, err := s.GetOrCreate(ctx, owner, wallet, domain.DefaultProfile, enabled)
	if err != nil {
		return domain.Vault{}, err
	}
	return s.SavePreferences(ctx, owner, wallet, v.StrategyProfile, enabled)
}

// Deposit validates amount, adds it to the balance and appends a deposit
// transaction. Nothing is written when validation fails.
func (s *Service) Deposit(ctx context.Context, owner, wallet string, amount decimal.Decimal) (domain.Vault, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Vault{}, err
	}

	v, err := s.mutateBalance(ctx, func(ctx context.Context) (domain.Vault, error) {
		v, _, err := s.GetOrCreate(ctx, owner, wallet, domain.DefaultProfile, true)
		return v, err
	}, func(current decimal.Decimal) (decimal.Decimal, error) {
		return current.Add(amount), nil
	})
	if err != nil {
		return domain.Vault{}, fmt.Errorf("deposit: %w", err)
	}

	if err := s.appendTx(ctx, domain.Transaction{
		UserID:        owner,
		WalletAddress: wallet,
		VaultID:       v.ID,
		Kind:          domain.TxDeposit,
		Amount:        &amount,
		ToPool:        domain.VaultLabel,
		Status:        domain.TxCompleted,
	}); err != nil {
		return domain.Vault{}, fmt.Errorf("deposit: %w", err)
	}

	s.logger.Info().Str("user_id", owner).Str("amount", amount.String()).Str("balance", v.Balance.String()).Msg("deposit completed")
	return v, nil
}

// Withdraw validates amount, rejects overdrafts, subtracts it from the
// balance and appends a withdraw transaction.
func (s *Service) Withdraw(ctx context.Context, owner, wallet string, amount decimal.Decimal) (domain.Vault, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Vault{}, err
	}

	v, err := s.mutateBalance(ctx, func(ctx context.Context) (domain.Vault, error) {
		return s.GetVault(ctx, owner)
	}, func(current decimal.Decimal) (decimal.Decimal, error) {
		if amount.GreaterThan(current) {
			return decimal.Zero, &domain.InsufficientBalanceError{Available: current, Requested: amount}
		}
		return current.Sub(amount), nil
	})
	if err != nil {
		return domain.Vault{}, err
	}

	if err := s.appendTx(ctx, domain.Transaction{
		UserID:        owner,
		WalletAddress: wallet,
		VaultID:       v.ID,
		Kind:          domain.TxWithdraw,
		Amount:        &amount,
		FromPool:      domain.VaultLabel,
		Status:        domain.TxCompleted,
	}); err != nil {
		return domain.Vault{}, fmt.Errorf("withdraw: %w", err)
	}

	s.logger.Info().Str("user_id", owner).Str("amount", amount.String()).Str("balance", v.Balance.String()).Msg("withdraw completed")
	return v, nil
}

// mutateBalance runs load -> compute -> CAS write, re-reading on version
// conflicts up to MaxRetries times with a jittered backoff between attempts.
func (s *Service) mutateBalance(
	ctx context.Context,
	load func(context.Context) (domain.Vault, error),
	compute func(decimal.Decimal) (decimal.Decimal, error),
) (domain.Vault, error) {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		v, err := load(ctx)
		if err != nil {
			return domain.Vault{}, err
		}
		next, err := compute(v.Balance)
		if err != nil {
			return domain.Vault{}, err
		}
		updated, err := s.store.UpdateVaultBalance(ctx, v.ID, next, v.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Debug().Str("vault_id", v.ID).Int("attempt", attempt).Msg("vault version conflict, retrying")
			if attempt == s.opts.MaxRetries {
				break
			}
			if err := s.backoff(ctx, attempt); err != nil {
				return domain.Vault{}, err
			}
			continue
		}
		if err != nil {
			return domain.Vault{}, storeErr(err)
		}
		return updated, nil
	}
	s.logger.Warn().Int("attempts", s.opts.MaxRetries).Msg("vault update gave up after repeated conflicts")
	return domain.Vault{}, domain.ErrVersionConflict
}

// backoff waits attempt*RetryBackoff plus jitter, or until ctx is done.
func (s *Service) backoff(ctx context.Context, attempt int) error {
	base := s.opts.RetryBackoff
	wait := time.Duration(attempt)*base + rand.N(base)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Append writes a transaction that does not move the balance, such as a
// strategy activation, and publishes it.
func (s *Service) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	stored, err := s.store.InsertTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, storeErr(err)
	}
	if s.publisher != nil {
		s.publisher.Publish(stored)
	}
	return stored, nil
}

func (s *Service) appendTx(ctx context.Context, tx domain.Transaction) error {
	_, err := s.Append(ctx, tx)
	return err
}

// storeErr keeps domain outcomes matchable and tags everything else as upstream.
func storeErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrVersionConflict) {
		return err
	}
	return domain.Upstream("store", err)
}
