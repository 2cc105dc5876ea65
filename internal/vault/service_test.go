package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-vault/internal/domain"
	"aether-vault/internal/storage"
)

const (
	owner  = "user-1"
	wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

func newService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	return NewService(mem, Options{MaxRetries: 3}, zerolog.Nop()), mem
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDepositHundredIntoEmptyVault(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)

	v, err := svc.Deposit(ctx, owner, wallet, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, "100.00", v.Balance.StringFixed(2))

	txs, err := mem.ListTransactionsByWallet(ctx, wallet, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, domain.TxDeposit, tx.Kind)
	assert.True(t, tx.Amount.Equal(dec("100")))
	assert.Equal(t, "Vault", tx.ToPool)
	assert.Equal(t, domain.TxCompleted, tx.Status)
	assert.Equal(t, v.ID, tx.VaultID)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, amount := range []string{"0.01", "1.5", "123.456789", "1000000"} {
		t.Run(amount, func(t *testing.T) {
			svc, mem := newService(t)
			a := dec(amount)

			_, err := svc.Deposit(ctx, owner, wallet, a)
			require.NoError(t, err)
			v, err := svc.Withdraw(ctx, owner, wallet, a)
			require.NoError(t, err)
			assert.True(t, v.Balance.IsZero(), "balance %s", v.Balance)

			txs, err := mem.ListTransactionsByWallet(ctx, wallet, 10)
			require.NoError(t, err)
			require.Len(t, txs, 2)
			assert.Equal(t, domain.TxWithdraw, txs[0].Kind)
			assert.Equal(t, "Vault", txs[0].FromPool)
			assert.Equal(t, domain.TxDeposit, txs[1].Kind)
			for _, tx := range txs {
				assert.Equal(t, domain.TxCompleted, tx.Status)
			}
		})
	}
}

func TestWithdrawInsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)

	_, err := svc.Deposit(ctx, owner, wallet, dec("50"))
	require.NoError(t, err)
	before, _ := svc.GetVault(ctx, owner)
	_, txsBefore, _ := mem.Counts()

	_, err = svc.Withdraw(ctx, owner, wallet, dec("50.01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))
	assert.Equal(t, "Insufficient balance. Available: 50.00 USDC", err.Error())

	after, _ := svc.GetVault(ctx, owner)
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, before.Version, after.Version)
	_, txsAfter, _ := mem.Counts()
	assert.Equal(t, txsBefore, txsAfter)
}

func TestWithdrawWithoutVault(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Withdraw(context.Background(), owner, wallet, dec("1"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestInvalidAmountWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)

	for _, a := range []string{"0.001", "1000000.01", "1.0000001", "-3"} {
		_, err := svc.Deposit(ctx, owner, wallet, dec(a))
		assert.True(t, errors.Is(err, domain.ErrValidation), a)
	}
	vaults, txs, _ := mem.Counts()
	assert.Zero(t, vaults)
	assert.Zero(t, txs)
}

func TestStoreFailureIsUpstream(t *testing.T) {
	svc, mem := newService(t)
	mem.FailWrites = errors.New("permission denied for table user_vaults")

	_, err := svc.Deposit(context.Background(), owner, wallet, dec("10"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

// conflictingStore loses the first n balance writes to a concurrent writer.
type conflictingStore struct {
	*storage.Memory
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (c *conflictingStore) UpdateVaultBalance(ctx context.Context, id string, bal decimal.Decimal, version int64) (domain.Vault, error) {
	c.mu.Lock()
	c.attempts++
	lose := c.conflicts > 0
	if lose {
		c.conflicts--
	}
	c.mu.Unlock()
	if lose {
		// 模拟另一个写者抢先提交
		if _, err := c.Memory.UpdateVaultBalance(ctx, id, bal.Add(dec("1")), version); err != nil {
			return domain.Vault{}, err
		}
		return domain.Vault{}, domain.ErrVersionConflict
	}
	return c.Memory.UpdateVaultBalance(ctx, id, bal, version)
}

func TestDepositRetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{Memory: storage.NewMemory(), conflicts: 1}
	svc := NewService(store, Options{MaxRetries: 3}, zerolog.Nop())

	v, err := svc.Deposit(ctx, owner, wallet, dec("10"))
	require.NoError(t, err)
	// the concurrent writer added 11, then our retry added 10 on top
	assert.Equal(t, "21.00", v.Balance.StringFixed(2))
	assert.Equal(t, 2, store.attempts)
}

func TestDepositGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{Memory: storage.NewMemory(), conflicts: 10}
	svc := NewService(store, Options{MaxRetries: 3}, zerolog.Nop())

	_, err := svc.Deposit(ctx, owner, wallet, dec("10"))
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))
	assert.Equal(t, 3, store.attempts)
	_, txs, _ := store.Counts()
	assert.Zero(t, txs)
}

func TestDepositBackoffHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &conflictingStore{Memory: storage.NewMemory(), conflicts: 10}
	svc := NewService(store, Options{MaxRetries: 5, RetryBackoff: time.Hour}, zerolog.Nop())

	_, err := svc.Deposit(ctx, owner, wallet, dec("10"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.attempts)
}

func TestConcurrentDepositsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	// default retry budget with jittered backoff
	svc := NewService(mem, Options{}, zerolog.Nop())
	_, _, err := svc.GetOrCreate(ctx, owner, wallet, domain.ProfileBalanced, true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deposit(ctx, owner, wallet, dec("5"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := svc.GetVault(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "100.00", v.Balance.StringFixed(2))
}

type recordingPublisher struct {
	mu  sync.Mutex
	txs []domain.Transaction
}

func (r *recordingPublisher) Publish(tx domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
}

func TestPreferencesAndPublisher(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)

	v, err := svc.SavePreferences(ctx, owner, wallet, domain.ProfileConservative, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileConservative, v.StrategyProfile)
	assert.False(t, v.GuardianEnabled)
	assert.True(t, v.Balance.IsZero())

	_, err = svc.Deposit(ctx, owner, wallet, dec("20"))
	require.NoError(t, err)

	v, err = svc.SetProfile(ctx, owner, wallet, domain.ProfileAggressive)
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileAggressive, v.StrategyProfile)
	assert.False(t, v.GuardianEnabled)
	assert.Equal(t, "20.00", v.Balance.StringFixed(2))

	v, err = svc.SetGuardian(ctx, owner, wallet, true)
	require.NoError(t, err)
	assert.True(t, v.GuardianEnabled)
	assert.Equal(t, domain.ProfileAggressive, v.StrategyProfile)

	_, err = svc.SavePreferences(ctx, owner, wallet, "reckless", true)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	require.Len(t, pub.txs, 1)
	assert.Equal(t, domain.TxDeposit, pub.txs[0].Kind)
}

func TestHistoryAndBalanceSeries(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)

	_, err := svc.Deposit(ctx, owner, wallet, dec("100"))
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, owner, wallet, dec("40"))
	require.NoError(t, err)
	v, _ := svc.GetVault(ctx, owner)
	_, err = mem.InsertTransaction(ctx, domain.Transaction{
		WalletAddress: wallet, VaultID: v.ID, Kind: domain.TxStrategyActivation, ToPool: "SOL-USDC", Status: domain.TxCompleted,
	})
	require.NoError(t, err)

	entries, err := svc.History(ctx, wallet, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Rebalanced to SOL-USDC", entries[0].Description)
	assert.Equal(t, "-", entries[0].Amount)
	assert.Equal(t, "Withdrew from Vault", entries[1].Description)
	assert.Equal(t, "$40.00", entries[1].Amount)
	assert.Equal(t, "Deposited to Vault", entries[2].Description)

	points, err := svc.BalanceSeries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "100", points[0].Balance.String())
	assert.Equal(t, "60", points[1].Balance.String())
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		tx   domain.Transaction
		want string
	}{
		{domain.Transaction{Kind: domain.TxDeposit, ToPool: "Vault"}, "Deposited to Vault"},
		{domain.Transaction{Kind: domain.TxWithdraw, ToPool: "RAY-USDC"}, "Withdrew from RAY-USDC"},
		{domain.Transaction{Kind: domain.TxRebalance, ToPool: "JUP-USDC"}, "Rebalanced to JUP-USDC"},
		{domain.Transaction{Kind: domain.TxWithdraw, FromPool: "Vault"}, "Withdrew from Vault"},
		{domain.Transaction{Kind: domain.TxRebalance}, "Transaction rebalance"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Describe(tc.tx))
	}
}
