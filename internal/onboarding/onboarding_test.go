package onboarding

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-vault/internal/domain"
	"aether-vault/internal/localstore"
	"aether-vault/internal/storage"
	"aether-vault/internal/vault"
)

var testIdentity = domain.Identity{UserID: "user-7", WalletAddress: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"}

func TestTransition(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		want State
	}{
		{Welcome, Advance, ProfileSelection},
		{ProfileSelection, Advance, GuardianToggle},
		{GuardianToggle, Advance, InitialDeposit},
		{InitialDeposit, Advance, InitialDeposit},
		{Welcome, Retreat, Welcome},
		{ProfileSelection, Retreat, Welcome},
		{InitialDeposit, Retreat, GuardianToggle},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		require.NoError(t, err)
		if got != tc.want {
			t.Fatalf("%s + %d 期望 %s, 实际 %s", tc.from, tc.ev, tc.want, got)
		}
	}

	_, err := Transition(Done, Retreat)
	assert.Error(t, err)
}

func TestSessionSelections(t *testing.T) {
	s := NewSession()
	assert.Equal(t, domain.ProfileBalanced, s.Profile)
	assert.True(t, s.Guardian)

	require.NoError(t, s.SelectProfile(domain.ProfileAggressive))
	err := s.SelectProfile("yolo")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, domain.ProfileAggressive, s.Profile)

	s.SetGuardian(false)
	s.Advance()
	s.Advance()
	s.Retreat()
	assert.Equal(t, ProfileSelection, s.State)

	s.Reset()
	assert.Equal(t, NewSession(), s)
}

type fixture struct {
	mem   *storage.Memory
	local *localstore.Store
	flow  *Workflow
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	local, err := localstore.Open(ctx, filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	mem := storage.NewMemory()
	svc := vault.NewService(mem, vault.Options{}, zerolog.Nop())
	return fixture{mem: mem, local: local, flow: NewWorkflow(svc, local, zerolog.Nop())}
}

func atDeposit(profile domain.StrategyProfile, guardian bool) *Session {
	s := NewSession()
	_ = s.SelectProfile(profile)
	s.SetGuardian(guardian)
	for s.State != InitialDeposit {
		s.Advance()
	}
	return &s
}

func TestFinishCommitsVaultAndDeposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := atDeposit(domain.ProfileConservative, false)

	out, err := f.flow.Finish(ctx, s, testIdentity, "250")
	require.NoError(t, err)
	assert.Equal(t, Committed, out.Mode)
	assert.Equal(t, "250.00", out.Vault.Balance.StringFixed(2))
	assert.Equal(t, domain.ProfileConservative, out.Vault.StrategyProfile)
	assert.False(t, out.Vault.GuardianEnabled)
	assert.Equal(t, Done, s.State)

	_, txs, _ := f.mem.Counts()
	assert.Equal(t, 1, txs)

	flags, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.True(t, flags.Onboarded)
	assert.Equal(t, domain.ProfileConservative, flags.Strategy)
	assert.False(t, flags.Guardian)
}

func TestFinishUpdatesExistingVaultWithoutTouchingBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.flow.Finish(ctx, atDeposit(domain.ProfileBalanced, true), testIdentity, "40")
	require.NoError(t, err)
	require.Equal(t, Committed, out.Mode)

	out, err = f.flow.Finish(ctx, atDeposit(domain.ProfileAggressive, true), testIdentity, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileAggressive, out.Vault.StrategyProfile)
	assert.Equal(t, "40.00", out.Vault.Balance.StringFixed(2))

	vaults, txs, _ := f.mem.Counts()
	assert.Equal(t, 1, vaults)
	assert.Equal(t, 1, txs)
}

func TestFinishWithoutIdentityFallsBackLocally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []domain.Identity{{}, {UserID: "user-7"}, {WalletAddress: testIdentity.WalletAddress}} {
		s := atDeposit(domain.ProfileAggressive, true)
		out, err := f.flow.Finish(ctx, s, id, "100")
		require.NoError(t, err)
		assert.Equal(t, Fallback, out.Mode)
		assert.NotEmpty(t, out.Reason)
		assert.True(t, s.Finished())
	}

	vaults, txs, _ := f.mem.Counts()
	assert.Zero(t, vaults)
	assert.Zero(t, txs)
	flags, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.True(t, flags.Onboarded)
	assert.Equal(t, domain.ProfileAggressive, flags.Strategy)
}

func TestFinishStoreFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.FailWrites = errors.New("new row violates row-level security policy")
	s := atDeposit(domain.ProfileBalanced, true)

	out, err := f.flow.Finish(ctx, s, testIdentity, "10")
	require.NoError(t, err)
	assert.Equal(t, Fallback, out.Mode)
	assert.Contains(t, out.Reason, "row-level security")
	assert.Nil(t, out.DepositErr)
	assert.True(t, s.Finished())

	flags, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.True(t, flags.Onboarded)
}

func TestFinishDepositValidationKeepsSessionOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, input := range []string{"abc", "0.001", "5000000", "1.1234567"} {
		s := atDeposit(domain.ProfileBalanced, true)
		out, err := f.flow.Finish(ctx, s, testIdentity, input)
		require.NoError(t, err)
		if !errors.Is(out.DepositErr, domain.ErrValidation) {
			t.Fatalf("输入 %q 期望校验错误, 实际 %v", input, out.DepositErr)
		}
		assert.Equal(t, Committed, out.Mode)
		assert.Equal(t, InitialDeposit, s.State)
		assert.False(t, out.Closed())
	}

	// preferences from the earlier step stand
	vaults, txs, _ := f.mem.Counts()
	assert.Equal(t, 1, vaults)
	assert.Zero(t, txs)

	// abandoning the dialog here must bring onboarding back next time
	flags, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.False(t, flags.Onboarded)

	s := atDeposit(domain.ProfileBalanced, true)
	out, err := f.flow.Finish(ctx, s, testIdentity, "25")
	require.NoError(t, err)
	assert.True(t, out.Closed())
	flags, err = f.local.Load(ctx)
	require.NoError(t, err)
	assert.True(t, flags.Onboarded)
}

func TestFinishSkipsNonPositiveDeposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, input := range []string{"0", "-5", "   "} {
		out, err := f.flow.Finish(ctx, atDeposit(domain.ProfileBalanced, true), testIdentity, input)
		require.NoError(t, err)
		assert.Equal(t, Committed, out.Mode)
		assert.Nil(t, out.DepositErr)
	}
	_, txs, _ := f.mem.Counts()
	assert.Zero(t, txs)
}

func TestFinishRequiresDepositStep(t *testing.T) {
	f := newFixture(t)
	s := NewSession()
	_, err := f.flow.Finish(context.Background(), &s, testIdentity, "")
	assert.True(t, errors.Is(err, ErrNotReady))
}

type brokenLocal struct {
	selectionsErr, markErr error
	marked                 bool
}

func (b *brokenLocal) SaveSelections(context.Context, domain.StrategyProfile, bool) error {
	return b.selectionsErr
}

func (b *brokenLocal) MarkOnboarded(context.Context) error {
	b.marked = b.markErr == nil
	return b.markErr
}

func TestFinishLocalWriteFailureNeverBlocks(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	svc := vault.NewService(mem, vault.Options{}, zerolog.Nop())

	local := &brokenLocal{selectionsErr: errors.New("disk full")}
	flow := NewWorkflow(svc, local, zerolog.Nop())
	s := atDeposit(domain.ProfileBalanced, true)

	out, err := flow.Finish(ctx, s, testIdentity, "")
	require.NoError(t, err)
	assert.Equal(t, Committed, out.Mode)
	assert.Error(t, out.LocalErr)
	assert.True(t, local.marked)
	assert.True(t, s.Finished())

	local = &brokenLocal{selectionsErr: errors.New("disk full"), markErr: errors.New("read-only")}
	flow = NewWorkflow(svc, local, zerolog.Nop())
	s = atDeposit(domain.ProfileBalanced, true)
	out, err = flow.Finish(ctx, s, domain.Identity{}, "")
	require.NoError(t, err)
	assert.Equal(t, Fallback, out.Mode)
	assert.ErrorContains(t, out.LocalErr, "read-only")
	assert.True(t, s.Finished())
}
