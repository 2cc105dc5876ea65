package guardian

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
	"go.uber.org/goleak"

	"aether-vault/internal/alerting"
	"aether-vault/internal/domain"
	"aether-vault/internal/fetcher"
	"aether-vault/internal/scheduler"
	"aether-vault/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		change string
		want   domain.Severity
		ok     bool
	}{
		{"-10.0", domain.SeverityHigh, true},
		{"-15.0", domain.SeverityCritical, true},
		{"-9.99", domain.SeverityLow, false},
		{"-15.01", domain.SeverityCritical, true},
		{"-14.99", domain.SeverityHigh, true},
		{"12", domain.SeverityLow, false},
		{"0", domain.SeverityLow, false},
	}
	for _, tc := range cases {
		sev, ok := Classify(decimal.RequireFromString(tc.change))
		if sev != tc.want || ok != tc.ok {
			t.Fatalf("change %s 期望 (%s,%v), 实际 (%s,%v)", tc.change, tc.want, tc.ok, sev, ok)
		}
	}
}

type stubPrices struct {
	mu     sync.Mutex
	quotes []fetcher.Quote
	err    error
	calls  int
}

func (s *stubPrices) FetchPrice(context.Context) (fetcher.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return fetcher.Quote{}, s.err
	}
	q := s.quotes[0]
	if len(s.quotes) > 1 {
		s.quotes = s.quotes[1:]
	}
	return q, nil
}

func quote(price, change string) fetcher.Quote {
	return fetcher.Quote{Price: decimal.RequireFromString(price), Change24h: decimal.RequireFromString(change)}
}

func TestCheckPersistsDetectedRisk(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	c := NewChecker(&stubPrices{quotes: []fetcher.Quote{quote("120", "-16.4")}}, mem, zerolog.Nop())

	res, err := c.Check(ctx)
	require.NoError(t, err)
	assert.True(t, res.RiskDetected)
	assert.Equal(t, EventPriceDrop, res.EventType)
	assert.Equal(t, domain.SeverityCritical, res.Severity)
	assert.Equal(t, "SOL price dropped 16.40% in 24 hours", res.Description)

	assert.True(t, res.EventRecorded)

	events, err := mem.ListRecentRiskEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].TriggeredGuardian)

	c = NewChecker(&stubPrices{quotes: []fetcher.Quote{quote("120", "-11")}}, mem, zerolog.Nop())
	res, err = c.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventVolatilitySpike, res.EventType)
	assert.Equal(t, "High volatility detected: 11.00% price drop", res.Description)
}

func TestCheckDetectsRiskWhenEventWriteFails(t *testing.T) {
	mem := storage.NewMemory()
	mem.FailWrites = errors.New("permission denied")
	c := NewChecker(&stubPrices{quotes: []fetcher.Quote{quote("120", "-16")}}, mem, zerolog.Nop())

	res, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.RiskDetected)
	assert.Equal(t, domain.SeverityCritical, res.Severity)
	assert.False(t, res.EventRecorded)
}

func TestCheckCalmMarket(t *testing.T) {
	mem := storage.NewMemory()
	c := NewChecker(&stubPrices{quotes: []fetcher.Quote{quote("150", "2.5")}}, mem, zerolog.Nop())
	res, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.RiskDetected)
	assert.Equal(t, domain.SeverityLow, res.Severity)
	events, _ := mem.ListRecentRiskEvents(context.Background(), 10)
	assert.Empty(t, events)
}

func TestCheckUpstreamFailure(t *testing.T) {
	c := NewChecker(&stubPrices{err: errors.New("429")}, nil, zerolog.Nop())
	_, err := c.Check(context.Background())
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

type countingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (n *countingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

type switchToggle struct{ on bool }

func (s *switchToggle) GuardianEnabled(context.Context) (bool, error) { return s.on, nil }

func TestPollerEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	prices := &stubPrices{quotes: []fetcher.Quote{
		quote("100", "-12"), quote("95", "-16"), quote("99", "-3"), quote("90", "-11"),
	}}
	notes := &countingNotifier{}
	p := NewPoller(nil, NewChecker(prices, nil, zerolog.Nop()), nil, notes, PollerOptions{}, zerolog.Nop())

	now := time.Now()
	require.NoError(t, p.Tick(ctx, now))
	assert.True(t, p.Active())
	assert.Equal(t, 1, notes.count())

	// still active, no second notification
	require.NoError(t, p.Tick(ctx, now))
	assert.Equal(t, 1, notes.count())

	// calm tick clears the flag without latch
	require.NoError(t, p.Tick(ctx, now))
	assert.False(t, p.Active())

	require.NoError(t, p.Tick(ctx, now))
	assert.True(t, p.Active())
	assert.Equal(t, 2, notes.count())
	assert.Equal(t, alerting.GuardianTitle, notes.notes[1].Title)
}

func TestPollerLatch(t *testing.T) {
	ctx := context.Background()
	prices := &stubPrices{quotes: []fetcher.Quote{quote("100", "-20"), quote("101", "1"), quote("90", "-12")}}
	notes := &countingNotifier{}
	p := NewPoller(nil, NewChecker(prices, nil, zerolog.Nop()), nil, notes, PollerOptions{Latch: true}, zerolog.Nop())

	require.NoError(t, p.Tick(ctx, time.Now()))
	require.NoError(t, p.Tick(ctx, time.Now()))
	assert.True(t, p.Active(), "latched flag survives a calm tick")

	p.Reset()
	assert.False(t, p.Active())
	require.NoError(t, p.Tick(ctx, time.Now()))
	assert.Equal(t, 2, notes.count())
}

func TestPollerActivatesWhenEventWriteFails(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	mem.FailWrites = errors.New("permission denied")
	prices := &stubPrices{quotes: []fetcher.Quote{quote("120", "-16"), quote("118", "-17")}}
	notes := &countingNotifier{}
	p := NewPoller(nil, NewChecker(prices, mem, zerolog.Nop()), nil, notes, PollerOptions{}, zerolog.Nop())

	require.NoError(t, p.Tick(ctx, time.Now()))
	assert.True(t, p.Active())
	assert.Equal(t, 1, notes.count())

	require.NoError(t, p.Tick(ctx, time.Now()))
	assert.Equal(t, 1, notes.count())
}

func TestPollerDisabledMakesNoCall(t *testing.T) {
	prices := &stubPrices{quotes: []fetcher.Quote{quote("100", "-30")}}
	toggle := &switchToggle{on: false}
	notes := &countingNotifier{}
	p := NewPoller(nil, NewChecker(prices, nil, zerolog.Nop()), toggle, notes, PollerOptions{}, zerolog.Nop())

	require.NoError(t, p.Tick(context.Background(), time.Now()))
	assert.Zero(t, prices.calls)
	assert.False(t, p.Active())
	_, ok := p.Last()
	assert.False(t, ok)
}

func TestPollerSkipsFailedCycle(t *testing.T) {
	prices := &stubPrices{err: errors.New("timeout")}
	p := NewPoller(nil, NewChecker(prices, nil, zerolog.Nop()), nil, nil, PollerOptions{}, zerolog.Nop())
	assert.NoError(t, p.Tick(context.Background(), time.Now()))
	assert.False(t, p.Active())
}

func TestPollerAdvisoryLockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	release, ok, err := mem.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	prices := &stubPrices{quotes: []fetcher.Quote{quote("100", "-30")}}
	p := NewPoller(nil, NewChecker(prices, nil, zerolog.Nop()), nil, nil, PollerOptions{LockKey: 42, Locker: mem}, zerolog.Nop())
	require.NoError(t, p.Tick(ctx, time.Now()))
	assert.Zero(t, prices.calls)

	release()
	require.NoError(t, p.Tick(ctx, time.Now()))
	assert.Equal(t, 1, prices.calls)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	prices := &stubPrices{quotes: []fetcher.Quote{quote("100", "-30")}}
	notes := &countingNotifier{}
	sched := scheduler.New(scheduler.Options{Interval: 5 * time.Millisecond, RunImmediately: true}, zerolog.Nop())
	p := NewPoller(sched, NewChecker(prices, nil, zerolog.Nop()), nil, notes, PollerOptions{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Active() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller 未退出")
	}
	assert.Equal(t, 1, notes.count())
}
