package guardian

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aether-vault/internal/alerting"
	"aether-vault/internal/scheduler"
	"aether-vault/internal/storage"
)

// RiskChecker runs one risk evaluation.
type RiskChecker interface {
	Check(ctx context.Context) (Result, error)
}

// Toggle reports whether Guardian Mode is switched on.
type Toggle interface {
	GuardianEnabled(ctx context.Context) (bool, error)
}

// AlwaysOn is a Toggle for server-side polling.
type AlwaysOn struct{}

// GuardianEnabled always reports true.
func (AlwaysOn) GuardianEnabled(context.Context) (bool, error) { return true, nil }

// PollerOptions tune the poller.
type PollerOptions struct {
	// Latch keeps the active flag set until Reset instead of clearing it on a
	// calm tick.
	Latch bool
	// LockKey, with Locker, keeps one poller across replicas sharing a database.
	LockKey int64
	Locker  storage.AdvisoryLocker
}

// Poller evaluates risk on every scheduler tick and notifies on the
// inactive to active edge.
type Poller struct {
	scheduler *scheduler.Scheduler
	checker   RiskChecker
	toggle    Toggle
	notifier  alerting.Notifier
	opts      PollerOptions
	logger    zerolog.Logger

	mu     sync.Mutex
	active bool
	last   *Result
}

// NewPoller constructs the guardian poller. notifier may be nil.
func NewPoller(sched *scheduler.Scheduler, checker RiskChecker, toggle Toggle, notifier alerting.Notifier, opts PollerOptions, logger zerolog.Logger) *Poller {
	if toggle == nil {
		toggle = AlwaysOn{}
	}
	return &Poller{
		scheduler: sched,
		checker:   checker,
		toggle:    toggle,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With().Str("component", "guardian").Logger(),
	}
}

// Run blocks on the scheduler loop.
func (p *Poller) Run(ctx context.Context) error {
	if p.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return p.scheduler.Run(ctx, p.Tick)
}

// Tick 执行单次 Guardian 检查。
func (p *Poller) Tick(ctx context.Context, at time.Time) error {
	enabled, err := p.toggle.GuardianEnabled(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("read guardian toggle failed, skipping tick")
		return nil
	}
	if !enabled {
		p.logger.Debug().Time("at", at).Msg("guardian disabled, skipping tick")
		return nil
	}

	unlock, proceed, err := p.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		p.logger.Debug().Time("at", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	res, err := p.checker.Check(ctx)
	if err != nil {
		// 上游失败时静默跳过本轮
		p.logger.Warn().Err(err).Time("at", at).Msg("risk check failed, skipping tick")
		return nil
	}

	if p.observe(res) {
		p.notify(ctx, at, res)
	}
	return nil
}

// observe records the result and reports whether it is a rising edge.
func (p *Poller) observe(res Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := res
	p.last = &r
	triggered := res.RiskDetected && res.Severity.TriggersGuardian()
	wasActive := p.active
	switch {
	case triggered:
		p.active = true
	case !p.opts.Latch:
		p.active = false
	}
	return triggered && !wasActive
}

func (p *Poller) notify(ctx context.Context, at time.Time, res Result) {
	p.logger.Warn().
		Str("severity", string(res.Severity)).
		Str("description", res.Description).
		Msg("guardian activated")
	if p.notifier == nil {
		return
	}
	note := alerting.GuardianActivated(at, res.EventType, res.Severity, res.Description, res.SolPrice, res.PriceChange24h)
	if err := p.notifier.Notify(ctx, note); err != nil {
		p.logger.Error().Err(err).Msg("failed to dispatch guardian notification")
	}
}

// Active reports the current guardian flag.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Last returns the most recent successful check.
func (p *Poller) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}

// Reset clears the active flag. The next detected risk notifies again.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
}

func (p *Poller) acquireLock(ctx context.Context) (func(), bool, error) {
	if p.opts.LockKey == 0 || p.opts.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := p.opts.Locker.TryAdvisoryLock(ctx, p.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
