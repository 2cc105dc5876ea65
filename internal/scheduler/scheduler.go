package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per period with the scheduled tick time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// RunImmediately fires one tick before the first full interval.
	RunImmediately bool
	// AlignToInterval snaps ticks to wall-clock multiples of Interval.
	AlignToInterval bool
	StartupDelay    time.Duration
	// Name tags log lines when several schedulers run in one process.
	Name string
}

// Scheduler drives fixed-period jobs such as the guardian check.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	l := logger.With().Str("component", "scheduler")
	if opts.Name != "" {
		l = l.Str("job", opts.Name)
	}
	return &Scheduler{opts: opts, logger: l.Logger()}
}

// Run blocks, invoking tick every interval until ctx is cancelled. A failing
// tick is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if !sleep(ctx, s.opts.StartupDelay) {
			return ctx.Err()
		}
	}

	if s.opts.RunImmediately {
		s.fire(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			// 处理耗时超过一个周期时跳过错过的 tick
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		s.fire(ctx, tick, next)
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToInterval {
		return now.Add(s.opts.Interval)
	}
	t := now.Truncate(s.opts.Interval)
	if !t.After(now) {
		t = t.Add(s.opts.Interval)
	}
	return t
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
