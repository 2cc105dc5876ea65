package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunImmediatelyThenPeriodic(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{Interval: 10 * time.Millisecond, RunImmediately: true}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) == 3 {
				cancel()
			}
			return errors.New("tick errors do not stop the loop")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("期望 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler 未在预期时间内退出")
	}
	if calls.Load() < 3 {
		t.Fatalf("期望至少 3 次 tick, 实际 %d", calls.Load())
	}
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour, RunImmediately: true}, zerolog.Nop())
	err := s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("不应执行 tick")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, 实际 %v", err)
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToInterval: true}, zerolog.Nop())
	now := time.Date(2025, 3, 1, 10, 4, 30, 0, time.UTC)
	if got, want := s.nextTick(now), time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("期望 %s, 实际 %s", want, got)
	}

	s = New(Options{Interval: time.Minute}, zerolog.Nop())
	if got := s.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("非对齐模式期望 now+interval, 实际 %s", got)
	}
}
