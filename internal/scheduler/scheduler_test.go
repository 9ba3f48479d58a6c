package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type toggleSource struct {
	enabled atomic.Bool
	err     error
}

func (t *toggleSource) WorkerEnabled(context.Context) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	return t.enabled.Load(), nil
}

func TestGateWaitPassesWhenEnabled(t *testing.T) {
	source := &toggleSource{}
	source.enabled.Store(true)
	gate := NewGate(source, time.Millisecond, zerolog.Nop())

	if err := gate.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestGateWaitBlocksUntilReEnabled(t *testing.T) {
	source := &toggleSource{}
	gate := NewGate(source, time.Millisecond, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- gate.Wait(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while disabled")
	case <-time.After(20 * time.Millisecond):
	}

	source.enabled.Store(true)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait after re-enable: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not resume after re-enable")
	}
}

func TestGateWaitCancellable(t *testing.T) {
	gate := NewGate(&toggleSource{}, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gate.Wait(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation did not interrupt the pause wait")
	}
}

func TestGateSourceErrorAssumesEnabled(t *testing.T) {
	source := &toggleSource{err: errors.New("db down")}
	gate := NewGate(source, time.Millisecond, zerolog.Nop())
	if err := gate.Wait(context.Background()); err != nil {
		t.Fatalf("Wait with failing source: %v", err)
	}
}

func TestGateNilSource(t *testing.T) {
	gate := NewGate(nil, time.Millisecond, zerolog.Nop())
	if err := gate.Wait(context.Background()); err != nil {
		t.Fatalf("Wait with nil source: %v", err)
	}
}

func TestSchedulerRunsPassesUntilCancelled(t *testing.T) {
	source := &toggleSource{}
	source.enabled.Store(true)
	gate := NewGate(source, time.Millisecond, zerolog.Nop())
	sched := New(Options{Interval: time.Millisecond}, gate, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var passes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, func(context.Context) error {
			if passes.Add(1) >= 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if passes.Load() < 3 {
		t.Fatalf("expected at least 3 passes, got %d", passes.Load())
	}
}

func TestSchedulerAbsorbsPassErrors(t *testing.T) {
	source := &toggleSource{}
	source.enabled.Store(true)
	gate := NewGate(source, time.Millisecond, zerolog.Nop())
	sched := New(Options{Interval: time.Millisecond}, gate, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var passes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, func(context.Context) error {
			if passes.Add(1) >= 2 {
				cancel()
			}
			return errors.New("pass blew up")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("pass errors must not terminate the loop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not keep running past a failed pass")
	}
}

func TestJitterBounds(t *testing.T) {
	const interval = time.Second
	for i := 0; i < 200; i++ {
		d := Jitter(interval, 0.2)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jitter out of bounds: %s", d)
		}
	}
	if Jitter(interval, 0) != interval {
		t.Fatal("zero fraction should leave the interval untouched")
	}
}

func TestNewPanicsOnBadInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive interval")
		}
	}()
	New(Options{}, NewGate(nil, time.Second, zerolog.Nop()), zerolog.Nop())
}
