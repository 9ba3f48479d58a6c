package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPolicy(t *testing.T) (*Policy, *[]time.Duration) {
	t.Helper()
	p := NewPolicy(3, 2*time.Second, zerolog.Nop())
	slept := &[]time.Duration{}
	p.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p, slept
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p, slept := newTestPolicy(t)

	calls := 0
	err := p.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d backoffs, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("backoff %d: expected %s, got %s", i, d, (*slept)[i])
		}
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p, slept := newTestPolicy(t)

	calls := 0
	boom := errors.New("timeout")
	err := p.Do(context.Background(), "inspect", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("exhausted error should wrap the last failure, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 backoffs before giving up, got %d", len(*slept))
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	p, slept := newTestPolicy(t)

	calls := 0
	notFound := errors.New("item not found")
	err := p.Do(context.Background(), "inspect", func(context.Context) error {
		calls++
		return Permanent(notFound)
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected the terminal error back, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatal("permanent error must not be classified as exhaustion")
	}
	if calls != 1 {
		t.Fatalf("permanent outcome retried: %d calls", calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("no backoff expected, got %v", *slept)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	p := NewPolicy(3, 2*time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, "fetch", func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should stay nil")
	}
}
