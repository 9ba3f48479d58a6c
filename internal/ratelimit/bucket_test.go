package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewBucketRejectsNonPositiveRate(t *testing.T) {
	if _, err := NewBucket(0, 0); err == nil {
		t.Fatal("expected error for zero rps")
	}
	if _, err := NewBucket(-1, 0); err == nil {
		t.Fatal("expected error for negative rps")
	}
}

func TestAcquirePacesSequentialCalls(t *testing.T) {
	const rps = 50.0
	const calls = 6

	bucket, err := NewBucket(rps, 1)
	if err != nil {
		t.Fatalf("NewBucket: %v", err)
	}

	start := time.Now()
	for i := 0; i < calls; i++ {
		if err := bucket.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	minimum := time.Duration(float64(calls-1) / rps * float64(time.Second))
	// Small tolerance for timer coarseness.
	if elapsed < minimum-5*time.Millisecond {
		t.Fatalf("%d acquires finished in %s, want at least %s", calls, elapsed, minimum)
	}
}

func TestAcquireFractionalRefill(t *testing.T) {
	bucket, err := NewBucket(0.25, 1)
	if err != nil {
		t.Fatalf("NewBucket: %v", err)
	}

	clock := time.Unix(1000, 0)
	var slept []time.Duration
	bucket.now = func() time.Time { return clock }
	bucket.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}

	// First call drains the single stored token, second waits a full period.
	if err := bucket.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := bucket.Acquire(context.Background()); err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if len(slept) != 1 {
		t.Fatalf("expected one sleep, got %d", len(slept))
	}
	if slept[0] != 4*time.Second {
		t.Fatalf("expected 4s wait at 0.25 rps, got %s", slept[0])
	}
}

func TestAcquireCancelledContext(t *testing.T) {
	bucket, err := NewBucket(0.1, 1)
	if err != nil {
		t.Fatalf("NewBucket: %v", err)
	}
	if err := bucket.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bucket.Acquire(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAcquireInterruptedWhileWaiting(t *testing.T) {
	bucket, err := NewBucket(0.05, 1)
	if err != nil {
		t.Fatalf("NewBucket: %v", err)
	}
	if err := bucket.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = bucket.Acquire(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancellation did not interrupt the wait promptly")
	}
}
