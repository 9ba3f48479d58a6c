package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Bucket is a token-bucket limiter shared by all callers hitting one provider.
// Tokens refill continuously at the configured rate; fractional balances are
// kept so sub-1 RPS ceilings (e.g. one request per four seconds) pace exactly.
type Bucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	// tokens may go negative: each caller debits one token immediately and,
	// if the balance dropped below zero, sleeps until its share of the debt
	// has refilled. Debiting under the mutex keeps arrival order.
	tokens  float64
	updated time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBucket builds a limiter for the given requests-per-second ceiling.
// Capacity defaults to max(1, 2*rps) when zero.
func NewBucket(rps float64, capacity float64) (*Bucket, error) {
	if rps <= 0 {
		return nil, errors.New("ratelimit: rps must be positive")
	}
	if capacity <= 0 {
		capacity = rps * 2
		if capacity < 1 {
			capacity = 1
		}
	}
	return &Bucket{
		capacity: capacity,
		rate:     rps,
		tokens:   capacity,
		updated:  time.Now(),
		now:      time.Now,
		sleep:    sleepCtx,
	}, nil
}

// Acquire blocks until one token is available, then debits it. Callers are
// served in arrival order. Returns ctx.Err() if cancelled while waiting.
func (b *Bucket) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	now := b.now()
	b.refill(now)
	b.tokens--
	var wait time.Duration
	if b.tokens < 0 {
		wait = time.Duration(-b.tokens / b.rate * float64(time.Second))
	}
	b.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return b.sleep(ctx, wait)
}

func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.updated).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.updated = now
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
