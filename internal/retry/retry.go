package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrExhausted wraps the final error once every attempt has failed. Callers
// classify the failure (fetch vs enrichment unavailable) at their own
// boundary; the wrapped error is never fatal to the process.
var ErrExhausted = errors.New("retry: attempts exhausted")

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as a valid terminal outcome (e.g. a well-formed
// not-found response). Do returns it immediately without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy retries transient failures with doubling backoff between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPolicy constructs a retry policy. Zero values fall back to 3 attempts
// with a 2-second base delay.
func NewPolicy(maxAttempts int, baseDelay time.Duration, logger zerolog.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		logger:      logger.With().Str("component", "retry").Logger(),
		sleep:       sleepCtx,
	}
}

// Do runs op until it succeeds, returns a permanent error, the context is
// cancelled, or attempts run out. Backoff doubles from BaseDelay (2s, 4s, ...).
func (p *Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	delay := p.BaseDelay
	var last error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		last = err
		if attempt == p.MaxAttempts {
			break
		}

		p.logger.Warn().Err(err).
			Str("op", name).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("transient failure, backing off")

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	return fmt.Errorf("%w after %d attempts (%s): %w", ErrExhausted, p.MaxAttempts, name, last)
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
