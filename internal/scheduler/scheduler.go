package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// PassFunc runs one full pass over all active watches.
type PassFunc func(ctx context.Context) error

// StateSource exposes the worker pause toggle owned by the admin layer.
type StateSource interface {
	WorkerEnabled(ctx context.Context) (bool, error)
}

// Gate blocks callers while the worker is disabled, re-checking the state
// source at a fixed poll interval. Shared between the scheduler (before each
// pass) and the watch cycle (before each watch).
type Gate struct {
	source StateSource
	poll   time.Duration
	logger zerolog.Logger
}

// NewGate constructs a pause gate. A nil source means always enabled.
func NewGate(source StateSource, poll time.Duration, logger zerolog.Logger) *Gate {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Gate{
		source: source,
		poll:   poll,
		logger: logger.With().Str("component", "gate").Logger(),
	}
}

// Wait returns once the worker is enabled, or with ctx.Err() on shutdown.
// State-source read errors are logged and treated as enabled so a flaky
// store cannot park the worker forever.
func (g *Gate) Wait(ctx context.Context) error {
	paused := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.source == nil {
			return nil
		}

		enabled, err := g.source.WorkerEnabled(ctx)
		if err != nil {
			g.logger.Warn().Err(err).Msg("worker state read failed, assuming enabled")
			return nil
		}
		if enabled {
			if paused {
				g.logger.Info().Msg("worker re-enabled, resuming")
			}
			return nil
		}

		if !paused {
			g.logger.Info().Msg("worker disabled, pausing")
			paused = true
		}

		timer := time.NewTimer(g.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Options tune scheduler behaviour.
type Options struct {
	Interval   time.Duration
	JitterFrac float64
}

// Scheduler drives repeated passes with jittered spacing between them.
type Scheduler struct {
	opts   Options
	gate   *Gate
	logger zerolog.Logger
	jitter func(d time.Duration, frac float64) time.Duration
}

// New constructs a Scheduler instance.
func New(opts Options, gate *Gate, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		gate:   gate,
		logger: logger.With().Str("component", "scheduler").Logger(),
		jitter: Jitter,
	}
}

// Run blocks, driving passes until ctx is cancelled. Pass errors are logged
// and never stop the loop; only cancellation terminates it.
func (s *Scheduler) Run(ctx context.Context, pass PassFunc) error {
	for {
		if err := s.gate.Wait(ctx); err != nil {
			return err
		}

		started := time.Now()
		s.logger.Debug().Msg("starting pass")
		if err := pass(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("pass failed")
		}
		s.logger.Debug().Dur("elapsed", time.Since(started)).Msg("pass complete")

		delay := s.jitter(s.opts.Interval, s.opts.JitterFrac)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Jitter spreads d uniformly across [d*(1-frac), d*(1+frac)] so passes do
// not land on external providers in lockstep.
func Jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	span := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * span
	return time.Duration(float64(d) + offset)
}
