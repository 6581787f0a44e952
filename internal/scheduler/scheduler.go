package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"node-rewards-ingester/internal/day"
)

// Trigger names what started a day cycle.
const (
	TriggerBackfill = "backfill"
	TriggerDaily    = "daily"
	TriggerManual   = "manual"
)

// ErrSkipped is returned by a RunFunc when the day had nothing to ingest.
// Skipped days are counted apart from failures.
var ErrSkipped = errors.New("day skipped")

// RunFunc processes one day.
type RunFunc func(ctx context.Context, d day.Day, trigger string) error

// ReadyFunc reports nil once the downstream store accepts writes.
type ReadyFunc func(ctx context.Context) error

// Pipeline is what Start drives.
type Pipeline struct {
	Ready ReadyFunc
	Run   RunFunc
}

// Options tune scheduler behaviour.
type Options struct {
	// RunOffset is the time past UTC midnight at which the daily cycle fires.
	RunOffset time.Duration
	// Cooldown is slept after a failed daily cycle.
	Cooldown time.Duration
	// ReadyInterval is the readiness poll period.
	ReadyInterval time.Duration
	// BackfillDays is how many trailing days Start backfills.
	BackfillDays int
	// Progress, when set, receives the number of backfill days still pending.
	Progress func(remaining int)
}

// Summary counts backfill outcomes.
type Summary struct {
	Processed int
	Failed    int
	Skipped   int
}

// Total is the number of days attempted.
func (s Summary) Total() int { return s.Processed + s.Failed + s.Skipped }

// Scheduler drives readiness wait, backfill and the daily loop.
type Scheduler struct {
	opts   Options
	clock  Clock
	logger zerolog.Logger
}

// New constructs a Scheduler instance. RunOffset must lie within one day.
func New(opts Options, clock Clock, logger zerolog.Logger) (*Scheduler, error) {
	if opts.RunOffset < 0 || opts.RunOffset >= 24*time.Hour {
		return nil, fmt.Errorf("scheduler run offset %s must be within [0, 24h)", opts.RunOffset)
	}
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = 2 * time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Minute
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{opts: opts, clock: clock, logger: logger.With().Str("component", "scheduler").Logger()}, nil
}

// NextRun is today's UTC midnight plus offset when that lies strictly after
// now, otherwise the same instant tomorrow.
func NextRun(now time.Time, offset time.Duration) time.Time {
	now = now.UTC()
	next := day.Of(now).Midnight().Add(offset)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start waits for readiness, backfills, then runs the daily loop until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context, p Pipeline) error {
	if err := s.WaitReady(ctx, p.Ready); err != nil {
		return err
	}
	if _, err := s.Backfill(ctx, s.opts.BackfillDays, p.Run); err != nil {
		return err
	}
	return s.RunDaily(ctx, p.Run)
}

// WaitReady polls ready until it succeeds. It never gives up on its own.
func (s *Scheduler) WaitReady(ctx context.Context, ready ReadyFunc) error {
	if ready == nil {
		return nil
	}
	started := s.clock.Now()
	for attempt := 1; ; attempt++ {
		err := ready(ctx)
		if err == nil {
			s.logger.Info().Int("attempts", attempt).Dur("waited", s.clock.Now().Sub(started)).Msg("metrics store ready")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev := s.logger.Debug()
		if attempt == 1 {
			ev = s.logger.Info()
		}
		ev.Err(err).Int("attempt", attempt).Msg("waiting for metrics store")

		if err := s.clock.Sleep(ctx, s.opts.ReadyInterval); err != nil {
			return err
		}
	}
}

// Backfill runs the n days before today, oldest first. A failed day is logged
// and counted, never retried.
func (s *Scheduler) Backfill(ctx context.Context, n int, run RunFunc) (Summary, error) {
	var summary Summary
	days := day.Trailing(day.Of(s.clock.Now()), n)
	if len(days) == 0 {
		return summary, nil
	}

	s.logger.Info().
		Int("days", len(days)).
		Stringer("from", days[0]).
		Stringer("to", days[len(days)-1]).
		Msg("starting backfill")

	defer s.progress(0)
	for i, d := range days {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		s.progress(len(days) - i)

		err := run(ctx, d, TriggerBackfill)
		switch {
		case err == nil:
			summary.Processed++
		case ctx.Err() != nil:
			return summary, ctx.Err()
		case errors.Is(err, ErrSkipped):
			summary.Skipped++
		default:
			summary.Failed++
			s.logger.Error().Err(err).Stringer("day", d).Msg("backfill day failed")
		}
	}

	s.logger.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("backfill complete")
	return summary, nil
}

func (s *Scheduler) progress(remaining int) {
	if s.opts.Progress != nil {
		s.opts.Progress(remaining)
	}
}

// RunDaily fires once per day at RunOffset past UTC midnight and processes
// the day before the trigger.
func (s *Scheduler) RunDaily(ctx context.Context, run RunFunc) error {
	for {
		now := s.clock.Now()
		next := NextRun(now, s.opts.RunOffset)
		s.logger.Info().Time("next_run", next).Dur("in", next.Sub(now)).Msg("waiting for next daily run")

		if err := s.clock.Sleep(ctx, next.Sub(now)); err != nil {
			return err
		}

		target := day.Of(next).AddDays(-1)
		s.logger.Info().Stringer("day", target).Msg("executing daily run")

		err := run(ctx, target, TriggerDaily)
		switch {
		case err == nil, errors.Is(err, ErrSkipped):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		}

		s.logger.Error().Err(err).Stringer("day", target).Dur("cooldown", s.opts.Cooldown).Msg("daily run failed")
		if err := s.clock.Sleep(ctx, s.opts.Cooldown); err != nil {
			return err
		}
	}
}
