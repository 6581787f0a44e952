package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/metrics"
	"node-rewards-ingester/internal/scheduler"
)

// Backfill ingests the trailing days once and exits.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	days := opts.Days
	if days <= 0 {
		days = a.Config.Backfill.Days
	}
	if days <= 0 {
		return errors.New("backfill window is empty; pass --days or set backfill.days")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	pub, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	sched, err := scheduler.New(a.schedulerOptions(nil), scheduler.SystemClock{}, a.Logger)
	if err != nil {
		return err
	}
	svc, err := a.newService(store, sched, pub, nil)
	if err != nil {
		return err
	}

	if err := sched.WaitReady(ctx, svc.Ready); err != nil {
		return err
	}

	summary, err := sched.Backfill(ctx, days, svc.RunDay)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d days failed to backfill, check logs", summary.Failed, summary.Total())
	}
	return nil
}

// PushDay ingests a single day. With DryRun the exposition lines are written
// to stdout and nothing is pushed or recorded.
func (a *App) PushDay(ctx context.Context, opts PushOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d := day.Of(time.Now()).AddDays(-1)
	if opts.Day != "" {
		parsed, err := day.Parse(opts.Day)
		if err != nil {
			return fmt.Errorf("invalid --day value: %w", err)
		}
		d = parsed
	}

	if opts.DryRun {
		svc, err := a.newService(nil, nil, nil, nil)
		if err != nil {
			return err
		}
		batch, err := svc.Collect(ctx, d)
		if err != nil {
			return err
		}
		a.Logger.Info().Stringer("day", d).Int("samples", len(batch.Samples)).Msg("dry run; nothing pushed")
		return metrics.WriteLines(os.Stdout, batch.Samples)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	pub, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	svc, err := a.newService(store, nil, pub, nil)
	if err != nil {
		return err
	}
	res, err := svc.ProcessDay(ctx, d, scheduler.TriggerManual)
	if res.Outcome.Skipped() {
		a.Logger.Warn().Stringer("day", d).Str("outcome", string(res.Outcome)).Msg("nothing pushed")
		return nil
	}
	return err
}
