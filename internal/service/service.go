package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"node-rewards-ingester/internal/alerting"
	"node-rewards-ingester/internal/config"
	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/fetcher"
	"node-rewards-ingester/internal/metrics"
	"node-rewards-ingester/internal/rewards"
	"node-rewards-ingester/internal/scheduler"
	"node-rewards-ingester/internal/storage"
	"node-rewards-ingester/internal/telemetry"
)

// Endpoint is a rewards canister the service ingests from.
type Endpoint interface {
	fetcher.DayFetcher
	CanisterID() string
}

// Publisher is the metrics store the service writes to.
type Publisher interface {
	Ready(ctx context.Context) error
	Push(ctx context.Context, d day.Day, samples []metrics.Sample) error
}

// Deps are the collaborators of a Service. Only Endpoints and Publisher are
// required.
type Deps struct {
	Endpoints  []Endpoint
	Governance fetcher.GovernanceFetcher
	Publisher  Publisher
	Runs       storage.RunStore
	Alerts     storage.AlertStore
	Locker     storage.AdvisoryLocker
	Notifier   alerting.Notifier
	Telemetry  *telemetry.Metrics
}

// Service orchestrates fetching, formatting, pushing and bookkeeping of days.
type Service struct {
	scheduler  *scheduler.Scheduler
	endpoints  []Endpoint
	governance fetcher.GovernanceFetcher
	publisher  Publisher
	formatter  *metrics.Formatter
	runs       storage.RunStore
	alerts     storage.AlertStore
	locker     storage.AdvisoryLocker
	notifier   alerting.Notifier
	telemetry  *telemetry.Metrics
	logger     zerolog.Logger

	labelEndpoints bool
	lockKey        int64
	alertsOn       bool
	channels       []string
	environment    string
	now            func() time.Time
}

// Result describes one finished day cycle.
type Result struct {
	RunID      uuid.UUID
	Day        day.Day
	Trigger    string
	Outcome    Outcome
	Endpoints  []string
	Endpoint   string // canister that failed the day, if any
	Samples    int
	Providers  int
	Governance decimal.NullDecimal
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Batch is everything collected for a day before pushing.
type Batch struct {
	Samples    []metrics.Sample
	Providers  int
	Endpoints  []string
	Governance decimal.NullDecimal
	// FailedEndpoint is set when a canister failed the collection.
	FailedEndpoint string
}

// New constructs the ingest service.
func New(cfg *config.Config, sched *scheduler.Scheduler, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:  sched,
		endpoints:  deps.Endpoints,
		governance: deps.Governance,
		publisher:  deps.Publisher,
		formatter: metrics.NewFormatter(metrics.Options{
			EndpointLabel: cfg.Metrics.EndpointLabel,
			Extended:      cfg.Metrics.Extended,
		}),
		runs:           deps.Runs,
		alerts:         deps.Alerts,
		locker:         deps.Locker,
		notifier:       deps.Notifier,
		telemetry:      deps.Telemetry,
		logger:         logger.With().Str("component", "service").Logger(),
		labelEndpoints: len(deps.Endpoints) > 1,
		lockKey:        cfg.Scheduler.AdvisoryLockKey,
		alertsOn:       cfg.Alerting.Enabled,
		channels:       cfg.Alerting.Channels,
		environment:    cfg.App.Environment,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Run waits for the metrics store, backfills, then ingests daily.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Start(ctx, scheduler.Pipeline{Ready: s.Ready, Run: s.RunDay})
}

// Ready checks that the metrics store accepts writes.
func (s *Service) Ready(ctx context.Context) error {
	err := s.publisher.Ready(ctx)
	s.telemetry.SetReady(err == nil)
	return err
}

// RunDay adapts ProcessDay to the scheduler: expected skips surface as
// scheduler.ErrSkipped.
func (s *Service) RunDay(ctx context.Context, d day.Day, trigger string) error {
	res, err := s.ProcessDay(ctx, d, trigger)
	if res.Outcome.Skipped() {
		return fmt.Errorf("%w: %s", scheduler.ErrSkipped, res.Outcome)
	}
	return err
}

// ProcessDay runs one full cycle for d: fetch every endpoint, format, push
// once. The day is all-or-nothing: any endpoint failure means nothing is
// pushed.
func (s *Service) ProcessDay(ctx context.Context, d day.Day, trigger string) (Result, error) {
	res := Result{RunID: uuid.New(), Day: d, Trigger: trigger, StartedAt: s.now()}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	if !proceed {
		return s.finish(ctx, res, ErrLocked)
	}
	if unlock != nil {
		defer unlock()
	}

	batch, err := s.Collect(ctx, d)
	res.Endpoints = batch.Endpoints
	res.Endpoint = batch.FailedEndpoint
	res.Samples = len(batch.Samples)
	res.Providers = batch.Providers
	res.Governance = batch.Governance
	if err != nil {
		return s.finish(ctx, res, err)
	}

	started := time.Now()
	err = s.publisher.Push(ctx, d, batch.Samples)
	s.telemetry.ObservePush(time.Since(started))
	return s.finish(ctx, res, err)
}

// Collect fetches and formats every endpoint for d without pushing.
func (s *Service) Collect(ctx context.Context, d day.Day) (Batch, error) {
	var b Batch
	b.Governance = s.governanceTimestamp(ctx)

	for i, ep := range s.endpoints {
		id := ep.CanisterID()
		b.Endpoints = append(b.Endpoints, id)

		started := time.Now()
		result, err := ep.FetchDay(ctx, d)
		s.telemetry.ObserveFetch(id, time.Since(started))
		if err == nil && result.Empty() {
			err = fmt.Errorf("%w: no providers in result", rewards.ErrNoData)
		}
		if err != nil {
			b.FailedEndpoint = id
			return b, fmt.Errorf("canister %s: %w", id, err)
		}

		in := metrics.Input{Day: d, Result: result}
		if s.labelEndpoints {
			in.Endpoint = id
		}
		// The governance sample is endpoint-agnostic; emit it once.
		if i == 0 {
			in.Governance = b.Governance
		}
		b.Samples = append(b.Samples, s.formatter.Format(in)...)
		b.Providers += len(result.Providers)
	}
	return b, nil
}

func (s *Service) governanceTimestamp(ctx context.Context) decimal.NullDecimal {
	if s.governance == nil {
		return decimal.NullDecimal{}
	}
	ts, err := s.governance.LatestRewardEventTimestamp(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("governance timestamp unavailable; sample omitted")
		return decimal.NullDecimal{}
	}
	return ts
}

func (s *Service) finish(ctx context.Context, res Result, err error) (Result, error) {
	res.FinishedAt = s.now()
	res.Outcome = Classify(err)
	res.Err = err

	s.logResult(res)

	if res.Outcome == OutcomeCancelled {
		return res, err
	}

	s.telemetry.ObserveRun(telemetry.RunStatus{
		RunID:      res.RunID.String(),
		Day:        res.Day,
		Trigger:    res.Trigger,
		Outcome:    string(res.Outcome),
		Samples:    res.Samples,
		Error:      errString(err),
		FinishedAt: res.FinishedAt,
		Elapsed:    res.FinishedAt.Sub(res.StartedAt),
	}, res.Outcome == OutcomePushed)

	s.recordRun(ctx, res)

	if res.Outcome.Alerting() {
		s.alert(ctx, res)
	}
	return res, err
}

func (s *Service) logResult(res Result) {
	var ev *zerolog.Event
	switch {
	case res.Outcome == OutcomePushed:
		ev = s.logger.Info()
	case res.Outcome == OutcomeLocked, res.Outcome == OutcomeCancelled:
		ev = s.logger.Info()
	case res.Outcome.Skipped():
		ev = s.logger.Warn()
	default:
		ev = s.logger.Error()
	}
	ev = ev.Str("run_id", res.RunID.String()).
		Stringer("day", res.Day).
		Str("trigger", res.Trigger).
		Str("outcome", string(res.Outcome)).
		Int("samples", res.Samples).
		Int("providers", res.Providers).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt))
	if res.Endpoint != "" {
		ev = ev.Str("canister", res.Endpoint)
	}
	if res.Err != nil {
		ev = ev.Err(res.Err)
	}
	ev.Msg("day cycle finished")
}

func (s *Service) recordRun(ctx context.Context, res Result) {
	if s.runs == nil {
		return
	}
	run := storage.Run{
		ID:         res.RunID,
		Day:        res.Day,
		Trigger:    res.Trigger,
		Outcome:    string(res.Outcome),
		Endpoints:  res.Endpoints,
		Samples:    res.Samples,
		Providers:  res.Providers,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Governance.Valid {
		run.GovernanceTS = null.IntFrom(res.Governance.Decimal.IntPart())
	}
	if res.Err != nil {
		run.Error = null.StringFrom(res.Err.Error())
	}
	if err := s.runs.RecordRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Stringer("day", res.Day).Msg("failed to record run")
	}
}

// alert claims the day and outcome in the alert store, delivers the
// notification, and releases the claim again when delivery fails so a later
// run for the same day retries it.
func (s *Service) alert(ctx context.Context, res Result) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	claimed := false
	if s.alerts != nil {
		_, inserted, err := s.alerts.InsertAlert(ctx, storage.AlertRecord{
			Day:      res.Day,
			Outcome:  string(res.Outcome),
			Channels: s.channels,
			Error:    null.StringFrom(errString(res.Err)),
		})
		switch {
		case err != nil:
			s.logger.Error().Err(err).Stringer("day", res.Day).Msg("failed to persist alert record")
		case !inserted:
			s.logger.Debug().Stringer("day", res.Day).Str("outcome", string(res.Outcome)).Msg("alert already sent for day")
			return
		default:
			claimed = true
		}
	}

	note := alerting.Notification{
		Day:         res.Day,
		RunID:       res.RunID.String(),
		Trigger:     res.Trigger,
		Outcome:     string(res.Outcome),
		Endpoint:    res.Endpoint,
		Error:       errString(res.Err),
		Channels:    s.channels,
		Environment: s.environment,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Stringer("day", res.Day).Msg("failed to dispatch alert")
		if claimed {
			if delErr := s.alerts.DeleteAlert(ctx, res.Day, string(res.Outcome)); delErr != nil {
				s.logger.Error().Err(delErr).Stringer("day", res.Day).Msg("failed to release alert record")
			}
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
