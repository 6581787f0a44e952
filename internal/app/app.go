package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"node-rewards-ingester/internal/alerting"
	"node-rewards-ingester/internal/config"
	"node-rewards-ingester/internal/fetcher"
	"node-rewards-ingester/internal/publisher"
	"node-rewards-ingester/internal/scheduler"
	"node-rewards-ingester/internal/service"
	"node-rewards-ingester/internal/storage"
	"node-rewards-ingester/internal/telemetry"
	"node-rewards-ingester/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newEndpoints() ([]service.Endpoint, fetcher.GovernanceFetcher, error) {
	transport, err := fetcher.NewAgentTransport(fetcher.AgentOptions{
		URL:     a.Config.IC.URL,
		Timeout: a.Config.IC.RequestTimeout,
	}, a.Logger)
	if err != nil {
		return nil, nil, err
	}

	endpoints := make([]service.Endpoint, 0, len(a.Config.IC.RewardsCanisters))
	for _, id := range a.Config.IC.RewardsCanisters {
		endpoints = append(endpoints, fetcher.NewRewardsClient(transport, id, a.Logger))
	}

	var governance fetcher.GovernanceFetcher
	if a.Config.IC.GovernanceCanister != "" {
		governance = fetcher.NewGovernanceClient(transport, a.Config.IC.GovernanceCanister, a.Logger)
	}
	return endpoints, governance, nil
}

func (a *App) newPublisher() (*publisher.Publisher, error) {
	return publisher.New(publisher.Options{
		BaseURL:      a.Config.Victoria.URL,
		Timeout:      a.Config.Victoria.PushTimeout,
		ReadyTimeout: a.Config.Victoria.ReadyTimeout,
		Compression:  a.Config.Victoria.Compression,
		Headers:      a.Config.Victoria.Headers,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if !a.Config.Database.Enabled() {
		return nil, nil, nil
	}

	if a.Config.Database.MigrateOnStart {
		if err := storage.NewMigrator(a.Config.Database.DSN, a.Logger).Up(ctx); err != nil {
			return nil, nil, err
		}
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the day cycle. sched may be nil for one-shot commands.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler, pub service.Publisher, metrics *telemetry.Metrics) (*service.Service, error) {
	endpoints, governance, err := a.newEndpoints()
	if err != nil {
		return nil, err
	}
	deps := service.Deps{
		Endpoints:  endpoints,
		Governance: governance,
		Publisher:  pub,
		Notifier:   a.newNotifier(),
		Telemetry:  metrics,
	}
	// A nil *Store must not end up inside a non-nil interface.
	if store != nil {
		deps.Runs = store
		deps.Alerts = store
		deps.Locker = store
	}
	return service.New(a.Config, sched, deps, a.Logger), nil
}

func (a *App) schedulerOptions(metrics *telemetry.Metrics) scheduler.Options {
	return scheduler.Options{
		RunOffset:     a.Config.Scheduler.RunOffset,
		Cooldown:      a.Config.Scheduler.Cooldown,
		ReadyInterval: a.Config.Scheduler.ReadyInterval,
		BackfillDays:  a.Config.Backfill.Days,
		Progress:      metrics.SetBackfillPending,
	}
}

// Run executes the long-running ingest service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; run ledger disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	pub, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	metrics := telemetry.NewMetrics()
	if store != nil {
		a.restoreLastPushed(ctx, store, metrics)
		a.pruneAlerts(ctx, store)
	}

	sched, err := scheduler.New(a.schedulerOptions(metrics), scheduler.SystemClock{}, a.Logger)
	if err != nil {
		return err
	}
	svc, err := a.newService(store, sched, pub, metrics)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("version", version.Full()).
		Strs("canisters", a.Config.IC.RewardsCanisters).
		Str("victoria_url", a.Config.Victoria.URL).
		Int("backfill_days", a.Config.Backfill.Days).
		Msg("starting ingest service")

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.Status.Addr != "" {
		server := telemetry.NewServer(a.Config.Status.Addr, metrics, a.Logger)
		g.Go(func() error { return server.Run(gctx) })
	}
	g.Go(func() error { return svc.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingest service stopped")
	return nil
}

func (a *App) restoreLastPushed(ctx context.Context, store *storage.Store, metrics *telemetry.Metrics) {
	d, ok, err := store.LastPushedDay(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("failed to read last pushed day from ledger")
		return
	}
	if ok {
		metrics.RestoreLastPushed(d)
	}
}

// pruneAlerts drops alert records past retention so old days can alert again
// if they are re-ingested.
func (a *App) pruneAlerts(ctx context.Context, store *storage.Store) {
	retention := a.Config.Alerting.Retention
	if retention <= 0 {
		return
	}
	if err := store.DeleteAlertsBefore(ctx, time.Now().UTC().Add(-retention)); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to prune alert records")
	}
}

// ExportOptions hold parameters for exporting the run ledger.
type ExportOptions struct {
	Days      int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// BackfillOptions configure a one-shot backfill.
type BackfillOptions struct {
	Days int
}

// PushOptions configure a single-day push.
type PushOptions struct {
	Day    string
	DryRun bool
}
