package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"node-rewards-ingester/internal/day"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertRunSQL = `INSERT INTO ingest_runs (
        run_id,
        day,
        trigger,
        outcome,
        endpoints,
        samples,
        providers,
        governance_ts,
        error,
        started_at,
        finished_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (run_id) DO UPDATE
    SET
        outcome       = EXCLUDED.outcome,
        samples       = EXCLUDED.samples,
        providers     = EXCLUDED.providers,
        governance_ts = EXCLUDED.governance_ts,
        error         = EXCLUDED.error,
        finished_at   = EXCLUDED.finished_at;`

	runColumns = `run_id::text,
        day,
        trigger,
        outcome,
        endpoints,
        samples,
        providers,
        governance_ts,
        error,
        started_at,
        finished_at`

	listRunsBetweenSQL = `SELECT ` + runColumns + `
    FROM ingest_runs
    WHERE day >= $1
      AND day < $2
    ORDER BY day, finished_at;`

	listRecentRunsSQL = `SELECT ` + runColumns + `
    FROM ingest_runs
    ORDER BY finished_at DESC
    LIMIT $1;`

	lastPushedDaySQL = `SELECT max(day) FROM ingest_runs WHERE outcome = 'pushed';`

	countRunsSQL = `SELECT COUNT(*) FROM ingest_runs;`

	insertAlertSQL = `INSERT INTO alerts (
        day,
        outcome,
        channels,
        error
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (day, outcome) DO NOTHING
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        day,
        outcome,
        channels,
        error,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	deleteAlertSQL = `DELETE FROM alerts WHERE day = $1 AND outcome = $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunStore defines operations on the ingest run ledger.
type RunStore interface {
	RecordRun(ctx context.Context, run Run) error
	ListRunsBetween(ctx context.Context, from, to day.Day) ([]Run, error)
	ListRecentRuns(ctx context.Context, limit int) ([]Run, error)
	LastPushedDay(ctx context.Context) (day.Day, bool, error)
	CountRuns(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	// InsertAlert records an alert; inserted is false when the same day and
	// outcome were already alerted.
	InsertAlert(ctx context.Context, alert AlertRecord) (rec AlertRecord, inserted bool, err error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	// DeleteAlert releases a day and outcome so it can alert again.
	DeleteAlert(ctx context.Context, d day.Day, outcome string) error
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the run ledger and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock still releases the session lock when the
		// connection is destroyed.
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// RecordRun persists a ledger row. Recording the same run id again updates it.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	endpoints := run.Endpoints
	if endpoints == nil {
		endpoints = []string{}
	}

	_, execErr := pool.Exec(ctx, insertRunSQL,
		run.ID.String(),
		run.Day.Midnight(),
		run.Trigger,
		run.Outcome,
		endpoints,
		run.Samples,
		run.Providers,
		run.GovernanceTS,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	if execErr != nil {
		return fmt.Errorf("record run: %w", execErr)
	}
	return nil
}

// ListRunsBetween lists runs for days in [from, to).
func (s *Store) ListRunsBetween(ctx context.Context, from, to day.Day) ([]Run, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRunsBetweenSQL, from.Midnight(), to.Midnight())
	if queryErr != nil {
		return nil, fmt.Errorf("list runs between: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// LastPushedDay returns the latest day that was pushed successfully.
func (s *Store) LastPushedDay(ctx context.Context) (day.Day, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return day.Day{}, false, err
	}
	var last *time.Time
	if scanErr := pool.QueryRow(ctx, lastPushedDaySQL).Scan(&last); scanErr != nil {
		return day.Day{}, false, fmt.Errorf("last pushed day: %w", scanErr)
	}
	if last == nil {
		return day.Day{}, false, nil
	}
	return day.Of(*last), true, nil
}

// CountRuns counts ledger rows.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRunsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count runs: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission unless the day/outcome pair exists.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, false, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	rec := alert
	scanErr := pool.QueryRow(ctx, insertAlertSQL,
		alert.Day.Midnight(),
		alert.Outcome,
		channels,
		alert.Error,
	).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return alert, false, nil
	}
	if scanErr != nil {
		return AlertRecord{}, false, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, true, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec     AlertRecord
			dayDate time.Time
		)
		if err := rows.Scan(
			&rec.ID,
			&dayDate,
			&rec.Outcome,
			&rec.Channels,
			&rec.Error,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Day = day.Of(dayDate)
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlert removes the record for one day and outcome.
func (s *Store) DeleteAlert(ctx context.Context, d day.Day, outcome string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertSQL, d.Midnight(), outcome); execErr != nil {
		return fmt.Errorf("delete alert: %w", execErr)
	}
	return nil
}

// DeleteAlertsBefore deletes historical alerts so a day can alert again.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanRun(rows pgx.Rows) (Run, error) {
	var (
		idStr   string
		dayDate time.Time
		run     Run
		govTS   null.Int
		errMsg  null.String
	)

	if err := rows.Scan(
		&idStr,
		&dayDate,
		&run.Trigger,
		&run.Outcome,
		&run.Endpoints,
		&run.Samples,
		&run.Providers,
		&govTS,
		&errMsg,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return Run{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Run{}, fmt.Errorf("parse run id: %w", err)
	}
	run.ID = id
	run.Day = day.Of(dayDate)
	run.GovernanceTS = govTS
	run.Error = errMsg
	return run, nil
}

var (
	_ RunStore       = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
