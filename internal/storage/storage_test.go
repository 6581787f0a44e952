package storage

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"node-rewards-ingester/internal/day"
)

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	assert.ErrorIs(t, s.RecordRun(ctx, Run{}), ErrNotConfigured)

	_, err := s.ListRecentRuns(ctx, 10)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = s.TryAdvisoryLock(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = s.InsertAlert(ctx, AlertRecord{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	assert.ErrorIs(t, s.DeleteAlert(ctx, day.MustNew(2024, time.March, 1), "transport_error"), ErrNotConfigured)

	s.Close()
}

func TestMigrateURL(t *testing.T) {
	got, err := migrateURL("postgres://ingester:secret@db:5432/rewards?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://ingester:secret@db:5432/rewards?sslmode=disable", got)

	got, err = migrateURL("postgresql://db/rewards")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://db/rewards", got)

	_, err = migrateURL("host=db dbname=rewards")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations, "sql/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "sql/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2024, 3, 2, 0, 5, 0, 0, time.UTC)
	r := Run{Day: day.MustNew(2024, time.March, 1), StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	assert.Equal(t, 1500*time.Millisecond, r.Duration())
}
