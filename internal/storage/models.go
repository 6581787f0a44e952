package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"node-rewards-ingester/internal/day"
)

// Run is one ledger row: a single attempt at ingesting a day.
type Run struct {
	ID           uuid.UUID
	Day          day.Day
	Trigger      string
	Outcome      string
	Endpoints    []string
	Samples      int
	Providers    int
	GovernanceTS null.Int
	Error        null.String
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration is how long the attempt took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// AlertRecord captures an emitted failed-day notification for de-duplication.
type AlertRecord struct {
	ID        int64
	Day       day.Day
	Outcome   string
	Channels  []string
	Error     null.String
	CreatedAt time.Time
}
