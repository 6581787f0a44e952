package fetcher

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/rewards"
)

// Transport performs a read-only query call against a canister and returns
// the decoded Candid reply as JSON.
type Transport interface {
	Query(ctx context.Context, canisterID, method string, arg any) (json.RawMessage, error)
}

// DayFetcher retrieves one day's reward calculation from a rewards canister.
type DayFetcher interface {
	FetchDay(ctx context.Context, d day.Day) (rewards.DailyResult, error)
}

// GovernanceFetcher retrieves the most recent governance reward event time.
type GovernanceFetcher interface {
	LatestRewardEventTimestamp(ctx context.Context) (decimal.NullDecimal, error)
}
