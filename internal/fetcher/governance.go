package fetcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"node-rewards-ingester/internal/candid"
)

const methodListProviderRewards = "list_node_provider_rewards"

type listRewardsRequest struct {
	// None: no filter, newest first.
	DateFilter *uint64 `ic:"date_filter,omitempty"`
}

// GovernanceClient reads reward events from the governance canister.
type GovernanceClient struct {
	transport  Transport
	canisterID string
	logger     zerolog.Logger
}

// NewGovernanceClient binds a client to the governance canister.
func NewGovernanceClient(transport Transport, canisterID string, logger zerolog.Logger) *GovernanceClient {
	return &GovernanceClient{
		transport:  transport,
		canisterID: canisterID,
		logger:     logger.With().Str("component", "governance_client").Logger(),
	}
}

// LatestRewardEventTimestamp returns the timestamp (seconds) of the most
// recent reward event. A missing list, missing timestamp or zero timestamp
// is reported as absent, not as an error.
func (c *GovernanceClient) LatestRewardEventTimestamp(ctx context.Context) (decimal.NullDecimal, error) {
	raw, err := c.transport.Query(ctx, c.canisterID, methodListProviderRewards, listRewardsRequest{})
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	root, err := candid.Record(raw, "")
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("governance reply: %w", err)
	}
	rawEvents, ok := root["rewards"]
	if !ok {
		c.logger.Warn().Msg("governance reply carries no reward list")
		return decimal.NullDecimal{}, nil
	}
	events, err := candid.Vec(rawEvents, "rewards")
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("governance reply: %w", err)
	}
	if len(events) == 0 {
		c.logger.Warn().Msg("governance returned no reward events")
		return decimal.NullDecimal{}, nil
	}

	first, err := candid.Record(events[0], "rewards[0]")
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("governance reply: %w", err)
	}
	tsRaw, ok := first["timestamp"]
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	ts, err := candid.Number(tsRaw, "rewards[0].timestamp")
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("governance reply: %w", err)
	}
	if ts.IsZero() {
		return decimal.NullDecimal{}, nil
	}

	c.logger.Debug().Str("timestamp", ts.String()).Msg("latest governance reward event")
	return decimal.NewNullDecimal(ts), nil
}

var _ GovernanceFetcher = (*GovernanceClient)(nil)
