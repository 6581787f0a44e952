package fetcher

import (
	"context"

	"github.com/rs/zerolog"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/rewards"
)

// MethodRewardsCalculation is the rewards canister query for one day.
const MethodRewardsCalculation = "get_node_providers_rewards_calculation"

type rewardsRequest struct {
	Day day.Request `ic:"day" json:"day"`
}

// RewardsClient fetches daily reward calculations from one rewards canister.
type RewardsClient struct {
	transport  Transport
	canisterID string
	logger     zerolog.Logger
}

// NewRewardsClient binds a client to a canister.
func NewRewardsClient(transport Transport, canisterID string, logger zerolog.Logger) *RewardsClient {
	return &RewardsClient{
		transport:  transport,
		canisterID: canisterID,
		logger:     logger.With().Str("component", "rewards_client").Str("canister", canisterID).Logger(),
	}
}

// CanisterID is the endpoint this client queries.
func (c *RewardsClient) CanisterID() string { return c.canisterID }

// FetchDay returns the decoded result for d. Errors are a *TransportError,
// a *candid.DecodeError or wrap rewards.ErrNoData.
func (c *RewardsClient) FetchDay(ctx context.Context, d day.Day) (rewards.DailyResult, error) {
	raw, err := c.transport.Query(ctx, c.canisterID, MethodRewardsCalculation, rewardsRequest{Day: d.Request()})
	if err != nil {
		return rewards.DailyResult{}, err
	}

	res, err := rewards.Decode(raw)
	if err != nil {
		return rewards.DailyResult{}, err
	}

	c.logger.Debug().
		Stringer("day", d).
		Int("providers", len(res.Providers)).
		Int("subnets", len(res.Subnets)).
		Msg("rewards fetched")
	return res, nil
}

var _ DayFetcher = (*RewardsClient)(nil)
