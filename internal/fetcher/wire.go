package fetcher

import (
	"github.com/aviate-labs/agent-go/principal"
)

// Candid shapes of the two query replies, as decoded by the IC agent. Every
// opt is a pointer and the agent leaves it nil when the canister sends None.

type rewardsCalculationReply struct {
	Ok  *dailyResultsWire `ic:"Ok,variant"`
	Err *string           `ic:"Err,variant"`
}

type dailyResultsWire struct {
	SubnetsFailureRate []subnetFailureRateWire `ic:"subnets_failure_rate"`
	ProviderResults    []providerResultWire    `ic:"provider_results"`
}

type subnetFailureRateWire struct {
	SubnetID principal.Principal `ic:"0"`
	Rate     float64             `ic:"1"`
}

type providerResultWire struct {
	ProviderID principal.Principal `ic:"0"`
	Result     providerRewardsWire `ic:"1"`
}

type providerRewardsWire struct {
	TotalBaseRewardsXDRPermyriad     *uint64                `ic:"total_base_rewards_xdr_permyriad,omitempty"`
	TotalAdjustedRewardsXDRPermyriad *uint64                `ic:"total_adjusted_rewards_xdr_permyriad,omitempty"`
	BaseRewards                      []baseRewardsWire      `ic:"base_rewards"`
	BaseRewardsType3                 []baseRewardsType3Wire `ic:"base_rewards_type3"`
	DailyNodesRewards                []dailyNodeRewardsWire `ic:"daily_nodes_rewards"`
}

type baseRewardsWire struct {
	MonthlyXDRPermyriad *float64 `ic:"monthly_xdr_permyriad,omitempty"`
	DailyXDRPermyriad   *float64 `ic:"daily_xdr_permyriad,omitempty"`
	NodeRewardType      *string  `ic:"node_reward_type,omitempty"`
	Region              *string  `ic:"region,omitempty"`
}

type baseRewardsType3Wire struct {
	Region                 *string  `ic:"region,omitempty"`
	NodesCount             *uint64  `ic:"nodes_count,omitempty"`
	AvgRewardsXDRPermyriad *float64 `ic:"avg_rewards_xdr_permyriad,omitempty"`
	AvgCoefficient         *float64 `ic:"avg_coefficient,omitempty"`
	DailyXDRPermyriad      *float64 `ic:"daily_xdr_permyriad,omitempty"`
}

type dailyNodeRewardsWire struct {
	NodeID                      *principal.Principal `ic:"node_id,omitempty"`
	NodeRewardType              *string              `ic:"node_reward_type,omitempty"`
	Region                      *string              `ic:"region,omitempty"`
	DCID                        *string              `ic:"dc_id,omitempty"`
	DailyNodeFailureRate        *nodeFailureRateWire `ic:"daily_node_failure_rate,omitempty"`
	PerformanceMultiplier       *float64             `ic:"performance_multiplier,omitempty"`
	RewardsReduction            *float64             `ic:"rewards_reduction,omitempty"`
	BaseRewardsXDRPermyriad     *float64             `ic:"base_rewards_xdr_permyriad,omitempty"`
	AdjustedRewardsXDRPermyriad *float64             `ic:"adjusted_rewards_xdr_permyriad,omitempty"`
}

type nodeFailureRateWire struct {
	SubnetMember    *subnetMemberWire    `ic:"SubnetMember,variant"`
	NonSubnetMember *nonSubnetMemberWire `ic:"NonSubnetMember,variant"`
}

type subnetMemberWire struct {
	NodeMetrics *nodeMetricsWire `ic:"node_metrics,omitempty"`
}

type nonSubnetMemberWire struct {
	ExtrapolatedFailureRate *float64 `ic:"extrapolated_failure_rate,omitempty"`
}

type nodeMetricsWire struct {
	SubnetAssigned            *principal.Principal `ic:"subnet_assigned,omitempty"`
	SubnetAssignedFailureRate *float64             `ic:"subnet_assigned_failure_rate,omitempty"`
	NumBlocksProposed         *uint64              `ic:"num_blocks_proposed,omitempty"`
	NumBlocksFailed           *uint64              `ic:"num_blocks_failed,omitempty"`
	OriginalFailureRate       *float64             `ic:"original_failure_rate,omitempty"`
	RelativeFailureRate       *float64             `ic:"relative_failure_rate,omitempty"`
}

// listRewardsReply keeps only the event timestamp; the agent skips the
// remaining fields of each reward event.
type listRewardsReply struct {
	Rewards []rewardEventWire `ic:"rewards"`
}

type rewardEventWire struct {
	Timestamp uint64 `ic:"timestamp"`
}

// replyTypes maps each supported query method to a fresh reply value.
var replyTypes = map[string]func() any{
	MethodRewardsCalculation:  func() any { return new(rewardsCalculationReply) },
	methodListProviderRewards: func() any { return new(listRewardsReply) },
}
