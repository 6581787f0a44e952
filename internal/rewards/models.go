package rewards

import (
	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
)

// DailyResult is one canister's reward calculation for one day.
// Provider and subnet ids are unique; slices keep the canister's order.
type DailyResult struct {
	Providers []ProviderResult
	Subnets   []SubnetFailureRate
}

// Empty reports whether the result carries no providers.
func (r DailyResult) Empty() bool {
	return len(r.Providers) == 0
}

// Provider looks up a provider by id.
func (r DailyResult) Provider(id string) (ProviderResult, bool) {
	for _, p := range r.Providers {
		if p.ProviderID == id {
			return p, true
		}
	}
	return ProviderResult{}, false
}

// ProviderResult holds a node provider's totals and per-node breakdown.
type ProviderResult struct {
	ProviderID           string
	TotalBaseRewards     decimal.NullDecimal
	TotalAdjustedRewards decimal.NullDecimal
	BaseRewards          []RegionBaseReward
	BaseRewardsType3     []Type3RegionBaseReward
	Nodes                []NodeResult
}

// NodeCount is derived from the node breakdown; it is not transmitted.
func (p ProviderResult) NodeCount() int {
	return len(p.Nodes)
}

// RegionBaseReward is the base reward for a node type in a region.
type RegionBaseReward struct {
	MonthlyXDRPermyriad decimal.NullDecimal
	DailyXDRPermyriad   decimal.NullDecimal
	NodeRewardType      null.String
	Region              null.String
}

// Type3RegionBaseReward is the averaged base reward for type3 nodes in a region.
type Type3RegionBaseReward struct {
	Region                 null.String
	NodesCount             null.Int
	AvgRewardsXDRPermyriad decimal.NullDecimal
	AvgCoefficient         decimal.NullDecimal
	DailyXDRPermyriad      decimal.NullDecimal
}

// NodeResult is the reward outcome of a single node.
type NodeResult struct {
	NodeID                null.String
	NodeRewardType        null.String
	Region                null.String
	DCID                  null.String
	FailureRate           *FailureRate
	PerformanceMultiplier decimal.NullDecimal
	RewardsReduction      decimal.NullDecimal
	BaseRewards           decimal.NullDecimal
	AdjustedRewards       decimal.NullDecimal
}

// MembershipKind tags the FailureRate variant.
type MembershipKind string

const (
	SubnetMember    MembershipKind = "SubnetMember"
	NonSubnetMember MembershipKind = "NonSubnetMember"
)

// FailureRate is the node's daily failure rate. Exactly one branch is set:
// Metrics may be populated only for SubnetMember, Extrapolated only for
// NonSubnetMember.
type FailureRate struct {
	Kind         MembershipKind
	Metrics      *NodeMetrics
	Extrapolated decimal.NullDecimal
}

// NodeMetrics are the measured block metrics of an assigned node.
type NodeMetrics struct {
	SubnetAssigned            null.String
	SubnetAssignedFailureRate decimal.NullDecimal
	BlocksProposed            null.Int
	BlocksFailed              null.Int
	OriginalFailureRate       decimal.NullDecimal
	RelativeFailureRate       decimal.NullDecimal
}

// SubnetFailureRate is the failure rate of one subnet.
type SubnetFailureRate struct {
	SubnetID string
	Rate     decimal.Decimal
}

// IDOrEmpty renders an optional identifier as a label value.
func IDOrEmpty(id null.String) string {
	if !id.Valid {
		return ""
	}
	return id.String
}
