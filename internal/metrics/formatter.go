// Package metrics turns decoded reward results into Prometheus exposition samples.
package metrics

import (
	"github.com/shopspring/decimal"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/rewards"
)

// Metric names published per day.
const (
	NodesCount                = "nodes_count"
	TotalBaseRewards          = "total_base_rewards_xdr_permyriad"
	TotalAdjustedRewards      = "total_adjusted_rewards_xdr_permyriad"
	OriginalFailureRate       = "original_failure_rate"
	RelativeFailureRate       = "relative_failure_rate"
	SubnetFailureRate         = "subnet_failure_rate"
	GovernanceLatestEventTime = "governance_latest_reward_event_timestamp_seconds"
)

// Extended metric names, emitted only with Options.Extended.
const (
	PerformanceMultiplier    = "performance_multiplier"
	RewardsReduction         = "rewards_reduction"
	NodeBaseRewards          = "base_rewards_xdr_permyriad"
	NodeAdjustedRewards      = "adjusted_rewards_xdr_permyriad"
	BlocksProposed           = "num_blocks_proposed"
	BlocksFailed             = "num_blocks_failed"
	ExtrapolatedFailureRate  = "extrapolated_failure_rate"
	ProviderDailyBaseRewards = "base_rewards_daily_xdr_permyriad"
)

// DefaultEndpointLabel carries the canister id on every endpoint sample.
const DefaultEndpointLabel = "canister_id"

const (
	labelProvider       = "provider_id"
	labelNode           = "node_id"
	labelSubnet         = "subnet_id"
	labelNodeRewardType = "node_reward_type"
	labelRegion         = "region"
)

// Options tune formatter output.
type Options struct {
	// EndpointLabel names the label carrying the canister id.
	EndpointLabel string
	// Extended adds per-node reward and block metrics.
	Extended bool
}

// Formatter renders DailyResults as samples.
type Formatter struct {
	opts Options
}

// NewFormatter constructs a Formatter.
func NewFormatter(opts Options) *Formatter {
	if opts.EndpointLabel == "" {
		opts.EndpointLabel = DefaultEndpointLabel
	}
	return &Formatter{opts: opts}
}

// Input is everything needed to render one endpoint's day.
type Input struct {
	Day        day.Day
	Endpoint   string
	Result     rewards.DailyResult
	Governance decimal.NullDecimal
}

// Format emits providers, then nodes, then subnets, then the governance
// timestamp, each in the result's order.
func (f *Formatter) Format(in Input) []Sample {
	root := NewSink(in.Day)
	sink := root
	if in.Endpoint != "" {
		sink = root.With(L(f.opts.EndpointLabel, in.Endpoint))
	}

	for _, provider := range in.Result.Providers {
		ps := sink.With(L(labelProvider, provider.ProviderID))
		ps.AddInt(NodesCount, int64(provider.NodeCount()))
		ps.AddOpt(TotalBaseRewards, provider.TotalBaseRewards)
		ps.AddOpt(TotalAdjustedRewards, provider.TotalAdjustedRewards)

		if f.opts.Extended {
			for _, br := range provider.BaseRewards {
				ps.AddOpt(ProviderDailyBaseRewards, br.DailyXDRPermyriad,
					L(labelNodeRewardType, rewards.IDOrEmpty(br.NodeRewardType)),
					L(labelRegion, rewards.IDOrEmpty(br.Region)))
			}
		}

		for _, node := range provider.Nodes {
			f.formatNode(ps, node)
		}
	}

	for _, subnet := range in.Result.Subnets {
		sink.Add(SubnetFailureRate, subnet.Rate, L(labelSubnet, subnet.SubnetID))
	}

	// The governance timestamp is endpoint-agnostic, so it carries no labels.
	root.AddOpt(GovernanceLatestEventTime, in.Governance)

	return root.Samples()
}

func (f *Formatter) formatNode(ps *Sink, node rewards.NodeResult) {
	nodeID := rewards.IDOrEmpty(node.NodeID)

	if f.opts.Extended {
		ns := ps.With(L(labelNode, nodeID))
		ns.AddOpt(PerformanceMultiplier, node.PerformanceMultiplier)
		ns.AddOpt(RewardsReduction, node.RewardsReduction)
		ns.AddOpt(NodeBaseRewards, node.BaseRewards)
		ns.AddOpt(NodeAdjustedRewards, node.AdjustedRewards)
		if fr := node.FailureRate; fr != nil && fr.Kind == rewards.NonSubnetMember {
			ns.AddOpt(ExtrapolatedFailureRate, fr.Extrapolated)
		}
	}

	fr := node.FailureRate
	if fr == nil || fr.Kind != rewards.SubnetMember || fr.Metrics == nil {
		return
	}
	m := fr.Metrics
	ms := ps.With(L(labelNode, nodeID), L(labelSubnet, rewards.IDOrEmpty(m.SubnetAssigned)))
	ms.AddOpt(OriginalFailureRate, m.OriginalFailureRate)
	ms.AddOpt(RelativeFailureRate, m.RelativeFailureRate)

	if f.opts.Extended {
		if m.BlocksProposed.Valid {
			ms.AddInt(BlocksProposed, m.BlocksProposed.Int64)
		}
		if m.BlocksFailed.Valid {
			ms.AddInt(BlocksFailed, m.BlocksFailed.Int64)
		}
	}
}
