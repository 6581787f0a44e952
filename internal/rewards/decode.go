package rewards

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"

	"node-rewards-ingester/internal/candid"
)

// ErrNoData means the canister answered but has nothing for the requested day.
var ErrNoData = errors.New("no reward data available")

// Decode turns a get_node_providers_rewards_calculation response into a
// DailyResult. An Err branch wraps ErrNoData; shape violations are
// *candid.DecodeError.
func Decode(raw json.RawMessage) (DailyResult, error) {
	tag, payload, err := candid.Variant(raw, "", "Ok", "Err")
	if err != nil {
		return DailyResult{}, err
	}
	if tag == "Err" {
		msg, err := candid.Text(payload, "Err")
		if err != nil {
			return DailyResult{}, err
		}
		return DailyResult{}, fmt.Errorf("%w: %s", ErrNoData, msg)
	}
	return decodeDailyResult(payload, "Ok")
}

func decodeDailyResult(raw json.RawMessage, path string) (DailyResult, error) {
	fields, err := candid.Record(raw, path)
	if err != nil {
		return DailyResult{}, err
	}

	var result DailyResult

	subnetsPath := candid.Field(path, "subnets_failure_rate")
	subnets, err := candid.Pairs(fields["subnets_failure_rate"], subnetsPath)
	if err != nil {
		return DailyResult{}, err
	}
	seenSubnets := make(map[string]struct{}, len(subnets))
	for i, pair := range subnets {
		itemPath := candid.Index(subnetsPath, i)
		id, err := candid.Principal(pair.Key, itemPath)
		if err != nil {
			return DailyResult{}, err
		}
		if _, dup := seenSubnets[id]; dup {
			return DailyResult{}, candid.Errorf(candid.DuplicateKey, itemPath, "subnet %q", id)
		}
		seenSubnets[id] = struct{}{}
		rate, err := candid.Number(pair.Value, itemPath)
		if err != nil {
			return DailyResult{}, err
		}
		result.Subnets = append(result.Subnets, SubnetFailureRate{SubnetID: id, Rate: rate})
	}

	providersPath := candid.Field(path, "provider_results")
	providers, err := candid.Pairs(fields["provider_results"], providersPath)
	if err != nil {
		return DailyResult{}, err
	}
	seenProviders := make(map[string]struct{}, len(providers))
	for i, pair := range providers {
		itemPath := candid.Index(providersPath, i)
		id, err := candid.Principal(pair.Key, itemPath)
		if err != nil {
			return DailyResult{}, err
		}
		if _, dup := seenProviders[id]; dup {
			return DailyResult{}, candid.Errorf(candid.DuplicateKey, itemPath, "provider %q", id)
		}
		seenProviders[id] = struct{}{}
		provider, err := decodeProvider(id, pair.Value, itemPath)
		if err != nil {
			return DailyResult{}, err
		}
		result.Providers = append(result.Providers, provider)
	}

	return result, nil
}

// reader walks one record and keeps the first error, so field-by-field
// decoding stays linear.
type reader struct {
	fields candid.Fields
	path   string
	err    error
}

func newReader(raw json.RawMessage, path string) (*reader, error) {
	fields, err := candid.Record(raw, path)
	if err != nil {
		return nil, err
	}
	return &reader{fields: fields, path: path}, nil
}

func (r *reader) field(name string) (json.RawMessage, string) {
	return r.fields[name], candid.Field(r.path, name)
}

func (r *reader) number(name string) decimal.NullDecimal {
	if r.err != nil {
		return decimal.NullDecimal{}
	}
	raw, path := r.field(name)
	v, err := candid.OptNumber(raw, path)
	r.err = err
	return v
}

func (r *reader) nat64(name string) null.Int {
	if r.err != nil {
		return null.Int{}
	}
	raw, path := r.field(name)
	v, err := candid.OptNat64(raw, path)
	r.err = err
	return v
}

func (r *reader) text(name string) null.String {
	if r.err != nil {
		return null.String{}
	}
	raw, path := r.field(name)
	v, err := candid.OptText(raw, path)
	r.err = err
	return v
}

func (r *reader) principal(name string) null.String {
	if r.err != nil {
		return null.String{}
	}
	raw, path := r.field(name)
	v, err := candid.OptPrincipal(raw, path)
	r.err = err
	return v
}

// vec calls fn for each element of a vector field.
func (r *reader) vec(name string, fn func(item json.RawMessage, path string) error) {
	if r.err != nil {
		return
	}
	raw, path := r.field(name)
	items, err := candid.Vec(raw, path)
	if err != nil {
		r.err = err
		return
	}
	for i, item := range items {
		if err := fn(item, candid.Index(path, i)); err != nil {
			r.err = err
			return
		}
	}
}

func decodeProvider(id string, raw json.RawMessage, path string) (ProviderResult, error) {
	r, err := newReader(raw, path)
	if err != nil {
		return ProviderResult{}, err
	}

	p := ProviderResult{
		ProviderID:           id,
		TotalBaseRewards:     r.number("total_base_rewards_xdr_permyriad"),
		TotalAdjustedRewards: r.number("total_adjusted_rewards_xdr_permyriad"),
	}

	r.vec("base_rewards", func(item json.RawMessage, path string) error {
		br, err := newReader(item, path)
		if err != nil {
			return err
		}
		reward := RegionBaseReward{
			MonthlyXDRPermyriad: br.number("monthly_xdr_permyriad"),
			DailyXDRPermyriad:   br.number("daily_xdr_permyriad"),
			NodeRewardType:      br.text("node_reward_type"),
			Region:              br.text("region"),
		}
		p.BaseRewards = append(p.BaseRewards, reward)
		return br.err
	})

	r.vec("base_rewards_type3", func(item json.RawMessage, path string) error {
		tr, err := newReader(item, path)
		if err != nil {
			return err
		}
		reward := Type3RegionBaseReward{
			Region:                 tr.text("region"),
			NodesCount:             tr.nat64("nodes_count"),
			AvgRewardsXDRPermyriad: tr.number("avg_rewards_xdr_permyriad"),
			AvgCoefficient:         tr.number("avg_coefficient"),
			DailyXDRPermyriad:      tr.number("daily_xdr_permyriad"),
		}
		p.BaseRewardsType3 = append(p.BaseRewardsType3, reward)
		return tr.err
	})

	r.vec("daily_nodes_rewards", func(item json.RawMessage, path string) error {
		node, err := decodeNode(item, path)
		if err != nil {
			return err
		}
		p.Nodes = append(p.Nodes, node)
		return nil
	})

	if r.err != nil {
		return ProviderResult{}, r.err
	}
	return p, nil
}

func decodeNode(raw json.RawMessage, path string) (NodeResult, error) {
	r, err := newReader(raw, path)
	if err != nil {
		return NodeResult{}, err
	}

	node := NodeResult{
		NodeID:                r.principal("node_id"),
		NodeRewardType:        r.text("node_reward_type"),
		Region:                r.text("region"),
		DCID:                  r.text("dc_id"),
		PerformanceMultiplier: r.number("performance_multiplier"),
		RewardsReduction:      r.number("rewards_reduction"),
		BaseRewards:           r.number("base_rewards_xdr_permyriad"),
		AdjustedRewards:       r.number("adjusted_rewards_xdr_permyriad"),
	}
	if r.err != nil {
		return NodeResult{}, r.err
	}

	frRaw, frPath := r.field("daily_node_failure_rate")
	inner, ok, err := candid.Opt(frRaw, frPath)
	if err != nil {
		return NodeResult{}, err
	}
	if ok {
		fr, err := decodeFailureRate(inner, frPath)
		if err != nil {
			return NodeResult{}, err
		}
		node.FailureRate = &fr
	}
	return node, nil
}

func decodeFailureRate(raw json.RawMessage, path string) (FailureRate, error) {
	tag, payload, err := candid.Variant(raw, path, string(SubnetMember), string(NonSubnetMember))
	if err != nil {
		return FailureRate{}, err
	}
	branchPath := candid.Field(path, tag)
	r, err := newReader(payload, branchPath)
	if err != nil {
		return FailureRate{}, err
	}

	fr := FailureRate{Kind: MembershipKind(tag)}
	if fr.Kind == NonSubnetMember {
		fr.Extrapolated = r.number("extrapolated_failure_rate")
		return fr, r.err
	}

	mRaw, mPath := r.field("node_metrics")
	inner, ok, err := candid.Opt(mRaw, mPath)
	if err != nil || !ok {
		return fr, err
	}
	mr, err := newReader(inner, mPath)
	if err != nil {
		return FailureRate{}, err
	}
	fr.Metrics = &NodeMetrics{
		SubnetAssigned:            mr.principal("subnet_assigned"),
		SubnetAssignedFailureRate: mr.number("subnet_assigned_failure_rate"),
		BlocksProposed:            mr.nat64("num_blocks_proposed"),
		BlocksFailed:              mr.nat64("num_blocks_failed"),
		OriginalFailureRate:       mr.number("original_failure_rate"),
		RelativeFailureRate:       mr.number("relative_failure_rate"),
	}
	if mr.err != nil {
		return FailureRate{}, mr.err
	}
	return fr, nil
}
