package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/rewards"
)

var march1 = day.MustNew(2024, time.March, 1)

func noonMillis(t *testing.T) int64 {
	t.Helper()
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
}

func TestFormatProviderWithoutNodes(t *testing.T) {
	f := NewFormatter(Options{})
	samples := f.Format(Input{
		Day: march1,
		Result: rewards.DailyResult{Providers: []rewards.ProviderResult{{
			ProviderID:       "P",
			TotalBaseRewards: decimal.NewNullDecimal(decimal.RequireFromString("12345.0")),
		}}},
	})

	require.Len(t, samples, 2)

	ts := noonMillis(t)
	assert.Equal(t, NodesCount, samples[0].Name)
	assert.Equal(t, []Label{L("provider_id", "P")}, samples[0].Labels)
	assert.True(t, samples[0].Value.IsZero())
	assert.Equal(t, ts, samples[0].TimestampMs)

	assert.Equal(t, TotalBaseRewards, samples[1].Name)
	assert.True(t, samples[1].Value.Equal(decimal.NewFromInt(12345)))
	assert.Equal(t, ts, samples[1].TimestampMs)

	body, err := Encode(samples)
	require.NoError(t, err)
	assert.Equal(t,
		"nodes_count{provider_id=\"P\"} 0 1709294400000\n"+
			"total_base_rewards_xdr_permyriad{provider_id=\"P\"} 12345 1709294400000\n",
		string(body))
}

func TestFormatEmptyResult(t *testing.T) {
	samples := NewFormatter(Options{}).Format(Input{Day: march1, Endpoint: "uuew5-iiaaa-aaaaa-qbx4q-cai"})
	assert.Empty(t, samples)
}

func fullResult() rewards.DailyResult {
	rate := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.RequireFromString(s)) }
	return rewards.DailyResult{
		Providers: []rewards.ProviderResult{{
			ProviderID:           "prov",
			TotalBaseRewards:     rate("100"),
			TotalAdjustedRewards: rate("90"),
			BaseRewards: []rewards.RegionBaseReward{{
				DailyXDRPermyriad: rate("10"),
				NodeRewardType:    null.StringFrom("type3"),
				Region:            null.StringFrom("Europe,CH"),
			}},
			Nodes: []rewards.NodeResult{
				{
					NodeID:                null.StringFrom("node-1"),
					PerformanceMultiplier: rate("1"),
					FailureRate: &rewards.FailureRate{Kind: rewards.SubnetMember, Metrics: &rewards.NodeMetrics{
						SubnetAssigned:      null.StringFrom("subnet-1"),
						OriginalFailureRate: rate("0.2"),
						BlocksProposed:      null.IntFrom(50),
					}},
				},
				{
					FailureRate: &rewards.FailureRate{Kind: rewards.SubnetMember, Metrics: &rewards.NodeMetrics{
						OriginalFailureRate: rate("0.4"),
						RelativeFailureRate: rate("0.1"),
					}},
				},
				{
					NodeID:      null.StringFrom("node-3"),
					FailureRate: &rewards.FailureRate{Kind: rewards.NonSubnetMember, Extrapolated: rate("0.05")},
				},
				{
					NodeID:      null.StringFrom("node-4"),
					FailureRate: &rewards.FailureRate{Kind: rewards.SubnetMember},
				},
			},
		}},
		Subnets: []rewards.SubnetFailureRate{{SubnetID: "subnet-1", Rate: decimal.RequireFromString("0.3")}},
	}
}

func TestFormatFullDay(t *testing.T) {
	f := NewFormatter(Options{})
	samples := f.Format(Input{
		Day:        march1,
		Endpoint:   "canister-a",
		Result:     fullResult(),
		Governance: decimal.NewNullDecimal(decimal.NewFromInt(1709251200)),
	})

	body, err := Encode(samples)
	require.NoError(t, err)

	want := []string{
		`nodes_count{canister_id="canister-a",provider_id="prov"} 4 1709294400000`,
		`total_base_rewards_xdr_permyriad{canister_id="canister-a",provider_id="prov"} 100 1709294400000`,
		`total_adjusted_rewards_xdr_permyriad{canister_id="canister-a",provider_id="prov"} 90 1709294400000`,
		`original_failure_rate{canister_id="canister-a",provider_id="prov",node_id="node-1",subnet_id="subnet-1"} 0.2 1709294400000`,
		`original_failure_rate{canister_id="canister-a",provider_id="prov",node_id="",subnet_id=""} 0.4 1709294400000`,
		`relative_failure_rate{canister_id="canister-a",provider_id="prov",node_id="",subnet_id=""} 0.1 1709294400000`,
		`subnet_failure_rate{canister_id="canister-a",subnet_id="subnet-1"} 0.3 1709294400000`,
		`governance_latest_reward_event_timestamp_seconds 1709251200 1709294400000`,
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", string(body))
}

func TestFormatExtended(t *testing.T) {
	f := NewFormatter(Options{Extended: true, EndpointLabel: "endpoint"})
	samples := f.Format(Input{Day: march1, Endpoint: "c", Result: fullResult()})

	names := make(map[string]int)
	for _, s := range samples {
		names[s.Name]++
		assert.Equal(t, "endpoint", s.Labels[0].Name)
	}
	assert.Equal(t, 1, names[ProviderDailyBaseRewards])
	assert.Equal(t, 1, names[PerformanceMultiplier])
	assert.Equal(t, 1, names[BlocksProposed])
	assert.Equal(t, 0, names[BlocksFailed])
	assert.Equal(t, 1, names[ExtrapolatedFailureRate])
	assert.Equal(t, 2, names[OriginalFailureRate])
	assert.Equal(t, 0, names[GovernanceLatestEventTime])
}

func TestSinkScopes(t *testing.T) {
	root := NewSink(march1, L("a", "1"))
	child := root.With(L("b", "2"))
	child.AddInt("x", 1, L("c", "3"))
	root.AddOpt("y", decimal.NullDecimal{})
	root.AddOpt("z", decimal.NewNullDecimal(decimal.NewFromInt(2)))

	samples := root.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, []Label{L("a", "1"), L("b", "2"), L("c", "3")}, samples[0].Labels)
	assert.Equal(t, []Label{L("a", "1")}, samples[1].Labels)
	assert.Equal(t, samples[0].TimestampMs, samples[1].TimestampMs)
}

func TestLineEscapesLabelValues(t *testing.T) {
	line, err := Line(Sample{
		Name:        "m",
		Labels:      []Label{L("id", `we"ird\id`+"\nnext")},
		Value:       decimal.RequireFromString("1.5"),
		TimestampMs: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, `m{id="we\"ird\\id\nnext"} 1.5 7`, line)
}

func TestLineRejectsInvalidNames(t *testing.T) {
	_, err := Line(Sample{Name: "bad-name", Value: decimal.Zero})
	assert.Error(t, err)

	_, err = Line(Sample{Name: "ok", Labels: []Label{L("0bad", "v")}, Value: decimal.Zero})
	assert.Error(t, err)
}
