package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aviate-labs/agent-go/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"node-rewards-ingester/internal/candid"
	"node-rewards-ingester/internal/rewards"
)

func mustPrincipal(t *testing.T, text string) principal.Principal {
	t.Helper()
	p, err := principal.Decode(text)
	require.NoError(t, err)
	return p
}

func TestAgentReplyDecodes(t *testing.T) {
	provider := mustPrincipal(t, "aaaaa-aa")
	subnet := mustPrincipal(t, "2vxsx-fae")
	total := uint64(123456789012)
	rate := 0.07
	region := "Europe,CH"

	reply := &rewardsCalculationReply{Ok: &dailyResultsWire{
		SubnetsFailureRate: []subnetFailureRateWire{{SubnetID: subnet, Rate: 0.25}},
		ProviderResults: []providerResultWire{{
			ProviderID: provider,
			Result: providerRewardsWire{
				TotalBaseRewardsXDRPermyriad: &total,
				BaseRewards:                  []baseRewardsWire{{Region: &region}},
				DailyNodesRewards: []dailyNodeRewardsWire{
					{NodeID: &subnet, DailyNodeFailureRate: &nodeFailureRateWire{
						NonSubnetMember: &nonSubnetMemberWire{ExtrapolatedFailureRate: &rate},
					}},
					{DailyNodeFailureRate: &nodeFailureRateWire{SubnetMember: &subnetMemberWire{}}},
				},
			},
		}},
	}}

	raw, err := candid.FromNative(reply)
	require.NoError(t, err)

	res, err := rewards.Decode(raw)
	require.NoError(t, err)
	require.Len(t, res.Subnets, 1)
	assert.Equal(t, subnet.String(), res.Subnets[0].SubnetID)
	assert.Equal(t, "0.25", res.Subnets[0].Rate.String())

	require.Len(t, res.Providers, 1)
	p := res.Providers[0]
	assert.Equal(t, provider.String(), p.ProviderID)
	assert.Equal(t, "123456789012", p.TotalBaseRewards.Decimal.String())
	assert.False(t, p.TotalAdjustedRewards.Valid)
	require.Len(t, p.BaseRewards, 1)
	assert.Equal(t, region, p.BaseRewards[0].Region.String)

	require.Len(t, p.Nodes, 2)
	assert.Equal(t, subnet.String(), p.Nodes[0].NodeID.String)
	require.NotNil(t, p.Nodes[0].FailureRate)
	assert.Equal(t, rewards.NonSubnetMember, p.Nodes[0].FailureRate.Kind)
	assert.Equal(t, "0.07", p.Nodes[0].FailureRate.Extrapolated.Decimal.String())
	assert.False(t, p.Nodes[1].NodeID.Valid)
	require.NotNil(t, p.Nodes[1].FailureRate)
	assert.Nil(t, p.Nodes[1].FailureRate.Metrics)
}

func TestAgentReplyErrBranch(t *testing.T) {
	msg := "rewards not computed"
	raw, err := candid.FromNative(&rewardsCalculationReply{Err: &msg})
	require.NoError(t, err)

	_, err = rewards.Decode(raw)
	assert.ErrorIs(t, err, rewards.ErrNoData)
}

func TestAgentReplyWithoutBranch(t *testing.T) {
	raw, err := candid.FromNative(&rewardsCalculationReply{})
	require.NoError(t, err)

	_, err = rewards.Decode(raw)
	assert.True(t, candid.IsDecodeError(err, candid.MalformedVariant))
}

func TestGovernanceReplyDecodes(t *testing.T) {
	raw, err := candid.FromNative(&listRewardsReply{Rewards: []rewardEventWire{{Timestamp: 1709251200}, {Timestamp: 1706659200}}})
	require.NoError(t, err)

	tr := &fakeTransport{reply: string(raw)}
	ts, err := NewGovernanceClient(tr, "g", noopLogger()).LatestRewardEventTimestamp(context.Background())
	require.NoError(t, err)
	require.True(t, ts.Valid)
	assert.Equal(t, "1709251200", ts.Decimal.String())
}

func TestReplyTypesCoverClients(t *testing.T) {
	for _, method := range []string{MethodRewardsCalculation, methodListProviderRewards} {
		newReply, ok := replyTypes[method]
		require.True(t, ok, method)
		assert.NotNil(t, newReply())
	}
}

func TestNewAgentTransportRejectsRelativeURL(t *testing.T) {
	_, err := NewAgentTransport(AgentOptions{URL: "ic0.app"}, noopLogger())
	assert.Error(t, err)

	tr, err := NewAgentTransport(AgentOptions{}, noopLogger())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, tr.timeout)
}

func TestAgentTransportQueryErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr, err := NewAgentTransport(AgentOptions{URL: url, Timeout: time.Second}, noopLogger())
	require.NoError(t, err)

	for name, call := range map[string]func() error{
		"unknown method": func() error {
			_, err := tr.Query(context.Background(), "aaaaa-aa", "get_everything", nil)
			return err
		},
		"bad canister id": func() error {
			_, err := tr.Query(context.Background(), "not a principal!", MethodRewardsCalculation, rewardsRequest{})
			return err
		},
		"unreachable host": func() error {
			_, err := tr.Query(context.Background(), "aaaaa-aa", methodListProviderRewards, listRewardsRequest{})
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			err := call()
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Zero(t, te.StatusCode)
		})
	}
}

func TestAgentTransportHonoursContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	tr, err := NewAgentTransport(AgentOptions{URL: srv.URL, Timeout: 50 * time.Millisecond}, noopLogger())
	require.NoError(t, err)

	_, err = tr.Query(context.Background(), "aaaaa-aa", methodListProviderRewards, listRewardsRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
