package candid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textID struct{ raw string }

func (t textID) String() string { return "id-" + t.raw }

type nativeMetrics struct {
	Proposed *uint64  `ic:"num_blocks_proposed,omitempty"`
	Rate     *float64 `ic:"original_failure_rate,omitempty"`
}

type nativeMembership struct {
	SubnetMember *struct {
		Metrics *nativeMetrics `ic:"node_metrics,omitempty"`
	} `ic:"SubnetMember,variant"`
	NonSubnetMember *struct {
		Extrapolated *float64 `ic:"extrapolated_failure_rate,omitempty"`
	} `ic:"NonSubnetMember,variant"`
}

type nativeEntry struct {
	ID    textID  `ic:"0"`
	Value float64 `ic:"1"`
}

type nativeRecord struct {
	Node        *textID           `ic:"node_id,omitempty"`
	Region      *string           `ic:"region,omitempty"`
	Membership  *nativeMembership `ic:"daily_node_failure_rate,omitempty"`
	Entries     []nativeEntry     `ic:"entries"`
	Count       uint64            `ic:"count"`
	internal    string
	Unannotated string
}

type nativeReply struct {
	Ok  *nativeRecord `ic:"Ok,variant"`
	Err *string       `ic:"Err,variant"`
}

func TestFromNativeRendersConvention(t *testing.T) {
	proposed := uint64(18446744073709551615)
	rate := 0.25
	region := "Europe,CH"

	reply := &nativeReply{Ok: &nativeRecord{
		Node:   &textID{raw: "a"},
		Region: &region,
		Membership: &nativeMembership{SubnetMember: &struct {
			Metrics *nativeMetrics `ic:"node_metrics,omitempty"`
		}{Metrics: &nativeMetrics{Proposed: &proposed, Rate: &rate}}},
		Entries:     []nativeEntry{{ID: textID{raw: "s"}, Value: 0.5}},
		Count:       3,
		internal:    "skipped",
		Unannotated: "skipped",
	}}

	raw, err := FromNative(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Ok": {
		"node_id": ["id-a"],
		"region": ["Europe,CH"],
		"daily_node_failure_rate": [{"SubnetMember": {"node_metrics": [{
			"num_blocks_proposed": [18446744073709551615],
			"original_failure_rate": [0.25]
		}]}}],
		"entries": [["id-s", 0.5]],
		"count": 3
	}}`, string(raw))

	// Round trip through the readers keeps 64-bit precision.
	tag, payload, err := Variant(raw, "", "Ok", "Err")
	require.NoError(t, err)
	assert.Equal(t, "Ok", tag)
	fields, err := Record(payload, "Ok")
	require.NoError(t, err)
	_, ok, err := Opt(fields["daily_node_failure_rate"], "fr")
	require.NoError(t, err)
	assert.True(t, ok)
	pairs, err := Pairs(fields["entries"], "entries")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
}

func TestFromNativeEmptyOptionals(t *testing.T) {
	raw, err := FromNative(nativeRecord{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"node_id": [], "region": [], "daily_node_failure_rate": [], "entries": [], "count": 0}`, string(raw))
}

func TestFromNativeVariantBranches(t *testing.T) {
	msg := "not computed"

	raw, err := FromNative(nativeReply{Err: &msg})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Err": "not computed"}`, string(raw))

	// No branch and two branches both reach the variant reader unchanged.
	raw, err = FromNative(nativeReply{})
	require.NoError(t, err)
	_, _, err = Variant(raw, "", "Ok", "Err")
	assert.True(t, IsDecodeError(err, MalformedVariant))

	raw, err = FromNative(nativeReply{Ok: &nativeRecord{}, Err: &msg})
	require.NoError(t, err)
	_, _, err = Variant(raw, "", "Ok", "Err")
	assert.True(t, IsDecodeError(err, MalformedVariant))
}

func TestFromNativeRejectsNonFiniteFloat(t *testing.T) {
	_, err := FromNative(nativeReply{Ok: &nativeRecord{Entries: []nativeEntry{{Value: math.NaN()}}}})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, MalformedValue, de.Kind)
	assert.Equal(t, "Ok.entries[0][1]", de.Path)
}

func TestFromNativeUnsupportedType(t *testing.T) {
	_, err := FromNative(map[string]int{"a": 1})
	assert.True(t, IsDecodeError(err, MalformedValue))
}
