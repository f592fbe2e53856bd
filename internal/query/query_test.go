package query

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelarogbonlo/dot-escrow/internal/abi"
	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/chain/chaintest"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
)

const (
	alice    = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	contract = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
)

func setup(t *testing.T) (*Adapter, *chaintest.Node) {
	t.Helper()
	c, err := abi.Escrow()
	require.NoError(t, err)
	node := chaintest.NewNode(c)
	return New(node, c, contract, ""), node
}

func queryCount(t *testing.T, message, outcome string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := metrics.QueriesTotal.GetMetricWithLabelValues(message, outcome)
	require.NoError(t, err)
	require.NoError(t, c.Write(m))
	return m.Counter.GetValue()
}

func TestQuery_UnwrapsBothLayers(t *testing.T) {
	a, node := setup(t)
	node.Reply("get_signature_threshold", map[string]any{"Ok": uint64(2)})
	before := queryCount(t, "get_signature_threshold", OutcomeOK)

	res := a.Query(context.Background(), alice, "get_signature_threshold")

	assert.True(t, res.OK)
	assert.Equal(t, uint64(2), res.Uint())
	assert.Empty(t, res.Error)
	assert.Equal(t, before+1, queryCount(t, "get_signature_threshold", OutcomeOK))

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, alice, calls[0].Origin)
	assert.Equal(t, contract, calls[0].Contract)
}

func TestQuery_DefaultCaller(t *testing.T) {
	a, node := setup(t)
	node.Reply("is_admin_signer", map[string]any{"Ok": true})

	res := a.Query(context.Background(), "", "is_admin_signer", alice)
	assert.True(t, res.OK)
	assert.True(t, res.Bool())
	assert.Equal(t, contract, node.Calls()[0].Origin)
}

func TestQuery_InnerErr(t *testing.T) {
	a, node := setup(t)
	node.Reply("get_escrow", map[string]any{"Ok": map[string]any{"Err": "EscrowNotFound"}})

	res := a.Query(context.Background(), alice, "get_escrow", "escrow_9")

	assert.False(t, res.OK)
	assert.Equal(t, "EscrowNotFound", res.Error)
	assert.Nil(t, res.Value)
}

func TestQuery_OuterErr(t *testing.T) {
	a, node := setup(t)
	node.Reply("get_escrow", map[string]any{"Err": "CouldNotReadInput"})

	res := a.Query(context.Background(), alice, "get_escrow", "escrow_9")
	assert.False(t, res.OK)
	assert.Equal(t, "CouldNotReadInput", res.Error)
}

func TestQuery_ListShapes(t *testing.T) {
	a, node := setup(t)
	node.Reply("list_escrows", map[string]any{"Ok": map[string]any{"Ok": []any{}}})

	res := a.Query(context.Background(), alice, "list_escrows")
	require.True(t, res.OK)
	assert.Equal(t, []any{}, res.List())

	// a successful non-array payload is an empty list
	assert.Equal(t, []any{}, Result{OK: true, Value: map[string]any{"x": 1}}.List())
	assert.Equal(t, []any{}, Result{OK: true}.List())
}

func TestQuery_TransportError(t *testing.T) {
	a, node := setup(t)
	node.Fail("get_proposal_counter", errors.New("dial tcp: connection refused"))

	res := a.Query(context.Background(), alice, "get_proposal_counter")
	assert.Equal(t, Result{Error: "dial tcp: connection refused"}, res)
}

func TestQuery_RevertAndDispatch(t *testing.T) {
	a, node := setup(t)
	c, _ := abi.Escrow()
	data, err := c.EncodeReturn("release_milestone", map[string]any{"Ok": map[string]any{"Err": "Unauthorized"}})
	require.NoError(t, err)

	node.ReplyRaw("release_milestone", &chain.CallResult{Reverted: true, Data: data})
	res := a.Query(context.Background(), alice, "release_milestone", "escrow_1", "m1")
	assert.False(t, res.OK)
	assert.Equal(t, "Unauthorized", res.Error)

	node.ReplyRaw("release_milestone", &chain.CallResult{Reverted: true})
	res = a.Query(context.Background(), alice, "release_milestone", "escrow_1", "m1")
	assert.Equal(t, MsgReverted, res.Error)

	node.ReplyRaw("release_milestone", &chain.CallResult{Err: "Module(index: 8, error: 0x0b000000)"})
	res = a.Query(context.Background(), alice, "release_milestone", "escrow_1", "m1")
	assert.Equal(t, "Module(index: 8, error: 0x0b000000)", res.Error)
}

func TestQuery_Undecodable(t *testing.T) {
	a, node := setup(t)
	node.ReplyRaw("get_proposal_counter", &chain.CallResult{Success: true, Data: []byte{0, 1}})

	res := a.Query(context.Background(), alice, "get_proposal_counter")
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, MsgUndecodable)
}

func TestQuery_EncodeError(t *testing.T) {
	a, node := setup(t)

	res := a.Query(context.Background(), alice, "get_escrow")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, node.Calls())

	res = a.Query(context.Background(), alice, "no_such_message")
	assert.False(t, res.OK)
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		value  any
		reason string
		ok     bool
	}{
		{"double ok", map[string]any{"Ok": map[string]any{"Ok": "x"}}, "x", "", true},
		{"single ok", map[string]any{"Ok": "x"}, "x", "", true},
		{"ok array", map[string]any{"Ok": []any{1}}, []any{1}, "", true},
		{"unwrapped", "x", "x", "", true},
		{"outer err", map[string]any{"Err": "CouldNotReadInput"}, nil, "CouldNotReadInput", false},
		{"inner err", map[string]any{"Ok": map[string]any{"Err": "Unauthorized"}}, nil, "Unauthorized", false},
		{"err payload", map[string]any{"Err": map[string]any{"Custom": "boom"}}, nil, `{"Custom":"boom"}`, false},
		{"third layer kept", map[string]any{"Ok": map[string]any{"Ok": map[string]any{"Ok": 1}}}, map[string]any{"Ok": 1}, "", true},
		{"struct with ok field", map[string]any{"Ok": 1, "other": 2}, map[string]any{"Ok": 1, "other": 2}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, reason, ok := Unwrap(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestSafeTimestamp(t *testing.T) {
	const def int64 = 42

	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"nil", nil, def},
		{"empty", "", def},
		{"zero", 0, def},
		{"zero string", "0", def},
		{"millis", uint64(1_700_000_000_000), 1_700_000_000_000},
		{"seconds", uint64(1_700_000_000), 1_700_000_000_000},
		{"seconds string with separators", "1,700,000,000", 1_700_000_000_000},
		{"millis string", "1700000000000", 1_700_000_000_000},
		{"exactly year 2000", Year2000Millis, Year2000Millis},
		{"one second", 1, 1000},
		{"upper bound", Year2100Millis, Year2100Millis},
		{"beyond 2100", Year2100Millis + 1, def},
		{"negative", int64(-5), def},
		{"non-numeric", "soon", def},
		{"float", 1_700_000_000.0, 1_700_000_000_000},
		{"json number", json.Number("1700000000"), 1_700_000_000_000},
		{"huge uint", ^uint64(0), def},
		{"unsupported type", []int{1}, def},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeTimestamp(tt.in, def))
		})
	}
}

func TestSafeTimestamp_AlwaysInRange(t *testing.T) {
	for _, in := range []int64{1, 999, 946_684_799_999, 946_684_800_000, 4_102_444_799, 4_102_444_801, 9_000_000_000_000} {
		got := SafeTimestamp(in, 0)
		assert.GreaterOrEqual(t, got, int64(0))
		assert.LessOrEqual(t, got, Year2100Millis)
		if in < Year2000Millis && in*1000 <= Year2100Millis {
			assert.Equal(t, in*1000, got, "seconds input %d", in)
		}
	}
}
