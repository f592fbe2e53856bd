package gas

import (
	"context"
	"errors"
	"math"
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

func setup(t *testing.T) (*Estimator, *chaintest.Node) {
	t.Helper()
	c, err := abi.Escrow()
	require.NoError(t, err)
	node := chaintest.NewNode(c)
	return NewEstimator(node, c, contract), node
}

func fallbackCount(t *testing.T, reason string) float64 {
	t.Helper()
	m := &dto.Metric{}
	counter, err := metrics.GasEstimateFallbacksTotal.GetMetricWithLabelValues(reason)
	require.NoError(t, err)
	require.NoError(t, counter.Write(m))
	return m.Counter.GetValue()
}

func TestEstimate_PadsRequiredWeight(t *testing.T) {
	est, node := setup(t)
	node.GasRequired = &chain.GasWeight{RefTime: 1_000_000, ProofSize: 50_000}
	node.Reply("release_milestone", map[string]any{"Ok": map[string]any{"Ok": nil}})

	got := est.Estimate(context.Background(), alice, "release_milestone", "escrow_1", "m1")
	assert.Equal(t, chain.GasWeight{RefTime: 1_250_000, ProofSize: 62_500}, got)

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, alice, calls[0].Origin)
	assert.Equal(t, contract, calls[0].Contract)
	assert.Nil(t, calls[0].GasLimit)
}

func TestPad_RoundsUp(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 2},
		{3, 4},
		{4, 5},
		{5, 7},
		{1_000_000, 1_250_000},
		{math.MaxUint64, math.MaxUint64},
	}
	for _, tt := range tests {
		got := Pad(chain.GasWeight{RefTime: tt.in, ProofSize: tt.in})
		assert.Equal(t, tt.want, got.RefTime, "pad(%d)", tt.in)
		assert.Equal(t, tt.want, got.ProofSize, "pad(%d)", tt.in)
	}
}

func TestEstimate_FallsBackToDefault(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		prime  func(n *chaintest.Node)
		args   []any
	}{
		{
			name:   "transport error",
			reason: ReasonDryRunError,
			prime: func(n *chaintest.Node) {
				n.Fail("release_milestone", errors.New("connection reset"))
			},
			args: []any{"escrow_1", "m1"},
		},
		{
			name:   "dry-run reverted",
			reason: ReasonDryRunFailed,
			prime: func(n *chaintest.Node) {
				n.ReplyRaw("release_milestone", &chain.CallResult{Reverted: true})
			},
			args: []any{"escrow_1", "m1"},
		},
		{
			name:   "weight omitted",
			reason: ReasonMissingWeight,
			prime: func(n *chaintest.Node) {
				n.GasRequired = nil
				n.ReplyRaw("release_milestone", &chain.CallResult{Success: true})
			},
			args: []any{"escrow_1", "m1"},
		},
		{
			name:   "zero dimension",
			reason: ReasonZeroWeight,
			prime: func(n *chaintest.Node) {
				n.ReplyRaw("release_milestone", &chain.CallResult{
					Success:     true,
					GasRequired: &chain.GasWeight{RefTime: 10, ProofSize: 0},
				})
			},
			args: []any{"escrow_1", "m1"},
		},
		{
			name:   "arguments do not encode",
			reason: ReasonEncode,
			prime:  func(*chaintest.Node) {},
			args:   []any{"escrow_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, node := setup(t)
			tt.prime(node)
			before := fallbackCount(t, tt.reason)

			got := est.Estimate(context.Background(), alice, "release_milestone", tt.args...)

			assert.Equal(t, DefaultWeight, got)
			assert.Greater(t, got.RefTime, uint64(0))
			assert.Greater(t, got.ProofSize, uint64(0))
			assert.Equal(t, before+1, fallbackCount(t, tt.reason))
		})
	}
}

func TestEstimateInput_PassesValue(t *testing.T) {
	est, node := setup(t)
	node.Reply("create_escrow", map[string]any{"Ok": map[string]any{"Ok": "escrow_9"}})

	c, _ := abi.Escrow()
	m, _ := c.Message("create_escrow")

	est.EstimateInput(context.Background(), alice, "create_escrow", "42", append(m.Selector[:], 0x00))

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "42", calls[0].Value)
}
