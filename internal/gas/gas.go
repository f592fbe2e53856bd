// Package gas derives the execution weight attached to contract calls.
//
// The node is asked to dry-run the call; the weight it reports as required
// is padded by 25%. Estimation is a hint: whenever the dry-run cannot
// produce a usable figure a conservative default is returned instead, so a
// failed estimate never stops the real transaction from being attempted.
package gas

import (
	"context"
	"math"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
)

// DefaultWeight is used whenever a dry-run gives no usable figure.
var DefaultWeight = chain.GasWeight{
	RefTime:   30_000_000_000,
	ProofSize: 1_048_576,
}

// Fallback reasons, used as metric labels.
const (
	ReasonEncode        = "encode"
	ReasonDryRunError   = "dry_run_error"
	ReasonDryRunFailed  = "dry_run_failed"
	ReasonMissingWeight = "missing_weight"
	ReasonZeroWeight    = "zero_weight"
)

// CallEncoder turns a message and its arguments into call data.
type CallEncoder interface {
	EncodeCall(label string, args ...any) ([]byte, error)
}

// Estimator dry-runs calls against one contract.
type Estimator struct {
	node     chain.Node
	abi      CallEncoder
	contract string
}

// NewEstimator creates an estimator for the contract at address.
func NewEstimator(node chain.Node, abi CallEncoder, contract string) *Estimator {
	return &Estimator{node: node, abi: abi, contract: contract}
}

// Estimate encodes message with args and estimates its weight when sent by
// caller. It always returns a weight with both dimensions above zero.
func (e *Estimator) Estimate(ctx context.Context, caller, message string, args ...any) chain.GasWeight {
	input, err := e.abi.EncodeCall(message, args...)
	if err != nil {
		return fallback(ctx, message, ReasonEncode, err)
	}
	return e.EstimateInput(ctx, caller, message, "", input)
}

// EstimateInput estimates already-encoded call data.
func (e *Estimator) EstimateInput(ctx context.Context, caller, message, value string, input []byte) chain.GasWeight {
	res, err := e.node.Call(ctx, chain.CallRequest{
		Origin:   caller,
		Contract: e.contract,
		Value:    value,
		Input:    input,
	})
	switch {
	case err != nil:
		return fallback(ctx, message, ReasonDryRunError, err)
	case res == nil || !res.Success:
		return fallback(ctx, message, ReasonDryRunFailed, nil)
	case res.GasRequired == nil:
		return fallback(ctx, message, ReasonMissingWeight, nil)
	case res.GasRequired.IsZero():
		return fallback(ctx, message, ReasonZeroWeight, nil)
	}

	w := Pad(*res.GasRequired)
	logging.L(ctx).Debug("gas estimated",
		"message", message,
		"refTime", w.RefTime,
		"proofSize", w.ProofSize,
	)
	return w
}

// Pad applies the 1.25x safety factor to both dimensions, rounding up.
func Pad(w chain.GasWeight) chain.GasWeight {
	return chain.GasWeight{
		RefTime:   padDimension(w.RefTime),
		ProofSize: padDimension(w.ProofSize),
	}
}

func padDimension(x uint64) uint64 {
	extra := x/4 + min(x%4, 1)
	if x > math.MaxUint64-extra {
		return math.MaxUint64
	}
	return x + extra
}

func fallback(ctx context.Context, message, reason string, err error) chain.GasWeight {
	metrics.GasEstimateFallbacksTotal.WithLabelValues(reason).Inc()
	attrs := []any{"message", message, "reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logging.L(ctx).Debug("gas estimate fell back to default", attrs...)
	return DefaultWeight
}
