// Package query performs read-only contract calls and reduces their decoded
// output to a plain success or failure.
//
// ink! messages return Result<T, LangError> around the contract's own
// Result<T, Error>, so decoded output looks like {Ok: {Ok: payload}},
// {Ok: payload} or {Err: reason}. Query strips both layers.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
	"github.com/samuelarogbonlo/dot-escrow/internal/traces"
)

// Failure texts that do not come from the contract.
const (
	MsgReverted    = "Contract reverted"
	MsgCallFailed  = "Query failed"
	MsgUndecodable = "Query returned undecodable output"
)

const maxEnvelopeDepth = 2

// Query outcomes, used as metric labels.
const (
	OutcomeOK          = "ok"
	OutcomeErr         = "err"
	OutcomeTransport   = "transport_error"
	OutcomeReverted    = "reverted"
	OutcomeFailed      = "failed"
	OutcomeEncodeError = "encode_error"
	OutcomeDecodeError = "decode_error"
)

// Codec encodes call data and decodes return data for a message.
type Codec interface {
	EncodeCall(label string, args ...any) ([]byte, error)
	DecodeReturn(label string, data []byte) (any, error)
}

// Result is the outcome of a query. Value holds the unwrapped payload when
// OK; Error holds the reason otherwise.
type Result struct {
	OK    bool   `json:"ok"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func failure(msg string) Result { return Result{Error: msg} }

// List returns Value as a slice. A successful result with any other payload
// is an empty list.
func (r Result) List() []any {
	if s, ok := r.Value.([]any); ok {
		return s
	}
	return []any{}
}

// Map returns Value as a map, or nil.
func (r Result) Map() map[string]any {
	m, _ := r.Value.(map[string]any)
	return m
}

// Bool returns Value as a bool; anything else is false.
func (r Result) Bool() bool {
	b, _ := r.Value.(bool)
	return b
}

// Uint returns Value as an unsigned integer. u128 values arrive as decimal
// strings; those not fitting in 64 bits, and non-numeric payloads, are 0.
func (r Result) Uint() uint64 {
	switch v := r.Value.(type) {
	case uint64:
		return v
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// String returns Value as a string, or "".
func (r Result) String() string {
	s, _ := r.Value.(string)
	return s
}

// Adapter runs queries against one contract.
type Adapter struct {
	node     chain.Node
	codec    Codec
	contract string
	caller   string
}

// New creates an adapter. defaultCaller is the origin used when a query is
// made without one; the contract address is used when it is empty.
func New(node chain.Node, codec Codec, contract, defaultCaller string) *Adapter {
	if defaultCaller == "" {
		defaultCaller = contract
	}
	return &Adapter{node: node, codec: codec, contract: contract, caller: defaultCaller}
}

// Contract returns the queried contract address.
func (a *Adapter) Contract() string { return a.contract }

// Query dry-runs message with args as caller. It never returns an error and
// never panics.
func (a *Adapter) Query(ctx context.Context, caller, message string, args ...any) (res Result) {
	if caller == "" {
		caller = a.caller
	}
	ctx = logging.WithCall(ctx, caller, message)
	ctx, span := traces.StartSpan(ctx, "query.Query",
		traces.Message(message),
		traces.Caller(caller),
	)
	defer span.End()

	outcome := OutcomeOK
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeDecodeError
			res = failure(fmt.Sprintf("%s: %v", MsgUndecodable, r))
		}
		metrics.QueriesTotal.WithLabelValues(message, outcome).Inc()
		if !res.OK {
			traces.Fail(span, res.Error)
			logging.L(ctx).Debug("query failed", "outcome", outcome, "error", res.Error)
		}
	}()

	input, err := a.codec.EncodeCall(message, args...)
	if err != nil {
		outcome = OutcomeEncodeError
		return failure(err.Error())
	}

	out, err := a.node.Call(ctx, chain.CallRequest{
		Origin:   caller,
		Contract: a.contract,
		Input:    input,
	})
	switch {
	case err != nil:
		outcome = OutcomeTransport
		return failure(err.Error())
	case out == nil:
		outcome = OutcomeFailed
		return failure(MsgCallFailed)
	case out.Reverted:
		outcome = OutcomeReverted
		return failure(a.revertReason(message, out.Data))
	case !out.Success:
		outcome = OutcomeFailed
		if out.Err != "" {
			return failure(out.Err)
		}
		return failure(MsgCallFailed)
	}

	decoded, err := a.codec.DecodeReturn(message, out.Data)
	if err != nil {
		outcome = OutcomeDecodeError
		return failure(fmt.Sprintf("%s: %v", MsgUndecodable, err))
	}

	value, reason, ok := Unwrap(decoded)
	if !ok {
		outcome = OutcomeErr
		return failure(reason)
	}
	return Result{OK: true, Value: value}
}

// revertReason decodes the error a reverting message returned, if any.
func (a *Adapter) revertReason(message string, data []byte) string {
	if len(data) == 0 {
		return MsgReverted
	}
	decoded, err := a.codec.DecodeReturn(message, data)
	if err != nil {
		return MsgReverted
	}
	if _, reason, ok := Unwrap(decoded); !ok && reason != "" {
		return reason
	}
	return MsgReverted
}

// Unwrap removes up to two Ok/Err envelope layers. An Err at either layer
// yields ok false with the stringified reason.
func Unwrap(v any) (value any, reason string, ok bool) {
	for i := 0; i < maxEnvelopeDepth; i++ {
		m, isMap := v.(map[string]any)
		if !isMap || len(m) != 1 {
			break
		}
		if inner, has := m["Ok"]; has {
			v = inner
			continue
		}
		if inner, has := m["Err"]; has {
			return nil, Stringify(inner), false
		}
		break
	}
	return v, "", true
}

// Stringify renders a decoded contract value as text. Unit variants are
// their name; anything else is JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "unknown error"
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ---- Timestamps ----

const (
	// Year2000Millis is the smallest plausible millisecond timestamp;
	// anything positive below it is taken to be in seconds.
	Year2000Millis int64 = 946_684_800_000
	// Year2100Millis is the largest accepted timestamp.
	Year2100Millis int64 = 4_102_444_800_000
)

// SafeTimestamp converts a raw decoded timestamp into epoch milliseconds,
// returning def when the value is missing, non-numeric or out of range.
func SafeTimestamp(raw any, def int64) int64 {
	n, ok := parseTimestamp(raw)
	if !ok || n == 0 {
		return def
	}
	if n > 0 && n < Year2000Millis {
		n *= 1000
	}
	if n < 0 || n > Year2100Millis {
		return def
	}
	return n
}

func parseTimestamp(raw any) (int64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		return parseTimestamp(v.String())
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return parseTimestamp(f)
	}
	return 0, false
}
