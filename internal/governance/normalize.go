package governance

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samuelarogbonlo/dot-escrow/internal/query"
)

// normalizeProposal maps a decoded AdminProposal onto Proposal. Keys may be
// snake_case (ABI output) or camelCase.
func (c *Client) normalizeProposal(raw map[string]any) Proposal {
	id, _ := number(raw["id"])
	p := Proposal{
		ID:        id,
		Action:    parseAction(raw["action"]),
		CreatedBy: text(pick(raw, "created_by", "createdBy")),
		CreatedAt: query.SafeTimestamp(pick(raw, "created_at", "createdAt"), c.now().UnixMilli()),
		Approvals: addresses(asSlice(raw["approvals"])),
	}
	p.Executed, _ = raw["executed"].(bool)
	if at := query.SafeTimestamp(pick(raw, "executed_at", "executedAt"), 0); at > 0 {
		p.ExecutedAt = &at
	}
	return p
}

// parseAction reads a decoded ProposalAction: a bare variant name for unit
// variants, otherwise a single-key map of name to payload. Unrecognized
// input yields an Action with an empty Kind.
func parseAction(raw any) Action {
	var name string
	var payload any
	switch v := raw.(type) {
	case string:
		name = v
	case map[string]any:
		if len(v) != 1 {
			return Action{}
		}
		for k, val := range v {
			name, payload = k, val
		}
	default:
		return Action{}
	}

	kind, err := ParseActionKind(name)
	if err != nil {
		return Action{}
	}
	a := Action{Kind: kind}
	switch kind {
	case ActionSetFee:
		n, _ := number(payload)
		a.FeeBasisPoints = uint16(min(n, math.MaxUint16))
	case ActionAddSigner, ActionRemoveSigner:
		a.Account = text(first(payload))
	case ActionSetThreshold:
		n, _ := number(payload)
		a.Threshold = uint32(min(n, math.MaxUint32))
	case ActionEmergencyWithdraw:
		fields := asSlice(payload)
		if len(fields) == 2 {
			a.Account = text(fields[0])
			a.Amount = text(fields[1])
		}
	}
	return a
}

func pick(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

func number(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case int:
		return uint64(max(n, 0)), n >= 0
	case int64:
		return uint64(max(n, 0)), n >= 0
	case float64:
		if n < 0 || n > math.MaxUint64 {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		return number(n.String())
	case string:
		u, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 10, 64)
		return u, err == nil
	}
	return 0, false
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	}
	return nil
}

// first unwraps a one-element tuple payload.
func first(v any) any {
	if s := asSlice(v); len(s) == 1 {
		return s[0]
	}
	return v
}

func addresses(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := text(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}
