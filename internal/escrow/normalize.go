package escrow

import (
	"fmt"
	"strings"

	"github.com/samuelarogbonlo/dot-escrow/internal/query"
)

// normalizeEscrow maps a decoded escrow payload onto Escrow. It is the only
// place that knows the payload may use snake_case or camelCase keys.
func (c *Client) normalizeEscrow(raw map[string]any) Escrow {
	now := c.now().UnixMilli()

	e := Escrow{
		ID:                  text(pick(raw, "id")),
		CreatorAddress:      text(pick(raw, "creator_address", "creatorAddress")),
		CounterpartyAddress: text(pick(raw, "counterparty_address", "counterpartyAddress")),
		CounterpartyType:    text(pick(raw, "counterparty_type", "counterpartyType")),
		Title:               text(pick(raw, "title")),
		Description:         text(pick(raw, "description")),
		TotalAmount:         amount(pick(raw, "total_amount", "totalAmount")),
		Status:              escrowStatus(pick(raw, "status")),
		CreatedAt:           query.SafeTimestamp(pick(raw, "created_at", "createdAt"), now),
		TransactionHash:     text(pick(raw, "transaction_hash", "transactionHash")),
		Milestones:          []Milestone{},
	}

	if items, ok := pick(raw, "milestones").([]any); ok {
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				e.Milestones = append(e.Milestones, normalizeMilestone(m))
			}
		}
	}
	return e
}

// normalizeMilestone maps a decoded milestone payload onto Milestone.
// Missing deadlines are 0; a missing or unusable completion time is nil.
func normalizeMilestone(raw map[string]any) Milestone {
	m := Milestone{
		ID:             text(pick(raw, "id")),
		Description:    text(pick(raw, "description")),
		Amount:         amount(pick(raw, "amount")),
		Status:         milestoneStatus(pick(raw, "status")),
		Deadline:       query.SafeTimestamp(pick(raw, "deadline"), 0),
		DisputeReason:  text(pick(raw, "dispute_reason", "disputeReason")),
		DisputeFiledBy: text(pick(raw, "dispute_filed_by", "disputeFiledBy")),
	}
	if ts := query.SafeTimestamp(pick(raw, "completed_at", "completedAt"), 0); ts > 0 {
		m.CompletedAt = &ts
	}
	return m
}

// pick returns the first non-nil value among keys.
func pick(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// amount keeps amounts as the decimal strings the contract stores, dropping
// display separators.
func amount(v any) string {
	s := strings.ReplaceAll(strings.TrimSpace(text(v)), ",", "")
	if s == "" {
		return "0"
	}
	return s
}

// variantName reads an enum that decoded either as "Name" or {"Name": ...}.
func variantName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if len(t) == 1 {
			for k := range t {
				return k
			}
		}
	}
	return ""
}

func escrowStatus(v any) Status {
	name := variantName(v)
	if st, err := ParseStatus(name); err == nil {
		return st
	}
	if name == "" {
		return StatusPending
	}
	return Status(name)
}

func milestoneStatus(v any) MilestoneStatus {
	name := variantName(v)
	if st, err := ParseMilestoneStatus(name); err == nil {
		return st
	}
	if name == "" {
		return MilestonePending
	}
	return MilestoneStatus(name)
}
