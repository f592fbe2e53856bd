// Package escrow exposes the escrow contract's operations: creating and
// reading escrows, and moving milestones through release, dispute and
// status changes.
//
// Reads go through a query.Adapter, writes through a pipeline.Pipeline.
// Every operation returns a result value; none returns a Go error.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/events"
	"github.com/samuelarogbonlo/dot-escrow/internal/pipeline"
	"github.com/samuelarogbonlo/dot-escrow/internal/query"
	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
	"github.com/samuelarogbonlo/dot-escrow/internal/usdc"
)

// Precondition failures reported without touching the network.
const (
	MsgDisputeReasonRequired = "Dispute reason is required"
	MsgInvalidAddressPrefix  = "Invalid address format: "
	MsgNotFound              = "Escrow not found"
)

var (
	ErrNoMilestones  = errors.New("escrow: at least one milestone is required")
	ErrTotalMismatch = errors.New("escrow: milestone amounts do not add up to the total")
	ErrInvalidStatus = errors.New("escrow: unknown status")
)

// Status is the lifecycle state of an escrow.
type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusDisputed  Status = "Disputed"
	StatusCancelled Status = "Cancelled"
	StatusInactive  Status = "Inactive"
	StatusPending   Status = "Pending"
	StatusRejected  Status = "Rejected"
)

var statuses = []Status{
	StatusActive, StatusCompleted, StatusDisputed, StatusCancelled,
	StatusInactive, StatusPending, StatusRejected,
}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// MilestoneStatus is the state of one milestone.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "Pending"
	MilestoneInProgress MilestoneStatus = "InProgress"
	MilestoneCompleted  MilestoneStatus = "Completed"
	MilestoneDisputed   MilestoneStatus = "Disputed"
	MilestoneOverdue    MilestoneStatus = "Overdue"
)

var milestoneStatuses = []MilestoneStatus{
	MilestonePending, MilestoneInProgress, MilestoneCompleted, MilestoneDisputed, MilestoneOverdue,
}

// ParseMilestoneStatus matches s case-insensitively, ignoring "_" and "-"
// so "in_progress" is InProgress.
func ParseMilestoneStatus(s string) (MilestoneStatus, error) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
	for _, st := range milestoneStatuses {
		if strings.EqualFold(key, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Milestone is one payable unit of work within an escrow.
type Milestone struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	Amount         string          `json:"amount"`
	Status         MilestoneStatus `json:"status"`
	Deadline       int64           `json:"deadline"`
	CompletedAt    *int64          `json:"completedAt,omitempty"`
	DisputeReason  string          `json:"disputeReason,omitempty"`
	DisputeFiledBy string          `json:"disputeFiledBy,omitempty"`
}

// Escrow is the client's view of an escrow record.
type Escrow struct {
	ID                  string      `json:"id"`
	CreatorAddress      string      `json:"creatorAddress"`
	CounterpartyAddress string      `json:"counterpartyAddress"`
	CounterpartyType    string      `json:"counterpartyType"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	TotalAmount         string      `json:"totalAmount"`
	Status              Status      `json:"status"`
	CreatedAt           int64       `json:"createdAt"`
	Milestones          []Milestone `json:"milestones"`
	TransactionHash     string      `json:"transactionHash,omitempty"`
}

// MilestoneInput describes a milestone of a new escrow.
type MilestoneInput struct {
	ID          string          `json:"id"`
	Description string          `json:"description" binding:"required"`
	Amount      string          `json:"amount" binding:"required"`
	Status      MilestoneStatus `json:"status"`
	Deadline    int64           `json:"deadline"`
}

// CreateRequest contains the parameters for creating an escrow.
type CreateRequest struct {
	CounterpartyAddress string           `json:"counterpartyAddress" binding:"required"`
	CounterpartyType    string           `json:"counterpartyType" binding:"required"`
	Status              Status           `json:"status"`
	Title               string           `json:"title" binding:"required"`
	Description         string           `json:"description"`
	TotalAmount         string           `json:"totalAmount" binding:"required"`
	Milestones          []MilestoneInput `json:"milestones" binding:"required,dive"`
	TransactionHash     string           `json:"transactionHash"`
}

// CreateResult is the outcome of CreateEscrow.
type CreateResult struct {
	Success         bool   `json:"success"`
	EscrowID        string `json:"escrowId,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
	BlockHash       string `json:"blockHash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// GetResult is the outcome of GetEscrow. Escrow is nil when the contract
// answered with an empty payload.
type GetResult struct {
	Success bool    `json:"success"`
	Escrow  *Escrow `json:"escrow,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// ListResult is the outcome of ListEscrows.
type ListResult struct {
	Success bool     `json:"success"`
	Escrows []Escrow `json:"escrows"`
	Error   string   `json:"error,omitempty"`
}

// Querier runs read-only contract messages.
type Querier interface {
	Query(ctx context.Context, caller, message string, args ...any) query.Result
}

// Submitter runs state-changing contract messages.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) chain.Receipt
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the time source used for defaulted timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client drives the escrow contract.
type Client struct {
	query  Querier
	submit Submitter
	now    func() time.Time
}

// NewClient creates a client.
func NewClient(q Querier, s Submitter, opts ...Option) *Client {
	c := &Client{query: q, submit: s, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---- Writes ----

// CreateEscrow submits a new escrow with the caller as creator. Milestones
// are sent without completion or dispute data.
func (c *Client) CreateEscrow(ctx context.Context, caller string, req CreateRequest) CreateResult {
	counterparty, err := accountArg(req.CounterpartyAddress)
	if err != nil {
		return CreateResult{Error: err.Error()}
	}

	status := req.Status
	if status == "" {
		status = StatusActive
	}

	milestones := make([]map[string]any, 0, len(req.Milestones))
	for i, m := range req.Milestones {
		id := m.ID
		if id == "" {
			id = fmt.Sprintf("milestone_%d", i+1)
		}
		ms := m.Status
		if ms == "" {
			ms = MilestonePending
		}
		milestones = append(milestones, map[string]any{
			"id":               id,
			"description":      m.Description,
			"amount":           m.Amount,
			"status":           string(ms),
			"deadline":         uint64(max(m.Deadline, 0)),
			"completed_at":     nil,
			"dispute_reason":   nil,
			"dispute_filed_by": nil,
		})
	}

	var txHash any
	if req.TransactionHash != "" {
		txHash = req.TransactionHash
	}

	r := c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "create_escrow",
		Args: []any{
			counterparty,
			req.CounterpartyType,
			string(status),
			req.Title,
			req.Description,
			req.TotalAmount,
			milestones,
			txHash,
		},
		Pattern: events.EscrowPattern,
	})
	if !r.Success {
		return CreateResult{Error: r.Error}
	}
	return CreateResult{
		Success:         true,
		EscrowID:        r.EscrowID,
		TransactionHash: r.TransactionHash,
		BlockHash:       r.BlockHash,
	}
}

// ReleaseMilestone pays out a milestone to the counterparty.
func (c *Client) ReleaseMilestone(ctx context.Context, caller, escrowID, milestoneID string) chain.Receipt {
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "release_milestone",
		Args:    []any{escrowID, milestoneID},
	})
}

// DisputeMilestone opens a dispute on a milestone. An empty reason is
// rejected before anything is signed.
func (c *Client) DisputeMilestone(ctx context.Context, caller, escrowID, milestoneID, reason string) chain.Receipt {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return chain.Failed(MsgDisputeReasonRequired)
	}
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "dispute_milestone",
		Args:    []any{escrowID, milestoneID, reason},
		Pattern: events.DisputePattern,
	})
}

// UpdateEscrowStatus moves an escrow to status.
func (c *Client) UpdateEscrowStatus(ctx context.Context, caller, escrowID string, status Status) chain.Receipt {
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "update_escrow_status",
		Args:    []any{escrowID, string(status)},
	})
}

// UpdateEscrowMilestoneStatus moves one milestone to status.
func (c *Client) UpdateEscrowMilestoneStatus(ctx context.Context, caller, escrowID, milestoneID string, status MilestoneStatus) chain.Receipt {
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "update_escrow_milestone_status",
		Args:    []any{escrowID, milestoneID, string(status)},
	})
}

// NotifyCounterparty records a notification for recipient on chain.
func (c *Client) NotifyCounterparty(ctx context.Context, caller, escrowID, notificationType, recipient, message string) chain.Receipt {
	to, err := accountArg(recipient)
	if err != nil {
		return chain.Failed(err.Error())
	}
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "notify_counterparty",
		Args:    []any{escrowID, notificationType, to, message},
		Pattern: events.NotificationPattern,
	})
}

// ---- Reads ----

// GetEscrow reads one escrow.
func (c *Client) GetEscrow(ctx context.Context, caller, escrowID string) GetResult {
	res := c.query.Query(ctx, caller, "get_escrow", escrowID)
	if !res.OK {
		return GetResult{Error: res.Error}
	}
	raw := res.Map()
	if raw == nil {
		return GetResult{Success: true}
	}
	e := c.normalizeEscrow(raw)
	return GetResult{Success: true, Escrow: &e}
}

// ListEscrows reads every escrow visible to caller.
func (c *Client) ListEscrows(ctx context.Context, caller string) ListResult {
	res := c.query.Query(ctx, caller, "list_escrows")
	if !res.OK {
		return ListResult{Escrows: []Escrow{}, Error: res.Error}
	}
	items := res.List()
	out := make([]Escrow, 0, len(items))
	for _, it := range items {
		if raw, ok := it.(map[string]any); ok {
			out = append(out, c.normalizeEscrow(raw))
		}
	}
	return ListResult{Success: true, Escrows: out}
}

// ---- Validation ----

// ValidateTotals checks that the milestone amounts add up exactly to total.
func ValidateTotals(total string, milestones []MilestoneInput) error {
	if len(milestones) == 0 {
		return ErrNoMilestones
	}
	want, err := usdc.Parse(total)
	if err != nil {
		return fmt.Errorf("total: %w", err)
	}
	amounts := make([]string, len(milestones))
	for i, m := range milestones {
		amounts[i] = m.Amount
	}
	got, err := usdc.Sum(amounts...)
	if err != nil {
		return fmt.Errorf("milestone %w", err)
	}
	if !got.Eq(want) {
		return fmt.Errorf("%w: milestones %s, total %s", ErrTotalMismatch, usdc.Format(got), usdc.Format(want))
	}
	return nil
}

// accountArg converts an address to the form the ABI encoder expects for
// an AccountId.
func accountArg(addr string) (string, error) {
	id, _, err := ss58.Decode(strings.TrimSpace(addr))
	if err != nil {
		return "", errors.New(MsgInvalidAddressPrefix + err.Error())
	}
	return id.Hex(), nil
}
