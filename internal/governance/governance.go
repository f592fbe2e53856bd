// Package governance drives the contract's multisig admin proposals.
//
// Any admin signer may submit a proposal. Signers approve it, and once the
// approvals reach the signature threshold any signer may execute it. The
// contract enforces all of this; the client only reflects it.
package governance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/pipeline"
	"github.com/samuelarogbonlo/dot-escrow/internal/query"
	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
)

// MsgInvalidAddressPrefix starts the error of any operation given a
// malformed account address.
const MsgInvalidAddressPrefix = "Invalid address format: "

var (
	ErrUnknownAction = errors.New("governance: unknown proposal action")
	ErrInvalidAction = errors.New("governance: invalid proposal action")
)

// ActionKind names a proposal action variant.
type ActionKind string

const (
	ActionSetFee            ActionKind = "SetFee"
	ActionAddSigner         ActionKind = "AddSigner"
	ActionRemoveSigner      ActionKind = "RemoveSigner"
	ActionSetThreshold      ActionKind = "SetThreshold"
	ActionPause             ActionKind = "PauseContract"
	ActionUnpause           ActionKind = "UnpauseContract"
	ActionEmergencyWithdraw ActionKind = "EmergencyWithdraw"
)

var actionKinds = []ActionKind{
	ActionSetFee, ActionAddSigner, ActionRemoveSigner, ActionSetThreshold,
	ActionPause, ActionUnpause, ActionEmergencyWithdraw,
}

// ParseActionKind matches s case-insensitively against the known kinds.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range actionKinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Action is a proposal payload. Only the fields of its Kind are set.
type Action struct {
	Kind ActionKind `json:"kind"`

	// FeeBasisPoints is the platform fee for SetFee.
	FeeBasisPoints uint16 `json:"feeBasisPoints,omitempty"`
	// Account is the signer for AddSigner/RemoveSigner and the
	// recipient for EmergencyWithdraw.
	Account string `json:"account,omitempty"`
	// Threshold is the new signature threshold for SetThreshold.
	Threshold uint32 `json:"threshold,omitempty"`
	// Amount is the withdrawn balance in base units for EmergencyWithdraw.
	Amount string `json:"amount,omitempty"`
}

// ProposeSetFee builds a fee change.
func ProposeSetFee(basisPoints uint16) Action {
	return Action{Kind: ActionSetFee, FeeBasisPoints: basisPoints}
}

// ProposeAddSigner builds a signer addition.
func ProposeAddSigner(account string) Action {
	return Action{Kind: ActionAddSigner, Account: account}
}

// ProposeRemoveSigner builds a signer removal.
func ProposeRemoveSigner(account string) Action {
	return Action{Kind: ActionRemoveSigner, Account: account}
}

// ProposeSetThreshold builds a threshold change.
func ProposeSetThreshold(threshold uint32) Action {
	return Action{Kind: ActionSetThreshold, Threshold: threshold}
}

// ProposePause builds a contract pause.
func ProposePause() Action { return Action{Kind: ActionPause} }

// ProposeUnpause builds a contract unpause.
func ProposeUnpause() Action { return Action{Kind: ActionUnpause} }

// ProposeEmergencyWithdraw builds a withdrawal of amount base units to recipient.
func ProposeEmergencyWithdraw(recipient, amount string) Action {
	return Action{Kind: ActionEmergencyWithdraw, Account: recipient, Amount: amount}
}

// Arg returns the action in the shape the ABI encoder takes for the
// ProposalAction variant.
func (a Action) Arg() (any, error) {
	switch a.Kind {
	case ActionSetFee:
		return map[string]any{string(a.Kind): a.FeeBasisPoints}, nil
	case ActionAddSigner, ActionRemoveSigner:
		id, err := accountArg(a.Account)
		if err != nil {
			return nil, err
		}
		return map[string]any{string(a.Kind): id}, nil
	case ActionSetThreshold:
		if a.Threshold == 0 {
			return nil, fmt.Errorf("%w: threshold must be positive", ErrInvalidAction)
		}
		return map[string]any{string(a.Kind): a.Threshold}, nil
	case ActionPause, ActionUnpause:
		return string(a.Kind), nil
	case ActionEmergencyWithdraw:
		id, err := accountArg(a.Account)
		if err != nil {
			return nil, err
		}
		amount := strings.ReplaceAll(strings.TrimSpace(a.Amount), ",", "")
		if amount == "" || strings.Trim(amount, "0123456789") != "" {
			return nil, fmt.Errorf("%w: amount %q is not a whole number of base units", ErrInvalidAction, a.Amount)
		}
		return map[string]any{string(a.Kind): []any{id, amount}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
}

// Description is a one-line human summary of the action.
func (a Action) Description() string {
	switch a.Kind {
	case ActionSetFee:
		return fmt.Sprintf("Set platform fee to %d.%02d%%", a.FeeBasisPoints/100, a.FeeBasisPoints%100)
	case ActionAddSigner:
		return "Add admin signer " + a.Account
	case ActionRemoveSigner:
		return "Remove admin signer " + a.Account
	case ActionSetThreshold:
		return fmt.Sprintf("Set signature threshold to %d", a.Threshold)
	case ActionPause:
		return "Pause contract"
	case ActionUnpause:
		return "Unpause contract"
	case ActionEmergencyWithdraw:
		return fmt.Sprintf("Emergency withdraw %s to %s", a.Amount, a.Account)
	}
	return "Unknown action"
}

// Proposal is the client's view of an admin proposal.
type Proposal struct {
	ID         uint64   `json:"id"`
	Action     Action   `json:"action"`
	CreatedBy  string   `json:"createdBy"`
	CreatedAt  int64    `json:"createdAt"`
	Approvals  []string `json:"approvals"`
	Executed   bool     `json:"executed"`
	ExecutedAt *int64   `json:"executedAt,omitempty"`
}

// ReadyToExecute reports whether p has gathered threshold approvals and has
// not run yet. Advisory: the contract decides at execution time.
func ReadyToExecute(p Proposal, threshold uint32) bool {
	return !p.Executed && threshold > 0 && len(p.Approvals) >= int(threshold)
}

// ListResult is the outcome of ListProposals.
type ListResult struct {
	Success   bool       `json:"success"`
	Proposals []Proposal `json:"proposals"`
	Error     string     `json:"error,omitempty"`
}

// SignerResult is the outcome of IsAdminSigner.
type SignerResult struct {
	Success  bool   `json:"success"`
	IsSigner bool   `json:"isSigner"`
	Error    string `json:"error,omitempty"`
}

// SignersResult is the outcome of GetAdminSigners.
type SignersResult struct {
	Success bool     `json:"success"`
	Signers []string `json:"signers"`
	Error   string   `json:"error,omitempty"`
}

// ThresholdResult is the outcome of GetSignatureThreshold.
type ThresholdResult struct {
	Success   bool   `json:"success"`
	Threshold uint32 `json:"threshold"`
	Error     string `json:"error,omitempty"`
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

// Client drives the contract's governance messages.
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

// SubmitProposal proposes action as caller.
func (c *Client) SubmitProposal(ctx context.Context, caller string, action Action) chain.Receipt {
	arg, err := action.Arg()
	if err != nil {
		return chain.Failed(err.Error())
	}
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "submit_proposal",
		Args:    []any{arg},
	})
}

// ApproveProposal adds caller's approval to proposal id.
func (c *Client) ApproveProposal(ctx context.Context, caller string, id uint64) chain.Receipt {
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "approve_proposal",
		Args:    []any{id},
	})
}

// ExecuteProposal runs proposal id.
func (c *Client) ExecuteProposal(ctx context.Context, caller string, id uint64) chain.Receipt {
	return c.submit.Submit(ctx, pipeline.Request{
		Caller:  caller,
		Message: "execute_proposal",
		Args:    []any{id},
	})
}

// ---- Reads ----

// ListProposals reads the proposal counter and then each proposal from 1 to
// the counter, one at a time. Proposals that cannot be read are skipped.
func (c *Client) ListProposals(ctx context.Context, caller string) ListResult {
	counter := c.query.Query(ctx, caller, "get_proposal_counter")
	if !counter.OK {
		return ListResult{Proposals: []Proposal{}, Error: counter.Error}
	}

	n := counter.Uint()
	out := make([]Proposal, 0, n)
	for id := uint64(1); id <= n; id++ {
		if err := ctx.Err(); err != nil {
			return ListResult{Proposals: out, Error: err.Error()}
		}
		res := c.query.Query(ctx, caller, "get_proposal", id)
		raw := res.Map()
		if !res.OK || raw == nil {
			logging.L(ctx).Debug("proposal skipped", "proposal_id", id, "error", res.Error)
			continue
		}
		out = append(out, c.normalizeProposal(raw))
	}
	return ListResult{Success: true, Proposals: out}
}

// IsAdminSigner reports whether account is an admin signer.
func (c *Client) IsAdminSigner(ctx context.Context, caller, account string) SignerResult {
	id, err := accountArg(account)
	if err != nil {
		return SignerResult{Error: err.Error()}
	}
	res := c.query.Query(ctx, caller, "is_admin_signer", id)
	if !res.OK {
		return SignerResult{Error: res.Error}
	}
	return SignerResult{Success: true, IsSigner: res.Bool()}
}

// GetAdminSigners reads the admin signer set.
func (c *Client) GetAdminSigners(ctx context.Context, caller string) SignersResult {
	res := c.query.Query(ctx, caller, "get_admin_signers")
	if !res.OK {
		return SignersResult{Signers: []string{}, Error: res.Error}
	}
	return SignersResult{Success: true, Signers: addresses(res.List())}
}

// GetSignatureThreshold reads the number of approvals needed to execute.
func (c *Client) GetSignatureThreshold(ctx context.Context, caller string) ThresholdResult {
	res := c.query.Query(ctx, caller, "get_signature_threshold")
	if !res.OK {
		return ThresholdResult{Error: res.Error}
	}
	return ThresholdResult{Success: true, Threshold: uint32(min(res.Uint(), math.MaxUint32))}
}

func accountArg(addr string) (string, error) {
	id, _, err := ss58.Decode(strings.TrimSpace(addr))
	if err != nil {
		return "", errors.New(MsgInvalidAddressPrefix + err.Error())
	}
	return id.Hex(), nil
}
