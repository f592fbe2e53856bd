package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *APIClient
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *APIClient, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{client: client, logger: logger}
}

func (h *Handlers) fail(tool, what string, err error) *mcp.CallToolResult {
	h.logger.Warn("tool call failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", what, err))
}

// HandleGetEscrow returns one escrow with its milestones.
func (h *Handlers) HandleGetEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("escrow_id", ""))
	if id == "" {
		return mcp.NewToolResultError("escrow_id is required"), nil
	}

	raw, err := h.client.GetEscrow(ctx, id)
	if err != nil {
		return h.fail("get_escrow", "Failed to get escrow", err), nil
	}

	var resp struct {
		Escrow map[string]any `json:"escrow"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Escrow == nil {
		return mcp.NewToolResultError("Unexpected escrow response format"), nil
	}

	var sb strings.Builder
	writeEscrow(&sb, resp.Escrow)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListEscrows lists the caller's escrows.
func (h *Handlers) HandleListEscrows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListEscrows(ctx)
	if err != nil {
		return h.fail("list_escrows", "Failed to list escrows", err), nil
	}

	text, err := formatEscrowList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse escrows: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListProposals lists governance proposals.
func (h *Handlers) HandleListProposals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListProposals(ctx, req.GetString("status", ""))
	if err != nil {
		return h.fail("list_proposals", "Failed to list proposals", err), nil
	}

	text, err := formatProposalList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse proposals: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGovernanceInfo reports the signer set and approval threshold.
func (h *Handlers) HandleGovernanceInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	signersRaw, err := h.client.GetSigners(ctx)
	if err != nil {
		return h.fail("governance_info", "Failed to get signers", err), nil
	}
	thresholdRaw, err := h.client.GetThreshold(ctx)
	if err != nil {
		return h.fail("governance_info", "Failed to get threshold", err), nil
	}

	var signers struct {
		Signers []string `json:"signers"`
	}
	var threshold struct {
		Threshold float64 `json:"threshold"`
	}
	if json.Unmarshal(signersRaw, &signers) != nil || json.Unmarshal(thresholdRaw, &threshold) != nil {
		return mcp.NewToolResultError("Unexpected governance response format"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Governance: %.0f of %d signers must approve\n", threshold.Threshold, len(signers.Signers))
	for i, s := range signers.Signers {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, s)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCheckTransaction reports where a transaction landed.
func (h *Handlers) HandleCheckTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash := strings.TrimSpace(req.GetString("tx_hash", ""))
	if hash == "" {
		return mcp.NewToolResultError("tx_hash is required"), nil
	}

	raw, err := h.client.CheckTransaction(ctx, hash, req.GetBool("wait", false))
	if err != nil {
		return h.fail("check_transaction", "Failed to check transaction", err), nil
	}

	var resp struct {
		Receipt map[string]any `json:"receipt"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Receipt == nil {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s\n", hash)
	fmt.Fprintf(&sb, "  Block: %s (#%s)\n", getString(resp.Receipt, "blockHash"), getString(resp.Receipt, "blockNumber"))
	if f, _ := resp.Receipt["finalized"].(bool); f {
		sb.WriteString("  Finalized: yes\n")
	} else {
		sb.WriteString("  Finalized: not yet\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ---- Formatting ----

func writeEscrow(sb *strings.Builder, e map[string]any) {
	fmt.Fprintf(sb, "Escrow %s: %s [%s]\n", getString(e, "id"), getString(e, "title"), getString(e, "status"))
	fmt.Fprintf(sb, "  Creator: %s\n", getString(e, "creatorAddress"))
	fmt.Fprintf(sb, "  Counterparty: %s (%s)\n", getString(e, "counterpartyAddress"), getString(e, "counterpartyType"))
	fmt.Fprintf(sb, "  Total: %s USDC\n", getString(e, "totalAmount"))
	if d := getString(e, "description"); d != "" {
		fmt.Fprintf(sb, "  %s\n", d)
	}

	milestones, _ := e["milestones"].([]any)
	for i, raw := range milestones {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(sb, "  %d. %s - %s USDC [%s]\n", i+1, getString(m, "description"), getString(m, "amount"), getString(m, "status"))
		if r := getString(m, "disputeReason"); r != "" {
			fmt.Fprintf(sb, "     Disputed: %s\n", r)
		}
	}
}

func formatEscrowList(raw json.RawMessage) (string, error) {
	var resp struct {
		Escrows []map[string]any `json:"escrows"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected escrows response format")
	}
	if len(resp.Escrows) == 0 {
		return "No escrows found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d escrow(s):\n\n", len(resp.Escrows))
	for _, e := range resp.Escrows {
		writeEscrow(&sb, e)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatProposalList(raw json.RawMessage) (string, error) {
	var resp struct {
		Proposals []map[string]any `json:"proposals"`
		Threshold float64          `json:"threshold"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected proposals response format")
	}
	if len(resp.Proposals) == 0 {
		return "No proposals found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d proposal(s), threshold %.0f:\n\n", len(resp.Proposals), resp.Threshold)
	for _, p := range resp.Proposals {
		fmt.Fprintf(&sb, "#%s %s [%s] %s/%.0f approvals\n",
			getString(p, "id"), getString(p, "description"), getString(p, "status"),
			getString(p, "approvalCount"), resp.Threshold)
		if by := getString(p, "createdBy"); by != "" {
			fmt.Fprintf(&sb, "   Proposed by %s\n", by)
		}
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
	}
	return ""
}
