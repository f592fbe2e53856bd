package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the escrow MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetEscrow = mcp.NewTool("get_escrow",
	mcp.WithDescription(
		"Fetch a milestone escrow from the on-chain escrow contract. "+
			"Returns the parties, total amount, status, and every milestone with its status and deadline."),
	mcp.WithString("escrow_id",
		mcp.Required(),
		mcp.Description("The escrow ID (e.g. 'escrow_3')")),
)

var ToolListEscrows = mcp.NewTool("list_escrows",
	mcp.WithDescription(
		"List the escrows the configured account created or is counterparty to. "+
			"Shows each escrow's title, amount, status, and milestone progress."),
)

var ToolListProposals = mcp.NewTool("list_proposals",
	mcp.WithDescription(
		"List multi-signature governance proposals for the escrow contract. "+
			"Shows the action, approvals against the threshold, and whether the proposal ran."),
	mcp.WithString("status",
		mcp.Description("Filter by proposal status"),
		mcp.Enum("pending", "ready", "executed")),
)

var ToolGovernanceInfo = mcp.NewTool("governance_info",
	mcp.WithDescription(
		"Show the governance configuration: the admin signer set and how many approvals a proposal needs."),
)

var ToolCheckTransaction = mcp.NewTool("check_transaction",
	mcp.WithDescription(
		"Look up a transaction hash in recent blocks. "+
			"Reports the block it was included in and whether that block is finalized."),
	mcp.WithString("tx_hash",
		mcp.Required(),
		mcp.Description("The 32-byte transaction hash, 0x-prefixed hex")),
	mcp.WithBoolean("wait",
		mcp.Description("Keep polling until the transaction appears or the request times out")),
)
