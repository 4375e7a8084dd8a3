package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the wallet risk MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzeWallet = mcp.NewTool("analyze_wallet",
	mcp.WithDescription(
		"Run a risk analysis on a wallet and get a decision: NO_ACTION, MONITOR, "+
			"REQUEST_SEVERITY_ANALYSIS or ENFORCE_ACTION, with a 0-100 risk score, confidence, "+
			"the risk flags that fired and recommended next steps. "+
			"Pass 'signals' for a full analysis, or just portfolio numbers for a quick one."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("The wallet's address (e.g. '0x1234...')")),
	mcp.WithNumber("total_value",
		mcp.Description("Portfolio value in USD")),
	mcp.WithNumber("wallet_age_days",
		mcp.Description("Days since the wallet's first transaction")),
	mcp.WithNumber("transactions",
		mcp.Description("Total transaction count")),
	mcp.WithString("last_activity",
		mcp.Description("Time of last activity, RFC 3339 (e.g. '2026-04-28T12:00:00Z')")),
	mcp.WithObject("signals",
		mcp.Description("Full signal payload with 'wallet', 'protocol', 'market' and optional 'metadata' objects. "+
			"When present, the portfolio numbers are ignored.")),
	mcp.WithString("idempotency_key",
		mcp.Description("Optional key; retrying with the same key returns the recorded result instead of re-analyzing")),
)

var ToolGetWalletHistory = mcp.NewTool("get_wallet_history",
	mcp.WithDescription(
		"Get the recorded risk analyses for a wallet, newest first. "+
			"Use this to see how a wallet's decision and score changed over time."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("The wallet's address (e.g. '0x1234...')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of analyses to return (default 10)")),
)

var ToolListMonitoredWallets = mcp.NewTool("list_monitored_wallets",
	mcp.WithDescription(
		"List the wallets on the monitored list with their label and latest decision and score."),
)

var ToolMonitorWallet = mcp.NewTool("monitor_wallet",
	mcp.WithDescription(
		"Add a wallet to the monitored list, or remove it with remove=true. "+
			"Monitored wallets show their latest decision whenever they are analyzed."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("The wallet's address (e.g. '0x1234...')")),
	mcp.WithString("label",
		mcp.Description("Optional label, e.g. 'treasury' or 'borrower #12'")),
	mcp.WithBoolean("remove",
		mcp.Description("Remove the wallet from the monitored list instead of adding it")),
)
