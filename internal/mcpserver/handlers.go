package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/validation"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RiskClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RiskClient) *Handlers {
	return &Handlers{client: client}
}

// walletArg reads and checks the wallet_address argument.
func walletArg(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	address := strings.TrimSpace(req.GetString("wallet_address", ""))
	if address == "" {
		return "", mcp.NewToolResultError("wallet_address is required")
	}
	if !validation.IsValidEthAddress(address) {
		return "", mcp.NewToolResultError("wallet_address must be a valid Ethereum address (0x + 40 hex chars)")
	}
	return address, nil
}

// HandleAnalyzeWallet runs an analysis from full signals or portfolio numbers.
func (h *Handlers) HandleAnalyzeWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, bad := walletArg(req)
	if bad != nil {
		return bad, nil
	}
	key := req.GetString("idempotency_key", "")

	var (
		raw json.RawMessage
		err error
	)
	if sig, ok := req.GetArguments()["signals"].(map[string]any); ok && len(sig) > 0 {
		raw, err = h.client.AnalyzeSignals(ctx, address, sig, key)
	} else {
		raw, err = h.client.AnalyzePortfolio(ctx, address, Portfolio{
			TotalValue:   req.GetFloat("total_value", 0),
			WalletAge:    req.GetInt("wallet_age_days", 0),
			Transactions: req.GetInt("transactions", 0),
			LastActivity: req.GetString("last_activity", ""),
		}, key)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatAnalysis(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetWalletHistory lists recorded analyses for a wallet.
func (h *Handlers) HandleGetWalletHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, bad := walletArg(req)
	if bad != nil {
		return bad, nil
	}
	limit := req.GetInt("limit", 10)

	raw, err := h.client.WalletHistory(ctx, address, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get wallet history: %v", err)), nil
	}

	text, err := formatHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse wallet history: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListMonitoredWallets lists the monitored wallets.
func (h *Handlers) HandleListMonitoredWallets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListMonitored(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list monitored wallets: %v", err)), nil
	}

	text, err := formatMonitored(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse monitored wallets: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleMonitorWallet adds or removes a monitored wallet.
func (h *Handlers) HandleMonitorWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, bad := walletArg(req)
	if bad != nil {
		return bad, nil
	}

	if req.GetBool("remove", false) {
		if err := h.client.Unmonitor(ctx, address); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to stop monitoring: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Stopped monitoring %s.", address)), nil
	}

	label := req.GetString("label", "")
	if _, err := h.client.Monitor(ctx, address, label); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to monitor wallet: %v", err)), nil
	}

	msg := fmt.Sprintf("Now monitoring %s", address)
	if label != "" {
		msg += fmt.Sprintf(" (%s)", label)
	}
	return mcp.NewToolResultText(msg + ".\nIts latest decision is recorded each time it is analyzed."), nil
}

// --- Formatting helpers ---

type analysisView struct {
	WalletAddress    string   `json:"wallet_address"`
	Decision         string   `json:"decision"`
	RiskScore        int      `json:"risk_score"`
	Confidence       int      `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	Source           string   `json:"source"`
	CriticalOverride bool     `json:"critical_override"`
	Flags            []string `json:"flags"`
	Recommendations  []string `json:"recommendations"`
	Details          struct {
		ReasoningOutcome string `json:"reasoning_outcome"`
		RequestID        string `json:"request_id"`
	} `json:"details"`
}

func formatAnalysis(raw json.RawMessage) (string, error) {
	var a analysisView
	if err := json.Unmarshal(raw, &a); err != nil {
		return "", err
	}
	if a.Decision == "" {
		return "", fmt.Errorf("response has no decision: %s", string(raw))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Wallet: %s\n", a.WalletAddress)
	fmt.Fprintf(&sb, "Decision: %s\n", a.Decision)
	fmt.Fprintf(&sb, "Risk score: %d/100 | Confidence: %d%%\n", a.RiskScore, a.Confidence)
	fmt.Fprintf(&sb, "Source: %s", a.Source)
	if a.Details.ReasoningOutcome != "" {
		fmt.Fprintf(&sb, " (reasoning: %s)", a.Details.ReasoningOutcome)
	}
	sb.WriteString("\n")
	if a.CriticalOverride {
		sb.WriteString("CRITICAL OVERRIDE: enforcement required\n")
	}
	if len(a.Flags) > 0 {
		fmt.Fprintf(&sb, "Flags: %s\n", strings.Join(a.Flags, ", "))
	}
	if a.Reasoning != "" {
		fmt.Fprintf(&sb, "\nReasoning:\n%s\n", a.Reasoning)
	}
	if len(a.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
	}
	if a.Details.RequestID != "" {
		fmt.Fprintf(&sb, "\nRequest ID: %s", a.Details.RequestID)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func formatHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		WalletAddress string `json:"walletAddress"`
		Analyses      []struct {
			Decision         string `json:"decision"`
			RiskScore        int    `json:"riskScore"`
			Confidence       int    `json:"confidence"`
			Source           string `json:"source"`
			CriticalOverride bool   `json:"criticalOverride"`
			CreatedAt        string `json:"createdAt"`
		} `json:"analyses"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Analyses) == 0 {
		return fmt.Sprintf("No analyses recorded for %s.", resp.WalletAddress), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d analysis(es) for %s, newest first:\n\n", len(resp.Analyses), resp.WalletAddress)
	for i, a := range resp.Analyses {
		fmt.Fprintf(&sb, "%d. %s  %s  score %d  confidence %d%%  (%s)", i+1, a.CreatedAt, a.Decision, a.RiskScore, a.Confidence, a.Source)
		if a.CriticalOverride {
			sb.WriteString("  [critical]")
		}
		if i < len(resp.Analyses)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatMonitored(raw json.RawMessage) (string, error) {
	var resp struct {
		Wallets []map[string]any `json:"wallets"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Wallets) == 0 {
		return "No wallets are monitored.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Monitoring %d wallet(s):\n\n", len(resp.Wallets))
	for i, w := range resp.Wallets {
		fmt.Fprintf(&sb, "%d. %s", i+1, getString(w, "address"))
		if label := getString(w, "label"); label != "" {
			fmt.Fprintf(&sb, " (%s)", label)
		}
		sb.WriteString("\n")
		if d := getString(w, "lastDecision"); d != "" {
			fmt.Fprintf(&sb, "   Last decision: %s", d)
			if score, ok := getFloat(w, "lastScore"); ok {
				fmt.Fprintf(&sb, " | score %.0f", score)
			}
			if at := getString(w, "lastAnalyzed"); at != "" {
				fmt.Fprintf(&sb, " | %s", at)
			}
			sb.WriteString("\n")
		} else {
			sb.WriteString("   Not analyzed yet\n")
		}
		if i < len(resp.Wallets)-1 {
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
