package engine

import (
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

// recommendations lists operator actions for a decision, most urgent first.
func recommendations(d decision.Decision, res *rules.Result, snap *signals.Snapshot) []string {
	var out []string
	hf := 0.0
	if snap.Wallet.Lending != nil {
		hf = snap.Wallet.Lending.HealthFactor
	}

	switch d {
	case decision.NoAction:
		out = append(out, "Continue normal monitoring")
		if hf > 0 && hf < 2.0 {
			out = append(out, "Monitor health factor: currently safe but could improve")
		}

	case decision.Monitor:
		out = append(out, "Increase monitoring frequency to hourly")
		if hf > 0 && hf < 1.5 {
			out = append(out, "Set alert for health factor < 1.2")
		}
		if res.HasFlag(rules.CodeUnusualActivity) || res.HasFlag(rules.CodeVelocitySpike) {
			out = append(out, "Watch for continued unusual transaction patterns")
		}
		out = append(out, "Review again in 24 hours")

	case decision.RequestSeverityAnalysis:
		out = append(out,
			"Escalate to human review or advanced analysis",
			"Gather additional context on flagged behaviors",
		)
		if res.HasFlag(rules.CodeMixer) {
			out = append(out, "Investigate mixer usage: potentially a legitimate privacy concern")
		}

	case decision.EnforceAction:
		out = append(out, "IMMEDIATE: Notify wallet owner")
		if hf > 0 && hf < 1.2 {
			out = append(out,
				"IMMEDIATE: Suggest collateral top-up",
				"IMMEDIATE: Prepare liquidation if health factor < 1.0",
			)
		}
		if res.HasFlag(rules.CodeSanctioned) || res.HasFlag(rules.CodeBlacklisted) {
			out = append(out, "IMMEDIATE: Freeze position pending compliance review")
		}
		if res.HasFlag(rules.CodeExploitCounterparty) || res.HasFlag(rules.CodeProtocolExploit) {
			out = append(out, "IMMEDIATE: Halt interactions with the affected protocol")
		}
		if res.HasFlag(rules.CodeRapidDraining) {
			out = append(out,
				"URGENT: Investigate potential compromise",
				"Consider temporary position freeze",
			)
		}
	}
	return out
}
