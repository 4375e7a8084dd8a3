package reasoning

import (
	"fmt"
	"strings"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

const systemPrompt = `You are a DeFi risk analyst reviewing the output of a deterministic rule engine.
Use only the facts provided. Do not invent transactions, counterparties, or events.
Respond with a single JSON object and nothing else.`

// BuildPrompt renders the system and user messages for a request.
func BuildPrompt(req *Request) (system, user string) {
	var b strings.Builder
	s := req.Snapshot
	w := s.Wallet
	maxAdj := req.maxAdjustment()

	fmt.Fprintf(&b, "## Wallet\n")
	fmt.Fprintf(&b, "Address: %s\n", signals.ShortAddress(w.Address))
	fmt.Fprintf(&b, "Age: %d days\n", w.AgeDays)
	fmt.Fprintf(&b, "Transactions: %d\n", w.TransactionCount)
	fmt.Fprintf(&b, "Days since last activity: %d\n", w.DaysSinceLastActivity)
	if w.BalanceUSD != nil {
		fmt.Fprintf(&b, "Balance: $%.2f\n", *w.BalanceUSD)
	}
	if w.Velocity != nil {
		fmt.Fprintf(&b, "Transaction velocity: %d (24h), %d (7d), %d (30d)\n",
			w.Velocity.Last24h, w.Velocity.Last7d, w.Velocity.Last30d)
	}
	if w.Lending != nil {
		fmt.Fprintf(&b, "Lending position: $%.2f borrowed, health factor %.2f\n",
			w.Lending.TotalBorrowedUSD, w.Lending.HealthFactor)
	}

	fmt.Fprintf(&b, "\n## Protocol\n")
	if s.Protocol.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", s.Protocol.Name)
	}
	fmt.Fprintf(&b, "TVL: $%.0f\n", s.Protocol.TotalValueLockedUSD)
	if s.Protocol.DefaultRate != nil {
		fmt.Fprintf(&b, "Default rate: %.1f%%\n", *s.Protocol.DefaultRate)
	}
	fmt.Fprintf(&b, "Liquidations (24h): %d\n", s.Protocol.LiquidationEvents24h)

	fmt.Fprintf(&b, "\n## Market\n")
	if s.Market.VolatilityIndex != nil {
		fmt.Fprintf(&b, "Volatility index: %.0f/100\n", *s.Market.VolatilityIndex)
	} else if s.Market.Bucket != "" {
		fmt.Fprintf(&b, "Volatility regime: %s\n", s.Market.Bucket)
	}
	if s.Market.Sentiment != "" {
		fmt.Fprintf(&b, "Sentiment: %s\n", s.Market.Sentiment)
	}

	if req.Rules != nil {
		fmt.Fprintf(&b, "\n## Rule engine\n")
		fmt.Fprintf(&b, "Aggregate score: %.1f/100\n", req.Rules.Score)
		fmt.Fprintf(&b, "Sub-scores:")
		for _, c := range []rules.Category{
			rules.CategoryHistory, rules.CategoryVelocity, rules.CategoryProtocol,
			rules.CategoryMarket, rules.CategoryReputation,
		} {
			if v, ok := req.Rules.SubScores[c]; ok {
				fmt.Fprintf(&b, " %s=%.0f", c, v)
			}
		}
		b.WriteString("\n")

		var pos, neg []string
		for _, f := range req.Rules.SortedFlags() {
			if f.Code == rules.CodeInsufficientData {
				continue
			}
			if f.Mitigating {
				pos = append(pos, f.Cause)
			} else {
				neg = append(neg, fmt.Sprintf("%s (%s)", f.Cause, f.Severity))
			}
		}
		fmt.Fprintf(&b, "Risk indicators: %s\n", joinOrNone(neg))
		fmt.Fprintf(&b, "Positive indicators: %s\n", joinOrNone(pos))
	}

	fmt.Fprintf(&b, "\n## Task\n")
	switch req.Trigger {
	case TriggerConflict:
		b.WriteString("Positive reputation and negative behavior signals conflict. Weigh them.\n")
	default:
		b.WriteString("The rule score is in the ambiguous band. Decide whether it over- or under-states the risk.\n")
	}
	fmt.Fprintf(&b, `Return JSON with exactly these fields:
{
  "adjustment": <number between -%[1]g and %[1]g added to the rule score>,
  "confidence": <number 0-100>,
  "classification": "<legitimate|privacy_focused|high_risk_borrower|threat|compromised>",
  "reasoning": "<2-3 sentences citing only the signals above>"
}
`, maxAdj)

	return systemPrompt, b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}
