package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

var ErrInvalidRule = errors.New("rules: invalid custom rule")

// CustomRule is an operator-defined rule evaluated against Facts. A match
// adds Points to its category sub-score and emits a flag with Code (or ID).
//
// Example expression:
//
//	has_health_factor && health_factor < 1.3 && volatility_index > 60
type CustomRule struct {
	ID         string   `json:"id" yaml:"id"`
	Expression string   `json:"expression" yaml:"expression"`
	Category   Category `json:"category" yaml:"category"`
	Severity   Severity `json:"severity" yaml:"severity"`
	Points     float64  `json:"points" yaml:"points"`
	Cause      string   `json:"cause" yaml:"cause"`
	Code       string   `json:"code,omitempty" yaml:"code,omitempty"`
	Mitigating bool     `json:"mitigating,omitempty" yaml:"mitigating,omitempty"`
}

type compiledRule struct {
	rule    CustomRule
	program *vm.Program
}

func compileRule(r CustomRule) (*compiledRule, error) {
	if strings.TrimSpace(r.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Expression) == "" {
		return nil, fmt.Errorf("%w: rule %q has no expression", ErrInvalidRule, r.ID)
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.ID, err)
	}
	if r.Mitigating && r.Severity == SeverityCritical {
		return nil, fmt.Errorf("%w: rule %q cannot be both critical and mitigating", ErrInvalidRule, r.ID)
	}

	program, err := expr.Compile(r.Expression, expr.Env(Facts(&signals.Snapshot{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.ID, err)
	}
	return &compiledRule{rule: r, program: program}, nil
}

func (cr *compiledRule) apply(facts map[string]any, out *CategoryScore) {
	r := cr.rule
	output, err := expr.Run(cr.program, facts)
	if err != nil {
		out.Flags = append(out.Flags, flag(r.Category, CodeCustomRuleError, SeverityInfo,
			fmt.Sprintf("rule %s failed: %v", r.ID, err)))
		return
	}
	if matched, ok := output.(bool); !ok || !matched {
		return
	}

	code := r.Code
	if code == "" {
		code = r.ID
	}
	cause := r.Cause
	if cause == "" {
		cause = "custom rule " + r.ID
	}
	f := flag(r.Category, code, r.Severity, cause)
	if r.Mitigating {
		f = mitigating(r.Category, code, r.Severity, cause)
	}
	out.add(r.Points, f)
}

// CompileCheck compiles rules without building a scorer.
func CompileCheck(rules []CustomRule) error {
	for _, r := range rules {
		if _, err := compileRule(r); err != nil {
			return err
		}
	}
	return nil
}

func optFloat(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Facts flattens a snapshot into the variables visible to custom rules.
// Every key is always present; optional signals carry a has_* companion
// and read as zero when absent.
func Facts(s *signals.Snapshot) map[string]any {
	w, p, m := s.Wallet, s.Protocol, s.Market

	balance, hasBalance := optFloat(w.BalanceUSD)
	portfolio, hasPortfolio := optFloat(w.PortfolioUSD)
	balVol, hasBalVol := optFloat(w.BalanceVolatility)
	onChain, hasOnChain := optFloat(w.Reputation.OnChainScore)
	credit, hasCredit := optFloat(w.Reputation.CreditScore)
	util, hasUtil := optFloat(p.UtilizationRate)
	collat, hasCollat := optFloat(p.CollateralizationRatio)
	defRate, hasDefRate := optFloat(p.DefaultRate)
	volIdx, hasVolIdx := optFloat(m.VolatilityIndex)

	var tx24, tx7, tx30 int
	if w.Velocity != nil {
		tx24, tx7, tx30 = w.Velocity.Last24h, w.Velocity.Last7d, w.Velocity.Last30d
	}
	diversity := 0
	if w.CounterpartyDiversity != nil {
		diversity = *w.CounterpartyDiversity
	}
	var hf, borrowed, collateral float64
	if w.Lending != nil {
		hf, borrowed, collateral = w.Lending.HealthFactor, w.Lending.TotalBorrowedUSD, w.Lending.TotalCollateralUSD
	}

	return map[string]any{
		"wallet_age_days":          w.AgeDays,
		"tx_count":                 w.TransactionCount,
		"days_since_last_activity": w.DaysSinceLastActivity,
		"has_velocity":             w.Velocity != nil,
		"tx_24h":                   tx24,
		"tx_7d":                    tx7,
		"tx_30d":                   tx30,
		"has_balance":              hasBalance,
		"balance_usd":              balance,
		"has_portfolio":            hasPortfolio,
		"portfolio_usd":            portfolio,
		"has_balance_volatility":   hasBalVol,
		"balance_volatility":       balVol,
		"has_diversity":            w.CounterpartyDiversity != nil,
		"counterparty_diversity":   diversity,
		"unique_contracts":         w.UniqueContracts,
		"liquidation_count":        w.LiquidationCount,
		"has_health_factor":        w.Lending != nil,
		"health_factor":            hf,
		"borrowed_usd":             borrowed,
		"collateral_usd":           collateral,
		"rapid_draining":           w.Patterns.RapidDraining,
		"unusual_activity":         w.Patterns.UnusualActivity,
		"new_wallet_high_value":    w.Patterns.NewWalletHighValue,
		"mixer_interaction":        w.Patterns.MixerInteraction,
		"sanctioned_interaction":   w.Patterns.SanctionedInteraction,
		"flagged_sanctions":        w.OnList(signals.ListSanctions),
		"flagged_exploit":          w.OnList(signals.ListExploit),
		"flagged_blacklist":        w.OnList(signals.ListBlacklist),
		"flagged_mixer":            w.OnList(signals.ListMixer),
		"flagged_count":            len(w.FlaggedCounterparties),
		"has_ens":                  w.Reputation.ENSName != "",
		"gitcoin_passport":         w.Reputation.GitcoinPassport,
		"poap":                     w.Reputation.POAP,
		"has_on_chain_score":       hasOnChain,
		"on_chain_score":           onChain,
		"has_credit_score":         hasCredit,
		"credit_score":             credit,
		"has_utilization_rate":     hasUtil,
		"utilization_rate":         util,
		"has_collateralization":    hasCollat,
		"collateralization_ratio":  collat,
		"has_default_rate":         hasDefRate,
		"default_rate":             defRate,
		"liquidation_events_24h":   p.LiquidationEvents24h,
		"oracle_stale":             p.OracleStale,
		"oracle_deviation":         p.OracleDeviation,
		"exploit_detected":         p.ExploitDetected,
		"paused_contracts":         len(p.PausedContracts),
		"tvl_usd":                  p.TotalValueLockedUSD,
		"has_volatility_index":     hasVolIdx,
		"volatility_index":         volIdx,
		"volatility_bucket":        string(m.Bucket),
		"sentiment":                string(m.Sentiment),
		"congestion":               string(m.Congestion),
		"price_shock":              m.PriceShock,
		"black_swan":               m.BlackSwan,
		"liquidity_crunch":         m.LiquidityCrunch,
		"regulatory_news":          m.RegulatoryNews,
	}
}
