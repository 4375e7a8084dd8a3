// Package rules implements the deterministic rule scorer.
//
// Five independent category scorers (history, velocity, protocol, market,
// reputation) each turn a signal snapshot into a sub-score in [0,100] plus
// flags. The aggregate is a fixed weighted sum of sub-scores. Any critical
// flag sets CriticalOverride and lifts the aggregate to at least 80.
//
// Scoring is pure: no I/O, no clock, no randomness.
package rules

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Category names a scoring dimension.
type Category string

const (
	CategoryHistory    Category = "history"
	CategoryVelocity   Category = "velocity"
	CategoryProtocol   Category = "protocol"
	CategoryMarket     Category = "market"
	CategoryReputation Category = "reputation"
)

// Severity of a flag.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight is the numeric severity weight: 0, 1, 2, 3, 5.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 5
	}
	return 0
}

// Rank orders severities for sorting; unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return -1
}

// ParseSeverity accepts the five lower-case severity names.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if sev.Rank() < 0 {
		return "", fmt.Errorf("rules: unknown severity %q", s)
	}
	return sev, nil
}

// Flag codes emitted by the built-in scorers.
const (
	CodeNewWallet           = "new_wallet"
	CodeInsufficientData    = "insufficient_data"
	CodeYoungWallet         = "young_wallet"
	CodeDormant             = "dormant_wallet"
	CodePriorLiquidations   = "prior_liquidations"
	CodeNewWalletHighValue  = "new_wallet_high_value"
	CodeLowBalance          = "low_balance"
	CodeVelocitySpike       = "velocity_spike"
	CodeRapidDraining       = "rapid_draining"
	CodeUnusualActivity     = "unusual_activity"
	CodeBalanceVolatility   = "balance_volatility"
	CodeLiquidationRisk     = "liquidation_risk"
	CodeLiquidationUnderVol = "liquidation_under_volatility"
	CodeProtocolExploit     = "protocol_exploit"
	CodeProtocolPaused      = "protocol_paused"
	CodeDefaultRate         = "high_default_rate"
	CodeLiquidationWave     = "liquidation_wave"
	CodeOracleStale         = "oracle_stale"
	CodeOracleDeviation     = "oracle_deviation"
	CodeHighUtilization     = "high_utilization"
	CodeLowCollateral       = "low_collateralization"
	CodeMarketVolatility    = "market_volatility"
	CodePriceShock          = "price_shock"
	CodeBlackSwan           = "black_swan"
	CodeLiquidityCrunch     = "liquidity_crunch"
	CodeNetworkCongestion   = "network_congestion"
	CodeRegulatoryNews      = "regulatory_news"
	CodeExtremeFear         = "extreme_fear"
	CodeSanctioned          = "sanctioned_counterparty"
	CodeExploitCounterparty = "exploit_counterparty"
	CodeBlacklisted         = "blacklisted_counterparty"
	CodeMixer               = "mixer_interaction"
	CodeLowDiversity        = "low_counterparty_diversity"
	CodeENS                 = "ens_name"
	CodeGitcoinPassport     = "gitcoin_passport"
	CodePOAP                = "poap_holder"
	CodeOnChainReputation   = "on_chain_reputation"
	CodeCreditScore         = "credit_score"
	CodeMatureWallet        = "mature_wallet"
	CodeEstablishedHolder   = "established_holder"
	CodeCustomRuleError     = "custom_rule_error"
)

// Flag is one triggered rule. Mitigating flags carry negative weight.
type Flag struct {
	Code       string   `json:"code"`
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Weight     float64  `json:"weight"`
	Cause      string   `json:"cause"`
	Field      string   `json:"field,omitempty"`
	Mitigating bool     `json:"mitigating,omitempty"`
}

// String renders the flag for reasoning text.
func (f Flag) String() string {
	if f.Mitigating {
		return fmt.Sprintf("[mitigating] %s", f.Cause)
	}
	return fmt.Sprintf("[%s] %s", f.Severity, f.Cause)
}

// CategoryScore is the output of one category scorer.
type CategoryScore struct {
	Score float64
	Flags []Flag
}

func (c *CategoryScore) add(points float64, f Flag) {
	c.Score += points
	c.Flags = append(c.Flags, f)
}

// Result is the rule scorer's output.
type Result struct {
	Score            float64              `json:"score"`
	SubScores        map[Category]float64 `json:"subScores"`
	Flags            []Flag               `json:"flags"`
	CriticalOverride bool                 `json:"criticalOverride"`
}

// behaviorCodes are the negative behavior signals that, together with
// positive reputation, make a result conflicting.
var behaviorCodes = map[string]bool{
	CodeRapidDraining:      true,
	CodeUnusualActivity:    true,
	CodeVelocitySpike:      true,
	CodeMixer:              true,
	CodeNewWalletHighValue: true,
	CodeBalanceVolatility:  true,
}

// HasConflict reports whether mitigating reputation coexists with a
// medium-or-worse negative velocity or behavior flag.
func (r *Result) HasConflict() bool {
	var positive, negative bool
	for _, f := range r.Flags {
		if f.Mitigating {
			positive = true
			continue
		}
		if f.Severity.Rank() >= SeverityMedium.Rank() &&
			(f.Category == CategoryVelocity || behaviorCodes[f.Code]) {
			negative = true
		}
	}
	return positive && negative
}

// InsufficientDataWeight sums the severity weight of insufficient_data flags.
func (r *Result) InsufficientDataWeight() float64 {
	var total float64
	for _, f := range r.Flags {
		if f.Code == CodeInsufficientData {
			total += f.Weight
		}
	}
	return total
}

// SortedFlags returns flags ordered by severity, highest first. Flags of
// equal severity keep registry order. Mitigating flags come last.
func (r *Result) SortedFlags() []Flag {
	out := make([]Flag, len(r.Flags))
	copy(out, r.Flags)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mitigating != out[j].Mitigating {
			return !out[i].Mitigating
		}
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// Codes lists distinct flag codes in registry order.
func (r *Result) Codes() []string {
	seen := make(map[string]bool, len(r.Flags))
	codes := make([]string, 0, len(r.Flags))
	for _, f := range r.Flags {
		if seen[f.Code] {
			continue
		}
		seen[f.Code] = true
		codes = append(codes, f.Code)
	}
	return codes
}

// HasFlag reports whether a flag with the given code fired.
func (r *Result) HasFlag(code string) bool {
	for _, f := range r.Flags {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Weights assigns each category its share of the aggregate.
type Weights map[Category]float64

// Weight sum tolerance.
const weightTolerance = 1e-6

var ErrInvalidWeights = errors.New("rules: invalid category weights")

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		CategoryHistory:    0.20,
		CategoryVelocity:   0.20,
		CategoryProtocol:   0.20,
		CategoryMarket:     0.15,
		CategoryReputation: 0.25,
	}
}

// Validate requires finite, non-negative weights summing to 1.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: no weights", ErrInvalidWeights)
	}
	var sum float64
	for c, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s weight %v", ErrInvalidWeights, c, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// Clone returns a copy safe to modify.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Clamp bounds a score to [0,100]. NaN becomes 0.
func Clamp(v float64) float64 { return clamp(v, 0, 100) }
