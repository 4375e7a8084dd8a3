package engine

import (
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

// Reasoning outcomes recorded in Details.ReasoningOutcome and metrics.
const (
	OutcomeNotWarranted = "not_warranted"
	OutcomeDisabled     = "disabled"
	OutcomeOK           = "ok"
	OutcomeTimeout      = "timeout"
	OutcomeRejected     = "rejected"
	OutcomeMalformed    = "malformed"
	OutcomeCircuitOpen  = "circuit_open"
	OutcomeSaturated    = "saturated"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

// Input bundles one analysis request.
type Input struct {
	Wallet   signals.WalletSignals            `json:"wallet"`
	Protocol signals.ProtocolHealthIndicators `json:"protocol"`
	Market   signals.MarketVolatilityFlags    `json:"market"`
	Metadata signals.RequestMetadata          `json:"metadata"`
}

// AnalysisResult is the engine's single output per request.
type AnalysisResult struct {
	WalletAddress    string            `json:"wallet_address"`
	Decision         decision.Decision `json:"decision"`
	RiskScore        int               `json:"risk_score"`
	Confidence       int               `json:"confidence"`
	Reasoning        string            `json:"reasoning"`
	Timestamp        int64             `json:"timestamp"`
	Source           decision.Source   `json:"source"`
	CriticalOverride bool              `json:"critical_override"`
	Flags            []string          `json:"flags"`
	Recommendations  []string          `json:"recommendations"`
	Details          Details           `json:"details"`
}

// Details carries the audit breakdown behind a result.
type Details struct {
	RuleScore        float64                    `json:"rule_score"`
	FinalScore       float64                    `json:"final_score"`
	SubScores        map[rules.Category]float64 `json:"sub_scores"`
	RuleFlags        []rules.Flag               `json:"rule_flags"`
	ReasoningInvoked bool                       `json:"reasoning_invoked"`
	ReasoningTrigger string                     `json:"reasoning_trigger,omitempty"`
	ReasoningOutcome string                     `json:"reasoning_outcome"`
	ReasoningBackend string                     `json:"reasoning_backend,omitempty"`
	LLMAdjustment    float64                    `json:"llm_adjustment"`
	LLMConfidence    float64                    `json:"llm_confidence"`
	Classification   string                     `json:"classification,omitempty"`
	RequestID        string                     `json:"request_id,omitempty"`
	IdempotencyKey   string                     `json:"idempotency_key,omitempty"`
	RequestedBy      string                     `json:"requested_by,omitempty"`
	RequestType      signals.RequestType        `json:"request_type,omitempty"`
}
