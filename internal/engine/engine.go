// Package engine orchestrates a wallet analysis: validate signals, run the
// rule scorer, optionally consult a reasoner for ambiguous or conflicting
// results, then merge under safety overrides into one AnalysisResult.
//
// Failures of the reasoning pass never fail an analysis. They degrade the
// result to rules-only with reduced confidence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/circuitbreaker"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/metrics"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/reasoning"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/traces"
)

// Engine is safe for concurrent use. The breaker and the in-flight
// semaphore are its only state shared across requests.
type Engine struct {
	cfg      Config
	scorer   *rules.Scorer
	registry *rules.Registry
	reasoner reasoning.Reasoner
	backend  string
	breaker  *circuitbreaker.Breaker
	sem      *semaphore.Weighted
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithReasoner sets the contextual reasoner. Without one the engine is
// rules-only.
func WithReasoner(r reasoning.Reasoner) Option {
	return func(e *Engine) { e.reasoner = r }
}

// WithLogger sets the fallback logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBreaker shares a circuit breaker, e.g. with the health checks.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(e *Engine) { e.breaker = b }
}

// WithRegistry replaces the category scorers.
func WithRegistry(r *rules.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithClock sets the clock used when a request carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates cfg and builds an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	scorer, err := rules.NewScorer(rules.Config{
		Weights:     cfg.Weights,
		Registry:    e.registry,
		CustomRules: cfg.CustomRules,
	})
	if err != nil {
		field := "weights"
		if errors.Is(err, rules.ErrInvalidRule) {
			field = "custom rules"
		}
		return nil, &ConfigurationError{Field: field, Err: err}
	}
	e.scorer = scorer

	if e.breaker == nil {
		e.breaker = circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	e.sem = semaphore.NewWeighted(cfg.MaxInFlight)
	if e.reasoner != nil {
		e.backend = reasoning.NameOf(e.reasoner)
	}
	return e, nil
}

// Config returns the engine's configuration with the effective weights.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Weights = e.scorer.Weights()
	return cfg
}

// Backend names the configured reasoner, or "" when rules-only.
func (e *Engine) Backend() string { return e.backend }

// Breaker exposes the reasoning circuit breaker for health reporting.
func (e *Engine) Breaker() *circuitbreaker.Breaker { return e.breaker }

// Analyze is AnalyzeWallet over a bundled Input.
func (e *Engine) Analyze(ctx context.Context, in Input) (*AnalysisResult, error) {
	return e.AnalyzeWallet(ctx, in.Wallet, in.Protocol, in.Market, in.Metadata)
}

// AnalyzeWallet scores one wallet. The only errors are validation errors
// for malformed signals or metadata; reasoning failures are absorbed.
func (e *Engine) AnalyzeWallet(
	ctx context.Context,
	wallet signals.WalletSignals,
	protocol signals.ProtocolHealthIndicators,
	market signals.MarketVolatilityFlags,
	meta signals.RequestMetadata,
) (*AnalysisResult, error) {
	start := time.Now()
	if meta.RequestID != "" && logging.RequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, meta.RequestID)
	}
	ctx, span := traces.StartSpan(ctx, "engine.AnalyzeWallet",
		traces.WalletAddr(wallet.Address),
		traces.RequestID(meta.RequestID),
	)
	defer span.End()
	log := e.log(ctx)

	snap := signals.Snapshot{Wallet: wallet, Protocol: protocol, Market: market}
	if err := snap.Validate(); err != nil {
		metrics.AnalysisErrorsTotal.WithLabelValues("invalid_signals").Inc()
		traces.RecordError(span, err)
		return nil, err
	}
	if err := meta.Validate(wallet.Address); err != nil {
		metrics.AnalysisErrorsTotal.WithLabelValues("invalid_metadata").Inc()
		traces.RecordError(span, err)
		return nil, err
	}

	res := e.scorer.Score(wallet, protocol, market)
	span.SetAttributes(traces.RuleScore(res.Score), traces.CriticalOverride(res.CriticalOverride))

	details := Details{
		RuleScore:      res.Score,
		SubScores:      res.SubScores,
		RuleFlags:      res.SortedFlags(),
		RequestID:      meta.RequestID,
		IdempotencyKey: meta.IdempotencyKey,
		RequestedBy:    meta.RequestedBy,
		RequestType:    meta.RequestType,
	}

	trigger := e.trigger(res)
	var llm *reasoning.Result
	switch {
	case trigger == "":
		details.ReasoningOutcome = OutcomeNotWarranted
	case !e.cfg.ReasoningEnabled || e.reasoner == nil:
		details.ReasoningOutcome = OutcomeDisabled
		details.ReasoningTrigger = string(trigger)
	default:
		details.ReasoningInvoked = true
		details.ReasoningTrigger = string(trigger)
		details.ReasoningBackend = e.backend
		llm, details.ReasoningOutcome = e.reason(ctx, &reasoning.Request{
			Snapshot:      snap,
			Rules:         res,
			Trigger:       trigger,
			MaxAdjustment: e.cfg.MaxAdjustment,
		})
	}
	available := llm != nil && !llm.Unavailable

	final := res.Score
	source := decision.SourceRulesOnly
	if available {
		source = decision.SourceHybrid
		details.LLMAdjustment = llm.Adjustment
		details.LLMConfidence = llm.Confidence
		details.Classification = llm.Classification
		if !res.CriticalOverride {
			final = rules.Clamp(res.Score + llm.Adjustment)
		}
	}
	if res.CriticalOverride && final < decision.EnforceFloor {
		final = decision.EnforceFloor
	}
	details.FinalScore = final

	riskScore := int(math.Floor(final))
	d := decision.FromScore(float64(riskScore), res.CriticalOverride)

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	out := &AnalysisResult{
		WalletAddress:    wallet.Address,
		Decision:         d,
		RiskScore:        riskScore,
		Confidence:       e.confidence(res, trigger, llm),
		Reasoning:        reasoningText(res, trigger, llm, details.ReasoningOutcome),
		Timestamp:        ts.Unix(),
		Source:           source,
		CriticalOverride: res.CriticalOverride,
		Flags:            res.Codes(),
		Recommendations:  recommendations(d, res, &snap),
		Details:          details,
	}

	span.SetAttributes(
		traces.Decision(string(d)),
		traces.Source(string(source)),
		traces.RiskScore(riskScore),
	)
	metrics.ObserveAnalysis(string(d), string(source), res.Score, final, res.CriticalOverride, time.Since(start))
	log.Info("wallet analyzed",
		"wallet", signals.ShortAddress(wallet.Address),
		"decision", d,
		"risk_score", riskScore,
		"rule_score", res.Score,
		"confidence", out.Confidence,
		"source", source,
		"critical_override", res.CriticalOverride,
		"reasoning_outcome", details.ReasoningOutcome,
	)
	return out, nil
}

// trigger decides whether reasoning is warranted. The ambiguous band wins
// when both conditions hold.
func (e *Engine) trigger(res *rules.Result) reasoning.Trigger {
	if res.Score >= e.cfg.AmbiguousLow && res.Score < e.cfg.AmbiguousHigh {
		return reasoning.TriggerAmbiguousBand
	}
	if !res.CriticalOverride && res.HasConflict() {
		return reasoning.TriggerConflict
	}
	return ""
}

// confidence blends rule certainty with the reasoner's confidence.
func (e *Engine) confidence(res *rules.Result, trigger reasoning.Trigger, llm *reasoning.Result) int {
	certainty := e.cfg.BaselineConfidence - e.cfg.InsufficientPenalty*res.InsufficientDataWeight()

	var c float64
	switch {
	case llm != nil && !llm.Unavailable:
		w := e.cfg.ConflictLLMWeight
		if trigger == reasoning.TriggerAmbiguousBand {
			w = e.cfg.AmbiguousLLMWeight
		}
		c = (1-w)*certainty + w*llm.Confidence
	case trigger != "":
		c = certainty - e.cfg.UnavailablePenalty
	default:
		c = certainty
	}
	return int(math.Round(rules.Clamp(c)))
}

func reasoningText(res *rules.Result, trigger reasoning.Trigger, llm *reasoning.Result, outcome string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule score %.1f/100.", res.Score)

	flags := res.SortedFlags()
	if len(flags) == 0 {
		b.WriteString(" No risk flags triggered.")
	} else {
		parts := make([]string, len(flags))
		for i, f := range flags {
			parts[i] = f.String()
		}
		b.WriteString(" Flags: ")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(".")
	}
	if res.CriticalOverride {
		b.WriteString(" Critical override: enforcement required regardless of other signals.")
	}

	switch {
	case llm != nil && !llm.Unavailable:
		if llm.Reasoning != "" {
			b.WriteString(" Contextual analysis: ")
			b.WriteString(llm.Reasoning)
		}
	case trigger != "":
		fmt.Fprintf(&b, " Contextual reasoning unavailable (%s); decision is rules-only.", outcome)
	}
	return b.String()
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	l := e.logger
	if id := logging.RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	return l
}
