package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/reasoning"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
)

// ErrInvalidConfig is wrapped by every ConfigurationError.
var ErrInvalidConfig = errors.New("engine: invalid configuration")

// ConfigurationError reports a rejected engine setting.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("engine: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap exposes both ErrInvalidConfig and the underlying cause.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

// Defaults.
const (
	DefaultReasoningTimeout    = 5 * time.Second
	DefaultMaxInFlight         = 8
	DefaultBaselineConfidence  = 90.0
	DefaultInsufficientPenalty = 5.0
	DefaultUnavailablePenalty  = 10.0
	DefaultAmbiguousLLMWeight  = 0.7
	DefaultConflictLLMWeight   = 0.5
	DefaultBreakerThreshold    = 5
	DefaultBreakerCooldown     = 30 * time.Second
)

// Config tunes the engine. Use DefaultConfig and override fields.
type Config struct {
	Weights rules.Weights

	// Reasoning is considered for rule scores in [AmbiguousLow, AmbiguousHigh).
	AmbiguousLow  float64
	AmbiguousHigh float64

	ReasoningEnabled bool
	ReasoningTimeout time.Duration
	MaxAdjustment    float64
	MaxInFlight      int64

	BaselineConfidence  float64
	InsufficientPenalty float64 // per unit of insufficient_data weight
	UnavailablePenalty  float64
	AmbiguousLLMWeight  float64
	ConflictLLMWeight   float64

	BreakerThreshold int
	BreakerCooldown  time.Duration

	CustomRules []rules.CustomRule
}

// DefaultConfig returns the stock configuration with reasoning enabled.
func DefaultConfig() Config {
	return Config{
		Weights:             rules.DefaultWeights(),
		AmbiguousLow:        decision.AnalysisFloor,
		AmbiguousHigh:       decision.EnforceFloor,
		ReasoningEnabled:    true,
		ReasoningTimeout:    DefaultReasoningTimeout,
		MaxAdjustment:       reasoning.DefaultMaxAdjustment,
		MaxInFlight:         DefaultMaxInFlight,
		BaselineConfidence:  DefaultBaselineConfidence,
		InsufficientPenalty: DefaultInsufficientPenalty,
		UnavailablePenalty:  DefaultUnavailablePenalty,
		AmbiguousLLMWeight:  DefaultAmbiguousLLMWeight,
		ConflictLLMWeight:   DefaultConflictLLMWeight,
		BreakerThreshold:    DefaultBreakerThreshold,
		BreakerCooldown:     DefaultBreakerCooldown,
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate checks everything except weights and custom rules, which the
// rule scorer validates when the engine is built.
func (c Config) Validate() error {
	switch {
	case !finite(c.AmbiguousLow) || !finite(c.AmbiguousHigh):
		return &ConfigurationError{Field: "ambiguous band", Reason: "bounds must be finite"}
	case c.AmbiguousLow < 0 || c.AmbiguousHigh > 100:
		return &ConfigurationError{Field: "ambiguous band", Reason: "bounds must lie within [0,100]"}
	case c.AmbiguousLow >= c.AmbiguousHigh:
		return &ConfigurationError{Field: "ambiguous band", Reason: fmt.Sprintf("low %g must be below high %g", c.AmbiguousLow, c.AmbiguousHigh)}
	case c.ReasoningTimeout <= 0:
		return &ConfigurationError{Field: "reasoning timeout", Reason: "must be positive"}
	case !finite(c.MaxAdjustment) || c.MaxAdjustment <= 0 || c.MaxAdjustment > 100:
		return &ConfigurationError{Field: "max adjustment", Reason: "must be in (0,100]"}
	case c.MaxInFlight <= 0:
		return &ConfigurationError{Field: "max in-flight", Reason: "must be positive"}
	case !finite(c.BaselineConfidence) || c.BaselineConfidence < 0 || c.BaselineConfidence > 100:
		return &ConfigurationError{Field: "baseline confidence", Reason: "must be in [0,100]"}
	case !finite(c.InsufficientPenalty) || c.InsufficientPenalty < 0:
		return &ConfigurationError{Field: "insufficient data penalty", Reason: "must be non-negative"}
	case !finite(c.UnavailablePenalty) || c.UnavailablePenalty < 0:
		return &ConfigurationError{Field: "unavailable penalty", Reason: "must be non-negative"}
	case !unit(c.AmbiguousLLMWeight):
		return &ConfigurationError{Field: "ambiguous LLM weight", Reason: "must be in [0,1]"}
	case !unit(c.ConflictLLMWeight):
		return &ConfigurationError{Field: "conflict LLM weight", Reason: "must be in [0,1]"}
	case c.BreakerThreshold < 0:
		return &ConfigurationError{Field: "breaker threshold", Reason: "must be non-negative"}
	}
	return nil
}

func unit(v float64) bool { return finite(v) && v >= 0 && v <= 1 }
