package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
)

// Policy is the operator-tunable part of the decision engine, read from
// the YAML file named by RISK_POLICY_FILE. Absent keys keep defaults.
//
//	weights:
//	  history: 0.20
//	  velocity: 0.20
//	  protocol: 0.20
//	  market: 0.15
//	  reputation: 0.25
//	ambiguous_band: {low: 60, high: 80}
//	max_adjustment: 20
//	confidence:
//	  baseline: 90
//	custom_rules:
//	  - id: thin_collateral
//	    expression: has_health_factor && health_factor < 1.3
//	    category: protocol
//	    severity: medium
//	    points: 15
type Policy struct {
	Weights       map[string]float64 `yaml:"weights"`
	AmbiguousBand *Band              `yaml:"ambiguous_band"`
	MaxAdjustment *float64           `yaml:"max_adjustment"`
	Confidence    *ConfidencePolicy  `yaml:"confidence"`
	CustomRules   []rules.CustomRule `yaml:"custom_rules"`
}

// Band is a half-open score interval.
type Band struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// ConfidencePolicy overrides the confidence constants.
type ConfidencePolicy struct {
	Baseline            *float64 `yaml:"baseline"`
	InsufficientPenalty *float64 `yaml:"insufficient_penalty"`
	UnavailablePenalty  *float64 `yaml:"unavailable_penalty"`
	AmbiguousLLMWeight  *float64 `yaml:"ambiguous_llm_weight"`
	ConflictLLMWeight   *float64 `yaml:"conflict_llm_weight"`
}

// LoadPolicy reads and decodes a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read risk policy %s: %w", path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("risk policy %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes YAML, rejecting unknown keys.
func ParsePolicy(data []byte) (*Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &p, nil
}

// apply overlays the policy on ec. The ambiguous band is resolved in Load
// so that environment variables can override it.
func (p *Policy) apply(ec *engine.Config) {
	if len(p.Weights) > 0 {
		w := make(rules.Weights, len(p.Weights))
		for k, v := range p.Weights {
			w[rules.Category(k)] = v
		}
		ec.Weights = w
	}
	if p.MaxAdjustment != nil {
		ec.MaxAdjustment = *p.MaxAdjustment
	}
	if c := p.Confidence; c != nil {
		setIf(&ec.BaselineConfidence, c.Baseline)
		setIf(&ec.InsufficientPenalty, c.InsufficientPenalty)
		setIf(&ec.UnavailablePenalty, c.UnavailablePenalty)
		setIf(&ec.AmbiguousLLMWeight, c.AmbiguousLLMWeight)
		setIf(&ec.ConflictLLMWeight, c.ConflictLLMWeight)
	}
	ec.CustomRules = append(ec.CustomRules, p.CustomRules...)
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
