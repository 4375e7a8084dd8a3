package rules

import (
	"fmt"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

// Registry holds category scorers in evaluation order.
type Registry struct {
	order []Category
	funcs map[Category]CategoryFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[Category]CategoryFunc)}
}

// DefaultRegistry returns the five built-in scorers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CategoryHistory, ScoreHistory)
	r.Register(CategoryVelocity, ScoreVelocity)
	r.Register(CategoryProtocol, ScoreProtocol)
	r.Register(CategoryMarket, ScoreMarket)
	r.Register(CategoryReputation, ScoreReputation)
	return r
}

// Register adds a scorer, or replaces an existing one in place without
// changing evaluation order.
func (r *Registry) Register(c Category, fn CategoryFunc) {
	if _, ok := r.funcs[c]; !ok {
		r.order = append(r.order, c)
	}
	r.funcs[c] = fn
}

// Categories returns the registered categories in evaluation order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) has(c Category) bool {
	_, ok := r.funcs[c]
	return ok
}

// Config configures a Scorer. Zero fields take defaults.
type Config struct {
	Weights     Weights
	Registry    *Registry
	CustomRules []CustomRule
}

// Scorer is safe for concurrent use; it holds no per-request state.
type Scorer struct {
	weights  Weights
	registry *Registry
	custom   map[Category][]*compiledRule
}

// NewScorer validates weights against the registry and compiles custom rules.
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	for c := range cfg.Weights {
		if !cfg.Registry.has(c) {
			return nil, fmt.Errorf("%w: no scorer registered for %q", ErrInvalidWeights, c)
		}
	}

	custom := make(map[Category][]*compiledRule)
	for _, cr := range cfg.CustomRules {
		if !cfg.Registry.has(cr.Category) {
			return nil, fmt.Errorf("%w: rule %q targets unknown category %q", ErrInvalidRule, cr.ID, cr.Category)
		}
		compiled, err := compileRule(cr)
		if err != nil {
			return nil, err
		}
		custom[cr.Category] = append(custom[cr.Category], compiled)
	}

	return &Scorer{
		weights:  cfg.Weights.Clone(),
		registry: cfg.Registry,
		custom:   custom,
	}, nil
}

// Weights returns a copy of the active weights.
func (s *Scorer) Weights() Weights { return s.weights.Clone() }

// Score evaluates every registered category and aggregates. The inputs are
// read, never written.
func (s *Scorer) Score(wallet signals.WalletSignals, protocol signals.ProtocolHealthIndicators, market signals.MarketVolatilityFlags) *Result {
	snap := &signals.Snapshot{Wallet: wallet, Protocol: protocol, Market: market}

	var facts map[string]any
	if len(s.custom) > 0 {
		facts = Facts(snap)
	}

	res := &Result{SubScores: make(map[Category]float64, len(s.registry.order))}
	var aggregate float64
	for _, c := range s.registry.order {
		cs := s.registry.funcs[c](snap)
		for _, rule := range s.custom[c] {
			rule.apply(facts, &cs)
		}
		sub := Clamp(cs.Score)
		res.SubScores[c] = sub
		aggregate += s.weights[c] * sub

		for i := range cs.Flags {
			if cs.Flags[i].Category == "" {
				cs.Flags[i].Category = c
			}
			if cs.Flags[i].Severity == SeverityCritical {
				res.CriticalOverride = true
			}
		}
		res.Flags = append(res.Flags, cs.Flags...)
	}

	aggregate = Clamp(aggregate)
	if res.CriticalOverride && aggregate < criticalFloor {
		aggregate = criticalFloor
	}
	res.Score = aggregate
	return res
}

// criticalFloor is the ENFORCE_ACTION band floor.
const criticalFloor = 80.0
