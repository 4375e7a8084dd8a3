// Package reasoning provides the optional contextual pass the engine runs
// for ambiguous or conflicting rule results.
//
// A Reasoner returns a bounded score adjustment, its own confidence, and a
// short narrative. Every failure mode (transport error, non-2xx, timeout,
// malformed output) is reported as an error; the engine turns errors into
// an Unavailable result and carries on rules-only.
package reasoning

import (
	"context"
	"errors"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

// DefaultMaxAdjustment bounds the score delta a reasoner may return.
const DefaultMaxAdjustment = 20.0

var (
	// ErrMalformedResponse covers unparsable output and out-of-bound values.
	ErrMalformedResponse = errors.New("reasoning: malformed response")

	// ErrBackendRejected means the backend refused the call (rate limited
	// or overloaded). Treated the same as a timeout.
	ErrBackendRejected = errors.New("reasoning: backend rejected request")
)

// Trigger records why reasoning was requested.
type Trigger string

const (
	TriggerAmbiguousBand Trigger = "ambiguous_band"
	TriggerConflict      Trigger = "conflict"
)

// Request is the input to a reasoning pass. Rules is read-only.
type Request struct {
	Snapshot      signals.Snapshot
	Rules         *rules.Result
	Trigger       Trigger
	MaxAdjustment float64
}

func (r *Request) maxAdjustment() float64 {
	if r.MaxAdjustment <= 0 {
		return DefaultMaxAdjustment
	}
	return r.MaxAdjustment
}

// Result of a reasoning pass.
type Result struct {
	Adjustment     float64 `json:"adjustment"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	Classification string  `json:"classification,omitempty"`
	Unavailable    bool    `json:"unavailable"`
	Cause          string  `json:"cause,omitempty"`
}

// Unavailable returns the neutral result used when reasoning was skipped
// or failed: adjustment 0, confidence 0.
func Unavailable(cause string) *Result {
	return &Result{Unavailable: true, Cause: cause}
}

// Reasoner is implemented by the LLM backend and the deterministic stub.
type Reasoner interface {
	Reason(ctx context.Context, req *Request) (*Result, error)
}

// Named is implemented by reasoners that report a backend name for
// metrics and circuit breaker keys.
type Named interface {
	Name() string
}

// NameOf returns r's backend name, or "custom".
func NameOf(r Reasoner) string {
	if n, ok := r.(Named); ok {
		return n.Name()
	}
	return "custom"
}
