package reasoning

import (
	"context"
	"fmt"
	"math"
	"time"
)

// StubReasoner returns a fixed result. It is deterministic and used when
// REASONER=stub and in tests. Delay simulates a slow backend; Err forces a
// failure.
type StubReasoner struct {
	Adjustment     float64
	Confidence     float64
	Narrative      string
	Classification string
	Delay          time.Duration
	Err            error
}

// NewStubReasoner returns a stub with a neutral default narrative.
func NewStubReasoner(adjustment, confidence float64) *StubReasoner {
	return &StubReasoner{
		Adjustment: adjustment,
		Confidence: confidence,
		Narrative:  "deterministic reasoning stub",
	}
}

func (s *StubReasoner) Name() string { return "stub" }

func (s *StubReasoner) Reason(ctx context.Context, req *Request) (*Result, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	bound := DefaultMaxAdjustment
	if req != nil {
		bound = req.maxAdjustment()
	}
	if math.Abs(s.Adjustment) > bound {
		return nil, fmt.Errorf("%w: adjustment %v outside ±%g", ErrMalformedResponse, s.Adjustment, bound)
	}
	return &Result{
		Adjustment:     s.Adjustment,
		Confidence:     s.Confidence,
		Reasoning:      s.Narrative,
		Classification: s.Classification,
	}, nil
}
