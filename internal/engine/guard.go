package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/circuitbreaker"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/metrics"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/reasoning"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/traces"
)

var errSaturated = errors.New("engine: reasoning capacity exhausted")

type reasonReply struct {
	res *reasoning.Result
	err error
}

// reason runs the reasoner under the in-flight limit, the circuit breaker,
// and a hard deadline. It never returns an error: every failure becomes an
// Unavailable result plus an outcome label.
func (e *Engine) reason(ctx context.Context, req *reasoning.Request) (*reasoning.Result, string) {
	ctx, span := traces.StartSpan(ctx, "engine.reason", traces.Backend(e.backend))
	defer span.End()
	log := e.log(ctx)

	if !e.sem.TryAcquire(1) {
		metrics.ObserveReasoning(e.backend, OutcomeSaturated, 0)
		span.SetAttributes(traces.Outcome(OutcomeSaturated))
		log.Warn("reasoning skipped, too many calls in flight", "backend", e.backend)
		return reasoning.Unavailable(errSaturated.Error()), OutcomeSaturated
	}
	defer e.sem.Release(1)
	metrics.ReasoningInFlight.Inc()
	defer metrics.ReasoningInFlight.Dec()

	parent := ctx
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ReasoningTimeout)
	defer cancel()

	start := time.Now()
	var res *reasoning.Result
	err := e.breaker.Execute(e.backend, func() error {
		r, err := e.call(callCtx, req)
		res = r
		return err
	}, func(error) bool {
		// The caller went away; that says nothing about the backend.
		return parent.Err() != nil
	})
	elapsed := time.Since(start)

	outcome := classify(err)
	metrics.ObserveReasoning(e.backend, outcome, elapsed)
	span.SetAttributes(traces.Outcome(outcome))
	if err != nil {
		traces.RecordError(span, err)
		log.Warn("reasoning unavailable, falling back to rules",
			"backend", e.backend,
			"outcome", outcome,
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return reasoning.Unavailable(err.Error()), outcome
	}
	return res, OutcomeOK
}

// call enforces the deadline even against a reasoner that ignores ctx.
// A panicking reasoner is reported as a malformed reply.
func (e *Engine) call(ctx context.Context, req *reasoning.Request) (*reasoning.Result, error) {
	done := make(chan reasonReply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reasonReply{err: fmt.Errorf("%w: reasoner panicked: %v", reasoning.ErrMalformedResponse, p)}
			}
		}()
		r, err := e.reasoner.Reason(ctx, req)
		done <- reasonReply{res: r, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-done:
		if reply.err != nil {
			return nil, reply.err
		}
		if err := e.checkResult(reply.res); err != nil {
			return nil, err
		}
		return reply.res, nil
	}
}

// checkResult re-applies the output bounds for reasoners that skip them.
func (e *Engine) checkResult(r *reasoning.Result) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: empty result", reasoning.ErrMalformedResponse)
	case r.Unavailable:
		return fmt.Errorf("%w: reasoner reported unavailable: %s", reasoning.ErrMalformedResponse, r.Cause)
	case math.IsNaN(r.Adjustment) || math.IsInf(r.Adjustment, 0) || math.Abs(r.Adjustment) > e.cfg.MaxAdjustment:
		return fmt.Errorf("%w: adjustment %v outside ±%g", reasoning.ErrMalformedResponse, r.Adjustment, e.cfg.MaxAdjustment)
	case math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 100:
		return fmt.Errorf("%w: confidence %v outside [0,100]", reasoning.ErrMalformedResponse, r.Confidence)
	}
	return nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, errSaturated):
		return OutcomeSaturated
	case errors.Is(err, circuitbreaker.ErrOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, reasoning.ErrBackendRejected):
		return OutcomeRejected
	case errors.Is(err, reasoning.ErrMalformedResponse):
		return OutcomeMalformed
	default:
		return OutcomeError
	}
}
