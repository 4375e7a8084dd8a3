package reasoning

import (
	"context"
	"errors"
	"fmt"
)

// LLMReasoner prompts a language model through a Completer.
type LLMReasoner struct {
	completer Completer
	name      string
}

// NewLLMReasoner wraps c. name labels metrics and breaker state.
func NewLLMReasoner(c Completer, name string) *LLMReasoner {
	if name == "" {
		name = "llm"
	}
	return &LLMReasoner{completer: c, name: name}
}

func (r *LLMReasoner) Name() string { return r.name }

// Reason builds the prompt, calls the backend and validates the reply.
func (r *LLMReasoner) Reason(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Rules == nil {
		return nil, errors.New("reasoning: request without rule result")
	}
	system, user := BuildPrompt(req)

	raw, err := r.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", r.name, err)
	}
	res, err := ParseResponse(raw, req.maxAdjustment())
	if err != nil {
		return nil, err
	}
	return res, nil
}
