package reasoning

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// maxNarrative caps the stored narrative length.
const maxNarrative = 2000

type rawResponse struct {
	Adjustment     *float64 `json:"adjustment"`
	Confidence     *float64 `json:"confidence"`
	Classification string   `json:"classification"`
	Reasoning      string   `json:"reasoning"`
}

// ParseResponse decodes a backend reply. Code fences are tolerated. A
// missing, non-finite or out-of-bound adjustment, or a confidence outside
// [0,100], is ErrMalformedResponse.
func ParseResponse(raw string, maxAdjustment float64) (*Result, error) {
	if maxAdjustment <= 0 {
		maxAdjustment = DefaultMaxAdjustment
	}

	body := stripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var r rawResponse
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.Adjustment == nil {
		return nil, fmt.Errorf("%w: missing adjustment", ErrMalformedResponse)
	}
	if r.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	}

	adj, conf := *r.Adjustment, *r.Confidence
	if math.IsNaN(adj) || math.IsInf(adj, 0) || math.Abs(adj) > maxAdjustment {
		return nil, fmt.Errorf("%w: adjustment %v outside ±%g", ErrMalformedResponse, adj, maxAdjustment)
	}
	if math.IsNaN(conf) || conf < 0 || conf > 100 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,100]", ErrMalformedResponse, conf)
	}

	narrative := strings.TrimSpace(r.Reasoning)
	narrative = truncate(narrative, maxNarrative)

	return &Result{
		Adjustment:     adj,
		Confidence:     conf,
		Reasoning:      narrative,
		Classification: strings.TrimSpace(r.Classification),
	}, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
