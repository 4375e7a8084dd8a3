// Package decision defines the closed action taxonomy emitted by the risk
// engine and the fixed score bands that select it.
package decision

import (
	"encoding/json"
	"fmt"
)

// Decision is one of four escalating actions. The zero value is invalid.
type Decision string

const (
	NoAction                Decision = "NO_ACTION"
	Monitor                 Decision = "MONITOR"
	RequestSeverityAnalysis Decision = "REQUEST_SEVERITY_ANALYSIS"
	EnforceAction           Decision = "ENFORCE_ACTION"
)

// Band floors. Bands are half-open: [0,25) [25,60) [60,80) [80,100].
const (
	MonitorFloor  = 25.0
	AnalysisFloor = 60.0
	EnforceFloor  = 80.0
)

// All returns the four decisions in escalation order.
func All() []Decision {
	return []Decision{NoAction, Monitor, RequestSeverityAnalysis, EnforceAction}
}

// Valid reports whether d is one of the four canonical values.
func (d Decision) Valid() bool {
	switch d {
	case NoAction, Monitor, RequestSeverityAnalysis, EnforceAction:
		return true
	}
	return false
}

// Level is the escalation rank, 0 for NO_ACTION through 3 for ENFORCE_ACTION.
// Invalid values rank -1.
func (d Decision) Level() int {
	switch d {
	case NoAction:
		return 0
	case Monitor:
		return 1
	case RequestSeverityAnalysis:
		return 2
	case EnforceAction:
		return 3
	}
	return -1
}

func (d Decision) String() string { return string(d) }

// Parse is case-sensitive: "monitor" is rejected.
func Parse(s string) (Decision, error) {
	d := Decision(s)
	if !d.Valid() {
		return "", fmt.Errorf("decision: unknown value %q", s)
	}
	return d, nil
}

// MarshalJSON refuses to emit a non-canonical value.
func (d Decision) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("decision: unknown value %q", string(d))
	}
	return json.Marshal(string(d))
}

func (d *Decision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FromScore maps a final score to its band. A critical override always
// yields ENFORCE_ACTION. Out-of-range scores fall into the nearest band.
func FromScore(score float64, criticalOverride bool) Decision {
	switch {
	case criticalOverride:
		return EnforceAction
	case score >= EnforceFloor:
		return EnforceAction
	case score >= AnalysisFloor:
		return RequestSeverityAnalysis
	case score >= MonitorFloor:
		return Monitor
	default:
		return NoAction
	}
}

// Source records which path produced a result.
type Source string

const (
	SourceRulesOnly Source = "rules_only"
	SourceHybrid    Source = "hybrid"
)

func (s Source) Valid() bool {
	return s == SourceRulesOnly || s == SourceHybrid
}
