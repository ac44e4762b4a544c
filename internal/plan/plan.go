// Package plan parses, validates, and executes LLM-produced action plans
// against the shared rendering session. Plans are untrusted input: every
// step is validated against the known kinds before anything runs.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	KindFill  = "fill"
	KindClick = "click"
	KindPress = "press"
	KindWait  = "wait"
)

// Step is one typed interaction. Duration is milliseconds and only
// meaningful for a bare wait; Key defaults to Enter for press.
type Step struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	Key      string `json:"key,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// ValidationError reports the first malformed step in a plan.
type ValidationError struct {
	Index int
	Kind  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid action at step %d: unknown or malformed kind %q", e.Index, e.Kind)
}

// Extract lifts the first JSON array out of raw LLM output and parses it.
// Model replies often wrap the array in prose or markdown fences.
func Extract(raw string) ([]Step, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in actions")
	}

	var steps []Step
	if err := json.Unmarshal([]byte(raw[start:end+1]), &steps); err != nil {
		return nil, fmt.Errorf("invalid action JSON: %w", err)
	}
	return steps, nil
}

// Validate checks every step before execution: the kind must be known,
// and fill/click/press need a selector. Unknown kinds are rejected, never
// attempted best-effort.
func Validate(steps []Step) error {
	for i, s := range steps {
		switch s.Type {
		case KindFill, KindClick, KindPress:
			if s.Selector == "" {
				return &ValidationError{Index: i, Kind: s.Type}
			}
		case KindWait:
			// A wait may carry a selector or a duration; both absent means
			// the default pause, which is fine.
		default:
			return &ValidationError{Index: i, Kind: s.Type}
		}
	}
	return nil
}
