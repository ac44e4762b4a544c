package plan

import (
	"errors"
	"strings"
	"testing"
)

func TestExtract_FromNoisyOutput(t *testing.T) {
	raw := "Sure! Here is the plan:\n```json\n" +
		`[{"type":"fill","selector":"#q","value":"aspirin"},{"type":"press","selector":"#q","key":"Enter"}]` +
		"\n```\nLet me know if you need changes."

	steps, err := Extract(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Type != KindFill || steps[0].Value != "aspirin" {
		t.Errorf("unexpected first step: %+v", steps[0])
	}
	if steps[1].Key != "Enter" {
		t.Errorf("unexpected second step: %+v", steps[1])
	}
}

func TestExtract_NoArray(t *testing.T) {
	_, err := Extract("I could not produce a plan for that page.")
	if err == nil {
		t.Fatal("expected error when no JSON array present")
	}
}

func TestExtract_MalformedJSON(t *testing.T) {
	_, err := Extract(`[{"type":"fill","selector":}]`)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		steps     []Step
		wantIndex int // -1 means valid
	}{
		{
			"valid plan",
			[]Step{
				{Type: KindFill, Selector: "#q", Value: "x"},
				{Type: KindClick, Selector: "#go"},
				{Type: KindPress, Selector: "#q", Key: "Enter"},
				{Type: KindWait, Selector: ".results"},
				{Type: KindWait, Duration: 500},
				{Type: KindWait},
			},
			-1,
		},
		{
			"unknown kind rejected with index",
			[]Step{
				{Type: KindClick, Selector: "#go"},
				{Type: "hover", Selector: "#menu"},
			},
			1,
		},
		{
			"fill without selector",
			[]Step{{Type: KindFill, Value: "x"}},
			0,
		},
		{
			"click without selector",
			[]Step{{Type: KindClick}},
			0,
		},
		{
			"empty kind",
			[]Step{{Selector: "#q"}},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.steps)
			if tt.wantIndex == -1 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Index != tt.wantIndex {
				t.Errorf("expected failing index %d, got %d", tt.wantIndex, verr.Index)
			}
		})
	}
}

func TestValidationError_MessageNamesKind(t *testing.T) {
	err := &ValidationError{Index: 2, Kind: "teleport"}
	if !strings.Contains(err.Error(), "teleport") || !strings.Contains(err.Error(), "2") {
		t.Errorf("error message should carry index and kind: %v", err)
	}
}
