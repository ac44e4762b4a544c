package prompt

import (
	"strings"
	"testing"
)

func TestRender_FillsPlaceholders(t *testing.T) {
	got, err := Render("followup_detection", map[string]string{
		"history": "user: what is asthma\nassistant: Asthma is...",
		"query":   "tell me more",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "what is asthma") {
		t.Error("history not substituted")
	}
	if !strings.Contains(got, `"tell me more"`) {
		t.Error("query not substituted")
	}
	if strings.Contains(got, "{history}") || strings.Contains(got, "{query}") {
		t.Error("placeholders left in rendered prompt")
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := Render("nope", map[string]string{})
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRender_MissingVariable(t *testing.T) {
	_, err := Render("simplification", map[string]string{"context": "some context"})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "query") {
		t.Errorf("error should name the missing variable, got %v", err)
	}
}

func TestRender_ActionPlanningKeepsJSONExamples(t *testing.T) {
	// The JSON examples in the planning prompt contain literal braces that
	// must not be treated as unresolved placeholders.
	got, err := Render("action_planning", map[string]string{
		"dom":         `[{"index":0,"tag":"INPUT"}]`,
		"instruction": "search for aspirin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, `"type": "fill"`) {
		t.Error("JSON examples missing from rendered prompt")
	}
}

func TestRender_BracedUserContentPassesThrough(t *testing.T) {
	// Queries and page content may legitimately contain {word} patterns;
	// they are data, not placeholders.
	got, err := Render("simplification", map[string]string{
		"context": "",
		"query":   "what does the {gene} notation mean in my lab report",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "{gene}") {
		t.Error("braced user content must survive rendering verbatim")
	}
}

func TestCheck_AllTemplatesRender(t *testing.T) {
	if err := Check(); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
}

func TestCheck_UndeclaredPlaceholderFails(t *testing.T) {
	registry["broken"] = template{text: "uses {oops} without declaring it"}
	defer delete(registry, "broken")

	err := Check()
	if err == nil {
		t.Fatal("expected Check to reject an undeclared placeholder")
	}
	if !strings.Contains(err.Error(), "{oops}") {
		t.Errorf("error should name the placeholder, got %v", err)
	}
}
