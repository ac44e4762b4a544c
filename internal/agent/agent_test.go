package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// fakeSession scripts the browser: analysis is returned for the results
// script, article for the content script, and failAt forces an error in
// the named operation.
type fakeSession struct {
	analysis pageAnalysis
	article  string
	failAt   string

	navigated []string
	filled    map[string]string
	pressed   []string
}

func (f *fakeSession) fail(op string) error {
	if f.failAt == op {
		return fmt.Errorf("forced %s failure", op)
	}
	return nil
}

func (f *fakeSession) ResetPage(context.Context) error { return f.fail("reset") }

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	if err := f.fail("navigate"); err != nil {
		return err
	}
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeSession) Fill(_ context.Context, selector, value string) error {
	if f.filled == nil {
		f.filled = make(map[string]string)
	}
	f.filled[selector] = value
	return f.fail("fill")
}

func (f *fakeSession) Press(_ context.Context, selector, key string) error {
	f.pressed = append(f.pressed, key)
	return f.fail("press")
}

func (f *fakeSession) Settle(context.Context) error { return f.fail("settle") }

func (f *fakeSession) EvalJSON(_ context.Context, js string, out any) error {
	if strings.Contains(js, "isSearchPage") {
		if err := f.fail("analyze"); err != nil {
			return err
		}
		raw, _ := json.Marshal(f.analysis)
		return json.Unmarshal(raw, out)
	}
	if err := f.fail("extract"); err != nil {
		return err
	}
	raw, _ := json.Marshal(f.article)
	return json.Unmarshal(raw, out)
}

func newTestAgent(s *fakeSession) *Agent {
	a := New(s, "https://www.wikipedia.org", slog.Default())
	a.searchPause = 0
	return a
}

func TestRetrieve_ScoresAndOpensBestResult(t *testing.T) {
	s := &fakeSession{
		analysis: pageAnalysis{
			IsSearchPage: true,
			Results: []resultCandidate{
				{Title: "Diabetes insipidus", URL: "https://en.wikipedia.org/wiki/Diabetes_insipidus", Snippet: "a rare condition"},
				{Title: "Diabetes type 2", URL: "https://en.wikipedia.org/wiki/Diabetes_type_2", Snippet: "causes and treatment"},
			},
		},
		article: strings.Repeat("Type 2 diabetes is a long-term condition. ", 10),
	}
	a := newTestAgent(s)

	got, err := a.Retrieve(context.Background(), "diabetes type 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Type 2 diabetes") {
		t.Errorf("unexpected content: %q", got)
	}

	if s.filled[`input[name="search"]`] != "diabetes type 2" {
		t.Errorf("search box not filled with the term: %v", s.filled)
	}
	if len(s.pressed) != 1 || s.pressed[0] != "Enter" {
		t.Errorf("expected Enter press, got %v", s.pressed)
	}
	// First the search entry, then the highest-scoring candidate.
	if len(s.navigated) != 2 || !strings.Contains(s.navigated[1], "Diabetes_type_2") {
		t.Errorf("expected navigation to the best result, got %v", s.navigated)
	}
}

func TestRetrieve_DirectArticleHitSkipsScoring(t *testing.T) {
	s := &fakeSession{
		analysis: pageAnalysis{IsSearchPage: false},
		article:  strings.Repeat("Asthma is a condition affecting the airways. ", 5),
	}
	a := newTestAgent(s)

	_, err := a.Retrieve(context.Background(), "asthma")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.navigated) != 1 {
		t.Errorf("a direct hit must not navigate again: %v", s.navigated)
	}
}

func TestRetrieve_NoConfidentMatch(t *testing.T) {
	s := &fakeSession{
		analysis: pageAnalysis{
			IsSearchPage: true,
			Results: []resultCandidate{
				{Title: "Hypertension", URL: "https://x/1", Snippet: "blood pressure"},
			},
		},
	}
	a := newTestAgent(s)

	_, err := a.Retrieve(context.Background(), "zzgarblewort")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	var rerr *RetrievalError
	if !errors.As(err, &rerr) || rerr.Phase != "score" {
		t.Errorf("expected score phase, got %+v", rerr)
	}
}

func TestRetrieve_ThinContent(t *testing.T) {
	s := &fakeSession{
		analysis: pageAnalysis{IsSearchPage: false},
		article:  "too short",
	}
	a := newTestAgent(s)

	_, err := a.Retrieve(context.Background(), "asthma")
	if !errors.Is(err, ErrThinContent) {
		t.Fatalf("expected ErrThinContent, got %v", err)
	}
}

func TestRetrieve_NavigationFailureCarriesPhase(t *testing.T) {
	s := &fakeSession{failAt: "navigate"}
	a := newTestAgent(s)

	_, err := a.Retrieve(context.Background(), "asthma")
	var rerr *RetrievalError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RetrievalError, got %v", err)
	}
	if rerr.Phase != "navigate" {
		t.Errorf("expected navigate phase, got %q", rerr.Phase)
	}
}

func TestRetrieve_TruncatesLongContent(t *testing.T) {
	s := &fakeSession{
		analysis: pageAnalysis{IsSearchPage: false},
		article:  strings.Repeat("é", 4000),
	}
	a := newTestAgent(s)

	got, err := a.Retrieve(context.Background(), "asthma")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len([]rune(got)); n != maxContentLen {
		t.Errorf("expected %d runes, got %d", maxContentLen, n)
	}
}
