// Package agent fetches reference content for a topic by driving the
// shared rendering session against the reference site: search, rank the
// result listing by lexical overlap, open the winner, isolate the article.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammedhrima/MediSimpleGPT/internal/relevance"
)

var (
	// ErrNoMatch means no result candidate shared a single word with the term.
	ErrNoMatch = errors.New("no confident match in search results")
	// ErrThinContent means the article text was too short to be useful.
	ErrThinContent = errors.New("extracted content too thin")
)

// RetrievalError wraps a failure with the phase it happened in, so the
// decision path can be reconstructed from the logs.
type RetrievalError struct {
	Phase string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Phase, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// session is the slice of browser.Controller the agent drives.
type session interface {
	ResetPage(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Press(ctx context.Context, selector, key string) error
	Settle(ctx context.Context) error
	EvalJSON(ctx context.Context, js string, out any) error
}

const (
	searchSelector = `input[name="search"]`
	maxContentLen  = 2500
	minContentLen  = 100
)

type Agent struct {
	browser      session
	referenceURL string
	logger       *slog.Logger
	searchPause  time.Duration // lets the search box register the input
}

func New(browser session, referenceURL string, logger *slog.Logger) *Agent {
	return &Agent{
		browser:      browser,
		referenceURL: referenceURL,
		logger:       logger,
		searchPause:  400 * time.Millisecond,
	}
}

type resultCandidate struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type pageAnalysis struct {
	IsSearchPage bool              `json:"isSearchPage"`
	ResultCount  int               `json:"resultCount"`
	Results      []resultCandidate `json:"results"`
}

// resultsScript classifies the page as a results listing and collects
// candidate links: meaningful text, absolute http(s) href, inside a
// result container. Top 10 only.
const resultsScript = `() => {
	const hasResults = document.querySelectorAll('ol li, ul li, .result, .search-result').length > 3;
	const hasSearchBox = document.querySelector('input[type="search"], input[name*="search"], input[name*="query"]') !== null;

	const results = [];
	document.querySelectorAll('a').forEach((link, idx) => {
		const text = link.innerText?.trim() || '';
		const href = link.href || '';
		const parent = link.closest('li, .result, .search-result');
		if (text.length > 20 && href.startsWith('http') && parent) {
			results.push({
				index: idx,
				title: text.slice(0, 100),
				url: href,
				snippet: parent.innerText?.slice(0, 200) || ''
			});
		}
	});

	return {
		isSearchPage: hasResults && hasSearchBox,
		resultCount: results.length,
		results: results.slice(0, 10)
	};
}`

// articleScript pulls the main content region, discarding navigation
// chrome: the first paragraphs of the article body, or the raw body text
// when the page has no recognizable article container.
const articleScript = `() => {
	const article = document.querySelector('#mw-content-text');
	if (!article) return document.body.innerText;
	const paras = article.querySelectorAll('p');
	let text = '';
	for (let i = 0; i < Math.min(8, paras.length); i++) {
		text += paras[i].innerText + '\n\n';
	}
	return text;
}`

// Retrieve searches the reference site for term and returns cleaned
// article text, truncated to a bounded length. Every failure comes back
// as a *RetrievalError; the caller degrades the turn, never aborts it.
func (a *Agent) Retrieve(ctx context.Context, term string) (string, error) {
	if err := a.browser.ResetPage(ctx); err != nil {
		return "", &RetrievalError{Phase: "acquire", Err: err}
	}
	if err := a.browser.Navigate(ctx, a.referenceURL); err != nil {
		return "", &RetrievalError{Phase: "navigate", Err: err}
	}

	if err := a.browser.Fill(ctx, searchSelector, term); err != nil {
		return "", &RetrievalError{Phase: "search", Err: err}
	}
	a.pause(ctx)
	if err := a.browser.Press(ctx, searchSelector, "Enter"); err != nil {
		return "", &RetrievalError{Phase: "search", Err: err}
	}
	if err := a.browser.Settle(ctx); err != nil {
		return "", &RetrievalError{Phase: "settle", Err: err}
	}

	a.logger.Info("reference site searched", "term", term)

	// A search can land on a results listing or jump straight to an
	// article; only the listing needs scoring and a second navigation.
	var analysis pageAnalysis
	if err := a.browser.EvalJSON(ctx, resultsScript, &analysis); err != nil {
		return "", &RetrievalError{Phase: "analyze", Err: err}
	}

	if analysis.IsSearchPage {
		candidates := make([]string, len(analysis.Results))
		for i, r := range analysis.Results {
			candidates[i] = r.Title + " " + r.Snippet
		}
		best := relevance.Best(term, candidates)
		if best < 0 {
			return "", &RetrievalError{Phase: "score", Err: ErrNoMatch}
		}
		a.logger.Info("best result selected", "term", term, "title", analysis.Results[best].Title)

		if err := a.browser.Navigate(ctx, analysis.Results[best].URL); err != nil {
			return "", &RetrievalError{Phase: "open", Err: err}
		}
		if err := a.browser.Settle(ctx); err != nil {
			return "", &RetrievalError{Phase: "settle", Err: err}
		}
	}

	var content string
	if err := a.browser.EvalJSON(ctx, articleScript, &content); err != nil {
		return "", &RetrievalError{Phase: "extract", Err: err}
	}
	if len(content) < minContentLen {
		return "", &RetrievalError{Phase: "extract", Err: ErrThinContent}
	}

	return truncate(content, maxContentLen), nil
}

func (a *Agent) pause(ctx context.Context) {
	if a.searchPause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(a.searchPause):
	}
}

// truncate caps s at max runes without splitting a multi-byte character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
