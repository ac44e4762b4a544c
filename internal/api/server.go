// Package api is the HTTP surface: the chat pipeline, the manual browser
// automation endpoints (connect/plan/execute/simplify), history access,
// and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	readability "github.com/go-shiori/go-readability"

	"github.com/mohammedhrima/MediSimpleGPT/internal/browser"
	"github.com/mohammedhrima/MediSimpleGPT/internal/history"
	"github.com/mohammedhrima/MediSimpleGPT/internal/plan"
	"github.com/mohammedhrima/MediSimpleGPT/internal/prompt"
)

const (
	defaultSessionID = "default"
	historyLimit     = 100

	// Article isolation bounds for /simplify.
	minArticleLen = 200
	maxArticleLen = 4000
)

// Turner runs one chat message through the gate pipeline.
type Turner interface {
	HandleTurn(ctx context.Context, sessionID, query string) (string, error)
}

// History is the read/delete slice of the message store.
type History interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// Browser is the slice of the rendering session the endpoints drive.
type Browser interface {
	ResetPage(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Settle(ctx context.Context) error
	Extract(ctx context.Context) ([]browser.Element, error)
	Connected() bool
	HTML(ctx context.Context) (string, error)
	PageURL(ctx context.Context) (string, error)
	EvalJSON(ctx context.Context, js string, out any) error
}

// Planner turns a page element listing and an instruction into a raw plan.
type Planner interface {
	Plan(ctx context.Context, dom, instruction string) (string, error)
}

// Executor runs a validated plan against the page.
type Executor interface {
	Run(ctx context.Context, steps []plan.Step) plan.Result
}

// LLM is the completion surface /simplify needs.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Server struct {
	turner   Turner
	history  History
	browser  Browser
	planner  Planner
	executor Executor
	llm      LLM
	model    string
	logger   *slog.Logger

	httpServer *http.Server
}

type Options struct {
	Port       int
	CORSOrigin string
	Model      string
}

func NewServer(opts Options, turner Turner, hist History, b Browser, planner Planner, executor Executor, llm LLM, logger *slog.Logger) *Server {
	s := &Server{
		turner:   turner,
		history:  hist,
		browser:  b,
		planner:  planner,
		executor: executor,
		llm:      llm,
		model:    opts.Model,
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(opts.CORSOrigin))

	router.Post("/chat", s.chat)
	router.Post("/connect", s.connect)
	router.Post("/plan", s.plan)
	router.Post("/execute", s.execute)
	router.Post("/simplify", s.simplify)
	router.Get("/history/{sessionID}", s.getHistory)
	router.Delete("/history/{sessionID}", s.clearHistory)
	router.Get("/health", s.health)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Chat and execute turns run long: model calls plus page navigation.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  time.Minute,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = defaultSessionID
	}

	reply, err := s.turner.HandleTurn(r.Context(), req.SessionID, req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

type connectRequest struct {
	URL string `json:"url"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	ctx := r.Context()
	if err := s.browser.ResetPage(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.browser.Navigate(ctx, req.URL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.browser.Settle(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	elements, err := s.browser.Extract(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("page connected", "url", req.URL, "elements", len(elements))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "connected",
		"dom":    elements,
	})
}

type planRequest struct {
	Instruction string          `json:"instruction"`
	DOM         json.RawMessage `json:"dom"`
}

func (s *Server) plan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		writeError(w, http.StatusBadRequest, "instruction is required")
		return
	}

	raw, err := s.planner.Plan(r.Context(), string(req.DOM), req.Instruction)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Model replies wrap the array in prose or fences; lift and check it
	// here so the client always receives a clean, valid plan.
	steps, err := plan.Extract(raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := plan.Validate(steps); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": steps})
}

type executeRequest struct {
	Actions []plan.Step `json:"actions"`
	URL     string      `json:"url"`
}

type executeResponse struct {
	Status string `json:"status"`
	plan.Result
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Actions) == 0 {
		writeError(w, http.StatusBadRequest, "actions are required")
		return
	}

	// Reject malformed plans before touching the page.
	if err := plan.Validate(req.Actions); err != nil {
		failed := 0
		var verr *plan.ValidationError
		if errors.As(err, &verr) {
			failed = verr.Index
		}
		writeJSON(w, http.StatusUnprocessableEntity, executeResponse{
			Status: "error",
			Result: plan.Result{FailedStep: failed, Reason: err.Error()},
		})
		return
	}

	ctx := r.Context()
	if req.URL != "" {
		if err := s.browser.Navigate(ctx, req.URL); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.browser.Settle(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	res := s.executor.Run(ctx, req.Actions)
	status := "success"
	if res.FailedStep >= 0 {
		status = "error"
	}
	writeJSON(w, http.StatusOK, executeResponse{Status: status, Result: res})
}

// fallbackArticleScript isolates article text when readability finds
// nothing usable in the rendered HTML.
const fallbackArticleScript = `() => {
	const el = document.querySelector('article, main, #mw-content-text, #content, .content');
	return (el || document.body).innerText;
}`

func (s *Server) simplify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	html, err := s.browser.HTML(ctx)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no page connected")
		return
	}
	pageURL, err := s.browser.PageURL(ctx)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no page connected")
		return
	}

	content := extractReadable(html, pageURL)
	if len(content) < minArticleLen {
		var text string
		if err := s.browser.EvalJSON(ctx, fallbackArticleScript, &text); err == nil {
			content = strings.TrimSpace(text)
		}
	}
	if len(content) < minArticleLen {
		writeError(w, http.StatusBadRequest, "could not find enough article content on this page")
		return
	}
	content = truncateRunes(content, maxArticleLen)

	rendered, err := prompt.Render("article_simplification", map[string]string{"content": content})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	simplified, err := s.llm.Complete(ctx, rendered)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("page simplified", "url", pageURL, "content_len", len(content))
	writeJSON(w, http.StatusOK, map[string]string{"simplified": simplified})
}

// truncateRunes caps s at max runes without splitting a multi-byte
// character.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// extractReadable runs readability over the rendered HTML; any failure
// returns "" so the caller falls back to the in-page script.
func extractReadable(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	msgs, err := s.history.Recent(r.Context(), sessionID, historyLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]historyMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, historyMessage{Role: m.Role, Content: m.Content})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.history.Clear(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("history cleared", "session_id", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"browser_connected": s.browser.Connected(),
		"model":             s.model,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
