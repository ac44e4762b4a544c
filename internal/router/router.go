// Package router is the top-level turn pipeline: it classifies each
// incoming message through a fixed sequence of gates (confirmation,
// greeting, follow-up, meta, typo), decides whether the turn needs fresh
// retrieval, generates the reply, and persists the exchange.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mohammedhrima/MediSimpleGPT/internal/history"
	"github.com/mohammedhrima/MediSimpleGPT/internal/ollama"
	"github.com/mohammedhrima/MediSimpleGPT/internal/prompt"
)

// LLM is the language-model surface the pipeline needs. Classification
// calls fail open: an error counts as a negative classification.
type LLM interface {
	Chat(ctx context.Context, messages []ollama.Message) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// Store is the append-only session message log.
type Store interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
	Append(ctx context.Context, sessionID, role, content string) error
}

// Retriever fetches reference content for a topic term.
type Retriever interface {
	Retrieve(ctx context.Context, term string) (string, error)
}

// disambiguationMarker is the reply prefix the typo gate emits; its
// presence in the latest assistant message arms the confirmation gate on
// the next turn.
const disambiguationMarker = "Did you mean:"

const greetingReply = "Hello! I'm **MediSimple**, your friendly medical information assistant.\n\n" +
	"I can help you understand medical conditions, symptoms, medications, and health " +
	"topics in plain, simple language. Just ask me anything — like *What is diabetes?* " +
	"or *How does the heart work?*\n\n" +
	"What would you like to know about today?"

const longQueryReply = "Your question is a bit long. Could you shorten it so I can help better?"

const apologyReply = "Something went wrong on my end. Please try again."

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "hiya": true, "howdy": true,
	"greetings": true, "sup": true, "whats up": true, "what's up": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"good day": true, "morning": true, "afternoon": true, "evening": true,
	"yo": true, "helo": true, "hii": true, "hiii": true, "heya": true,
}

// metaPhrases reference the conversation itself; such queries must never
// trigger retrieval keyed on accidental lexical overlap with the phrase.
var metaPhrases = []string{
	"summary",
	"summarize",
	"recap",
	"what did we discuss",
	"what did we talk about",
	"what have we covered",
	"our conversation",
	"so far",
}

type Config struct {
	HistoryWindow int
	MaxQueryLen   int
}

type Router struct {
	llm       LLM
	store     Store
	retriever Retriever
	cfg       Config
	logger    *slog.Logger
}

func New(llm LLM, store Store, retriever Retriever, cfg Config, logger *slog.Logger) *Router {
	return &Router{llm: llm, store: store, retriever: retriever, cfg: cfg, logger: logger}
}

// HandleTurn runs one message through the pipeline and returns the reply.
// The error return covers transport-level input problems only; every
// pipeline failure degrades into a user-visible reply.
func (r *Router) HandleTurn(ctx context.Context, sessionID, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	turnID := uuid.NewString()
	log := r.logger.With("session_id", sessionID, "turn_id", turnID)

	if n := utf8.RuneCountInString(query); n > r.cfg.MaxQueryLen {
		log.Info("query over length cap", "gate", "length", "len", n)
		return longQueryReply, nil
	}

	msgs, err := r.store.Recent(ctx, sessionID, r.cfg.HistoryWindow)
	if err != nil {
		// A dead history read degrades to a fresh-topic turn.
		log.Error("history read failed", "error", err)
		msgs = nil
	}

	// Confirmation gate: a pending disambiguation in the latest assistant
	// message plus a selecting reply resolves to the confirmed term and
	// forces fresh retrieval, bypassing every other gate.
	confirmed := false
	if suggestion := lastAssistantSuggestion(msgs); suggestion != "" {
		if term := r.confirmTerm(ctx, log, suggestion, query); term != "" {
			log.Info("confirmation resolved", "gate", "confirmation", "term", term)
			if err := r.store.Append(ctx, sessionID, history.RoleUser, query); err != nil {
				log.Error("persist selection failed", "error", err)
			}
			query = term
			confirmed = true
		}
	}

	// Greeting gate: canned reply, zero model and retrieval calls.
	if !confirmed && greetings[strings.Trim(strings.ToLower(query), "! .,?")] {
		log.Info("greeting", "gate", "greeting")
		r.persist(ctx, log, sessionID, query, greetingReply)
		return greetingReply, nil
	}

	// Follow-up gate. Must run before the typo gate: the typo detector is
	// tuned for short noun phrases and misfires on longer natural-language
	// follow-ups.
	isFollowup := false
	if len(msgs) > 0 && !confirmed {
		isFollowup = r.detectFollowup(ctx, log, msgs, query)
		log.Info("follow-up classified", "gate", "followup", "is_followup", isFollowup)
	}

	// Meta gate: a message about the conversation itself is always a
	// follow-up, whatever the model said. A confirmed term is never a meta
	// query; confirmation always forces fresh retrieval.
	if !confirmed && len(msgs) > 0 && isMetaQuery(query) {
		log.Info("meta query", "gate", "meta")
		isFollowup = true
	}

	// Typo gate: suspected misspellings get a disambiguation reply and the
	// turn ends; resolution arrives next turn through the confirmation gate.
	if !confirmed && !isFollowup {
		if clarification := r.detectTypo(ctx, log, query); clarification != "" {
			log.Info("typo flagged", "gate", "typo", "term", query)
			r.persist(ctx, log, sessionID, query, clarification)
			return clarification, nil
		}
	}

	// Retrieval: new topics (including post-confirmation) fetch reference
	// content; failure degrades to history-only generation with a hedge.
	var contextBlock string
	if !isFollowup {
		text, err := r.retriever.Retrieve(ctx, query)
		if err != nil {
			log.Warn("retrieval failed, degrading to history", "gate", "retrieve", "term", query, "error", err)
			contextBlock = transcriptContext(msgs) +
				"(Note: the reference lookup failed, so answer from the conversation and general knowledge, and say when you are unsure.)\n\n"
		} else {
			contextBlock = "Wikipedia article:\n" + text + "\n\n"
		}
	} else {
		contextBlock = transcriptContext(msgs)
	}

	reply, err := r.generate(ctx, msgs, contextBlock, query)
	if err != nil {
		log.Error("generation failed", "gate", "generate", "term", query, "error", err)
		return apologyReply, nil
	}
	log.Info("reply generated", "gate", "generate", "term", query)

	r.persist(ctx, log, sessionID, query, reply)
	return reply, nil
}

// lastAssistantSuggestion returns the latest assistant message when it
// carries the disambiguation marker, else "".
func lastAssistantSuggestion(msgs []history.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == history.RoleAssistant {
			if strings.Contains(msgs[i].Content, disambiguationMarker) {
				return msgs[i].Content
			}
			return ""
		}
	}
	return ""
}

// confirmTerm asks the model whether query selects one of the suggested
// terms. Returns the canonical term, or "" when not confirmed.
func (r *Router) confirmTerm(ctx context.Context, log *slog.Logger, suggestion, query string) string {
	rendered, err := prompt.Render("confirmation_detection", map[string]string{
		"suggestion": suggestion,
		"query":      query,
	})
	if err != nil {
		log.Error("render confirmation prompt failed", "error", err)
		return ""
	}
	reply, err := r.llm.Complete(ctx, rendered)
	if err != nil {
		log.Warn("confirmation call failed, treating as not confirmed", "error", err)
		return ""
	}
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "CONFIRMED:") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, "CONFIRMED:"))
}

func (r *Router) detectFollowup(ctx context.Context, log *slog.Logger, msgs []history.Message, query string) bool {
	rendered, err := prompt.Render("followup_detection", map[string]string{
		"history": transcript(tail(msgs, 4)),
		"query":   query,
	})
	if err != nil {
		log.Error("render followup prompt failed", "error", err)
		return false
	}
	reply, err := r.llm.Complete(ctx, rendered)
	if err != nil {
		log.Warn("follow-up call failed, treating as new topic", "error", err)
		return false
	}
	return strings.TrimSpace(reply) == "FOLLOW_UP"
}

// detectTypo returns the disambiguation reply text when the model flags
// the query as a misspelling, else "".
func (r *Router) detectTypo(ctx context.Context, log *slog.Logger, query string) string {
	rendered, err := prompt.Render("typo_detection", map[string]string{"query": query})
	if err != nil {
		log.Error("render typo prompt failed", "error", err)
		return ""
	}
	reply, err := r.llm.Complete(ctx, rendered)
	if err != nil {
		log.Warn("typo call failed, treating as clean", "error", err)
		return ""
	}
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "TYPO:") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, "TYPO:"))
}

func (r *Router) generate(ctx context.Context, msgs []history.Message, contextBlock, query string) (string, error) {
	rendered, err := prompt.Render("simplification", map[string]string{
		"context": contextBlock,
		"query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("render simplification prompt: %w", err)
	}

	window := tail(msgs, r.cfg.HistoryWindow)
	messages := make([]ollama.Message, 0, len(window)+1)
	for _, m := range window {
		messages = append(messages, ollama.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: rendered})

	return r.llm.Chat(ctx, messages)
}

// persist appends the exchange, user message first. Append failures are
// logged; the reply still goes out.
func (r *Router) persist(ctx context.Context, log *slog.Logger, sessionID, query, reply string) {
	if err := r.store.Append(ctx, sessionID, history.RoleUser, query); err != nil {
		log.Error("persist user message failed", "error", err)
		return
	}
	if err := r.store.Append(ctx, sessionID, history.RoleAssistant, reply); err != nil {
		log.Error("persist assistant message failed", "error", err)
	}
}

func isMetaQuery(query string) bool {
	q := strings.ToLower(query)
	for _, phrase := range metaPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

func transcript(msgs []history.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func transcriptContext(msgs []history.Message) string {
	return "Previous conversation:\n" + transcript(tail(msgs, 4)) + "\n"
}

func tail(msgs []history.Message, n int) []history.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
