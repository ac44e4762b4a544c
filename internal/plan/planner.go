package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammedhrima/MediSimpleGPT/internal/prompt"
)

// LLM is the completion surface the planner needs.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Planner asks the model for an action plan over the extracted page
// elements. The raw plan text is returned as-is; parsing and validation
// happen at execute time.
type Planner struct {
	llm    LLM
	logger *slog.Logger
}

func NewPlanner(llm LLM, logger *slog.Logger) *Planner {
	return &Planner{llm: llm, logger: logger}
}

func (p *Planner) Plan(ctx context.Context, dom, instruction string) (string, error) {
	rendered, err := prompt.Render("action_planning", map[string]string{
		"dom":         dom,
		"instruction": instruction,
	})
	if err != nil {
		return "", fmt.Errorf("render planning prompt: %w", err)
	}

	p.logger.Info("planning actions", "instruction", instruction, "dom_len", len(dom))

	raw, err := p.llm.Complete(ctx, rendered)
	if err != nil {
		return "", fmt.Errorf("plan actions: %w", err)
	}
	return raw, nil
}
