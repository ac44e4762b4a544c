package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Driver is the page-op surface the executor needs; implemented by
// browser.Controller.
type Driver interface {
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Press(ctx context.Context, selector, key string) error
	WaitVisible(ctx context.Context, selector string) error
}

// Result reports an execution: the per-step lines for everything that
// completed, and on failure the failing step's index and reason. Partial
// progress is always reported, never discarded.
type Result struct {
	Completed  []string `json:"results"`
	FailedStep int      `json:"failed_step"` // -1 on full success
	Reason     string   `json:"message,omitempty"`
}

type Executor struct {
	driver Driver
	logger *slog.Logger
	settle time.Duration // pause after fill/click so the page catches up
}

func NewExecutor(d Driver, logger *slog.Logger) *Executor {
	return &Executor{driver: d, logger: logger, settle: 300 * time.Millisecond}
}

// Run executes steps in order. The first failure aborts the remaining
// steps. Callers must Validate the plan first; Run still refuses unknown
// kinds defensively.
func (e *Executor) Run(ctx context.Context, steps []Step) Result {
	res := Result{Completed: []string{}, FailedStep: -1}

	for i, s := range steps {
		e.logger.Info("executing action", "step", i+1, "total", len(steps), "type", s.Type, "selector", s.Selector)

		line, err := e.runStep(ctx, s)
		if err != nil {
			res.FailedStep = i
			res.Reason = err.Error()
			e.logger.Warn("action failed", "step", i, "type", s.Type, "selector", s.Selector, "error", err)
			return res
		}
		res.Completed = append(res.Completed, line)
	}

	return res
}

func (e *Executor) runStep(ctx context.Context, s Step) (string, error) {
	switch s.Type {
	case KindFill:
		if err := e.driver.Fill(ctx, s.Selector, s.Value); err != nil {
			return "", err
		}
		if err := e.pause(ctx, e.settle); err != nil {
			return "", err
		}
		return fmt.Sprintf("Filled '%s' with '%s'", s.Selector, s.Value), nil

	case KindClick:
		if err := e.driver.Click(ctx, s.Selector); err != nil {
			return "", err
		}
		if err := e.pause(ctx, e.settle); err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked '%s'", s.Selector), nil

	case KindPress:
		key := s.Key
		if key == "" {
			key = "Enter"
		}
		if err := e.driver.Press(ctx, s.Selector, key); err != nil {
			return "", err
		}
		return fmt.Sprintf("Pressed '%s' on '%s'", key, s.Selector), nil

	case KindWait:
		// A wait with a selector waits for that element to become visible;
		// without one it sleeps for its duration (default 800ms).
		if s.Selector != "" {
			if err := e.driver.WaitVisible(ctx, s.Selector); err != nil {
				return "", err
			}
			return fmt.Sprintf("Element visible: '%s'", s.Selector), nil
		}
		d := time.Duration(s.Duration) * time.Millisecond
		if d <= 0 {
			d = 800 * time.Millisecond
		}
		if err := e.pause(ctx, d); err != nil {
			return "", err
		}
		return fmt.Sprintf("Waited %dms", d.Milliseconds()), nil

	default:
		return "", &ValidationError{Kind: s.Type}
	}
}

func (e *Executor) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
