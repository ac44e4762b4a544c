// Package browser owns the single shared rendering session: one launcher,
// one browser, one active page for the whole process. Every operation
// serializes on the controller mutex; there is no per-request isolation.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type Options struct {
	Headless      bool
	NavTimeout    time.Duration
	SettleTimeout time.Duration
	ActionTimeout time.Duration
}

type Controller struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// New creates a controller without launching anything; the session
// starts lazily on first use.
func New(opts Options, logger *slog.Logger) *Controller {
	return &Controller{opts: opts, logger: logger}
}

// Acquire lazily starts the launcher, browser, and first page. Repeat
// calls with a live session return immediately without re-launching.
func (c *Controller) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked(ctx)
}

func (c *Controller) acquireLocked(ctx context.Context) error {
	if c.browser != nil && c.page != nil {
		return nil
	}

	l := launcher.New().Headless(c.opts.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return fmt.Errorf("create page: %w", err)
	}

	c.launcher = l
	c.browser = b
	c.page = page
	c.logger.Info("browser session started", "headless", c.opts.Headless)
	return nil
}

// ResetPage closes the current page and opens a fresh one, acquiring the
// session first if needed. Close errors on the old page are ignored.
func (c *Controller) ResetPage(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acquireLocked(ctx); err != nil {
		return err
	}

	if c.page != nil {
		_ = c.page.Close()
		c.page = nil
	}

	page, err := c.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	c.page = page
	return nil
}

// Release tears the session down in strict order: page, then browser,
// then launcher. Nil-safe; callable when nothing was ever launched.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != nil {
		_ = c.page.Close()
		c.page = nil
	}
	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Cleanup()
		c.launcher = nil
	}
}

// Connected reports whether a session is live.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser != nil && c.page != nil
}

// Navigate loads url on the current page, bounded by the navigation timeout.
func (c *Controller) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acquireLocked(ctx); err != nil {
		return err
	}

	page := c.page.Context(ctx).Timeout(c.opts.NavTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// Settle waits for the page to finish loading and briefly stabilize,
// bounded by the settle timeout. A stability timeout alone is not an
// error; script-heavy pages never fully quiesce.
func (c *Controller) Settle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return fmt.Errorf("no active page")
	}

	page := c.page.Context(ctx).Timeout(c.opts.SettleTimeout)
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	if err := page.WaitStable(500 * time.Millisecond); err != nil {
		c.logger.Debug("page never stabilized, continuing", "error", err)
	}
	return nil
}

// Fill clears a field and types value into it.
func (c *Controller) Fill(ctx context.Context, selector, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, err := c.elementLocked(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		c.logger.Debug("select all text failed", "selector", selector, "error", err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// Click left-clicks the element once.
func (c *Controller) Click(ctx context.Context, selector string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, err := c.elementLocked(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Press sends a named key to the element.
func (c *Controller) Press(ctx context.Context, selector, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k, err := keyFromName(key)
	if err != nil {
		return err
	}
	el, err := c.elementLocked(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Type(k); err != nil {
		return fmt.Errorf("press %s on %s: %w", key, selector, err)
	}
	return nil
}

// WaitVisible blocks until the element exists and is visible, bounded by
// the per-action timeout.
func (c *Controller) WaitVisible(ctx context.Context, selector string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, err := c.elementLocked(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

func (c *Controller) elementLocked(ctx context.Context, selector string) (*rod.Element, error) {
	if err := c.acquireLocked(ctx); err != nil {
		return nil, err
	}
	el, err := c.page.Context(ctx).Timeout(c.opts.ActionTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el, nil
}

// EvalJSON evaluates a JS function on the current page and unmarshals
// its return value into out.
func (c *Controller) EvalJSON(ctx context.Context, js string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return fmt.Errorf("no active page")
	}

	res, err := c.page.Context(ctx).Timeout(c.opts.ActionTimeout).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal eval result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode eval result: %w", err)
	}
	return nil
}

// HTML returns the current page's rendered HTML.
func (c *Controller) HTML(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return "", fmt.Errorf("no active page")
	}
	html, err := c.page.Context(ctx).Timeout(c.opts.ActionTimeout).HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	return html, nil
}

// PageURL returns the current page's URL.
func (c *Controller) PageURL(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return "", fmt.Errorf("no active page")
	}
	info, err := c.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
}

func keyFromName(name string) (input.Key, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if len([]rune(name)) == 1 {
		return input.Key([]rune(name)[0]), nil
	}
	return 0, fmt.Errorf("unknown key: %s", name)
}
