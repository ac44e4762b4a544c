//go:build integration

package browser

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func skipWithoutBrowser(t *testing.T) {
	t.Helper()
	if os.Getenv("BROWSER_INTEGRATION") == "" {
		t.Skip("BROWSER_INTEGRATION not set, skipping integration test")
	}
}

func testOptions() Options {
	return Options{
		Headless:      true,
		NavTimeout:    15 * time.Second,
		SettleTimeout: 10 * time.Second,
		ActionTimeout: 5 * time.Second,
	}
}

func TestIntegration_AcquireTwiceLaunchesOnce(t *testing.T) {
	skipWithoutBrowser(t)
	ctx := context.Background()

	c := New(testOptions(), slog.Default())
	defer c.Release()

	if err := c.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	first := c.browser

	if err := c.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if c.browser != first {
		t.Error("second acquire replaced the browser instance")
	}
}

func TestIntegration_ExtractVisibleElements(t *testing.T) {
	skipWithoutBrowser(t)
	ctx := context.Background()

	c := New(testOptions(), slog.Default())
	defer c.Release()

	if err := c.Navigate(ctx, "data:text/html,<button>ok</button><button style='display:none'>hidden</button>"); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	elements, err := c.Extract(ctx)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("expected exactly one visible element, got %d: %+v", len(elements), elements)
	}
	if elements[0].Text != "ok" {
		t.Errorf("unexpected element: %+v", elements[0])
	}
}

func TestIntegration_ReleaseAfterUse(t *testing.T) {
	skipWithoutBrowser(t)
	ctx := context.Background()

	c := New(testOptions(), slog.Default())
	if err := c.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	c.Release()
	if c.Connected() {
		t.Error("released controller reports connected")
	}
	// Release again must be a no-op.
	c.Release()
}
