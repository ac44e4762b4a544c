package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// fakeDriver records calls and fails selectors listed in failOn.
type fakeDriver struct {
	calls  []string
	failOn map[string]error
}

func (d *fakeDriver) do(op, selector string) error {
	d.calls = append(d.calls, op+":"+selector)
	if err, ok := d.failOn[selector]; ok {
		return err
	}
	return nil
}

func (d *fakeDriver) Fill(_ context.Context, selector, value string) error {
	return d.do("fill", selector)
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	return d.do("click", selector)
}

func (d *fakeDriver) Press(_ context.Context, selector, key string) error {
	return d.do("press "+key, selector)
}

func (d *fakeDriver) WaitVisible(_ context.Context, selector string) error {
	return d.do("wait", selector)
}

func newTestExecutor(d Driver) *Executor {
	e := NewExecutor(d, slog.Default())
	e.settle = 0 // no need to pace a fake page
	return e
}

func TestRun_FullSuccess(t *testing.T) {
	d := &fakeDriver{}
	e := newTestExecutor(d)

	res := e.Run(context.Background(), []Step{
		{Type: KindFill, Selector: "#q", Value: "aspirin"},
		{Type: KindPress, Selector: "#q"},
		{Type: KindClick, Selector: "#go"},
	})

	if res.FailedStep != -1 {
		t.Fatalf("expected full success, failed at %d: %s", res.FailedStep, res.Reason)
	}
	if len(res.Completed) != 3 {
		t.Fatalf("expected 3 result lines, got %d", len(res.Completed))
	}
	// Press defaults to Enter when no key given.
	if !strings.Contains(res.Completed[1], "Enter") {
		t.Errorf("expected default Enter key, got %q", res.Completed[1])
	}
}

func TestRun_PartialFailure(t *testing.T) {
	d := &fakeDriver{failOn: map[string]error{
		".results": fmt.Errorf("element not found: .results: timeout"),
	}}
	e := newTestExecutor(d)

	res := e.Run(context.Background(), []Step{
		{Type: KindFill, Selector: "#q", Value: "aspirin"},
		{Type: KindWait, Selector: ".results"},
		{Type: KindClick, Selector: "#go"},
	})

	if res.FailedStep != 1 {
		t.Fatalf("expected failure at step 1, got %d", res.FailedStep)
	}
	if !strings.Contains(res.Reason, "timeout") {
		t.Errorf("reason should carry the driver error, got %q", res.Reason)
	}
	if len(res.Completed) != 1 || !strings.Contains(res.Completed[0], "#q") {
		t.Errorf("step 1's result must survive the failure: %+v", res.Completed)
	}
	// Step 3 never attempted.
	for _, call := range d.calls {
		if strings.Contains(call, "#go") {
			t.Error("step after the failure was attempted")
		}
	}
}

func TestRun_WaitSelectorVsDuration(t *testing.T) {
	d := &fakeDriver{}
	e := newTestExecutor(d)

	res := e.Run(context.Background(), []Step{
		{Type: KindWait, Selector: ".ready"},
		{Type: KindWait, Duration: 1},
	})

	if res.FailedStep != -1 {
		t.Fatalf("unexpected failure: %s", res.Reason)
	}
	if len(d.calls) != 1 || d.calls[0] != "wait:.ready" {
		t.Errorf("selector wait should hit the driver exactly once: %v", d.calls)
	}
	if !strings.Contains(res.Completed[1], "Waited 1ms") {
		t.Errorf("duration wait result line: %q", res.Completed[1])
	}
}

func TestRun_UnknownKindRefused(t *testing.T) {
	d := &fakeDriver{}
	e := newTestExecutor(d)

	res := e.Run(context.Background(), []Step{
		{Type: "teleport", Selector: "#x"},
	})

	if res.FailedStep != 0 {
		t.Fatalf("expected failure at step 0, got %d", res.FailedStep)
	}
	if len(d.calls) != 0 {
		t.Error("unknown kind must never reach the driver")
	}
}

func TestRun_CancelledContextStopsWait(t *testing.T) {
	d := &fakeDriver{}
	e := NewExecutor(d, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Run(ctx, []Step{{Type: KindWait, Duration: 60000}})
	if res.FailedStep != 0 {
		t.Fatalf("expected cancelled wait to fail, got %d", res.FailedStep)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatal("sanity: context should be cancelled")
	}
}
