package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/repoforge/bootstrap/internal/event"
)

// CIRenderer writes one plain timestamped line per event. No cursor
// movement, no color: the output is meant for CI log archives.
type CIRenderer struct {
	mu  sync.Mutex
	w   io.Writer
	bus *event.Bus
	sub uint64
}

// NewCIRenderer creates a CI renderer writing to w.
func NewCIRenderer(w io.Writer) *CIRenderer {
	return &CIRenderer{w: w}
}

// Attach subscribes to all events on bus.
func (r *CIRenderer) Attach(bus *event.Bus) {
	r.bus = bus
	r.sub = bus.SubscribeAll(r.handle)
}

// Close unsubscribes from the bus.
func (r *CIRenderer) Close() error {
	if r.bus != nil {
		r.bus.Unsubscribe(r.sub)
	}
	return nil
}

func (r *CIRenderer) handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := e.Timestamp().Format("15:04:05")
	switch ev := e.(type) {
	case event.PlanComputedEvent:
		mode := ""
		if ev.DryRun {
			mode = " (dry-run)"
		}
		fmt.Fprintf(r.w, "[%s] plan: profile %s, %d steps%s\n", ts, ev.Profile, ev.TotalSteps, mode)
	case event.PhaseStartedEvent:
		fmt.Fprintf(r.w, "[%s] phase %s: %d steps\n", ts, ev.Phase, ev.Steps)
	case event.PhaseCompletedEvent:
		fmt.Fprintf(r.w, "[%s] phase %s: done in %s (%d failed)\n", ts, ev.Phase, round(ev.Duration), ev.Failed)
	case event.TaskStartedEvent:
		fmt.Fprintf(r.w, "[%s] %s: %s...\n", ts, ev.Tool, ev.Action)
	case event.TaskProgressEvent:
		fmt.Fprintf(r.w, "[%s] %s: %s\n", ts, ev.TaskID, ev.Message)
	case event.TaskCompletedEvent:
		line := fmt.Sprintf("[%s] %s: %s", ts, ev.Tool, ev.Status)
		if ev.Detail != "" {
			line += " (" + ev.Detail + ")"
		}
		if ev.Status != "skipped" {
			line += " [" + round(ev.Duration).String() + "]"
		}
		fmt.Fprintln(r.w, line)
	case event.BootstrapCompletedEvent:
		outcome := "ok"
		if !ev.Success {
			outcome = fmt.Sprintf("failed (exit %d)", ev.ExitCode)
		}
		fmt.Fprintf(r.w, "[%s] bootstrap %s in %s\n", ts, outcome, round(ev.Duration))
	}
}

// round trims durations to a readable precision for log lines.
func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(100 * time.Millisecond)
	default:
		return d.Round(time.Millisecond)
	}
}
