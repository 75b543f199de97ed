package progress

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/repoforge/bootstrap/internal/event"
)

// JSONRenderer writes one JSON object per event, newline-delimited, in the
// order events occur. Every object carries "event" and "ts"; remaining
// fields depend on the event type. Nothing else is written to the stream,
// so callers can pipe it straight into a parser.
type JSONRenderer struct {
	mu  sync.Mutex
	enc *json.Encoder
	bus *event.Bus
	sub uint64
}

// NewJSONRenderer creates a JSON renderer writing to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

// Attach subscribes to all events on bus.
func (r *JSONRenderer) Attach(bus *event.Bus) {
	r.bus = bus
	r.sub = bus.SubscribeAll(r.handle)
}

// Close unsubscribes from the bus.
func (r *JSONRenderer) Close() error {
	if r.bus != nil {
		r.bus.Unsubscribe(r.sub)
	}
	return nil
}

func (r *JSONRenderer) handle(e event.Event) {
	record := map[string]any{
		"event": e.EventType(),
		"ts":    e.Timestamp().UTC().Format(time.RFC3339Nano),
	}

	switch ev := e.(type) {
	case event.PlanComputedEvent:
		record["profile"] = ev.Profile
		record["plan_hash"] = ev.PlanHash
		record["total_steps"] = ev.TotalSteps
		record["phases"] = ev.Phases
		record["dry_run"] = ev.DryRun
	case event.PhaseStartedEvent:
		record["phase"] = ev.Phase
		record["steps"] = ev.Steps
	case event.PhaseCompletedEvent:
		record["phase"] = ev.Phase
		record["duration_ms"] = ev.Duration.Milliseconds()
		record["failed"] = ev.Failed
	case event.TaskStartedEvent:
		record["task"] = ev.TaskID
		record["tool"] = ev.Tool
		record["action"] = ev.Action
	case event.TaskProgressEvent:
		record["task"] = ev.TaskID
		record["message"] = ev.Message
	case event.TaskCompletedEvent:
		record["task"] = ev.TaskID
		record["tool"] = ev.Tool
		record["status"] = ev.Status
		record["duration_ms"] = ev.Duration.Milliseconds()
		if ev.Detail != "" {
			record["detail"] = ev.Detail
		}
	case event.BootstrapCompletedEvent:
		record["success"] = ev.Success
		record["exit_code"] = ev.ExitCode
		record["duration_ms"] = ev.Duration.Milliseconds()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Encode errors mean a closed pipe; nothing useful to do with them.
	_ = r.enc.Encode(record)
}
