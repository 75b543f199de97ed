// Package progress tracks per-task state for a bootstrap run and renders it
// in one of three modes: an interactive terminal UI, plain timestamped lines
// for CI logs, and a machine-readable JSON event stream.
//
// The Reporter owns task status and publishes transitions onto the event
// bus; renderers subscribe and project. The flow is one-directional —
// rendering never feeds back into task state.
package progress

import (
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/repoforge/bootstrap/internal/event"
)

// Status is a task's lifecycle state. The only legal transitions are
// Pending -> Running and Running -> one of the terminal states, except that
// a task may go Pending -> Skipped directly when its dependency failed or
// the plan decided no action is needed.
type Status int

const (
	Pending Status = iota
	Running
	Success
	Failed
	Skipped
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == Success || s == Failed || s == Skipped
}

// Task is the tracked state of one plan step.
type Task struct {
	ID         string
	Tool       string
	Action     string
	Status     Status
	Detail     string // error message or skip reason
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the task ran, zero until finished.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Mode selects the renderer.
type Mode int

const (
	// Interactive renders a live-updating terminal UI.
	Interactive Mode = iota
	// CI renders plain timestamped lines.
	CI
	// JSON renders one JSON object per event.
	JSON
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Interactive:
		return "interactive"
	case CI:
		return "ci"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// DetectMode picks the renderer: --json wins, then --ci, then a tty check
// on stdout. Non-tty output (pipes, redirects) gets CI mode so logs stay
// readable.
func DetectMode(ci, json bool) Mode {
	switch {
	case json:
		return JSON
	case ci:
		return CI
	case isTerminal(os.Stdout):
		return Interactive
	default:
		return CI
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Reporter owns task state and publishes every transition to the bus.
// Safe for concurrent use by executor workers.
type Reporter struct {
	mu    sync.Mutex
	bus   *event.Bus
	tasks map[string]*Task
	order []string
}

// NewReporter creates a reporter publishing to bus.
func NewReporter(bus *event.Bus) *Reporter {
	return &Reporter{bus: bus, tasks: make(map[string]*Task)}
}

// Register adds a pending task. Registration order is preserved for display.
func (r *Reporter) Register(id, tool, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; ok {
		return
	}
	r.tasks[id] = &Task{ID: id, Tool: tool, Action: action, Status: Pending}
	r.order = append(r.order, id)
}

// Start transitions a task to Running and publishes task.started.
func (r *Reporter) Start(id string) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status != Pending {
		r.mu.Unlock()
		return
	}
	task.Status = Running
	task.StartedAt = time.Now()
	tool, action := task.Tool, task.Action
	r.mu.Unlock()

	r.bus.Publish(event.NewTaskStartedEvent(id, tool, action))
}

// Progress publishes an intermediate note for a running task.
func (r *Reporter) Progress(id, message string) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	running := ok && task.Status == Running
	r.mu.Unlock()
	if !running {
		return
	}
	r.bus.Publish(event.NewTaskProgressEvent(id, message))
}

// Finish transitions a task to a terminal status and publishes
// task.completed. Transitions out of a terminal state are ignored.
func (r *Reporter) Finish(id string, status Status, detail string) {
	if !status.Terminal() {
		return
	}
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	task.Status = status
	task.Detail = detail
	task.FinishedAt = time.Now()
	if task.StartedAt.IsZero() {
		task.StartedAt = task.FinishedAt
	}
	tool, dur := task.Tool, task.Duration()
	r.mu.Unlock()

	r.bus.Publish(event.NewTaskCompletedEvent(id, tool, status.String(), detail, dur))
}

// Snapshot returns the tasks in registration order.
func (r *Reporter) Snapshot() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tasks[id])
	}
	return out
}

// Counts returns the number of tasks in each status.
func (r *Reporter) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int)
	for _, task := range r.tasks {
		counts[task.Status]++
	}
	return counts
}

// Failed returns the ids of failed tasks, sorted.
func (r *Reporter) Failed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, task := range r.tasks {
		if task.Status == Failed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Renderer consumes events and writes output. Close flushes and detaches.
type Renderer interface {
	Attach(bus *event.Bus)
	Close() error
}

// NewRenderer builds the renderer for a mode, writing to w.
func NewRenderer(mode Mode, w io.Writer, reporter *Reporter) Renderer {
	switch mode {
	case JSON:
		return NewJSONRenderer(w)
	case Interactive:
		return NewInteractiveRenderer(w, reporter)
	default:
		return NewCIRenderer(w)
	}
}
