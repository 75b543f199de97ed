// Package event defines the bootstrap lifecycle events and the synchronous
// bus that carries them. Events decouple the executor and progress reporter
// from the renderers: the reporter publishes status transitions, renderers
// subscribe and project them. Rendering never feeds back into task state.
package event

import "time"

// Event is implemented by all bootstrap events.
type Event interface {
	// EventType returns a stable identifier, convention "category.action"
	// (e.g. "task.started", "phase.completed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides the common fields. Embed in concrete event types.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// PlanComputedEvent is emitted once the execution plan is built, before any
// step runs.
type PlanComputedEvent struct {
	baseEvent
	Profile    string   // profile name the plan was computed for
	PlanHash   string   // content hash used for checkpoint validation
	TotalSteps int      // steps across all phases
	Phases     []string // phase names in execution order
	DryRun     bool
}

// NewPlanComputedEvent creates a PlanComputedEvent.
func NewPlanComputedEvent(profile, planHash string, totalSteps int, phases []string, dryRun bool) PlanComputedEvent {
	return PlanComputedEvent{
		baseEvent:  newBaseEvent("plan.computed"),
		Profile:    profile,
		PlanHash:   planHash,
		TotalSteps: totalSteps,
		Phases:     phases,
		DryRun:     dryRun,
	}
}

// PhaseStartedEvent is emitted when a phase begins executing.
type PhaseStartedEvent struct {
	baseEvent
	Phase string
	Steps int
}

// NewPhaseStartedEvent creates a PhaseStartedEvent.
func NewPhaseStartedEvent(phase string, steps int) PhaseStartedEvent {
	return PhaseStartedEvent{baseEvent: newBaseEvent("phase.started"), Phase: phase, Steps: steps}
}

// PhaseCompletedEvent is emitted when every step of a phase has reached a
// terminal state.
type PhaseCompletedEvent struct {
	baseEvent
	Phase    string
	Duration time.Duration
	Failed   int // number of failed steps
}

// NewPhaseCompletedEvent creates a PhaseCompletedEvent.
func NewPhaseCompletedEvent(phase string, duration time.Duration, failed int) PhaseCompletedEvent {
	return PhaseCompletedEvent{
		baseEvent: newBaseEvent("phase.completed"),
		Phase:     phase,
		Duration:  duration,
		Failed:    failed,
	}
}

// TaskStartedEvent is emitted when a step transitions Pending -> Running.
type TaskStartedEvent struct {
	baseEvent
	TaskID string // step id, e.g. "install:ripgrep"
	Tool   string // human-readable tool name
	Action string // detect | install | verify | skip
}

// NewTaskStartedEvent creates a TaskStartedEvent.
func NewTaskStartedEvent(taskID, tool, action string) TaskStartedEvent {
	return TaskStartedEvent{
		baseEvent: newBaseEvent("task.started"),
		TaskID:    taskID,
		Tool:      tool,
		Action:    action,
	}
}

// TaskProgressEvent carries an intermediate note from a running step.
type TaskProgressEvent struct {
	baseEvent
	TaskID  string
	Message string
}

// NewTaskProgressEvent creates a TaskProgressEvent.
func NewTaskProgressEvent(taskID, message string) TaskProgressEvent {
	return TaskProgressEvent{baseEvent: newBaseEvent("task.progress"), TaskID: taskID, Message: message}
}

// TaskCompletedEvent is emitted when a step reaches a terminal state.
type TaskCompletedEvent struct {
	baseEvent
	TaskID   string
	Tool     string
	Status   string // success | failed | skipped
	Detail   string // error message or skip reason
	Duration time.Duration
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID, tool, status, detail string, duration time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent("task.completed"),
		TaskID:    taskID,
		Tool:      tool,
		Status:    status,
		Detail:    detail,
		Duration:  duration,
	}
}

// BootstrapCompletedEvent is the final event of a run.
type BootstrapCompletedEvent struct {
	baseEvent
	Success  bool
	ExitCode int
	Duration time.Duration
}

// NewBootstrapCompletedEvent creates a BootstrapCompletedEvent.
func NewBootstrapCompletedEvent(success bool, exitCode int, duration time.Duration) BootstrapCompletedEvent {
	return BootstrapCompletedEvent{
		baseEvent: newBaseEvent("bootstrap.completed"),
		Success:   success,
		ExitCode:  exitCode,
		Duration:  duration,
	}
}
