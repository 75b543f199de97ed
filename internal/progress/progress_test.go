package progress

import (
	"testing"
	"time"

	"github.com/repoforge/bootstrap/internal/event"
)

func TestReporterTransitions(t *testing.T) {
	r := NewReporter(event.NewBus())
	r.Register("install:ripgrep", "ripgrep", "install")

	r.Start("install:ripgrep")
	if got := r.Snapshot()[0].Status; got != Running {
		t.Errorf("status after Start = %s, want running", got)
	}

	r.Finish("install:ripgrep", Success, "")
	if got := r.Snapshot()[0].Status; got != Success {
		t.Errorf("status after Finish = %s, want success", got)
	}
}

func TestReporterTerminalIsFinal(t *testing.T) {
	r := NewReporter(event.NewBus())
	r.Register("t", "tool", "install")
	r.Start("t")
	r.Finish("t", Failed, "boom")

	r.Finish("t", Success, "")
	if got := r.Snapshot()[0]; got.Status != Failed || got.Detail != "boom" {
		t.Errorf("task = %s/%q, terminal state must not change", got.Status, got.Detail)
	}
	r.Start("t")
	if got := r.Snapshot()[0].Status; got != Failed {
		t.Errorf("Start after Finish changed status to %s", got)
	}
}

func TestReporterSkipWithoutStart(t *testing.T) {
	r := NewReporter(event.NewBus())
	r.Register("t", "tool", "install")

	r.Finish("t", Skipped, "dependency failed")
	got := r.Snapshot()[0]
	if got.Status != Skipped || got.Detail != "dependency failed" {
		t.Errorf("task = %s/%q, want skipped with reason", got.Status, got.Detail)
	}
}

func TestReporterRejectsNonTerminalFinish(t *testing.T) {
	r := NewReporter(event.NewBus())
	r.Register("t", "tool", "install")
	r.Start("t")

	r.Finish("t", Pending, "")
	if got := r.Snapshot()[0].Status; got != Running {
		t.Errorf("status = %s, non-terminal Finish must be ignored", got)
	}
}

func TestReporterPublishesEvents(t *testing.T) {
	bus := event.NewBus()
	var types []string
	bus.SubscribeAll(func(e event.Event) { types = append(types, e.EventType()) })

	r := NewReporter(bus)
	r.Register("t", "tool", "install")
	r.Start("t")
	r.Progress("t", "downloading")
	r.Finish("t", Success, "")

	want := []string{"task.started", "task.progress", "task.completed"}
	if len(types) != len(want) {
		t.Fatalf("published %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestReporterProgressRequiresRunning(t *testing.T) {
	bus := event.NewBus()
	count := 0
	bus.Subscribe("task.progress", func(event.Event) { count++ })

	r := NewReporter(bus)
	r.Register("t", "tool", "install")
	r.Progress("t", "too early")
	if count != 0 {
		t.Error("progress published for a pending task")
	}
}

func TestReporterSnapshotOrder(t *testing.T) {
	r := NewReporter(event.NewBus())
	r.Register("z", "z", "install")
	r.Register("a", "a", "install")
	r.Register("m", "m", "install")

	snap := r.Snapshot()
	if snap[0].ID != "z" || snap[1].ID != "a" || snap[2].ID != "m" {
		t.Errorf("snapshot order = [%s %s %s], want registration order", snap[0].ID, snap[1].ID, snap[2].ID)
	}
}

func TestReporterCountsAndFailed(t *testing.T) {
	r := NewReporter(event.NewBus())
	r.Register("a", "a", "install")
	r.Register("b", "b", "install")
	r.Register("c", "c", "install")
	r.Start("a")
	r.Finish("a", Success, "")
	r.Start("b")
	r.Finish("b", Failed, "no")

	counts := r.Counts()
	if counts[Success] != 1 || counts[Failed] != 1 || counts[Pending] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
	failed := r.Failed()
	if len(failed) != 1 || failed[0] != "b" {
		t.Errorf("Failed() = %v, want [b]", failed)
	}
}

func TestTaskDuration(t *testing.T) {
	now := time.Now()
	task := Task{StartedAt: now, FinishedAt: now.Add(time.Second)}
	if task.Duration() != time.Second {
		t.Errorf("Duration() = %v, want 1s", task.Duration())
	}
	if (Task{}).Duration() != 0 {
		t.Error("zero task should have zero duration")
	}
}

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name     string
		ci, json bool
		want     Mode
	}{
		{name: "json wins", ci: true, json: true, want: JSON},
		{name: "ci", ci: true, want: CI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMode(tt.ci, tt.json); got != tt.want {
				t.Errorf("DetectMode(%v, %v) = %s, want %s", tt.ci, tt.json, got, tt.want)
			}
		})
	}
	// Under go test stdout is not a tty, so the fallback is CI.
	if got := DetectMode(false, false); got == Interactive {
		t.Error("DetectMode() = interactive without a tty")
	}
}
