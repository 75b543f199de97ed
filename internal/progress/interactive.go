package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/repoforge/bootstrap/internal/event"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// InteractiveRenderer drives a live-updating terminal view of the run.
// Events from the bus are forwarded into the bubbletea program as messages;
// the view itself reads task state from the reporter snapshot, so a dropped
// frame never loses a status.
type InteractiveRenderer struct {
	program *tea.Program
	bus     *event.Bus
	sub     uint64
	done    chan struct{}
}

// NewInteractiveRenderer creates the renderer writing to w.
func NewInteractiveRenderer(w io.Writer, reporter *Reporter) *InteractiveRenderer {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	model := runModel{reporter: reporter, spinner: s}
	return &InteractiveRenderer{
		program: tea.NewProgram(model, tea.WithOutput(w), tea.WithoutSignalHandler()),
		done:    make(chan struct{}),
	}
}

// Attach subscribes to the bus and starts the UI loop.
func (r *InteractiveRenderer) Attach(bus *event.Bus) {
	r.bus = bus
	r.sub = bus.SubscribeAll(func(e event.Event) {
		r.program.Send(busEventMsg{e})
	})
	go func() {
		defer close(r.done)
		// A UI error leaves task state intact; the final summary is
		// printed by the caller either way.
		_, _ = r.program.Run()
	}()
}

// Close stops the UI loop and waits for the final frame.
func (r *InteractiveRenderer) Close() error {
	if r.bus != nil {
		r.bus.Unsubscribe(r.sub)
	}
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

// busEventMsg wraps a bus event as a bubbletea message.
type busEventMsg struct {
	event event.Event
}

// runModel is the bubbletea model for the run view.
type runModel struct {
	reporter *Reporter
	spinner  spinner.Model
	phase    string
	profile  string
	finished bool
	success  bool
	elapsed  time.Duration
}

// Init starts the spinner tick loop.
func (m runModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles spinner ticks and bus events.
func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case busEventMsg:
		switch ev := msg.event.(type) {
		case event.PlanComputedEvent:
			m.profile = ev.Profile
		case event.PhaseStartedEvent:
			m.phase = ev.Phase
		case event.BootstrapCompletedEvent:
			m.finished = true
			m.success = ev.Success
			m.elapsed = ev.Duration
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the header plus one line per task.
func (m runModel) View() string {
	var b strings.Builder

	switch {
	case m.finished && m.success:
		b.WriteString(successStyle.Render("✓") + " " + headerStyle.Render(fmt.Sprintf("bootstrap complete in %s", round(m.elapsed))))
	case m.finished:
		b.WriteString(failStyle.Render("✗") + " " + headerStyle.Render("bootstrap failed"))
	case m.phase != "":
		b.WriteString(m.spinner.View() + headerStyle.Render("phase: "+m.phase))
	default:
		b.WriteString(m.spinner.View() + headerStyle.Render("planning..."))
	}
	b.WriteString("\n")

	for _, task := range m.reporter.Snapshot() {
		b.WriteString("  " + m.taskLine(task) + "\n")
	}
	return b.String()
}

func (m runModel) taskLine(task Task) string {
	label := fmt.Sprintf("%-14s %s", task.Tool, task.Action)
	switch task.Status {
	case Running:
		return m.spinner.View() + label
	case Success:
		return successStyle.Render("✓") + " " + label + " " + detailStyle.Render(round(task.Duration()).String())
	case Failed:
		line := failStyle.Render("✗") + " " + label
		if task.Detail != "" {
			line += " " + failStyle.Render(task.Detail)
		}
		return line
	case Skipped:
		line := skipStyle.Render("–") + " " + label
		if task.Detail != "" {
			line += " " + detailStyle.Render(task.Detail)
		}
		return line
	default:
		return skipStyle.Render("·") + " " + label
	}
}
