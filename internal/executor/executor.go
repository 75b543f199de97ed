// Package executor runs an execution plan: a bounded worker pool drives the
// three phases in order with a hard barrier between them, enforcing the
// concurrency and lock rules within the Installation phase.
//
// Scheduling rules for Installation: a step becomes eligible when every
// dependency has succeeded; two steps run concurrently only when both are
// concurrency-safe and their lock sets are disjoint; a step that is not
// concurrency-safe runs alone. A fatal failure triggers fail-fast — no new
// steps start, steps already in flight finish, and every step downstream of
// the failure is skipped. In-flight work is never force-killed, which keeps
// package-manager state consistent.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/event"
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/lock"
	"github.com/repoforge/bootstrap/internal/logging"
	"github.com/repoforge/bootstrap/internal/plan"
	"github.com/repoforge/bootstrap/internal/progress"
)

// Executor drives plan execution.
type Executor struct {
	env      *bootenv.Context
	registry *installer.Registry
	bus      *event.Bus
	reporter *progress.Reporter
	logger   *logging.Logger
	locks    *lock.Manager
}

// New creates an executor. A nil logger disables step logging.
func New(env *bootenv.Context, registry *installer.Registry, bus *event.Bus, reporter *progress.Reporter, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		env:      env,
		registry: registry,
		bus:      bus,
		reporter: reporter,
		logger:   logger,
		locks:    lock.NewManager(),
	}
}

// Outcome summarizes a run for checkpointing.
type Outcome struct {
	Completed []string // step ids that succeeded
	Failed    []string // step ids that failed
}

// RunDetection executes Detect for every installer concurrently and returns
// the detection outcomes keyed by installer id. Detection is read-only, so
// the only bound is the job limit. A detect error is fatal: planning cannot
// proceed on unknown state.
func (e *Executor) RunDetection(ctx context.Context, installers []installer.Installer) (map[string]plan.Detection, error) {
	phase := plan.DetectionPhase(installers)
	e.bus.Publish(event.NewPhaseStartedEvent(plan.PhaseDetection, len(phase.Steps)))
	lg := e.logger.WithPhase(plan.PhaseDetection)
	start := time.Now()

	var mu sync.Mutex
	detections := make(map[string]plan.Detection, len(installers))
	failed := 0

	p := pool.New().WithMaxGoroutines(e.jobs()).WithErrors()
	for _, step := range phase.Steps {
		in := e.registry.Get(step.InstallerID)
		e.reporter.Register(step.ID, step.Tool, step.Action.String())
		p.Go(func() error {
			e.reporter.Start(step.ID)
			v, found, err := in.Detect(ctx, e.env)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				lg.WithTool(step.InstallerID).Error("detection failed", "error", err.Error())
				e.reporter.Finish(step.ID, progress.Failed, err.Error())
				return errors.Wrapf(err, "detecting %s", step.Tool)
			}

			mu.Lock()
			detections[step.InstallerID] = plan.Detection{Version: v, Found: found}
			mu.Unlock()

			lg.WithTool(step.InstallerID).Debug("detected", "found", found, "version", v.String())
			detail := "not installed"
			if found {
				detail = "found " + v.String()
			}
			e.reporter.Finish(step.ID, progress.Success, detail)
			return nil
		})
	}
	err := p.Wait()

	e.bus.Publish(event.NewPhaseCompletedEvent(plan.PhaseDetection, time.Since(start), failed))
	if err != nil {
		return nil, err
	}
	return detections, nil
}

// Run executes the Installation and Verification phases of p. resume, when
// non-nil, marks steps completed in a previous run; they are skipped. The
// returned Outcome is populated even on error so callers can checkpoint.
func (e *Executor) Run(ctx context.Context, p *plan.Plan, resume map[string]bool) (*Outcome, error) {
	outcome := &Outcome{}

	if err := e.runInstallation(ctx, p.Phase(plan.PhaseInstallation), resume, outcome); err != nil {
		return outcome, err
	}
	if err := e.runVerification(ctx, p.Phase(plan.PhaseVerification), outcome); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// RunVerifyOnly executes just the Verification phase of p, used by the
// verify subcommand which must never install.
func (e *Executor) RunVerifyOnly(ctx context.Context, p *plan.Plan) error {
	return e.runVerification(ctx, p.Phase(plan.PhaseVerification), &Outcome{})
}

// stepResult carries one finished install step back to the scheduler.
type stepResult struct {
	step *plan.Step
	err  error
}

func (e *Executor) runInstallation(ctx context.Context, phase plan.Phase, resume map[string]bool, outcome *Outcome) error {
	graph, err := plan.NewGraph(phase)
	if err != nil {
		return err
	}
	if err := graph.Acyclic(); err != nil {
		return err
	}

	e.bus.Publish(event.NewPhaseStartedEvent(plan.PhaseInstallation, len(phase.Steps)))
	lg := e.logger.WithPhase(plan.PhaseInstallation)
	start := time.Now()

	for _, step := range phase.Steps {
		e.reporter.Register(step.ID, step.Tool, step.Action.String())
	}

	succeeded := make(map[string]bool) // step id -> finished successfully
	terminal := make(map[string]bool)
	running := make(map[string]*plan.Step)
	failedCount := 0
	aborted := false
	var firstErr error

	finish := func(step *plan.Step, status progress.Status, detail string) {
		terminal[step.ID] = true
		e.reporter.Finish(step.ID, status, detail)
	}

	// Plan-level skips and previously completed steps are terminal before
	// any worker starts.
	for _, step := range phase.Steps {
		switch {
		case step.Action == plan.Skip:
			succeeded[step.ID] = true
			finish(step, progress.Skipped, step.SkipReason)
		case resume[step.ID]:
			succeeded[step.ID] = true
			outcome.Completed = append(outcome.Completed, step.ID)
			finish(step, progress.Skipped, "completed in previous run")
		}
	}

	depsMet := func(step *plan.Step) bool {
		for _, dep := range step.DependsOn {
			if !succeeded[dep] {
				return false
			}
		}
		return true
	}

	// A step may start when the pool has a slot, its dependencies are met,
	// and it can share the machine with everything already running.
	canRun := func(step *plan.Step) bool {
		if len(running) >= e.jobs() {
			return false
		}
		if !step.ConcurrencySafe {
			return len(running) == 0
		}
		for _, other := range running {
			if !other.ConcurrencySafe || !lock.Disjoint(step.RequiredLocks, other.RequiredLocks) {
				return false
			}
		}
		return true
	}

	cascadeSkip := func(id string) {
		for _, dep := range graph.Dependents(id) {
			if !terminal[dep.ID] {
				finish(dep, progress.Skipped, "dependency failed")
			}
		}
	}

	results := make(chan stepResult)
	for {
		if !aborted {
			for _, step := range phase.Steps {
				if terminal[step.ID] || running[step.ID] != nil || !depsMet(step) || !canRun(step) {
					continue
				}
				running[step.ID] = step
				go e.runInstallStep(ctx, step, results)
			}
		}

		if len(running) == 0 {
			// Nothing running and nothing dispatchable: either the phase is
			// complete or fail-fast stopped dispatch. Skip the remainder.
			for _, step := range phase.Steps {
				if !terminal[step.ID] {
					reason := "not started (earlier failure)"
					if !aborted {
						reason = "dependency did not complete"
					}
					finish(step, progress.Skipped, reason)
				}
			}
			break
		}

		res := <-results
		delete(running, res.step.ID)
		if res.err != nil {
			failedCount++
			outcome.Failed = append(outcome.Failed, res.step.ID)
			lg.WithStep(res.step.ID).WithTool(res.step.InstallerID).Error("install failed", "error", res.err.Error())
			finish(res.step, progress.Failed, res.err.Error())
			cascadeSkip(res.step.ID)
			aborted = true
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		succeeded[res.step.ID] = true
		outcome.Completed = append(outcome.Completed, res.step.ID)
		lg.WithStep(res.step.ID).WithTool(res.step.InstallerID).Debug("install succeeded")
		finish(res.step, progress.Success, "")
	}

	lg.Info("phase complete", "failed", failedCount, "elapsed", time.Since(start).String())
	e.bus.Publish(event.NewPhaseCompletedEvent(plan.PhaseInstallation, time.Since(start), failedCount))
	return firstErr
}

// runInstallStep executes one Install step: acquire the step's locks, run
// the installer, release. Lock acquisition is skipped in dry-run because
// nothing will be mutated.
func (e *Executor) runInstallStep(ctx context.Context, step *plan.Step, results chan<- stepResult) {
	e.logger.WithPhase(plan.PhaseInstallation).WithStep(step.ID).WithTool(step.InstallerID).Debug("step started")
	e.reporter.Start(step.ID)

	run := func() error {
		if !e.env.DryRun && len(step.RequiredLocks) > 0 {
			guards, err := e.locks.AcquireAll(ctx, step.RequiredLocks, step.ID, e.env.LockWaitBudget())
			if err != nil {
				return err
			}
			defer func() {
				for _, g := range guards {
					g.Release()
				}
			}()
		}

		in := e.registry.Get(step.InstallerID)
		if in == nil {
			return errors.Wrapf(errors.ErrUnknownTool, "%q", step.InstallerID)
		}
		res, err := in.Install(ctx, e.env)
		if err != nil {
			return err
		}
		if e.env.DryRun && res.WouldExecute != "" {
			e.reporter.Progress(step.ID, "would execute: "+res.WouldExecute)
		}
		for _, line := range res.Log {
			e.reporter.Progress(step.ID, line)
		}
		return nil
	}

	results <- stepResult{step: step, err: run()}
}

// runVerification executes Verify steps concurrently. Verify is read-only,
// so the only bound is the job limit. Every step runs even after a failure:
// the full list of broken tools is more useful than the first.
func (e *Executor) runVerification(ctx context.Context, phase plan.Phase, outcome *Outcome) error {
	if len(phase.Steps) == 0 {
		return nil
	}

	e.bus.Publish(event.NewPhaseStartedEvent(plan.PhaseVerification, len(phase.Steps)))
	lg := e.logger.WithPhase(plan.PhaseVerification)
	start := time.Now()

	var mu sync.Mutex
	failed := 0
	var firstErr error

	p := pool.New().WithMaxGoroutines(e.jobs())
	for _, step := range phase.Steps {
		in := e.registry.Get(step.InstallerID)
		e.reporter.Register(step.ID, step.Tool, step.Action.String())
		p.Go(func() {
			e.reporter.Start(step.ID)
			if e.env.DryRun {
				e.reporter.Finish(step.ID, progress.Skipped, "dry-run")
				return
			}

			res, err := in.Verify(ctx, e.env)
			if err == nil && !res.OK {
				detail := "verification failed"
				if len(res.Issues) > 0 {
					detail = res.Issues[0]
				}
				err = errors.NewVerifyError(step.InstallerID, 0, detail)
			}
			if err != nil {
				mu.Lock()
				failed++
				outcome.Failed = append(outcome.Failed, step.ID)
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				lg.WithStep(step.ID).WithTool(step.InstallerID).Warn("verification failed", "error", err.Error())
				e.reporter.Finish(step.ID, progress.Failed, err.Error())
				return
			}

			mu.Lock()
			outcome.Completed = append(outcome.Completed, step.ID)
			mu.Unlock()
			detail := ""
			if res.Version.Known() {
				detail = res.Version.String()
			}
			e.reporter.Finish(step.ID, progress.Success, detail)
		})
	}
	p.Wait()

	e.bus.Publish(event.NewPhaseCompletedEvent(plan.PhaseVerification, time.Since(start), failed))
	return firstErr
}

func (e *Executor) jobs() int {
	if e.env.Jobs < 1 {
		return 1
	}
	return e.env.Jobs
}
