// Package plan computes the execution plan for a bootstrap run: the ordered
// Detection, Installation, and Verification phases over a resolved installer
// set. Planning is pure — it performs no side effects — and deterministic:
// the same profile over the same detected state always yields a structurally
// identical plan, which is what makes the dry-run guarantee and checkpoint
// hashing possible.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/installer"
)

// Phase names, in canonical execution order.
const (
	PhaseDetection    = "detection"
	PhaseInstallation = "installation"
	PhaseVerification = "verification"
)

// Action is a step's operation.
type Action int

const (
	// Detect probes for an installed version. Read-only.
	Detect Action = iota
	// Install mutates the system to provide the tool.
	Install
	// Verify confirms the installed tool works. Read-only.
	Verify
	// Skip records why no action is needed.
	Skip
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Detect:
		return "detect"
	case Install:
		return "install"
	case Verify:
		return "verify"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Step is one schedulable unit of the plan.
type Step struct {
	// ID is unique within the plan, "<action>:<installer id>".
	ID string
	// InstallerID references the registry.
	InstallerID string
	// Tool is the human-readable name for display.
	Tool string
	// Action to perform.
	Action Action
	// SkipReason explains a Skip action.
	SkipReason string
	// DependsOn lists step ids in the same phase that must succeed first.
	DependsOn []string
	// ConcurrencySafe steps may run alongside other concurrency-safe steps
	// whose RequiredLocks are disjoint.
	ConcurrencySafe bool
	// RequiredLocks names the resource locks the step must hold.
	RequiredLocks []string
	// Detected carries the detection outcome for display on Detect steps
	// and Skip decisions.
	Detected installer.Version
}

// Phase is an ordered group of steps. Every step of phase N reaches a
// terminal state before any step of phase N+1 starts.
type Phase struct {
	Name  string
	Steps []*Step
}

// Plan is the complete three-phase execution plan.
type Plan struct {
	Profile string
	Phases  []Phase
}

// Detection is the outcome of one installer's Detect operation, the input
// that decides Installation targeting.
type Detection struct {
	Version installer.Version
	Found   bool
}

// DetectionPhase builds the Detection phase for a resolved installer set.
// Every step is a pure read, parallel-safe, and holds no locks.
func DetectionPhase(installers []installer.Installer) Phase {
	phase := Phase{Name: PhaseDetection}
	for _, in := range installers {
		meta := in.Meta()
		phase.Steps = append(phase.Steps, &Step{
			ID:              stepID(Detect, meta.ID),
			InstallerID:     meta.ID,
			Tool:            meta.Name,
			Action:          Detect,
			ConcurrencySafe: true,
		})
	}
	return phase
}

// Compute builds the full plan from the resolved installer set and the
// detection outcomes. verifyAll forces a Verify step for every resolved
// installer, used by the verify subcommand; otherwise only installation
// targets are verified.
//
// Installation targeting: a tool is targeted when absent, below its
// configured minimum, or below an exact pin. An installed version newer than
// the pin is refused (recorded as a Skip) unless AllowDowngrade is set and
// the installer can pin exact versions.
func Compute(profile string, installers []installer.Installer, env *bootenv.Context, detections map[string]Detection, verifyAll bool) *Plan {
	p := &Plan{Profile: profile}

	detection := DetectionPhase(installers)
	for _, step := range detection.Steps {
		step.Detected = detections[step.InstallerID].Version
	}
	p.Phases = append(p.Phases, detection)

	install := Phase{Name: PhaseInstallation}
	targeted := make(map[string]bool)
	for _, in := range installers {
		meta := in.Meta()
		action, reason := decide(meta, env, detections[meta.ID])
		step := &Step{
			ID:              stepID(action, meta.ID),
			InstallerID:     meta.ID,
			Tool:            meta.Name,
			Action:          action,
			SkipReason:      reason,
			ConcurrencySafe: meta.ConcurrencySafe,
			RequiredLocks:   append([]string(nil), meta.RequiredLocks...),
			Detected:        detections[meta.ID].Version,
		}
		if action == Install {
			targeted[meta.ID] = true
		}
		install.Steps = append(install.Steps, step)
	}

	// Dependency edges between install steps: a tool waits for its targeted
	// dependencies. Skipped dependencies are already satisfied.
	for _, step := range install.Steps {
		if step.Action != Install {
			continue
		}
		for _, dep := range metaFor(installers, step.InstallerID).Dependencies {
			if targeted[dep] {
				step.DependsOn = append(step.DependsOn, stepID(Install, dep))
			}
		}
		sort.Strings(step.DependsOn)
	}
	p.Phases = append(p.Phases, install)

	verify := Phase{Name: PhaseVerification}
	for _, in := range installers {
		meta := in.Meta()
		if !verifyAll && !targeted[meta.ID] {
			continue
		}
		verify.Steps = append(verify.Steps, &Step{
			ID:              stepID(Verify, meta.ID),
			InstallerID:     meta.ID,
			Tool:            meta.Name,
			Action:          Verify,
			ConcurrencySafe: true,
		})
	}
	p.Phases = append(p.Phases, verify)

	return p
}

// decide picks the Installation action for one tool given its detection.
func decide(meta installer.Descriptor, env *bootenv.Context, d Detection) (Action, string) {
	if !d.Found {
		return Install, ""
	}

	cfg := env.Config.Tool(meta.ID)
	if cfg.MinVersion != "" && !d.Version.AtLeast(installer.ParseVersion(cfg.MinVersion)) {
		return Install, ""
	}

	if cfg.Version != "" {
		switch d.Version.Compare(installer.ParseVersion(cfg.Version)) {
		case -1:
			return Install, ""
		case +1:
			if !env.AllowDowngrade {
				return Skip, fmt.Sprintf("installed %s is newer than pin %s (use --allow-downgrade)", d.Version, cfg.Version)
			}
			if !meta.SupportsPin {
				return Skip, fmt.Sprintf("pin %s requested but %s cannot install exact versions", cfg.Version, meta.Name)
			}
			return Install, ""
		}
	}

	if v := d.Version.String(); v != "" {
		return Skip, "already installed (" + v + ")"
	}
	return Skip, "already installed"
}

// metaFor finds the descriptor for an installer id in the resolved set.
func metaFor(installers []installer.Installer, id string) installer.Descriptor {
	for _, in := range installers {
		if in.Meta().ID == id {
			return in.Meta()
		}
	}
	return installer.Descriptor{}
}

// stepID builds the canonical step id.
func stepID(a Action, installerID string) string {
	return a.String() + ":" + installerID
}

// TotalSteps counts steps across all phases.
func (p *Plan) TotalSteps() int {
	n := 0
	for _, phase := range p.Phases {
		n += len(phase.Steps)
	}
	return n
}

// PhaseNames returns the phase names in order.
func (p *Plan) PhaseNames() []string {
	names := make([]string, len(p.Phases))
	for i, phase := range p.Phases {
		names[i] = phase.Name
	}
	return names
}

// Phase returns the named phase, or an empty phase if absent.
func (p *Plan) Phase(name string) Phase {
	for _, phase := range p.Phases {
		if phase.Name == name {
			return phase
		}
	}
	return Phase{Name: name}
}

// InstallTargets returns the installer ids with an Install action, in plan
// order.
func (p *Plan) InstallTargets() []string {
	var ids []string
	for _, step := range p.Phase(PhaseInstallation).Steps {
		if step.Action == Install {
			ids = append(ids, step.InstallerID)
		}
	}
	return ids
}

// Hash returns the SHA-256 content hash of the plan's canonical
// serialization. Checkpoints are valid only against an identical hash: any
// change in profile, tool set, constraints, or detected state produces a
// different plan and therefore a different hash.
func (p *Plan) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "profile=%s\n", p.Profile)
	for _, phase := range p.Phases {
		fmt.Fprintf(h, "phase=%s\n", phase.Name)
		for _, step := range phase.Steps {
			fmt.Fprintf(h, "step=%s action=%s deps=%s locks=%s skip=%q detected=%s\n",
				step.ID, step.Action,
				strings.Join(step.DependsOn, ","),
				strings.Join(step.RequiredLocks, ","),
				step.SkipReason, step.Detected)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Render serializes the plan for display. The dry-run rendering is identical
// to the normal one except for the mode line, which is the contract that
// lets operators diff the two.
func (p *Plan) Render(dryRun bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan for profile %q (%d steps)\n", p.Profile, p.TotalSteps())
	if dryRun {
		b.WriteString("mode: dry-run (no changes will be made)\n")
	}
	for _, phase := range p.Phases {
		fmt.Fprintf(&b, "phase %s:\n", phase.Name)
		for _, step := range phase.Steps {
			fmt.Fprintf(&b, "  %-20s %s", step.ID, step.Action)
			if step.Action == Skip {
				fmt.Fprintf(&b, " (%s)", step.SkipReason)
			}
			if len(step.DependsOn) > 0 {
				fmt.Fprintf(&b, " after %s", strings.Join(step.DependsOn, ", "))
			}
			if len(step.RequiredLocks) > 0 {
				fmt.Fprintf(&b, " holding %s", strings.Join(step.RequiredLocks, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
