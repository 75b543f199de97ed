// Package doctor runs environment diagnostics without mutating anything:
// repository presence, package manager, Python, the virtualenv, disk and
// write permissions, and per-tool detection. Each check reports Pass, Warn,
// or Fail with an optional remediation hint. Warnings only affect the exit
// code under --strict.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/exitcode"
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/platform"
	"github.com/repoforge/bootstrap/internal/retry"
)

// Status is a check outcome.
type Status int

const (
	Pass Status = iota
	Warn
	Fail
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Check is one diagnostic result.
type Check struct {
	Name        string
	Status      Status
	Message     string
	Remediation string // empty when no suggestion applies
}

func pass(name, message string) Check {
	return Check{Name: name, Status: Pass, Message: message}
}

func warn(name, message, remediation string) Check {
	return Check{Name: name, Status: Warn, Message: message, Remediation: remediation}
}

func fail(name, message, remediation string) Check {
	return Check{Name: name, Status: Fail, Message: message, Remediation: remediation}
}

// Report is the collected diagnostic outcome.
type Report struct {
	Checks []Check
}

// Counts returns (passed, warned, failed).
func (r *Report) Counts() (int, int, int) {
	var p, w, f int
	for _, c := range r.Checks {
		switch c.Status {
		case Pass:
			p++
		case Warn:
			w++
		case Fail:
			f++
		}
	}
	return p, w, f
}

// ExitCode maps the report to a process exit code. Failures always fail;
// warnings fail only under strict.
func (r *Report) ExitCode(strict bool) exitcode.Code {
	_, warned, failed := r.Counts()
	if failed > 0 || (strict && warned > 0) {
		return exitcode.VerificationFailed
	}
	return exitcode.Success
}

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	remedyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Render formats the report for the terminal.
func (r *Report) Render() string {
	var b strings.Builder
	for _, c := range r.Checks {
		var mark string
		switch c.Status {
		case Pass:
			mark = passStyle.Render("✓")
		case Warn:
			mark = warnStyle.Render("⚠")
		case Fail:
			mark = failStyle.Render("✗")
		}
		fmt.Fprintf(&b, "%s %-16s %s\n", mark, c.Name, c.Message)
		if c.Remediation != "" {
			fmt.Fprintf(&b, "  %s\n", remedyStyle.Render("→ "+c.Remediation))
		}
	}

	p, w, f := r.Counts()
	fmt.Fprintf(&b, "\n%d passed, %d warnings, %d failures\n", p, w, f)
	return b.String()
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// runVersion is swapped in tests.
var runVersion = func(ctx context.Context, bin string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// Run executes all diagnostics. The registry supplies per-tool detection;
// pass nil to skip tool checks.
func Run(ctx context.Context, env *bootenv.Context, registry *installer.Registry) *Report {
	r := &Report{}
	r.Checks = append(r.Checks,
		checkRepository(env),
		checkPackageManager(env),
		checkPython(ctx),
		checkVenv(env),
		checkWritable(env),
		checkNetwork(ctx, env),
	)
	if registry != nil {
		r.Checks = append(r.Checks, checkTools(ctx, env, registry)...)
	}
	return r
}

func checkRepository(env *bootenv.Context) Check {
	if _, err := os.Stat(filepath.Join(env.RepoRoot, ".git")); err != nil {
		return fail("repository", "not a git repository", "run bootstrap from inside the repository")
	}
	return pass("repository", env.RepoRoot)
}

func checkPackageManager(env *bootenv.Context) Check {
	if env.PackageManager == platform.NoPackageManager {
		return warn("package manager", "none detected",
			"install Homebrew, or use a distribution with apt-get")
	}
	return pass("package manager", env.PackageManager.String()+" is available")
}

func checkPython(ctx context.Context) Check {
	if _, err := lookPath("python3"); err != nil {
		return fail("python", "python3 not found", "install Python 3.8 or later")
	}
	version, err := runVersion(ctx, "python3", "--version")
	if err != nil {
		return warn("python", "python3 present but --version failed", "")
	}
	return pass("python", version)
}

func checkVenv(env *bootenv.Context) Check {
	if _, err := os.Stat(env.VenvPython()); err != nil {
		return warn("virtualenv", "no virtualenv at "+env.VenvPath,
			"run bootstrap install to create it")
	}
	return pass("virtualenv", env.VenvPath)
}

func checkWritable(env *bootenv.Context) Check {
	probe := filepath.Join(env.RepoRoot, ".bootstrap-permission-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return fail("permissions", "cannot write to repository: "+err.Error(),
			"check ownership of the repository directory")
	}
	_ = os.Remove(probe)
	return pass("permissions", "repository is writable")
}

// probeURL is the index installs will hit; swapped in tests.
var probeURL = "https://pypi.org/simple/"

var probeClient = &http.Client{Timeout: 10 * time.Second}

// checkNetwork probes the package index. Transient failures are retried
// briefly so a single dropped packet does not report a dead network.
func checkNetwork(ctx context.Context, env *bootenv.Context) Check {
	if env.Offline {
		return pass("network", "offline mode, probe skipped")
	}

	policy := retry.Policy{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     time.Second,
		MaxTotalTime: 5 * time.Second,
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
		if err != nil {
			return err
		}
		resp, err := probeClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return retry.NewHTTPStatusError(resp)
		}
		return nil
	})
	if err != nil {
		return warn("network", "cannot reach package index: "+err.Error(),
			"check connectivity, or run with --offline")
	}
	return pass("network", "package index reachable")
}

func checkTools(ctx context.Context, env *bootenv.Context, registry *installer.Registry) []Check {
	var checks []Check
	for _, id := range registry.IDs() {
		in := registry.Get(id)
		v, found, err := in.Detect(ctx, env)
		name := "tool " + id
		switch {
		case err != nil:
			checks = append(checks, warn(name, "detection failed: "+err.Error(), ""))
		case !found:
			checks = append(checks, warn(name, "not installed", "run bootstrap install"))
		case v.Known():
			checks = append(checks, pass(name, v.String()))
		default:
			checks = append(checks, pass(name, "installed"))
		}
	}
	return checks
}
