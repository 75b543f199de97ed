// Package verify implements the verification gate: the final boundary call
// that confirms the installed toolchain actually works by running the lint
// tool against the repository.
//
// The gate reads only the tool's exit code and output text, never its
// internal file formats. The exit contract is fixed: 0 means clean, 1 means
// the tool ran and reported findings in user content (the toolchain itself
// is functional, so bootstrap still succeeds), and 2 or above means the
// toolchain is operationally broken, which fails the bootstrap.
package verify

import (
	"context"
	"os/exec"
	"strings"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
)

// Result is the interpreted outcome of the gate.
type Result struct {
	// Clean is true when the tool reported no findings at all.
	Clean bool
	// Findings is true when the tool ran successfully but reported issues
	// in user content. The toolchain is functional; bootstrap succeeds.
	Findings bool
	// Output is the tool's combined stdout and stderr.
	Output string
}

// runGate executes the gate command and returns its combined output and
// exit code. Swapped in tests.
var runGate = func(ctx context.Context, dir, bin string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, err
	}
	return string(out), 0, nil
}

// Run invokes the verification gate in dry-run-aware fashion. In dry-run
// mode the gate is reported clean without executing anything. An
// operational failure (exit >= 2, or a tool that cannot be started at all)
// returns a VerifyError.
func Run(ctx context.Context, env *bootenv.Context) (Result, error) {
	if env.DryRun {
		return Result{Clean: true}, nil
	}

	bin := env.RepoLintBin()
	output, code, err := runGate(ctx, env.RepoRoot, bin, "check")
	if err != nil {
		return Result{Output: output}, errors.NewVerifyError("repo-lint", -1, "cannot run "+bin+": "+err.Error())
	}

	switch {
	case code == 0:
		return Result{Clean: true, Output: output}, nil
	case code == 1:
		return Result{Findings: true, Output: output}, nil
	default:
		return Result{Output: output}, errors.NewVerifyError("repo-lint", code, firstLine(output))
	}
}

// firstLine extracts the leading non-empty line for error messages.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return s
}
