package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/repoforge/bootstrap/internal/exitcode"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want exitcode.Code
	}{
		{name: "nil error", err: nil, want: exitcode.Success},
		{name: "not in repo", err: ErrNotInRepo, want: exitcode.NotInRepo},
		{name: "wrapped not in repo", err: Wrap(ErrNotInRepo, "finding root"), want: exitcode.NotInRepo},
		{name: "venv activation", err: ErrVenvActivation, want: exitcode.VenvActivationFailed},
		{name: "no install target", err: ErrNoInstallTarget, want: exitcode.NoInstallTarget},
		{name: "cyclic dependency", err: ErrCyclicDependency, want: exitcode.UsageError},
		{name: "no package manager", err: ErrNoPackageManager, want: exitcode.UsageError},
		{name: "config invalid", err: ErrConfigInvalid, want: exitcode.UsageError},
		{name: "verification failed", err: ErrVerificationFailed, want: exitcode.VerificationFailed},
		{name: "verify error type", err: NewVerifyError("repo-lint", 2, ""), want: exitcode.VerificationFailed},
		{name: "unknown error", err: New("boom"), want: exitcode.VerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCodeForInstallError(t *testing.T) {
	tests := []struct {
		tool string
		want exitcode.Code
	}{
		{tool: "ripgrep", want: exitcode.RipgrepFailed},
		{tool: "rg", want: exitcode.RipgrepFailed},
		{tool: "actionlint", want: exitcode.ActionlintFailed},
		{tool: "repo-lint", want: exitcode.RepoLintInstallFailed},
		{tool: "python-venv", want: exitcode.VenvActivationFailed},
		{tool: "black", want: exitcode.PythonToolsFailed},
		{tool: "ruff", want: exitcode.PythonToolsFailed},
		{tool: "yamllint", want: exitcode.PythonToolsFailed},
		{tool: "shellcheck", want: exitcode.ShellToolchainFailed},
		{tool: "shfmt", want: exitcode.ShellToolchainFailed},
		{tool: "psscriptanalyzer", want: exitcode.PowerShellToolchainFailed},
		{tool: "pwsh", want: exitcode.PowerShellToolchainFailed},
		{tool: "perlcritic", want: exitcode.PerlToolchainFailed},
		{tool: "ppi", want: exitcode.PerlToolchainFailed},
		{tool: "mystery-tool", want: exitcode.VerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			err := NewInstallError(tt.tool, 1, "")
			if got := ExitCodeFor(err); got != tt.want {
				t.Errorf("ExitCodeFor(InstallError{%s}) = %d, want %d", tt.tool, got, tt.want)
			}
			// The mapping must survive wrapping.
			wrapped := fmt.Errorf("running step: %w", err)
			if got := ExitCodeFor(wrapped); got != tt.want {
				t.Errorf("ExitCodeFor(wrapped) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitCodeStablePerTool(t *testing.T) {
	// The same tool must always map to the same integer regardless of the
	// underlying failure detail.
	a := ExitCodeFor(NewInstallError("ripgrep", 1, "apt broke"))
	b := ExitCodeFor(NewInstallError("ripgrep", 127, "brew broke"))
	if a != b || a != exitcode.RipgrepFailed {
		t.Errorf("ripgrep exit code not stable: %d vs %d", a, b)
	}
}

func TestInstallErrorMessageNamesTool(t *testing.T) {
	err := NewInstallError("shellcheck", 100, "E: unable to locate package\nmore noise")
	msg := err.Error()
	if want := "shellcheck"; !contains(msg, want) {
		t.Errorf("error message %q does not name tool %q", msg, want)
	}
	if want := "unable to locate package"; !contains(msg, want) {
		t.Errorf("error message %q does not include stderr first line", msg)
	}
	if contains(msg, "more noise") {
		t.Errorf("error message %q should only include the first stderr line", msg)
	}
}

func TestLockErrorIsSentinel(t *testing.T) {
	err := NewLockError("apt_lock", "60s", "step-install-ripgrep")
	if !Is(err, ErrLockContention) {
		t.Error("LockError should match ErrLockContention")
	}
	if !contains(err.Error(), "apt_lock") {
		t.Errorf("lock error %q should name the lock", err.Error())
	}
}

func TestChecksumErrorMessage(t *testing.T) {
	err := NewChecksumError("shfmt.tar.gz", "abc", "def")
	for _, want := range []string{"shfmt.tar.gz", "abc", "def"} {
		if !contains(err.Error(), want) {
			t.Errorf("checksum error %q missing %q", err.Error(), want)
		}
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
