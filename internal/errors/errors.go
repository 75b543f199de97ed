// Package errors provides centralized error definitions and error handling
// utilities for the bootstrap codebase. It defines domain-specific errors,
// error constructors with context wrapping, and the single mapping from error
// variants to process exit codes.
//
// # Error Categories
//
//   - Environment errors: ErrNotInRepo, ErrVenvActivation, ErrNoInstallTarget
//   - Installation errors: InstallError (one exit-code bucket per toolchain,
//     plus dedicated codes for required tools)
//   - Verification errors: ErrVerificationFailed
//   - Internal configuration errors: ErrCyclicDependency, ErrNoPackageManager
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewInstallError("ripgrep", 1, stderr)
//	err := errors.Wrap(baseErr, "loading checkpoint")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrCyclicDependency) { ... }
//
//	var installErr *errors.InstallError
//	if errors.As(err, &installErr) { ... }
//
// Mapping to exit codes:
//
//	os.Exit(errors.ExitCodeFor(err).Int())
//
// Every fatal variant maps to exactly one exit code. Cosmetic failures, such
// as an unparseable version string, must never be represented as errors from
// this package; they degrade to empty values at the call site.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/repoforge/bootstrap/internal/exitcode"
)

// Re-export standard library functions for convenience so callers can import
// only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Environment sentinel errors.
var (
	// ErrNotInRepo indicates the current directory is not inside a git repository.
	ErrNotInRepo = New("not in a git repository")
	// ErrVenvActivation indicates the Python virtual environment could not be
	// created or activated.
	ErrVenvActivation = New("virtual environment activation failed")
	// ErrNoInstallTarget indicates no packaging metadata (pyproject.toml,
	// setup.py) was found to install repo-lint from.
	ErrNoInstallTarget = New("no install target found")
)

// Configuration sentinel errors.
var (
	// ErrCyclicDependency indicates a cycle in the installer dependency graph.
	ErrCyclicDependency = New("cyclic dependency detected in installer graph")
	// ErrNoPackageManager indicates no supported package manager is available.
	ErrNoPackageManager = New("no package manager available")
	// ErrUnknownTool indicates a profile referenced an installer id that is
	// not registered.
	ErrUnknownTool = New("unknown tool")
	// ErrConfigInvalid indicates the profile configuration failed validation.
	ErrConfigInvalid = New("invalid configuration")
)

// Execution sentinel errors.
var (
	// ErrLockContention indicates a named resource lock could not be acquired
	// within its wait budget.
	ErrLockContention = New("lock contention: wait budget exceeded")
	// ErrVerificationFailed indicates the verification gate reported an
	// operational failure of the toolchain.
	ErrVerificationFailed = New("verification failed")
	// ErrOffline indicates a network operation was requested in offline mode.
	ErrOffline = New("network access disabled in offline mode")
	// ErrDowngradeRefused indicates an installed version is newer than the pin
	// and --allow-downgrade was not set.
	ErrDowngradeRefused = New("downgrade refused")
)

// InstallError represents a failed installation of a specific tool. The tool
// id determines which exit-code bucket the failure maps to.
type InstallError struct {
	Tool     string // installer id, e.g. "ripgrep"
	ExitCode int    // subprocess exit code, for the message only
	Stderr   string // captured stderr, trimmed for display
	cause    error
}

// NewInstallError creates an InstallError for the given tool.
func NewInstallError(tool string, exitCode int, stderr string) *InstallError {
	return &InstallError{Tool: tool, ExitCode: exitCode, Stderr: stderr}
}

// WithCause attaches an underlying error.
func (e *InstallError) WithCause(cause error) *InstallError {
	e.cause = cause
	return e
}

// Error returns the formatted error message, naming the failing tool.
func (e *InstallError) Error() string {
	msg := fmt.Sprintf("installation failed: %s (exit code %d)", e.Tool, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg = fmt.Sprintf("%s: %s", msg, firstLine(s))
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *InstallError) Unwrap() error { return e.cause }

// CommandError represents a subprocess that could not be run or exited
// nonzero outside of an installation context.
type CommandError struct {
	Command  string
	ExitCode int // -1 when the process did not start
	Stderr   string
	cause    error
}

// NewCommandError creates a CommandError for the given command line.
func NewCommandError(command string, exitCode int, stderr string) *CommandError {
	return &CommandError{Command: command, ExitCode: exitCode, Stderr: stderr}
}

// WithCause attaches an underlying error.
func (e *CommandError) WithCause(cause error) *CommandError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed: %s", e.Command)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg = fmt.Sprintf("%s: %s", msg, firstLine(s))
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error { return e.cause }

// ChecksumError represents a checksum or signature mismatch for a downloaded
// artifact. Checksum errors are security failures and must never be retried.
type ChecksumError struct {
	Artifact string
	Expected string
	Actual   string
}

// NewChecksumError creates a ChecksumError.
func NewChecksumError(artifact, expected, actual string) *ChecksumError {
	return &ChecksumError{Artifact: artifact, Expected: expected, Actual: actual}
}

// Error returns the formatted error message.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s",
		e.Artifact, e.Expected, e.Actual)
}

// LockError represents a failure to acquire a named resource lock within the
// configured wait budget.
type LockError struct {
	Lock   string
	Waited string // human-readable wait duration
	Holder string // step id holding the lock, if known
}

// NewLockError creates a LockError for the named lock.
func NewLockError(lock, waited, holder string) *LockError {
	return &LockError{Lock: lock, Waited: waited, Holder: holder}
}

// Error returns the formatted error message.
func (e *LockError) Error() string {
	msg := fmt.Sprintf("lock contention: %s not acquired after %s", e.Lock, e.Waited)
	if e.Holder != "" {
		msg = fmt.Sprintf("%s (held by %s)", msg, e.Holder)
	}
	return msg
}

// Is reports whether target is the lock contention sentinel.
func (e *LockError) Is(target error) bool { return target == ErrLockContention }

// VerifyError represents a verification gate failure with the gate's output
// retained for display.
type VerifyError struct {
	Tool     string
	ExitCode int
	Output   string
}

// NewVerifyError creates a VerifyError.
func NewVerifyError(tool string, exitCode int, output string) *VerifyError {
	return &VerifyError{Tool: tool, ExitCode: exitCode, Output: output}
}

// Error returns the formatted error message.
func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification failed: %s exited %d", e.Tool, e.ExitCode)
}

// Is reports whether target is the verification sentinel.
func (e *VerifyError) Is(target error) bool { return target == ErrVerificationFailed }

// ExitCodeFor maps any error to exactly one process exit code. A nil error
// maps to Success. Unknown errors map to VerificationFailed, the catch-all
// operational bucket, never to a raw subprocess status.
func ExitCodeFor(err error) exitcode.Code {
	if err == nil {
		return exitcode.Success
	}

	var installErr *InstallError
	if As(err, &installErr) {
		return bucketFor(installErr.Tool)
	}

	switch {
	case Is(err, ErrNotInRepo):
		return exitcode.NotInRepo
	case Is(err, ErrVenvActivation):
		return exitcode.VenvActivationFailed
	case Is(err, ErrNoInstallTarget):
		return exitcode.NoInstallTarget
	case Is(err, ErrCyclicDependency),
		Is(err, ErrNoPackageManager),
		Is(err, ErrUnknownTool),
		Is(err, ErrConfigInvalid):
		return exitcode.UsageError
	case Is(err, ErrVerificationFailed):
		return exitcode.VerificationFailed
	}

	return exitcode.VerificationFailed
}

// bucketFor maps an installer id to its toolchain exit-code bucket. Required
// tools keep their dedicated codes regardless of which underlying command
// failed.
func bucketFor(tool string) exitcode.Code {
	switch {
	case tool == "actionlint":
		return exitcode.ActionlintFailed
	case tool == "ripgrep" || tool == "rg":
		return exitcode.RipgrepFailed
	case tool == "repo-lint-upgrade":
		return exitcode.RepoLintUpgradeFailed
	case tool == "repo-lint":
		return exitcode.RepoLintInstallFailed
	case tool == "python-venv":
		return exitcode.VenvActivationFailed
	case strings.HasPrefix(tool, "python") || tool == "black" || tool == "ruff" ||
		tool == "pylint" || tool == "yamllint" || tool == "pytest":
		return exitcode.PythonToolsFailed
	case strings.HasPrefix(tool, "shell") || tool == "shfmt" || tool == "shellcheck":
		return exitcode.ShellToolchainFailed
	case strings.HasPrefix(tool, "pwsh") || strings.HasPrefix(tool, "powershell") ||
		tool == "psscriptanalyzer":
		return exitcode.PowerShellToolchainFailed
	case strings.HasPrefix(tool, "perl") || tool == "ppi":
		return exitcode.PerlToolchainFailed
	default:
		return exitcode.VerificationFailed
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// firstLine returns the first non-empty line of s, for single-line display.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
