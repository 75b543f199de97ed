// Package exitcode defines the stable process exit codes for the bootstrap CLI.
//
// The codes match the contract established by the legacy bash bootstrapper and
// must remain stable: CI pipelines branch on them. Every fatal error variant in
// the errors package maps to exactly one of these codes; no code path may
// propagate a raw subprocess exit status as the process exit code.
package exitcode

// Code is a process exit code with a fixed, documented meaning.
type Code int

const (
	// Success indicates the bootstrap completed cleanly.
	Success Code = 0

	// UsageError indicates invalid arguments or configuration.
	UsageError Code = 1

	// NotInRepo indicates the command was run outside a git repository.
	NotInRepo Code = 10

	// VenvActivationFailed indicates the virtual environment could not be
	// created or activated.
	VenvActivationFailed Code = 11

	// NoInstallTarget indicates no packaging metadata was found to install
	// repo-lint from.
	NoInstallTarget Code = 12

	// RepoLintUpgradeFailed indicates the repo-lint upgrade step failed.
	RepoLintUpgradeFailed Code = 13

	// RepoLintInstallFailed indicates the repo-lint install step failed.
	RepoLintInstallFailed Code = 14

	// PythonToolsFailed indicates a Python toolchain install failed.
	PythonToolsFailed Code = 15

	// ShellToolchainFailed indicates a shell toolchain install failed.
	ShellToolchainFailed Code = 16

	// PowerShellToolchainFailed indicates a PowerShell toolchain install failed.
	PowerShellToolchainFailed Code = 17

	// PerlToolchainFailed indicates a Perl toolchain install failed.
	PerlToolchainFailed Code = 18

	// VerificationFailed indicates the verification gate reported an
	// operational failure of the installed toolchain.
	VerificationFailed Code = 19

	// ActionlintFailed indicates the actionlint install failed.
	ActionlintFailed Code = 20

	// RipgrepFailed indicates the ripgrep install failed. Ripgrep is a
	// required tool; this code is reserved for it alone.
	RipgrepFailed Code = 21
)

// Int returns the code as a plain int for os.Exit.
func (c Code) Int() int { return int(c) }

// Description returns a human-readable description of the code.
func (c Code) Description() string {
	switch c {
	case Success:
		return "Success"
	case UsageError:
		return "Usage error"
	case NotInRepo:
		return "Not in git repository"
	case VenvActivationFailed:
		return "Virtual environment activation failed"
	case NoInstallTarget:
		return "No install target found"
	case RepoLintUpgradeFailed:
		return "repo-lint upgrade failed"
	case RepoLintInstallFailed:
		return "repo-lint install failed"
	case PythonToolsFailed:
		return "Python tools installation failed"
	case ShellToolchainFailed:
		return "Shell toolchain installation failed"
	case PowerShellToolchainFailed:
		return "PowerShell toolchain installation failed"
	case PerlToolchainFailed:
		return "Perl toolchain installation failed"
	case VerificationFailed:
		return "Verification failed"
	case ActionlintFailed:
		return "actionlint installation failed"
	case RipgrepFailed:
		return "ripgrep installation failed (required)"
	default:
		return "Unknown"
	}
}
