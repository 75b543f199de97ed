// Package platform detects the host environment the bootstrap runs on: the
// operating system family, the available package manager, and sensible
// parallelism defaults. Detection happens once at startup; the results are
// carried in the run context and never re-probed mid-run.
package platform

import (
	"os/exec"
	"runtime"
)

// OS is the operating system family.
type OS int

const (
	// Linux covers any Linux distribution.
	Linux OS = iota
	// MacOS is Darwin.
	MacOS
	// Windows is detected but unsupported for installs in v1.
	Windows
	// UnknownOS is anything else.
	UnknownOS
)

// String returns a human-readable name for the OS.
func (o OS) String() string {
	switch o {
	case Linux:
		return "linux"
	case MacOS:
		return "macos"
	case Windows:
		return "windows"
	default:
		return "unknown"
	}
}

// PackageManager is the system package manager used for binary tools.
type PackageManager int

const (
	// NoPackageManager means no supported manager was found.
	NoPackageManager PackageManager = iota
	// Homebrew is brew on macOS or Linux.
	Homebrew
	// Apt is apt-get on Debian/Ubuntu.
	Apt
	// Snap is snapd on Ubuntu and others.
	Snap
)

// String returns a human-readable name for the package manager.
func (p PackageManager) String() string {
	switch p {
	case Homebrew:
		return "brew"
	case Apt:
		return "apt"
	case Snap:
		return "snap"
	default:
		return "none"
	}
}

// LockName returns the named resource lock guarding this package manager.
// Steps that invoke the manager must hold this lock.
func (p PackageManager) LockName() string {
	switch p {
	case Homebrew:
		return "brew_lock"
	case Apt, Snap:
		return "apt_lock"
	default:
		return ""
	}
}

// DetectOS returns the OS family of the current process.
func DetectOS() OS {
	switch runtime.GOOS {
	case "linux":
		return Linux
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	default:
		return UnknownOS
	}
}

// lookPath is swapped in tests to simulate available binaries.
var lookPath = exec.LookPath

// DetectPackageManager probes for an available package manager in preference
// order. On macOS only Homebrew is supported; on Linux apt-get is preferred,
// then snap, then Linuxbrew.
func DetectPackageManager(os OS) PackageManager {
	switch os {
	case MacOS:
		if commandExists("brew") {
			return Homebrew
		}
	case Linux:
		if commandExists("apt-get") {
			return Apt
		}
		if commandExists("snap") {
			return Snap
		}
		if commandExists("brew") {
			return Homebrew
		}
	}
	return NoPackageManager
}

// commandExists reports whether the named binary is on PATH.
func commandExists(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

// DefaultJobs returns the default worker count: 2 in CI to keep shared
// runners predictable, min(4, NumCPU) interactively.
func DefaultJobs(ci bool) int {
	if ci {
		return 2
	}
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}
