// Package installers provides the concrete installer implementations for
// every supported tool and the production registry that assembles them.
// Adding a tool means adding one file here and one line to NewRegistry.
//
// Install strategies fall into five families: system package manager
// installs (ripgrep, actionlint, shellcheck, shfmt, pwsh), pip installs into
// the repository virtualenv (black, ruff, yamllint, pytest, pylint,
// repo-lint), cpanm installs into the ~/perl5 local::lib (perlcritic, ppi),
// pwsh Install-Module installs (psscriptanalyzer), and the virtualenv
// bootstrap itself (python-venv). Package-manager and pip operations are not
// concurrency-safe and declare the named locks they need; cpanm and
// Install-Module serialize through the concurrency-safe flag alone.
package installers

import (
	"context"
	"os/exec"
	"strings"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/platform"
)

// execResult is the outcome of one subprocess.
type execResult struct {
	stdout string
	stderr string
	code   int
}

// run executes a subprocess and captures its streams. A non-nil error means
// the process could not be started at all; a nonzero exit comes back in
// execResult.code. Swapped in tests.
var run = func(ctx context.Context, dir, name string, args ...string) (execResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := execResult{stdout: stdout.String(), stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.code = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// lookPath reports whether a binary is on PATH. Swapped in tests.
var lookPath = exec.LookPath

// detectVersion runs a --version style command and parses the first line.
// Any failure reports the tool as absent; version parse failures degrade to
// an unknown version, never an error.
func detectVersion(ctx context.Context, bin string, args ...string) (installer.Version, bool) {
	if _, err := lookPath(bin); err != nil {
		return installer.Version{}, false
	}
	res, err := run(ctx, "", bin, args...)
	if err != nil || res.code != 0 {
		return installer.Version{}, false
	}
	line, _, _ := strings.Cut(res.stdout, "\n")
	return installer.ParseVersion(line), true
}

// pmCommand builds the package-manager install invocation.
func pmCommand(pm platform.PackageManager, pkg string) []string {
	switch pm {
	case platform.Homebrew:
		return []string{"brew", "install", pkg}
	case platform.Apt:
		return []string{"sudo", "apt-get", "install", "-y", pkg}
	case platform.Snap:
		return []string{"sudo", "snap", "install", pkg}
	default:
		return nil
	}
}

// pmInstall installs a package via the system package manager. The caller
// holds the package-manager lock. Offline mode fails immediately: package
// managers download.
func pmInstall(ctx context.Context, env *bootenv.Context, tool, pkg string) (installer.InstallResult, error) {
	argv := pmCommand(env.PackageManager, pkg)
	if argv == nil {
		return installer.InstallResult{}, errors.NewInstallError(tool, 1, "no supported package manager available").
			WithCause(errors.ErrNoPackageManager)
	}

	cmdline := strings.Join(argv, " ")
	if env.DryRun {
		return installer.InstallResult{WouldExecute: cmdline}, nil
	}
	if env.Offline {
		return installer.InstallResult{}, errors.NewInstallError(tool, 1, "offline mode forbids package downloads").
			WithCause(errors.ErrOffline)
	}

	res, err := run(ctx, "", argv[0], argv[1:]...)
	if err != nil {
		return installer.InstallResult{}, errors.NewInstallError(tool, -1, err.Error()).WithCause(err)
	}
	if res.code != 0 {
		return installer.InstallResult{}, errors.NewInstallError(tool, res.code, res.stderr)
	}
	return installer.InstallResult{
		InstalledNew: true,
		Log:          []string{"installed " + pkg + " via " + env.PackageManager.String()},
	}, nil
}

// pipSpec formats the pip requirement for a tool, honoring an exact pin
// from configuration.
func pipSpec(env *bootenv.Context, id, pkg string) string {
	if v := env.Config.Tool(id).Version; v != "" {
		return pkg + "==" + v
	}
	return pkg
}

// pipInstall installs a package into the repository virtualenv. The caller
// holds the venv lock.
func pipInstall(ctx context.Context, env *bootenv.Context, tool, spec string) (installer.InstallResult, error) {
	args := []string{"-m", "pip", "install", spec}
	args = append(args, env.Config.Tool(tool).InstallArgs...)

	cmdline := env.VenvPython() + " " + strings.Join(args, " ")
	if env.DryRun {
		return installer.InstallResult{WouldExecute: cmdline}, nil
	}
	if env.Offline {
		return installer.InstallResult{}, errors.NewInstallError(tool, 1, "offline mode forbids pip downloads").
			WithCause(errors.ErrOffline)
	}

	res, err := run(ctx, "", env.VenvPython(), args...)
	if err != nil {
		return installer.InstallResult{}, errors.NewInstallError(tool, -1, err.Error()).WithCause(err)
	}
	if res.code != 0 {
		return installer.InstallResult{}, errors.NewInstallError(tool, res.code, res.stderr)
	}
	return installer.InstallResult{
		InstalledNew: true,
		Log:          []string{"installed " + spec + " into " + env.VenvPath},
	}, nil
}

// pipShowVersion reports the installed version of a pip package in the
// virtualenv, absent when not installed.
func pipShowVersion(ctx context.Context, env *bootenv.Context, pkg string) (installer.Version, bool) {
	res, err := run(ctx, "", env.VenvPython(), "-m", "pip", "show", pkg)
	if err != nil || res.code != 0 {
		return installer.Version{}, false
	}
	for _, line := range strings.Split(res.stdout, "\n") {
		if v, ok := strings.CutPrefix(line, "Version:"); ok {
			return installer.ParseVersion(strings.TrimSpace(v)), true
		}
	}
	return installer.Version{}, true
}
