package installers

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/lock"
)

// venvTool bootstraps the repository virtualenv. Everything pip-installed
// depends on it.
type venvTool struct{}

func (venvTool) Meta() installer.Descriptor {
	return installer.Descriptor{
		ID:              "python-venv",
		Name:            "python venv",
		Description:     "Python virtual environment at .venv",
		ConcurrencySafe: true,
		RequiredLocks:   []string{lock.VenvLock},
	}
}

func (venvTool) Detect(ctx context.Context, env *bootenv.Context) (installer.Version, bool, error) {
	if _, err := os.Stat(env.VenvPython()); err != nil {
		return installer.Version{}, false, nil
	}
	res, err := run(ctx, "", env.VenvPython(), "--version")
	if err != nil || res.code != 0 {
		// A venv whose python does not run is as good as absent.
		return installer.Version{}, false, nil
	}
	line, _, _ := strings.Cut(res.stdout, "\n")
	return installer.ParseVersion(line), true, nil
}

func (t venvTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	cmdline := "python3 -m venv " + env.VenvPath
	if env.DryRun {
		return installer.InstallResult{WouldExecute: cmdline}, nil
	}

	res, err := run(ctx, env.RepoRoot, "python3", "-m", "venv", env.VenvPath)
	if err != nil {
		return installer.InstallResult{}, errors.NewInstallError("python-venv", -1, err.Error()).WithCause(err)
	}
	if res.code != 0 {
		return installer.InstallResult{}, errors.NewInstallError("python-venv", res.code, res.stderr)
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.InstallResult{}, errors.NewInstallError("python-venv", 1, "venv created but python does not run")
	}
	return installer.InstallResult{
		Version:      v,
		InstalledNew: true,
		Log:          []string{"created virtualenv at " + env.VenvPath},
	}, nil
}

func (t venvTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.VerifyResult{Issues: []string{"no working python in " + env.VenvPath}}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}

// pipTool is a tool pip-installed into the repository virtualenv. Pip can
// install exact versions, so pins are supported.
type pipTool struct {
	meta installer.Descriptor
	pkg  string
}

func newPipTool(id, name, description, pkg string) *pipTool {
	return &pipTool{
		meta: installer.Descriptor{
			ID:              id,
			Name:            name,
			Description:     description,
			Dependencies:    []string{"python-venv"},
			ConcurrencySafe: true,
			RequiredLocks:   []string{lock.VenvLock},
			SupportsPin:     true,
		},
		pkg: pkg,
	}
}

func (t *pipTool) Meta() installer.Descriptor { return t.meta }

func (t *pipTool) Detect(ctx context.Context, env *bootenv.Context) (installer.Version, bool, error) {
	if _, err := os.Stat(env.VenvPython()); err != nil {
		return installer.Version{}, false, nil
	}
	v, found := pipShowVersion(ctx, env, t.pkg)
	return v, found, nil
}

func (t *pipTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	res, err := pipInstall(ctx, env, t.meta.ID, pipSpec(env, t.meta.ID, t.pkg))
	if err != nil || env.DryRun {
		return res, err
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return res, errors.NewInstallError(t.meta.ID, 1, t.pkg+" missing from venv after pip install")
	}
	res.Version = v
	return res, nil
}

func (t *pipTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.VerifyResult{Issues: []string{t.pkg + " not installed in venv"}}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}

// repoLintTool installs repo-lint in editable mode from the repository
// packaging metadata. The pip/setuptools/wheel upgrade that precedes the
// editable install has its own exit-code bucket.
type repoLintTool struct{}

func (repoLintTool) Meta() installer.Descriptor {
	return installer.Descriptor{
		ID:              "repo-lint",
		Name:            "repo-lint",
		Description:     "Multi-language linting and docstring validation tool",
		Dependencies:    []string{"python-venv"},
		ConcurrencySafe: true,
		RequiredLocks:   []string{lock.VenvLock},
	}
}

func (repoLintTool) Detect(ctx context.Context, env *bootenv.Context) (installer.Version, bool, error) {
	bin := env.RepoLintBin()
	if _, err := os.Stat(bin); err != nil {
		return installer.Version{}, false, nil
	}
	res, err := run(ctx, "", bin, "--version")
	if err != nil || res.code != 0 {
		return installer.Version{}, false, nil
	}
	line, _, _ := strings.Cut(res.stdout, "\n")
	return installer.ParseVersion(line), true, nil
}

func (t repoLintTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	if env.DryRun {
		return installer.InstallResult{
			WouldExecute: env.VenvPython() + " -m pip install -e " + env.RepoRoot,
		}, nil
	}
	if env.Offline {
		return installer.InstallResult{}, errors.NewInstallError("repo-lint", 1, "offline mode forbids pip downloads").
			WithCause(errors.ErrOffline)
	}

	if !hasInstallTarget(env.RepoRoot) {
		return installer.InstallResult{}, errors.Wrapf(errors.ErrNoInstallTarget,
			"no pyproject.toml or setup.py in %s", env.RepoRoot)
	}

	// Stale build tooling is the usual cause of editable-install failures,
	// so the upgrade runs first and fails with its own bucket.
	res, err := run(ctx, "", env.VenvPython(), "-m", "pip", "install", "--upgrade", "pip", "setuptools", "wheel")
	if err != nil {
		return installer.InstallResult{}, errors.NewInstallError("repo-lint-upgrade", -1, err.Error()).WithCause(err)
	}
	if res.code != 0 {
		return installer.InstallResult{}, errors.NewInstallError("repo-lint-upgrade", res.code, res.stderr)
	}

	res, err = run(ctx, env.RepoRoot, env.VenvPython(), "-m", "pip", "install", "-e", ".")
	if err != nil {
		return installer.InstallResult{}, errors.NewInstallError("repo-lint", -1, err.Error()).WithCause(err)
	}
	if res.code != 0 {
		return installer.InstallResult{}, errors.NewInstallError("repo-lint", res.code, res.stderr)
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.InstallResult{}, errors.NewInstallError("repo-lint", 1, "editable install completed but repo-lint not found")
	}
	return installer.InstallResult{
		Version:      v,
		InstalledNew: true,
		Log:          []string{"installed repo-lint in editable mode"},
	}, nil
}

func (t repoLintTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, err := t.Detect(ctx, env)
	if err != nil || !found {
		return installer.VerifyResult{Issues: []string{"repo-lint not found in venv"}}, nil
	}

	res, err := run(ctx, "", env.RepoLintBin(), "--help")
	if err != nil || res.code != 0 {
		return installer.VerifyResult{
			Version: v,
			Issues:  []string{"repo-lint found but --help fails"},
		}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}

// hasInstallTarget reports whether the repository carries packaging metadata
// that an editable install can use.
func hasInstallTarget(repoRoot string) bool {
	for _, name := range []string{"pyproject.toml", "setup.py"} {
		if _, err := os.Stat(filepath.Join(repoRoot, name)); err == nil {
			return true
		}
	}
	return false
}
