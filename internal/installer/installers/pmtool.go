package installers

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/platform"
)

// pmTool is a tool installed through the system package manager. The lock it
// requires depends on which package manager the run detected, so instances
// are built per-run by NewRegistry.
type pmTool struct {
	meta installer.Descriptor
	bin  string // binary probed during detection
	pkg  string // package name passed to the package manager
}

func newPMTool(pm platform.PackageManager, id, name, description, bin, pkg string) *pmTool {
	return &pmTool{
		meta: installer.Descriptor{
			ID:              id,
			Name:            name,
			Description:     description,
			ConcurrencySafe: true,
			RequiredLocks:   []string{pm.LockName()},
		},
		bin: bin,
		pkg: pkg,
	}
}

func (t *pmTool) Meta() installer.Descriptor { return t.meta }

func (t *pmTool) Detect(ctx context.Context, _ *bootenv.Context) (installer.Version, bool, error) {
	v, found := detectVersion(ctx, t.bin, "--version")
	return v, found, nil
}

func (t *pmTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	res, err := pmInstall(ctx, env, t.meta.ID, t.pkg)
	if err != nil || env.DryRun {
		return res, err
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return res, errors.NewInstallError(t.meta.ID, 1, "installation completed but "+t.bin+" not found")
	}
	res.Version = v
	return res, nil
}

func (t *pmTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.VerifyResult{Issues: []string{t.bin + " not found in PATH"}}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}

// actionlintTool extends pmTool with the extra search path actionlint needs:
// go install drops it in $HOME/go/bin, which is often not on PATH.
type actionlintTool struct {
	*pmTool
}

func newActionlint(pm platform.PackageManager) *actionlintTool {
	return &actionlintTool{
		pmTool: newPMTool(pm, "actionlint", "actionlint", "GitHub Actions workflow linter", "actionlint", "actionlint"),
	}
}

func (t *actionlintTool) Detect(ctx context.Context, env *bootenv.Context) (installer.Version, bool, error) {
	if v, found := detectVersion(ctx, t.bin, "--version"); found {
		return v, true, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return installer.Version{}, false, nil
	}
	goBin := filepath.Join(home, "go", "bin", "actionlint")
	if _, err := os.Stat(goBin); err != nil {
		return installer.Version{}, false, nil
	}
	res, err := run(ctx, "", goBin, "--version")
	if err != nil || res.code != 0 {
		return installer.Version{}, false, nil
	}
	line, _, _ := strings.Cut(res.stdout, "\n")
	return installer.ParseVersion(line), true, nil
}

func (t *actionlintTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	res, err := pmInstall(ctx, env, t.meta.ID, t.pkg)
	if err != nil || env.DryRun {
		return res, err
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return res, errors.NewInstallError(t.meta.ID, 1, "installation completed but actionlint not found")
	}
	res.Version = v
	return res, nil
}

func (t *actionlintTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.VerifyResult{Issues: []string{"actionlint not found in PATH or $HOME/go/bin"}}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}
