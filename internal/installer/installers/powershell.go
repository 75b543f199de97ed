package installers

import (
	"context"
	"strings"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/platform"
)

// newPwsh builds the PowerShell shell installer. The shell comes from the
// system package manager; PSScriptAnalyzer layers on top of it.
func newPwsh(pm platform.PackageManager) *pmTool {
	return newPMTool(pm, "pwsh", "PowerShell", "PowerShell Core shell", "pwsh", "powershell")
}

// psScriptAnalyzerTool installs the PSScriptAnalyzer module through pwsh
// itself. Install-Module mutates the per-user module store, so the step is
// not concurrency-safe.
type psScriptAnalyzerTool struct{}

func (psScriptAnalyzerTool) Meta() installer.Descriptor {
	return installer.Descriptor{
		ID:           "psscriptanalyzer",
		Name:         "PSScriptAnalyzer",
		Description:  "PowerShell script static analysis module",
		Dependencies: []string{"pwsh"},
	}
}

func (psScriptAnalyzerTool) Detect(ctx context.Context, _ *bootenv.Context) (installer.Version, bool, error) {
	if _, err := lookPath("pwsh"); err != nil {
		return installer.Version{}, false, nil
	}

	res, err := run(ctx, "", "pwsh", "-NoProfile", "-Command",
		"(Get-Module -ListAvailable PSScriptAnalyzer | Select-Object -First 1).Version.ToString()")
	if err != nil || res.code != 0 {
		return installer.Version{}, false, nil
	}
	v := strings.TrimSpace(res.stdout)
	if v == "" {
		return installer.Version{}, false, nil
	}
	return installer.ParseVersion(v), true, nil
}

func (t psScriptAnalyzerTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	const installCmd = "Install-Module PSScriptAnalyzer -Force -Scope CurrentUser"
	if env.DryRun {
		return installer.InstallResult{WouldExecute: "pwsh -NoProfile -Command " + installCmd}, nil
	}
	if env.Offline {
		return installer.InstallResult{}, errors.NewInstallError("psscriptanalyzer", 1, "offline mode forbids PSGallery downloads").
			WithCause(errors.ErrOffline)
	}

	res, err := run(ctx, "", "pwsh", "-NoProfile", "-Command", installCmd)
	if err != nil {
		return installer.InstallResult{}, errors.NewInstallError("psscriptanalyzer", -1, err.Error()).WithCause(err)
	}
	if res.code != 0 {
		return installer.InstallResult{}, errors.NewInstallError("psscriptanalyzer", res.code, res.stderr)
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.InstallResult{}, errors.NewInstallError("psscriptanalyzer", 1, "Install-Module completed but the module does not load")
	}
	return installer.InstallResult{
		Version:      v,
		InstalledNew: true,
		Log:          []string{"installed PSScriptAnalyzer from PSGallery"},
	}, nil
}

func (t psScriptAnalyzerTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.VerifyResult{Issues: []string{"PSScriptAnalyzer module not available to pwsh"}}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}
