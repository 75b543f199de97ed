package installers

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/installer"
)

// Perl tools install through cpanm into ~/perl5 following local::lib
// conventions. cpanm mutates a shared module tree, so these steps are not
// concurrency-safe.

// perlLocalLib returns the local::lib root under the user's home directory.
func perlLocalLib(tool string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInstallError(tool, 1, "cannot determine home directory for the perl5 local::lib").
			WithCause(err)
	}
	return filepath.Join(home, "perl5"), nil
}

// cpanmInstall installs a Perl module into the local::lib. Offline mode
// fails immediately: cpanm downloads from CPAN.
func cpanmInstall(ctx context.Context, env *bootenv.Context, tool, module string) (installer.InstallResult, error) {
	dir, err := perlLocalLib(tool)
	if err != nil {
		return installer.InstallResult{}, err
	}

	cmdline := "cpanm --local-lib " + dir + " " + module
	if env.DryRun {
		return installer.InstallResult{WouldExecute: cmdline}, nil
	}
	if env.Offline {
		return installer.InstallResult{}, errors.NewInstallError(tool, 1, "offline mode forbids CPAN downloads").
			WithCause(errors.ErrOffline)
	}

	res, err := run(ctx, "", "cpanm", "--local-lib", dir, module)
	if err != nil {
		return installer.InstallResult{}, errors.NewInstallError(tool, -1, err.Error()).WithCause(err)
	}
	if res.code != 0 {
		return installer.InstallResult{}, errors.NewInstallError(tool, res.code, res.stderr)
	}
	return installer.InstallResult{
		InstalledNew: true,
		Log:          []string{"installed " + module + " into " + dir},
	}, nil
}

// perlCriticTool installs Perl::Critic.
type perlCriticTool struct{}

func (perlCriticTool) Meta() installer.Descriptor {
	return installer.Descriptor{
		ID:          "perlcritic",
		Name:        "Perl::Critic",
		Description: "Perl source code analyzer",
	}
}

func (perlCriticTool) Detect(ctx context.Context, _ *bootenv.Context) (installer.Version, bool, error) {
	// The local::lib binary is preferred; cpanm drops it outside PATH.
	if dir, err := perlLocalLib("perlcritic"); err == nil {
		bin := filepath.Join(dir, "bin", "perlcritic")
		if _, err := os.Stat(bin); err == nil {
			if res, err := run(ctx, "", bin, "--version"); err == nil && res.code == 0 {
				return installer.ParseVersion(strings.TrimSpace(res.stdout)), true, nil
			}
		}
	}
	v, found := detectVersion(ctx, "perlcritic", "--version")
	return v, found, nil
}

func (t perlCriticTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	res, err := cpanmInstall(ctx, env, "perlcritic", "Perl::Critic")
	if err != nil || env.DryRun {
		return res, err
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return res, errors.NewInstallError("perlcritic", 1, "cpanm completed but perlcritic not found")
	}
	res.Version = v
	return res, nil
}

func (t perlCriticTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.VerifyResult{Issues: []string{"perlcritic not found in ~/perl5 or PATH"}}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}

// ppiTool installs PPI, a library with no binary: detection loads the
// module and prints its version.
type ppiTool struct{}

func (ppiTool) Meta() installer.Descriptor {
	return installer.Descriptor{
		ID:          "ppi",
		Name:        "PPI",
		Description: "Perl parsing and manipulation library",
	}
}

func (ppiTool) Detect(ctx context.Context, _ *bootenv.Context) (installer.Version, bool, error) {
	if _, err := lookPath("perl"); err != nil {
		return installer.Version{}, false, nil
	}
	dir, err := perlLocalLib("ppi")
	if err != nil {
		return installer.Version{}, false, nil
	}

	res, err := run(ctx, "", "perl",
		"-I", filepath.Join(dir, "lib", "perl5"), "-MPPI", "-e", "print $PPI::VERSION")
	if err != nil || res.code != 0 {
		return installer.Version{}, false, nil
	}
	v := strings.TrimSpace(res.stdout)
	if v == "" {
		return installer.Version{}, false, nil
	}
	return installer.ParseVersion(v), true, nil
}

func (t ppiTool) Install(ctx context.Context, env *bootenv.Context) (installer.InstallResult, error) {
	res, err := cpanmInstall(ctx, env, "ppi", "PPI")
	if err != nil || env.DryRun {
		return res, err
	}

	v, found, _ := t.Detect(ctx, env)
	if !found {
		return res, errors.NewInstallError("ppi", 1, "cpanm completed but PPI does not load")
	}
	res.Version = v
	return res, nil
}

func (t ppiTool) Verify(ctx context.Context, env *bootenv.Context) (installer.VerifyResult, error) {
	v, found, _ := t.Detect(ctx, env)
	if !found {
		return installer.VerifyResult{Issues: []string{"PPI module does not load"}}, nil
	}
	return installer.VerifyResult{OK: true, Version: v}, nil
}
