package installers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/config"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/exitcode"
	"github.com/repoforge/bootstrap/internal/platform"
)

// fakeRun replaces the subprocess seam with a scripted responder and records
// every command line.
type fakeRun struct {
	calls     []string
	responses map[string]execResult // keyed by command-line prefix
}

func (f *fakeRun) install(t *testing.T) {
	t.Helper()
	origRun, origLook := run, lookPath
	run = func(_ context.Context, _ string, name string, args ...string) (execResult, error) {
		line := strings.Join(append([]string{name}, args...), " ")
		f.calls = append(f.calls, line)
		for prefix, res := range f.responses {
			if strings.HasPrefix(line, prefix) {
				return res, nil
			}
		}
		return execResult{}, nil
	}
	lookPath = func(string) (string, error) { return "/usr/bin/fake", nil }
	t.Cleanup(func() { run, lookPath = origRun, origLook })
}

func (f *fakeRun) called(prefix string) bool {
	for _, line := range f.calls {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func testEnv(t *testing.T) *bootenv.Context {
	t.Helper()
	root := t.TempDir()
	return &bootenv.Context{
		RepoRoot:       root,
		VenvPath:       filepath.Join(root, ".venv"),
		PackageManager: platform.Homebrew,
		Config:         &config.Config{},
	}
}

func writeVenvPython(t *testing.T, env *bootenv.Context) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(env.VenvPython()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.VenvPython(), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestPMCommand(t *testing.T) {
	tests := []struct {
		pm   platform.PackageManager
		want string
	}{
		{pm: platform.Homebrew, want: "brew install ripgrep"},
		{pm: platform.Apt, want: "sudo apt-get install -y ripgrep"},
		{pm: platform.Snap, want: "sudo snap install ripgrep"},
	}
	for _, tt := range tests {
		t.Run(tt.pm.String(), func(t *testing.T) {
			if got := strings.Join(pmCommand(tt.pm, "ripgrep"), " "); got != tt.want {
				t.Errorf("pmCommand = %q, want %q", got, tt.want)
			}
		})
	}
	if pmCommand(platform.NoPackageManager, "x") != nil {
		t.Error("pmCommand(none) should be nil")
	}
}

func TestPMToolInstall(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"rg --version": {stdout: "ripgrep 14.1.0\n"},
	}}
	fr.install(t)

	rg := newPMTool(platform.Homebrew, "ripgrep", "ripgrep", "", "rg", "ripgrep")
	res, err := rg.Install(context.Background(), testEnv(t))
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !fr.called("brew install ripgrep") {
		t.Errorf("brew install not invoked, calls = %v", fr.calls)
	}
	if !res.InstalledNew || res.Version.String() != "14.1.0" {
		t.Errorf("Install() = %+v, want new install at 14.1.0", res)
	}
}

func TestPMToolInstallFailureMapsToBucket(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"brew install ripgrep": {code: 1, stderr: "formula not found"},
		"rg --version":         {code: 127},
	}}
	fr.install(t)

	rg := newPMTool(platform.Homebrew, "ripgrep", "ripgrep", "", "rg", "ripgrep")
	_, err := rg.Install(context.Background(), testEnv(t))
	if err == nil {
		t.Fatal("Install() error = nil, want failure")
	}
	if got := errors.ExitCodeFor(err); got != exitcode.RipgrepFailed {
		t.Errorf("exit code = %d, want %d", got, exitcode.RipgrepFailed)
	}
}

func TestPMToolDryRun(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	env := testEnv(t)
	env.DryRun = true
	rg := newPMTool(platform.Homebrew, "ripgrep", "ripgrep", "", "rg", "ripgrep")
	res, err := rg.Install(context.Background(), env)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if res.WouldExecute != "brew install ripgrep" {
		t.Errorf("WouldExecute = %q", res.WouldExecute)
	}
	if fr.called("brew") {
		t.Error("dry-run executed the package manager")
	}
}

func TestPMToolOffline(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	env := testEnv(t)
	env.Offline = true
	rg := newPMTool(platform.Homebrew, "ripgrep", "ripgrep", "", "rg", "ripgrep")
	_, err := rg.Install(context.Background(), env)
	if !errors.Is(err, errors.ErrOffline) {
		t.Fatalf("Install() error = %v, want ErrOffline", err)
	}
	if got := errors.ExitCodeFor(err); got != exitcode.RipgrepFailed {
		t.Errorf("exit code = %d, offline failure keeps the tool bucket", got)
	}
	if fr.called("brew") {
		t.Error("offline mode executed the package manager")
	}
}

func TestPMToolNoPackageManager(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	env := testEnv(t)
	env.PackageManager = platform.NoPackageManager
	sc := newPMTool(platform.NoPackageManager, "shellcheck", "shellcheck", "", "shellcheck", "shellcheck")
	_, err := sc.Install(context.Background(), env)
	if !errors.Is(err, errors.ErrNoPackageManager) {
		t.Errorf("Install() error = %v, want ErrNoPackageManager", err)
	}
}

func TestPipToolDetect(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"": {stdout: "Name: black\nVersion: 24.4.2\n"},
	}}
	fr.install(t)

	env := testEnv(t)
	writeVenvPython(t, env)
	black := newPipTool("black", "black", "", "black")
	v, found, err := black.Detect(context.Background(), env)
	if err != nil || !found {
		t.Fatalf("Detect() = %v, %v, want found", found, err)
	}
	if v.String() != "24.4.2" {
		t.Errorf("version = %s, want 24.4.2", v)
	}
}

func TestPipToolDetectWithoutVenv(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	black := newPipTool("black", "black", "", "black")
	_, found, err := black.Detect(context.Background(), testEnv(t))
	if err != nil || found {
		t.Errorf("Detect() without venv = %v, %v, want absent", found, err)
	}
	if len(fr.calls) != 0 {
		t.Error("detection ran pip against a missing venv")
	}
}

func TestPipToolInstallUsesPin(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"": {stdout: "Version: 0.4.0\n"},
	}}
	fr.install(t)

	env := testEnv(t)
	writeVenvPython(t, env)
	env.Config = &config.Config{Tools: map[string]config.ToolConfig{
		"ruff": {Version: "0.4.0"},
	}}

	ruff := newPipTool("ruff", "ruff", "", "ruff")
	if _, err := ruff.Install(context.Background(), env); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	found := false
	for _, call := range fr.calls {
		if strings.Contains(call, "pip install ruff==0.4.0") {
			found = true
		}
	}
	if !found {
		t.Errorf("pinned pip install not issued, calls = %v", fr.calls)
	}
}

func TestPipToolFailureMapsToPythonBucket(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"": {code: 1, stderr: "resolution failure"},
	}}
	fr.install(t)

	env := testEnv(t)
	writeVenvPython(t, env)
	black := newPipTool("black", "black", "", "black")
	_, err := black.Install(context.Background(), env)
	if err == nil {
		t.Fatal("Install() error = nil, want pip failure")
	}
	if got := errors.ExitCodeFor(err); got != exitcode.PythonToolsFailed {
		t.Errorf("exit code = %d, want %d", got, exitcode.PythonToolsFailed)
	}
}

func TestRepoLintNoInstallTarget(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	env := testEnv(t)
	_, err := repoLintTool{}.Install(context.Background(), env)
	if !errors.Is(err, errors.ErrNoInstallTarget) {
		t.Fatalf("Install() error = %v, want ErrNoInstallTarget", err)
	}
	if got := errors.ExitCodeFor(err); got != exitcode.NoInstallTarget {
		t.Errorf("exit code = %d, want %d", got, exitcode.NoInstallTarget)
	}
}

func TestRepoLintUpgradeFailureBucket(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"": {code: 1, stderr: "cannot upgrade pip"},
	}}
	fr.install(t)

	env := testEnv(t)
	if err := os.WriteFile(filepath.Join(env.RepoRoot, "pyproject.toml"), []byte("[project]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := repoLintTool{}.Install(context.Background(), env)
	if err == nil {
		t.Fatal("Install() error = nil, want upgrade failure")
	}
	if got := errors.ExitCodeFor(err); got != exitcode.RepoLintUpgradeFailed {
		t.Errorf("exit code = %d, want %d", got, exitcode.RepoLintUpgradeFailed)
	}
}

func TestVenvToolDetectAbsent(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	_, found, err := venvTool{}.Detect(context.Background(), testEnv(t))
	if err != nil || found {
		t.Errorf("Detect() = %v, %v, want absent for missing venv", found, err)
	}
}

func TestVenvToolDryRun(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	env := testEnv(t)
	env.DryRun = true
	res, err := venvTool{}.Install(context.Background(), env)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !strings.Contains(res.WouldExecute, "python3 -m venv") {
		t.Errorf("WouldExecute = %q", res.WouldExecute)
	}
	if len(fr.calls) != 0 {
		t.Error("dry-run created a venv")
	}
}

func TestPerlCriticInstall(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	fr := &fakeRun{responses: map[string]execResult{
		"perlcritic --version": {stdout: "1.156\n"},
	}}
	fr.install(t)

	res, err := perlCriticTool{}.Install(context.Background(), testEnv(t))
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !fr.called("cpanm --local-lib " + filepath.Join(home, "perl5") + " Perl::Critic") {
		t.Errorf("cpanm not invoked with local::lib, calls = %v", fr.calls)
	}
	if !res.InstalledNew || res.Version.String() != "1.156" {
		t.Errorf("Install() = %+v, want new install at 1.156", res)
	}
}

func TestPerlCriticDetectPrefersLocalLib(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	bin := filepath.Join(home, "perl5", "bin", "perlcritic")
	if err := os.MkdirAll(filepath.Dir(bin), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	fr := &fakeRun{responses: map[string]execResult{
		bin + " --version": {stdout: "1.140\n"},
	}}
	fr.install(t)

	v, found, err := perlCriticTool{}.Detect(context.Background(), testEnv(t))
	if err != nil || !found {
		t.Fatalf("Detect() = %v, %v, want found", found, err)
	}
	if v.String() != "1.140" {
		t.Errorf("version = %s, want the local::lib binary's 1.140", v)
	}
	if fr.called("perlcritic --version") {
		t.Error("PATH fallback probed despite a local::lib binary")
	}
}

func TestPerlCriticInstallFailureMapsToPerlBucket(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	fr := &fakeRun{responses: map[string]execResult{
		"cpanm": {code: 1, stderr: "build failed"},
	}}
	fr.install(t)

	_, err := perlCriticTool{}.Install(context.Background(), testEnv(t))
	if err == nil {
		t.Fatal("Install() error = nil, want cpanm failure")
	}
	if got := errors.ExitCodeFor(err); got != exitcode.PerlToolchainFailed {
		t.Errorf("exit code = %d, want %d", got, exitcode.PerlToolchainFailed)
	}
}

func TestPerlToolsDryRunAndOffline(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	fr := &fakeRun{}
	fr.install(t)

	env := testEnv(t)
	env.DryRun = true
	res, err := perlCriticTool{}.Install(context.Background(), env)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	want := "cpanm --local-lib " + filepath.Join(home, "perl5") + " Perl::Critic"
	if res.WouldExecute != want {
		t.Errorf("WouldExecute = %q, want %q", res.WouldExecute, want)
	}
	if fr.called("cpanm") {
		t.Error("dry-run executed cpanm")
	}

	env = testEnv(t)
	env.Offline = true
	_, err = ppiTool{}.Install(context.Background(), env)
	if !errors.Is(err, errors.ErrOffline) {
		t.Fatalf("Install() error = %v, want ErrOffline", err)
	}
	if got := errors.ExitCodeFor(err); got != exitcode.PerlToolchainFailed {
		t.Errorf("exit code = %d, offline failure keeps the perl bucket", got)
	}
}

func TestPPIDetectLoadsModule(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	fr := &fakeRun{responses: map[string]execResult{
		"perl -I " + filepath.Join(home, "perl5", "lib", "perl5"): {stdout: "1.277"},
	}}
	fr.install(t)

	v, found, err := ppiTool{}.Detect(context.Background(), testEnv(t))
	if err != nil || !found {
		t.Fatalf("Detect() = %v, %v, want found", found, err)
	}
	if v.String() != "1.277" {
		t.Errorf("version = %s, want 1.277", v)
	}
}

func TestPPIInstallFailureMapsToPerlBucket(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	fr := &fakeRun{responses: map[string]execResult{
		"cpanm": {code: 2, stderr: "mirror unreachable"},
	}}
	fr.install(t)

	_, err := ppiTool{}.Install(context.Background(), testEnv(t))
	if err == nil {
		t.Fatal("Install() error = nil, want cpanm failure")
	}
	if got := errors.ExitCodeFor(err); got != exitcode.PerlToolchainFailed {
		t.Errorf("exit code = %d, want %d", got, exitcode.PerlToolchainFailed)
	}
}

func TestPSScriptAnalyzerInstall(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"pwsh -NoProfile -Command (Get-Module": {stdout: "1.22.0\n"},
	}}
	fr.install(t)

	res, err := psScriptAnalyzerTool{}.Install(context.Background(), testEnv(t))
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !fr.called("pwsh -NoProfile -Command Install-Module PSScriptAnalyzer -Force -Scope CurrentUser") {
		t.Errorf("Install-Module not invoked, calls = %v", fr.calls)
	}
	if !res.InstalledNew || res.Version.String() != "1.22.0" {
		t.Errorf("Install() = %+v, want new install at 1.22.0", res)
	}
}

func TestPSScriptAnalyzerFailureMapsToPowerShellBucket(t *testing.T) {
	fr := &fakeRun{responses: map[string]execResult{
		"pwsh -NoProfile -Command Install-Module": {code: 1, stderr: "PSGallery unreachable"},
	}}
	fr.install(t)

	_, err := psScriptAnalyzerTool{}.Install(context.Background(), testEnv(t))
	if err == nil {
		t.Fatal("Install() error = nil, want Install-Module failure")
	}
	if got := errors.ExitCodeFor(err); got != exitcode.PowerShellToolchainFailed {
		t.Errorf("exit code = %d, want %d", got, exitcode.PowerShellToolchainFailed)
	}
}

func TestPSScriptAnalyzerOffline(t *testing.T) {
	fr := &fakeRun{}
	fr.install(t)

	env := testEnv(t)
	env.Offline = true
	_, err := psScriptAnalyzerTool{}.Install(context.Background(), env)
	if !errors.Is(err, errors.ErrOffline) {
		t.Fatalf("Install() error = %v, want ErrOffline", err)
	}
	if got := errors.ExitCodeFor(err); got != exitcode.PowerShellToolchainFailed {
		t.Errorf("exit code = %d, offline failure keeps the pwsh bucket", got)
	}
	if fr.called("pwsh") {
		t.Error("offline mode executed pwsh")
	}
}

func TestRegistryResolvesDefaultProfiles(t *testing.T) {
	registry := NewRegistry(platform.Apt)
	cfg := &config.Config{Profiles: config.DefaultProfiles()}

	for _, profile := range []string{"dev", "ci", "full"} {
		ids, err := cfg.Profile(profile)
		if err != nil {
			t.Fatalf("Profile(%s) error = %v", profile, err)
		}
		resolved, err := registry.Resolve(ids)
		if err != nil {
			t.Errorf("Resolve(%s) error = %v", profile, err)
			continue
		}

		// python-venv must precede every pip-installed tool.
		venvIdx := -1
		for i, in := range resolved {
			if in.Meta().ID == "python-venv" {
				venvIdx = i
			}
		}
		if venvIdx < 0 {
			t.Errorf("profile %s did not pull in python-venv", profile)
			continue
		}
		for i, in := range resolved {
			for _, dep := range in.Meta().Dependencies {
				if dep == "python-venv" && i < venvIdx {
					t.Errorf("profile %s: %s resolved before its dependency", profile, in.Meta().ID)
				}
			}
		}
	}
}

func TestRegistryLockNames(t *testing.T) {
	apt := NewRegistry(platform.Apt)
	if locks := apt.Get("ripgrep").Meta().RequiredLocks; len(locks) != 1 || locks[0] != "apt_lock" {
		t.Errorf("apt ripgrep locks = %v, want [apt_lock]", locks)
	}

	brew := NewRegistry(platform.Homebrew)
	if locks := brew.Get("ripgrep").Meta().RequiredLocks; len(locks) != 1 || locks[0] != "brew_lock" {
		t.Errorf("brew ripgrep locks = %v, want [brew_lock]", locks)
	}
}
