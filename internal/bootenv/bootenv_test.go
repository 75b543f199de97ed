package bootenv

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/repoforge/bootstrap/internal/config"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/testutil"
)

func TestFindRepoRoot(t *testing.T) {
	root := testutil.TempRepo(t)
	nested := filepath.Join(root, "internal", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := FindRepoRoot(nested)
	if err != nil {
		t.Fatalf("FindRepoRoot() error = %v", err)
	}
	if got != root {
		t.Errorf("FindRepoRoot() = %q, want %q", got, root)
	}
}

func TestFindRepoRootOutsideRepo(t *testing.T) {
	_, err := FindRepoRoot(t.TempDir())
	if !errors.Is(err, errors.ErrNotInRepo) {
		t.Errorf("error = %v, want ErrNotInRepo", err)
	}
}

func TestNewDefaults(t *testing.T) {
	root := testutil.TempRepo(t)

	env, err := New(Options{StartDir: root, CI: true}, &config.Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if env.RepoRoot != root {
		t.Errorf("RepoRoot = %q, want %q", env.RepoRoot, root)
	}
	if env.VenvPath != filepath.Join(root, ".venv") {
		t.Errorf("VenvPath = %q", env.VenvPath)
	}
	if env.Jobs < 1 {
		t.Errorf("Jobs = %d, want >= 1", env.Jobs)
	}
	if env.VenvPython() != filepath.Join(root, ".venv", "bin", "python3") {
		t.Errorf("VenvPython() = %q", env.VenvPython())
	}
	if env.VenvBin("ruff") != filepath.Join(root, ".venv", "bin", "ruff") {
		t.Errorf("VenvBin() = %q", env.VenvBin("ruff"))
	}
}

func TestJobsEnvOverride(t *testing.T) {
	root := testutil.TempRepo(t)
	t.Setenv(EnvJobs, "7")

	env, err := New(Options{StartDir: root}, &config.Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if env.Jobs != 7 {
		t.Errorf("Jobs = %d, want 7 from %s", env.Jobs, EnvJobs)
	}
}

func TestJobsEnvOverrideUnparseable(t *testing.T) {
	root := testutil.TempRepo(t)
	t.Setenv(EnvJobs, "lots")

	env, err := New(Options{StartDir: root}, &config.Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if env.Jobs < 1 {
		t.Errorf("Jobs = %d, want mode default", env.Jobs)
	}
}

func TestWithDryRun(t *testing.T) {
	root := testutil.TempRepo(t)
	env, err := New(Options{StartDir: root}, &config.Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dry := env.WithDryRun()
	if !dry.DryRun {
		t.Error("WithDryRun() did not set DryRun")
	}
	if env.DryRun {
		t.Error("WithDryRun() mutated the original context")
	}
}

func TestRepoLintBinOverride(t *testing.T) {
	root := testutil.TempRepo(t)
	env, err := New(Options{StartDir: root}, &config.Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := env.RepoLintBin(); got != env.VenvBin("repo-lint") {
		t.Errorf("RepoLintBin() = %q, want venv default", got)
	}

	t.Setenv(EnvRepoLintBin, "/opt/repo-lint")
	if got := env.RepoLintBin(); got != "/opt/repo-lint" {
		t.Errorf("RepoLintBin() = %q, want override", got)
	}
}

func TestLockWaitBudget(t *testing.T) {
	ci := &Context{CI: true}
	interactive := &Context{}
	if ci.LockWaitBudget() != 60*time.Second {
		t.Errorf("CI budget = %v", ci.LockWaitBudget())
	}
	if interactive.LockWaitBudget() != 180*time.Second {
		t.Errorf("interactive budget = %v", interactive.LockWaitBudget())
	}
}
