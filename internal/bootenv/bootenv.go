// Package bootenv holds the immutable run context shared by every step of a
// bootstrap run: repository paths, detected platform, and the flags that shape
// execution. The Context is constructed once by the CLI and passed by pointer;
// it is never mutated afterward. Per-step variations (such as forcing dry-run
// for a planning pass) are expressed as narrowed copies, never global state.
package bootenv

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/repoforge/bootstrap/internal/config"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/platform"
)

// Environment variable overrides honored during context construction.
const (
	// EnvJobs overrides the worker count (same as --jobs).
	EnvJobs = "BOOTSTRAP_JOBS"
	// EnvRepoLintBin overrides the path to the repo-lint binary used by the
	// verification gate.
	EnvRepoLintBin = "BOOTSTRAP_REPO_LINT_BIN"
	// EnvForceLegacy routes execution through the legacy bash bootstrapper.
	// Escape hatch during migration; reported by doctor when set.
	EnvForceLegacy = "BOOTSTRAP_FORCE_LEGACY"
)

// Context is the immutable run configuration.
type Context struct {
	RepoRoot       string
	VenvPath       string
	OS             platform.OS
	PackageManager platform.PackageManager

	DryRun         bool
	Offline        bool
	AllowDowngrade bool
	CI             bool
	JSON           bool
	Checkpoint     bool
	Resume         bool
	Verbose        bool

	// Jobs caps total simultaneous step executions across the whole run.
	Jobs int

	Config *config.Config
}

// Options carries the CLI-provided knobs for context construction.
type Options struct {
	StartDir       string // directory to search for the repo root; "" = cwd
	DryRun         bool
	Offline        bool
	AllowDowngrade bool
	CI             bool
	JSON           bool
	Checkpoint     bool
	Resume         bool
	Verbose        bool
	Jobs           int // 0 = default for mode
}

// New constructs the run context: discovers the repository root, detects the
// platform, and applies environment overrides. Returns ErrNotInRepo when no
// enclosing git repository exists.
func New(opts Options, cfg *config.Config) (*Context, error) {
	start := opts.StartDir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "determining working directory")
		}
		start = wd
	}

	root, err := FindRepoRoot(start)
	if err != nil {
		return nil, err
	}

	osType := platform.DetectOS()
	pm := platform.DetectPackageManager(osType)

	jobs := opts.Jobs
	if env := os.Getenv(EnvJobs); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			jobs = n
		}
		// Unparseable values fall through to the default; job count is a
		// tuning knob, not a correctness input.
	}
	if jobs <= 0 {
		jobs = platform.DefaultJobs(opts.CI)
	}

	return &Context{
		RepoRoot:       root,
		VenvPath:       filepath.Join(root, ".venv"),
		OS:             osType,
		PackageManager: pm,
		DryRun:         opts.DryRun,
		Offline:        opts.Offline,
		AllowDowngrade: opts.AllowDowngrade,
		CI:             opts.CI,
		JSON:           opts.JSON,
		Checkpoint:     opts.Checkpoint,
		Resume:         opts.Resume,
		Verbose:        opts.Verbose,
		Jobs:           jobs,
		Config:         cfg,
	}, nil
}

// FindRepoRoot walks up from dir looking for a .git entry. Returns
// ErrNotInRepo if the filesystem root is reached without finding one.
func FindRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "resolving start directory")
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ErrNotInRepo
		}
		dir = parent
	}
}

// WithDryRun returns a narrowed copy with DryRun forced on. Used by the plan
// subcommand, which must never mutate the system.
func (c *Context) WithDryRun() *Context {
	cp := *c
	cp.DryRun = true
	return &cp
}

// VenvPython returns the venv's python3 path.
func (c *Context) VenvPython() string {
	return filepath.Join(c.VenvPath, "bin", "python3")
}

// VenvPip returns the venv's pip path.
func (c *Context) VenvPip() string {
	return filepath.Join(c.VenvPath, "bin", "pip")
}

// VenvBin returns the path of a named binary inside the venv.
func (c *Context) VenvBin(name string) string {
	return filepath.Join(c.VenvPath, "bin", name)
}

// RepoLintBin returns the repo-lint binary path, honoring the
// BOOTSTRAP_REPO_LINT_BIN override.
func (c *Context) RepoLintBin() string {
	if p := os.Getenv(EnvRepoLintBin); p != "" {
		return p
	}
	return c.VenvBin("repo-lint")
}

// ForceLegacy reports whether the legacy-bootstrapper escape hatch is set.
func ForceLegacy() bool {
	return os.Getenv(EnvForceLegacy) != ""
}

// LockWaitBudget returns the maximum time to wait for a named lock. CI runs
// get a tighter budget so hung runners fail fast.
func (c *Context) LockWaitBudget() time.Duration {
	if c.CI {
		return 60 * time.Second
	}
	return 180 * time.Second
}
