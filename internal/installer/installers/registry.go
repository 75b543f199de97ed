package installers

import (
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/platform"
)

// NewRegistry assembles the production installer set. The package manager
// decides which named lock the system-package installers contend on, so the
// registry is built per run.
func NewRegistry(pm platform.PackageManager) *installer.Registry {
	return installer.NewRegistryWith(
		venvTool{},
		repoLintTool{},
		newPMTool(pm, "ripgrep", "ripgrep", "Fast grep alternative (required)", "rg", "ripgrep"),
		newActionlint(pm),
		newPMTool(pm, "shellcheck", "shellcheck", "Shell script static analysis", "shellcheck", "shellcheck"),
		newPMTool(pm, "shfmt", "shfmt", "Shell script formatter", "shfmt", "shfmt"),
		newPwsh(pm),
		newPipTool("black", "black", "Python code formatter", "black"),
		newPipTool("ruff", "ruff", "Python linter", "ruff"),
		newPipTool("yamllint", "yamllint", "YAML linter", "yamllint"),
		newPipTool("pytest", "pytest", "Python test runner", "pytest"),
		newPipTool("pylint", "pylint", "Python source linter", "pylint"),
		perlCriticTool{},
		ppiTool{},
		psScriptAnalyzerTool{},
	)
}
