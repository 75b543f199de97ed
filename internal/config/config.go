// Package config loads the bootstrap profile configuration via viper. A
// profile names the set of tool ids a run must provide; per-tool entries add
// version constraints. The file is required in CI mode and defaulted
// otherwise so a bare `bootstrap install` works on a fresh clone.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/repoforge/bootstrap/internal/errors"
)

// Config is the complete bootstrap configuration.
type Config struct {
	// Profiles maps profile name (dev, ci, full) to its tool list.
	Profiles map[string]Profile `mapstructure:"profiles"`
	// Tools maps installer id to optional version constraints.
	Tools map[string]ToolConfig `mapstructure:"tools"`
}

// Profile is a named set of required tool ids.
type Profile struct {
	// Tools lists the installer ids this profile requires.
	Tools []string `mapstructure:"tools"`
}

// ToolConfig carries per-tool version constraints.
type ToolConfig struct {
	// Version pins an exact version. Only honored by installers whose
	// descriptor reports SupportsPin; others treat it as a minimum.
	Version string `mapstructure:"version"`
	// MinVersion sets a minimum acceptable version.
	MinVersion string `mapstructure:"min_version"`
	// InstallArgs appends extra arguments to the install command.
	InstallArgs []string `mapstructure:"install_args"`
}

// DefaultProfiles returns the built-in profiles used when no config file is
// present. The ci profile is intentionally lean; full carries every
// registered tool family.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"dev": {Tools: []string{
			"repo-lint", "ripgrep", "black", "ruff", "yamllint",
		}},
		"ci": {Tools: []string{
			"repo-lint", "ripgrep", "actionlint", "black", "ruff", "yamllint", "pytest",
		}},
		"full": {Tools: []string{
			"repo-lint", "ripgrep", "actionlint", "shellcheck", "shfmt",
			"black", "ruff", "yamllint", "pytest", "pylint",
			"perlcritic", "ppi", "pwsh", "psscriptanalyzer",
		}},
	}
}

// SetDefaults registers default values with viper. Call before Load so the
// defaults apply even without a config file.
func SetDefaults() {
	for name, profile := range DefaultProfiles() {
		viper.SetDefault("profiles."+name+".tools", profile.Tools)
	}
}

// Load reads the configuration for the given repository root. Search order:
// an explicit --config path (already set on viper by the CLI), then
// bootstrap.yaml / .bootstrap.toml in the repo root. In CI mode a missing
// file is a configuration error; otherwise defaults apply.
func Load(repoRoot string, ci bool) (*Config, error) {
	SetDefaults()

	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("bootstrap")
		viper.AddConfigPath(repoRoot)
		viper.AddConfigPath(filepath.Join(repoRoot, ".config"))
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			if ci {
				return nil, errors.Wrap(errors.ErrConfigInvalid,
					"profile config file is required in CI mode")
			}
			// Fall through to defaults.
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}
	if cfg.Profiles == nil {
		cfg.Profiles = DefaultProfiles()
	}
	if cfg.Tools == nil {
		cfg.Tools = make(map[string]ToolConfig)
	}
	return &cfg, nil
}

// Profile returns the named profile's tool list. Unknown profile names are a
// usage error naming the available profiles.
func (c *Config) Profile(name string) ([]string, error) {
	p, ok := c.Profiles[name]
	if !ok {
		var names []string
		for n := range c.Profiles {
			names = append(names, n)
		}
		return nil, errors.Wrapf(errors.ErrConfigInvalid,
			"unknown profile %q (available: %s)", name, strings.Join(sorted(names), ", "))
	}
	return p.Tools, nil
}

// Tool returns the constraints for the given installer id, zero-valued when
// none are configured.
func (c *Config) Tool(id string) ToolConfig {
	return c.Tools[id]
}

// Validate checks every profile and tool entry against the set of known
// installer ids. The known func is injected to avoid a dependency on the
// registry package.
func (c *Config) Validate(known func(id string) bool) error {
	for name, profile := range c.Profiles {
		if len(profile.Tools) == 0 {
			return errors.Wrapf(errors.ErrConfigInvalid, "profile %q lists no tools", name)
		}
		for _, id := range profile.Tools {
			if !known(id) {
				return errors.Wrapf(errors.ErrUnknownTool, "profile %q references %q", name, id)
			}
		}
	}
	for id := range c.Tools {
		if !known(id) {
			return errors.Wrapf(errors.ErrUnknownTool, "tools section references %q", id)
		}
	}
	return nil
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
