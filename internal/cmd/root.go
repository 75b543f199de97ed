// Package cmd defines the bootstrap CLI: the root command with the global
// flags shared by every subcommand, and the install, verify, doctor, and
// plan subcommands.
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/config"
	"github.com/repoforge/bootstrap/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:           "bootstrap",
	Short:         "Modular toolchain bootstrapper",
	Long:          `Bootstrap detects, installs, and verifies the repository's lint and test toolchain: the Python virtualenv, pip-installed linters, and the system tools they depend on.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command under ctx. Cancellation propagates to every
// running step; in-flight package-manager work drains rather than being
// killed.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: bootstrap.yaml in the repo root)")
	flags.Bool("dry-run", false, "print the plan and mutate nothing")
	flags.Bool("ci", false, "CI mode: plain output, tighter budgets")
	flags.Bool("json", false, "emit machine-readable JSON events")
	flags.Bool("offline", false, "forbid all network access")
	flags.Bool("allow-downgrade", false, "permit installing a version older than the one present")
	flags.Bool("checkpoint", false, "record progress for later --resume")
	flags.Bool("resume", false, "resume from a matching checkpoint")
	flags.BoolP("verbose", "v", false, "verbose logging")
	flags.Int("jobs", 0, "parallel jobs (default: CI=2, interactive=min(4,cores))")

	for _, name := range []string{"dry-run", "ci", "json", "offline", "allow-downgrade", "checkpoint", "resume", "verbose", "jobs"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	// Flag misuse is a usage error, distinct from operational failures.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Wrap(errors.ErrConfigInvalid, err.Error())
	})
}

func initConfig() {
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix("BOOTSTRAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
}

// globalOptions reads the persistent flags into context options.
func globalOptions() bootenv.Options {
	return bootenv.Options{
		DryRun:         viper.GetBool("dry-run"),
		Offline:        viper.GetBool("offline"),
		AllowDowngrade: viper.GetBool("allow-downgrade"),
		CI:             viper.GetBool("ci"),
		JSON:           viper.GetBool("json"),
		Checkpoint:     viper.GetBool("checkpoint"),
		Resume:         viper.GetBool("resume"),
		Verbose:        viper.GetBool("verbose"),
		Jobs:           viper.GetInt("jobs"),
	}
}

// buildEnv discovers the repository, loads configuration, and constructs
// the immutable run context.
func buildEnv() (*bootenv.Context, error) {
	opts := globalOptions()

	root, err := bootenv.FindRepoRoot("")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root, opts.CI)
	if err != nil {
		return nil, err
	}
	return bootenv.New(opts, cfg)
}
