package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repoforge/bootstrap/internal/doctor"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/exitcode"
	"github.com/repoforge/bootstrap/internal/installer/installers"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the environment and report remediation steps",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().Bool("strict", false, "treat warnings as failures")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	strict, _ := cmd.Flags().GetBool("strict")

	env, err := buildEnv()
	if err != nil {
		return err
	}
	registry := installers.NewRegistry(env.PackageManager)

	report := doctor.Run(cmd.Context(), env, registry)
	fmt.Fprint(cmd.OutOrStdout(), report.Render())

	if report.ExitCode(strict) != exitcode.Success {
		pass, warn, fail := report.Counts()
		return errors.Wrapf(errors.ErrVerificationFailed,
			"doctor: %d passed, %d warnings, %d failures", pass, warn, fail)
	}
	return nil
}
