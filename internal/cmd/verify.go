package cmd

import (
	"github.com/spf13/cobra"

	"github.com/repoforge/bootstrap/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the installed toolchain without installing anything",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().String("profile", "dev", "profile to verify (dev, ci, full)")
	rootCmd.AddCommand(verifyCmd)
}

// runVerify checks every tool in the profile plus the repository gate. It
// is read-only: no installs, no network.
func runVerify(cmd *cobra.Command, _ []string) error {
	profile, _ := cmd.Flags().GetString("profile")

	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	p, err := s.resolveAndPlan(cmd, profile, true)
	if err != nil {
		return err
	}

	if err := s.exec.RunVerifyOnly(cmd.Context(), p); err != nil {
		return err
	}

	_, err = verify.Run(cmd.Context(), s.env)
	return err
}
