package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the execution plan without running it",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().String("profile", "dev", "profile to plan (dev, ci, full)")
	rootCmd.AddCommand(planCmd)
}

// runPlan computes and prints the plan. Detection runs for real so the plan
// reflects the actual machine state; nothing else executes.
func runPlan(cmd *cobra.Command, _ []string) error {
	profile, _ := cmd.Flags().GetString("profile")

	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()
	s.useDryRun()

	p, err := s.resolveAndPlan(cmd, profile, false)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), p.Render(s.env.DryRun))
	return nil
}
