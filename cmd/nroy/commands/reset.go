package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/printer"
)

var (
	forceReset bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored result of the campaign",
	Long: `Delete the campaign's design, observations, failures, reference run and
report from the configured store. Simulation run directories are left in
place.

Requires --force.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&forceReset, "force", false, "Confirm deletion")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if !forceReset {
		return printer.Error(
			"confirmation required",
			fmt.Sprintf("This deletes every stored result of campaign '%s'.", s.cfg.Name),
			[]string{"Run again with --force:\n  nroy reset --force"},
		)
	}

	n, err := s.ledger.Reset(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset campaign: %w", err)
	}
	printer.Success("Campaign '%s' reset (%d records deleted)\n", s.cfg.Name, n)
	return nil
}
