package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/printer"
)

var designCmd = &cobra.Command{
	Use:   "design",
	Short: "Draw and persist the training design",
	Long: `Draw the Latin hypercube training design and persist it together with its
training points.

If the campaign already has a design it is loaded and checked against the
configured parameter bounds instead. The design is drawn once per campaign;
use 'nroy reset --force' to start over.`,
	Args: cobra.NoArgs,
	RunE: runDesign,
}

func init() {
	rootCmd.AddCommand(designCmd)
}

func runDesign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	state, err := s.campaign.PrepareDesign(ctx)
	if err != nil {
		return explain(err)
	}

	if state.Created {
		printer.Success("Drew %d training points for campaign '%s'\n", len(state.Points), s.cfg.Name)
	} else {
		printer.Info("Campaign '%s' already has a design of %d training points\n", s.cfg.Name, len(state.Points))
	}
	printer.Field("parameters", state.Design.Dim())
	printer.Field("seed", state.Design.Seed())
	return nil
}
