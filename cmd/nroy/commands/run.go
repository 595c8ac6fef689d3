package commands

import (
	"github.com/spf13/cobra"
)

var (
	runLimit int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole campaign: design, simulate and analyse",
	Long: `Run every stage of the campaign in order: draw the design if needed, run
the pending simulations and analyse the results.

Each stage skips work that is already recorded, so 'nroy run' is also the
way to resume an interrupted campaign.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 20, "Maximum NROY points to print (0 = all)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	summary, err := s.campaign.Simulate(ctx)
	if summary != nil {
		printSimulationSummary(summary)
	}
	if err != nil {
		return explain(err)
	}

	r, err := s.campaign.Analyse(ctx)
	if err != nil {
		return explain(err)
	}
	printAnalysis(cmd, r, runLimit)
	return nil
}
