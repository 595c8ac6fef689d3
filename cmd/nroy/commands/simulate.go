package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/orchestrator"
	"github.com/dyluth/nroy/internal/printer"
)

var (
	retryFailed bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the simulator at every pending training point",
	Long: `Run the simulator at every training point that has neither an observation
nor a failure record, drawing the design first if needed.

Simulations run concurrently up to simulator.concurrency. A point that fails
every attempt is recorded as a failure and left out of the emulator's
training data. Interrupting the command keeps every completed result, so
running it again resumes the campaign.

Use --retry-failed to clear the failure records and rerun those points.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Rerun points recorded as failed")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if retryFailed {
		n, err := s.campaign.RetryFailures(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear failures: %w", err)
		}
		if n > 0 {
			printer.Step("Retrying %d failed points\n", n)
		}
	}

	summary, err := s.campaign.Simulate(ctx)
	if summary != nil {
		printSimulationSummary(summary)
	}
	return explain(err)
}

func printSimulationSummary(summary *orchestrator.SimulationSummary) {
	printer.Success("Simulated %d of %d training points\n", summary.Succeeded+summary.Failed, summary.TrainingPoints)
	printer.Field("succeeded", summary.Succeeded)
	printer.Field("failed", summary.Failed)
	printer.Field("skipped", summary.Skipped)
	printer.Field("observations", summary.Observations)
	if summary.Failures > 0 {
		printer.Warning("%d training points failed and are excluded (see 'nroy export --failures')\n", summary.Failures)
	}
}
