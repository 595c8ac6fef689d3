package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/printer"
	"github.com/dyluth/nroy/internal/report"
	"github.com/dyluth/nroy/pkg/ledger"
)

var (
	analyseLimit int
)

var analyseCmd = &cobra.Command{
	Use:     "analyse",
	Aliases: []string{"analyze"},
	Short:   "Fit the emulator and rule out implausible points",
	Long: `Fit a Gaussian-process emulator to the recorded observations, predict the
simulator output at freshly drawn query points and rule out every point
whose implausibility exceeds history_matching.threshold.

The report is persisted; view it again with 'nroy report'. The simulator is
only needed when the observed value comes from a reference run that has not
happened yet.`,
	Args: cobra.NoArgs,
	RunE: runAnalyse,
}

func init() {
	analyseCmd.Flags().IntVar(&analyseLimit, "limit", 20, "Maximum NROY points to print (0 = all)")
	rootCmd.AddCommand(analyseCmd)
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	needDriver := cfg.HistoryMatching.Observed == nil

	s, err := openSession(ctx, needDriver)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.campaign.Analyse(ctx)
	if err != nil {
		return explain(err)
	}

	printAnalysis(cmd, r, analyseLimit)
	return nil
}

func printAnalysis(cmd *cobra.Command, r *ledger.Report, limit int) {
	printer.Success("Analysed campaign '%s': %d of %d query points not ruled out\n\n",
		r.Campaign, len(r.NROY), len(r.QueryPoints))
	if err := report.Write(cmd.OutOrStdout(), r, report.FormatTable, report.Options{Limit: limit}); err != nil {
		printer.Warning("failed to print report: %v\n", err)
	}
}
