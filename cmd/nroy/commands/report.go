package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/printer"
	"github.com/dyluth/nroy/internal/report"
)

var (
	reportOutputFormat string
	reportAll          bool
	reportLimit        int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the latest history-matching report",
	Long: `Show the report of the latest analysis.

Output Formats:
  table    - Summary and a table of NROY points (default)
  markdown - The same table as GitHub-flavoured Markdown
  jsonl    - Line-delimited JSON, one point per line
  json     - The complete report, including emulator hyperparameters

Examples:
  # NROY points as a table
  nroy report

  # Every query point with its implausibility, for plotting
  nroy report --all -o jsonl > points.jsonl

  # Parameter ranges that survive
  nroy report -o jsonl | jq -s 'map(.parameters.normal_stress) | [min, max]'`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutputFormat, "output", "o", "table", "Output format: table, markdown, jsonl or json")
	reportCmd.Flags().BoolVar(&reportAll, "all", false, "Include ruled-out points")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 50, "Maximum table rows (0 = all)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := report.ParseFormat(reportOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			err.Error(),
			[]string{"Valid formats: table, markdown, jsonl, json"},
		)
	}

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.ledger.LoadReport(ctx)
	if err != nil {
		return explain(err)
	}

	return report.Write(cmd.OutOrStdout(), r, format, report.Options{All: reportAll, Limit: reportLimit})
}
