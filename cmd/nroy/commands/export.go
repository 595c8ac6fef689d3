package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/printer"
	"github.com/dyluth/nroy/internal/report"
)

var (
	exportOut      string
	exportFailures bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the training data",
	Long: `Export the emulator's training data as JSON: the parameter names and
parallel arrays of design points and simulator outputs, sorted by training
point index.

Use --failures to export the failed training points as JSONL instead.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Write to this file instead of stdout")
	exportCmd.Flags().BoolVar(&exportFailures, "failures", false, "Export failure records instead of training data")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	if exportFailures {
		failures, err := s.ledger.Failures(ctx)
		if err != nil {
			return fmt.Errorf("failed to load failures: %w", err)
		}
		if err := report.FormatFailuresTo(w, failures); err != nil {
			return err
		}
		if exportOut != "" {
			printer.Success("Exported %d failures to %s\n", len(failures), exportOut)
		}
		return nil
	}

	ts, err := s.ledger.TrainingSet(ctx)
	if err != nil {
		return fmt.Errorf("failed to load training set: %w", err)
	}
	if err := report.FormatTrainingSet(w, s.cfg.ParameterSpace().Names, ts); err != nil {
		return err
	}
	if exportOut != "" {
		printer.Success("Exported %d observations to %s\n", ts.Len(), exportOut)
	}
	return nil
}
