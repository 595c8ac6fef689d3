package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/printer"
	"github.com/dyluth/nroy/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter campaign",
	Long: `Create a starter campaign next to the configuration path.

Creates:
  • campaign.yml - Campaign configuration
  • simulator/simulate.py - Example simulator following the exec driver contract
  • simulator/README.md - How to run the campaign

Use --force to reinitialize an existing campaign (WARNING: destroys existing configuration).`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing campaign.yml and simulator/)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := filepath.Dir(configPath)

	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.Error("campaign already initialized", err.Error(), nil)
		}
	}

	created, err := scaffold.Initialize(dir, forceInit)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(created)
	return nil
}
