package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/nroy/internal/config"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath string
	overrides  = config.NewOverrides()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nroy",
	Short: "nroy - history matching for expensive simulators",
	Long: `nroy runs uncertainty-quantification campaigns against an expensive
black-box simulator.

A campaign draws a Latin hypercube design over the uncertain parameters,
runs the simulator at every design point, fits a Gaussian-process emulator
to the results and rules out the regions of parameter space whose predicted
output is implausibly far from the observed value. The points that remain
are the NROY (not ruled out yet) space.

Every stage persists its results, so an interrupted campaign resumes where
it stopped.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return overrides.BindFlags(cmd.Root().PersistentFlags())
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Errors are printed by the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "f", config.DefaultFile, "Path to the campaign configuration")
	flags.String(config.KeyLogLevel, "info", "Log level: debug, info, warn or error")
	flags.String(config.KeyLogFormat, "console", "Log format: console or json")
	flags.String(config.KeyStorage, "", "Storage backend override: memory, filesystem, redis or minio")
	flags.String(config.KeyStoragePath, "", "Directory of the filesystem storage backend")
	flags.String(config.KeyRedisURL, "", "Redis URL of the redis storage backend")
	flags.String(config.KeyMetricsAddr, "", "Serve /healthz and /metrics on this address while running")
	flags.Int(config.KeyConcurrency, 0, "Maximum concurrent simulations")
}
