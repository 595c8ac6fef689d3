package commands

import (
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/spf13/cobra"

	dockerpkg "github.com/dyluth/nroy/internal/docker"
	"github.com/dyluth/nroy/internal/printer"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove leftover simulation containers",
	Long: `Remove every container the docker simulator driver started for this
campaign. Containers are normally removed after each run; an interrupted
campaign can leave some behind.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("docker unavailable", err.Error(), nil)
	}
	defer cli.Close()

	containerFilters := filters.NewArgs()
	containerFilters.Add("label", dockerpkg.CampaignFilter(cfg.Name))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: containerFilters,
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	if len(containers) == 0 {
		printer.Info("No simulation containers found for campaign '%s'\n", cfg.Name)
		return nil
	}

	for _, c := range containers {
		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		printer.Step("Removing %s...\n", name)
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	printer.Success("Removed %d simulation containers\n", len(containers))
	return nil
}
