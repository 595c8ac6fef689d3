package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// NewClient creates a Docker client and validates the daemon is accessible.
// Only campaigns using the docker simulator driver need one.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

The docker simulator driver needs a running daemon:
  • macOS: Docker Desktop
  • Linux: sudo systemctl start docker
Or switch simulator.driver to "exec" in campaign.yml`, err)
	}

	return cli, nil
}
