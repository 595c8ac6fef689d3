//go:build integration

package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	dockerpkg "github.com/dyluth/nroy/internal/docker"
)

func newDockerDriver(t *testing.T, command []string) *DockerDriver {
	t.Helper()
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { cli.Close() })

	d, err := NewDockerDriver(cli, "itest", DockerConfig{
		Image:   "alpine:3.19",
		Command: command,
		Timeout: time.Minute,
		Pull:    true,
	}, testSpace(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, d.Prepare(ctx))
	return d
}

func TestDockerDriver_ReadsLastJSONLine(t *testing.T) {
	d := newDockerDriver(t, []string{"sh", "-c", `echo "point=$NROY_POINT"; echo '{"value": 7.5}'`})

	v, err := d.Run(context.Background(), []float64{-100, 0.25}, "docker-ok")
	require.NoError(t, err)
	assert.Equal(t, 7.5, v)

	// Container is removed after the run.
	list, err := d.cli.ContainerList(context.Background(), types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", dockerpkg.CampaignFilter("itest"))),
	})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDockerDriver_NonZeroExit(t *testing.T) {
	d := newDockerDriver(t, []string{"sh", "-c", "echo boom >&2; exit 4"})

	_, err := d.Run(context.Background(), []float64{-100, 0.25}, "docker-fail")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, 4, f.ExitCode)
	assert.Contains(t, err.Error(), "boom")
}
