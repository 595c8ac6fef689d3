package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/dyluth/nroy/internal/design"
	dockerpkg "github.com/dyluth/nroy/internal/docker"
)

// containerRunDir is where a run's host directory is mounted inside the
// simulator container.
const containerRunDir = "/nroy/run"

// DockerConfig configures a DockerDriver.
type DockerConfig struct {
	Image   string
	Command []string
	Env     []string
	Network string
	// WorkDir, when set, is a host directory; each run's subdirectory is
	// bind-mounted at /nroy/run.
	WorkDir string
	Timeout time.Duration
	Pull    bool
}

// DockerDriver launches one container per simulation run. The point is
// passed in the environment (NROY_RUN_ID, NROY_POINT, NROY_PARAMETERS) and
// the value is read from the last JSON line of the container's stdout.
type DockerDriver struct {
	cli           *client.Client
	campaign      string
	campaignRunID string
	cfg           DockerConfig
	space         design.ParameterSpace
	logger        *zap.Logger
}

// NewDockerDriver creates a driver for campaign. cli must be connected.
func NewDockerDriver(cli *client.Client, campaign string, cfg DockerConfig, space design.ParameterSpace, logger *zap.Logger) (*DockerDriver, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("simulator image is required for the docker driver")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRunTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkDir != "" {
		abs, err := filepath.Abs(cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve work directory: %w", err)
		}
		cfg.WorkDir = abs
	}

	return &DockerDriver{
		cli:           cli,
		campaign:      campaign,
		campaignRunID: dockerpkg.GenerateRunID(),
		cfg:           cfg,
		space:         space,
		logger:        logger,
	}, nil
}

// Prepare pulls the image when configured to.
func (d *DockerDriver) Prepare(ctx context.Context) error {
	if !d.cfg.Pull {
		return nil
	}

	reader, err := d.cli.ImagePull(ctx, d.cfg.Image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", d.cfg.Image, err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Run implements Driver.
func (d *DockerDriver) Run(ctx context.Context, point []float64, runID string) (float64, error) {
	fail := func(exitCode int, reason string, err error) (float64, error) {
		return 0, &Failure{RunID: runID, Point: point, Reason: reason, ExitCode: exitCode, Err: err}
	}

	env, err := containerEnv(runID, point, d.space)
	if err != nil {
		return fail(-1, "failed to encode point", err)
	}

	containerConfig := &container.Config{
		Image:  d.cfg.Image,
		Cmd:    d.cfg.Command,
		Env:    append(env, d.cfg.Env...),
		Labels: dockerpkg.BuildLabels(d.campaign, d.campaignRunID, d.cfg.WorkDir, dockerpkg.ComponentSimulation),
	}
	containerConfig.Labels[dockerpkg.LabelSimulationRun] = runID

	hostConfig := &container.HostConfig{
		AutoRemove: false, // removed explicitly after logs are read
	}
	if d.cfg.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(d.cfg.Network)
	}
	if d.cfg.WorkDir != "" {
		runDir := filepath.Join(d.cfg.WorkDir, runID)
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return fail(-1, "failed to create run directory", err)
		}
		hostConfig.Mounts = []mount.Mount{{
			Type:   mount.TypeBind,
			Source: runDir,
			Target: containerRunDir,
		}}
	}

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	name := dockerpkg.SimulationContainerName(d.campaign, runID)
	resp, err := d.cli.ContainerCreate(runCtx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return fail(-1, "failed to create simulation container", err)
	}
	defer d.remove(resp.ID)

	d.logger.Debug("simulation container created",
		zap.String("run_id", runID),
		zap.String("container_id", resp.ID),
		zap.String("container_name", name))

	if err := d.cli.ContainerStart(runCtx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fail(-1, "failed to start simulation container", err)
	}

	statusCh, errCh := d.cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if runCtx.Err() == context.DeadlineExceeded {
			return fail(-1, "simulation timed out", fmt.Errorf("no exit after %s", d.cfg.Timeout))
		}
		return fail(-1, "error waiting for simulation container", err)
	case status := <-statusCh:
		if status.Error != nil {
			return fail(-1, "error waiting for simulation container", fmt.Errorf("%s", status.Error.Message))
		}
		exitCode = int(status.StatusCode)
	}

	stdout, stderr, err := d.logs(ctx, resp.ID)
	if err != nil {
		return fail(exitCode, "failed to read simulation logs", err)
	}

	if exitCode != 0 {
		return fail(exitCode, "simulation container failed",
			fmt.Errorf("container exited with code %d: %s", exitCode, truncate(strings.TrimSpace(stderr), 500)))
	}

	value, err := parseOutput(stdout)
	if err != nil {
		return fail(0, "invalid simulator output", err)
	}
	return value, nil
}

// logs returns the demultiplexed stdout and stderr of a container.
func (d *DockerDriver) logs(ctx context.Context, containerID string) (string, string, error) {
	reader, err := d.cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", err
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	lw := &limitedWriter{w: &stdout, limit: DefaultMaxOutputSize}
	le := &limitedWriter{w: &stderr, limit: DefaultMaxOutputSize}
	if _, err := stdcopy.StdCopy(lw, le, reader); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

func (d *DockerDriver) remove(containerID string) {
	// The run context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true}); err != nil {
		d.logger.Warn("failed to remove simulation container",
			zap.String("container_id", containerID),
			zap.Error(err))
	}
}

// containerEnv encodes a run's inputs as environment variables.
func containerEnv(runID string, point []float64, space design.ParameterSpace) ([]string, error) {
	pointJSON, err := json.Marshal(point)
	if err != nil {
		return nil, err
	}
	paramsJSON, err := json.Marshal(space.Named(point))
	if err != nil {
		return nil, err
	}

	return []string{
		"NROY_RUN_ID=" + runID,
		"NROY_POINT=" + string(pointJSON),
		"NROY_PARAMETERS=" + string(paramsJSON),
		"NROY_RUN_DIR=" + containerRunDir,
	}, nil
}
