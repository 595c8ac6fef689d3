package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dyluth/nroy/internal/config"
	"github.com/dyluth/nroy/internal/docker"
	"github.com/dyluth/nroy/internal/simulator"
)

// NewDriver builds the simulator driver selected by cfg. The returned close
// function releases driver resources and is never nil.
func NewDriver(ctx context.Context, cfg *config.CampaignConfig, logger *zap.Logger) (simulator.Driver, func() error, error) {
	noop := func() error { return nil }
	sim := cfg.Simulator
	space := cfg.ParameterSpace()

	switch sim.Driver {
	case config.DriverExec:
		d, err := simulator.NewExecDriver(simulator.ExecConfig{
			Command: sim.Command,
			WorkDir: sim.WorkDir,
			Env:     sim.Environment,
			Timeout: sim.Timeout,
		}, space, logger)
		if err != nil {
			return nil, noop, err
		}
		return d, noop, nil

	case config.DriverDocker:
		cli, err := docker.NewClient(ctx)
		if err != nil {
			return nil, noop, err
		}

		d, err := simulator.NewDockerDriver(cli, cfg.Name, simulator.DockerConfig{
			Image:   sim.Image,
			Command: sim.Command,
			Env:     sim.Environment,
			Network: sim.Network,
			WorkDir: sim.WorkDir,
			Timeout: sim.Timeout,
			Pull:    sim.Pull,
		}, space, logger)
		if err != nil {
			cli.Close()
			return nil, noop, err
		}
		if err := d.Prepare(ctx); err != nil {
			cli.Close()
			return nil, noop, err
		}
		return d, cli.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown simulator driver %q", sim.Driver)
	}
}
