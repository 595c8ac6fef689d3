// Package orchestrator runs a history-matching campaign: it draws the
// training design, runs the simulator at every training point, fits an
// emulator to the results and rules out implausible regions of the
// parameter space.
//
// Every stage persists its results through the ledger and can be run on its
// own, so a campaign survives restarts and simulations can be resumed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/nroy/internal/config"
	"github.com/dyluth/nroy/internal/design"
	"github.com/dyluth/nroy/internal/simulator"
	"github.com/dyluth/nroy/pkg/ledger"
)

var (
	// ErrInsufficientData is returned when fewer observations than
	// parameters + 1 are available to fit the emulator.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrAllSimulationsFailed is returned when no training point produced an
	// observation.
	ErrAllSimulationsFailed = errors.New("all simulations failed")

	// ErrNoDesign is returned by stages that need a persisted design.
	ErrNoDesign = errors.New("no design found")

	// ErrDesignMismatch is returned when the persisted design was drawn over
	// different parameter bounds than the current configuration.
	ErrDesignMismatch = errors.New("persisted design does not match configuration")

	// ErrNoDriver is returned when a stage needs the simulator but none was
	// configured.
	ErrNoDriver = errors.New("no simulator driver configured")
)

// ReferenceRunID names the extra simulation that provides the observed
// value when none is configured.
const ReferenceRunID = "reference"

// RunID returns the run id of the training point at index.
func RunID(index int) string {
	return fmt.Sprintf("sample_point_%d", index)
}

// Campaign coordinates the stages of one campaign.
type Campaign struct {
	cfg    *config.CampaignConfig
	ledger *ledger.Ledger
	space  design.ParameterSpace
	runner *simulator.RetryDriver
	logger *zap.Logger
}

// New creates a campaign. cfg must be validated. driver may be nil for
// campaigns that only analyse existing observations; it is wrapped with the
// bounds and finite-value guard and with the configured retry policy.
func New(cfg *config.CampaignConfig, l *ledger.Ledger, driver simulator.Driver, logger *zap.Logger) (*Campaign, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	space := cfg.ParameterSpace()
	if err := space.Validate(); err != nil {
		return nil, err
	}

	c := &Campaign{
		cfg:    cfg,
		ledger: l,
		space:  space,
		logger: logger.With(zap.String("campaign", cfg.Name)),
	}
	if driver != nil {
		guard := simulator.NewGuard(driver, space)
		c.runner = simulator.Retry(guard, cfg.Simulator.MaxAttempts, cfg.Simulator.Backoff).WithLogger(c.logger)
	}
	return c, nil
}

// Ledger returns the campaign's ledger.
func (c *Campaign) Ledger() *ledger.Ledger {
	return c.ledger
}

// DesignState is the persisted design and its training points.
type DesignState struct {
	Design *design.Design
	Points [][]float64
	// Created is true when this call drew the design.
	Created bool
}

// PrepareDesign loads the persisted design, or creates one from the
// configuration and persists it together with its training points.
func (c *Campaign) PrepareDesign(ctx context.Context) (*DesignState, error) {
	d, err := c.ledger.LoadDesign(ctx)
	switch {
	case err == nil:
		if !sameBounds(d.Space(), c.space) {
			return nil, fmt.Errorf("%w: persisted bounds %v, configured %v", ErrDesignMismatch, d.Space().Bounds, c.space.Bounds)
		}
		points, err := c.ledger.LoadTrainingPoints(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load training points: %w", err)
		}
		if len(points) != c.cfg.Design.TrainingPoints {
			c.logger.Warn("persisted design size differs from configuration; using persisted design",
				zap.Int("persisted", len(points)),
				zap.Int("configured", c.cfg.Design.TrainingPoints))
		}
		return &DesignState{Design: d, Points: points}, nil

	case ledger.IsNotFound(err):
		// Fall through to creation below.

	default:
		return nil, fmt.Errorf("failed to load design: %w", err)
	}

	d, err = design.New(c.space, c.cfg.Design.Seed)
	if err != nil {
		return nil, err
	}
	points, err := d.Sample(c.cfg.Design.TrainingPoints)
	if err != nil {
		return nil, err
	}

	// Points first: a design without points is never persisted.
	if err := c.ledger.SaveTrainingPoints(ctx, points); err != nil {
		return nil, fmt.Errorf("failed to save training points: %w", err)
	}
	if err := c.ledger.SaveDesign(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save design: %w", err)
	}

	c.logger.Info("design created",
		zap.Int("training_points", len(points)),
		zap.Uint64("seed", d.Seed()))

	return &DesignState{Design: d, Points: points, Created: true}, nil
}

// Run executes design, simulate and analyse in order.
func (c *Campaign) Run(ctx context.Context) (*ledger.Report, error) {
	start := time.Now()

	if _, err := c.PrepareDesign(ctx); err != nil {
		return nil, err
	}

	summary, err := c.Simulate(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("simulations complete",
		zap.Int("observations", summary.Observations),
		zap.Int("failures", summary.Failures))

	report, err := c.Analyse(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Info("campaign complete",
		zap.Int("nroy", len(report.NROY)),
		zap.Int("query_points", len(report.QueryPoints)),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// RetryFailures clears the failure records so the next Simulate reruns
// those points. Returns the number of points cleared.
func (c *Campaign) RetryFailures(ctx context.Context) (int, error) {
	return c.ledger.ClearFailures(ctx)
}

func sameBounds(a, b design.ParameterSpace) bool {
	return slices.Equal(a.Bounds, b.Bounds)
}
