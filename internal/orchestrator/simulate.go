package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/nroy/internal/metrics"
	"github.com/dyluth/nroy/internal/simulator"
	"github.com/dyluth/nroy/pkg/ledger"
)

// SimulationSummary counts the outcome of a Simulate call.
type SimulationSummary struct {
	// TrainingPoints is the size of the design.
	TrainingPoints int
	// Skipped points already had an observation or failure record.
	Skipped int
	// Succeeded and Failed count the points run by this call.
	Succeeded int
	Failed    int
	// Observations and Failures are the ledger totals after the call.
	Observations int
	Failures     int
}

// Simulate runs the simulator at every training point without an
// observation or failure record. Points run concurrently up to
// simulator.concurrency. A point that fails every attempt is recorded as a
// failure and dropped; the batch carries on.
func (c *Campaign) Simulate(ctx context.Context) (*SimulationSummary, error) {
	if c.runner == nil {
		return nil, ErrNoDriver
	}

	state, err := c.PrepareDesign(ctx)
	if err != nil {
		return nil, err
	}

	done, err := c.recordedIndices(ctx)
	if err != nil {
		return nil, err
	}

	summary := &SimulationSummary{TrainingPoints: len(state.Points)}
	var pending []int
	for i := range state.Points {
		if done[i] {
			summary.Skipped++
			continue
		}
		pending = append(pending, i)
	}

	c.logger.Info("starting simulations",
		zap.Int("pending", len(pending)),
		zap.Int("skipped", summary.Skipped),
		zap.Int("concurrency", c.cfg.Simulator.Concurrency))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Simulator.Concurrency)

	for _, index := range pending {
		if gctx.Err() != nil {
			break
		}
		point := state.Points[index]
		g.Go(func() error {
			ok, err := c.simulatePoint(gctx, index, point)
			if err != nil {
				return err
			}
			mu.Lock()
			if ok {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	obs, err := c.ledger.Observations(ctx)
	if err != nil {
		return summary, err
	}
	failures, err := c.ledger.Failures(ctx)
	if err != nil {
		return summary, err
	}
	summary.Observations = len(obs)
	summary.Failures = len(failures)

	if summary.Observations == 0 && summary.Failures > 0 {
		return summary, fmt.Errorf("%w: %d of %d points failed", ErrAllSimulationsFailed, summary.Failures, summary.TrainingPoints)
	}
	if need := c.space.Dim() + 1; summary.Observations < need {
		return summary, fmt.Errorf("%w: %d observations, need at least %d", ErrInsufficientData, summary.Observations, need)
	}
	return summary, nil
}

// simulatePoint runs one training point and records the outcome. It
// returns false when the point failed, and an error only when the outcome
// could not be recorded or the context was cancelled.
func (c *Campaign) simulatePoint(ctx context.Context, index int, point []float64) (bool, error) {
	runID := RunID(index)
	logger := c.logger.With(zap.Int("index", index), zap.String("run_id", runID))

	start := time.Now()
	value, attempts, runErr := c.runner.RunWithAttempts(ctx, point, runID)
	duration := time.Since(start)

	if runErr != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}
	metrics.RecordSimulation(c.cfg.Name, attempts, duration, runErr)

	if runErr != nil {
		f := &ledger.Failure{
			Index:    index,
			Point:    point,
			RunID:    runID,
			Attempts: attempts,
			Reason:   runErr.Error(),
		}
		if sf, ok := simulator.AsFailure(runErr); ok {
			f.ExitCode = sf.ExitCode
			if sf.Reason != "" {
				f.Reason = sf.Reason
				if sf.Err != nil {
					f.Reason = fmt.Sprintf("%s: %v", sf.Reason, sf.Err)
				}
			}
		}
		if err := c.ledger.RecordFailure(ctx, f); err != nil {
			return false, fmt.Errorf("failed to record failure of point %d: %w", index, err)
		}
		logger.Error("simulation failed",
			zap.Int("attempts", attempts),
			zap.Duration("duration", duration),
			zap.Error(runErr))
		return false, nil
	}

	err := c.ledger.RecordObservation(ctx, &ledger.Observation{
		Index:      index,
		Point:      point,
		Value:      value,
		RunID:      runID,
		Attempts:   attempts,
		DurationMs: duration.Milliseconds(),
	})
	if errors.Is(err, ledger.ErrAlreadyRecorded) {
		// Another process finished the point first; its observation stands.
		logger.Warn("observation already recorded; keeping the existing value")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record observation of point %d: %w", index, err)
	}

	logger.Info("simulation finished",
		zap.Float64("value", value),
		zap.Int("attempts", attempts),
		zap.Duration("duration", duration))
	return true, nil
}

func (c *Campaign) recordedIndices(ctx context.Context) (map[int]bool, error) {
	done := make(map[int]bool)

	obs, err := c.ledger.Observations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}
	for _, o := range obs {
		done[o.Index] = true
	}

	failures, err := c.ledger.Failures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load failures: %w", err)
	}
	for _, f := range failures {
		done[f.Index] = true
	}
	return done, nil
}
