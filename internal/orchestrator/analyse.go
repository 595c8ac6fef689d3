package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/nroy/internal/design"
	"github.com/dyluth/nroy/internal/emulator"
	"github.com/dyluth/nroy/internal/history"
	"github.com/dyluth/nroy/internal/metrics"
	"github.com/dyluth/nroy/pkg/ledger"
)

// Analyse fits a fresh emulator to the recorded observations, predicts at
// newly drawn query points and partitions them into ruled-out and NROY
// points. The report is persisted and returned.
//
// Query points continue the persisted design's generator, or come from a
// copy reseeded with design.query_seed when that is set. The persisted
// design itself is never advanced, so repeated analyses see the same query
// points.
func (c *Campaign) Analyse(ctx context.Context) (*ledger.Report, error) {
	d, err := c.ledger.LoadDesign(ctx)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, fmt.Errorf("%w for campaign '%s'", ErrNoDesign, c.cfg.Name)
		}
		return nil, fmt.Errorf("failed to load design: %w", err)
	}
	if !sameBounds(d.Space(), c.space) {
		return nil, fmt.Errorf("%w: persisted bounds %v, configured %v", ErrDesignMismatch, d.Space().Bounds, c.space.Bounds)
	}

	ts, err := c.ledger.TrainingSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load training set: %w", err)
	}
	if need := c.space.Dim() + 1; ts.Len() < need {
		return nil, fmt.Errorf("%w: %d observations, need at least %d", ErrInsufficientData, ts.Len(), need)
	}

	failures, err := c.ledger.Failures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load failures: %w", err)
	}

	queryDesign := d.Clone()
	if seed := c.cfg.Design.QuerySeed; seed != 0 {
		queryDesign = d.Reseed(seed)
	}
	queryPoints, err := queryDesign.Sample(c.cfg.Design.QueryPoints)
	if err != nil {
		return nil, err
	}

	observed, reference, err := c.observedValue(ctx, queryDesign)
	if err != nil {
		return nil, err
	}

	gp, err := c.fit(ts)
	if err != nil {
		return nil, err
	}

	preds, err := gp.Predict(queryPoints)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	matcher := history.Matcher{
		Observed:            observed,
		ObservationVariance: c.cfg.HistoryMatching.ObservationVariance,
		DiscrepancyVariance: c.cfg.HistoryMatching.DiscrepancyVariance,
	}
	result, err := history.Match(matcher, preds, c.cfg.HistoryMatching.Cutoff())
	if err != nil {
		return nil, err
	}
	metrics.RecordMatch(c.cfg.Name, result.Fraction())

	report := &ledger.Report{
		Campaign:            c.cfg.Name,
		ParameterNames:      c.space.Names,
		Threshold:           result.Threshold,
		Observed:            observed,
		ObservationVariance: matcher.ObservationVariance,
		DiscrepancyVariance: matcher.DiscrepancyVariance,
		Reference:           reference,
		Hyperparameters:     gp.Hyperparameters(),
		TrainingSize:        ts.Len(),
		FailedPoints:        len(failures),
		QueryPoints:         queryPoints,
		Predictions:         preds,
		Implausibility:      ledger.Floats(result.Implausibility),
		NROY:                result.NROY,
	}
	if err := c.ledger.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	c.logger.Info("analysis complete",
		zap.Int("training_points", ts.Len()),
		zap.Int("query_points", len(queryPoints)),
		zap.Int("nroy", len(result.NROY)),
		zap.Float64("nroy_fraction", result.Fraction()))

	return report, nil
}

func (c *Campaign) fit(ts *ledger.TrainingSet) (*emulator.GaussianProcess, error) {
	gp, err := emulator.New(ts.Inputs, ts.Outputs)
	if err != nil {
		return nil, err
	}

	c.logger.Info("fitting emulator",
		zap.Int("training_points", ts.Len()),
		zap.String("optimizer", string(c.cfg.Emulator.Optimizer)),
		zap.Int("restarts", c.cfg.Emulator.Restarts))

	start := time.Now()
	if err := gp.Fit(c.cfg.Emulator); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.RecordFit(c.cfg.Name, ts.Len(), elapsed)

	hp := gp.Hyperparameters()
	c.logger.Info("emulator fitted",
		zap.Float64s("length_scales", hp.LengthScales),
		zap.Float64("process_variance", hp.ProcessVariance),
		zap.Float64("nugget", hp.Nugget),
		zap.Float64("log_likelihood", hp.LogLikelihood),
		zap.Duration("duration", elapsed))
	return gp, nil
}

// observedValue returns the configured observation, or the value of the
// reference simulation. The reference run happens once per campaign at the
// next sample of the query design and is persisted.
func (c *Campaign) observedValue(ctx context.Context, queryDesign *design.Design) (float64, *ledger.Observation, error) {
	if obs := c.cfg.HistoryMatching.Observed; obs != nil {
		return *obs, nil, nil
	}

	ref, err := c.ledger.LoadReference(ctx)
	if err == nil {
		return ref.Value, ref, nil
	}
	if !ledger.IsNotFound(err) {
		return 0, nil, fmt.Errorf("failed to load reference observation: %w", err)
	}

	if c.runner == nil {
		return 0, nil, fmt.Errorf("reference run needs the simulator: %w", ErrNoDriver)
	}

	points, err := queryDesign.Sample(1)
	if err != nil {
		return 0, nil, err
	}
	point := points[0]

	c.logger.Info("running reference simulation", zap.Float64s("point", point))

	start := time.Now()
	value, attempts, err := c.runner.RunWithAttempts(ctx, point, ReferenceRunID)
	duration := time.Since(start)
	metrics.RecordSimulation(c.cfg.Name, attempts, duration, err)
	if err != nil {
		return 0, nil, fmt.Errorf("reference simulation failed: %w", err)
	}

	ref = &ledger.Observation{
		Index:       0,
		Point:       point,
		Value:       value,
		RunID:       ReferenceRunID,
		Attempts:    attempts,
		DurationMs:  duration.Milliseconds(),
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if err := c.ledger.SaveReference(ctx, ref); err != nil {
		return 0, nil, fmt.Errorf("failed to save reference observation: %w", err)
	}
	return value, ref, nil
}
