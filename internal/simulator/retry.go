package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryDriver reruns a point after a failure, up to a fixed number of
// consecutive attempts.
type RetryDriver struct {
	driver      Driver
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// Retry wraps driver. maxAttempts below 1 is treated as 1.
func Retry(driver Driver, maxAttempts int, backoff time.Duration) *RetryDriver {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryDriver{
		driver:      driver,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      zap.NewNop(),
	}
}

// WithLogger sets the logger attempts are reported to.
func (r *RetryDriver) WithLogger(logger *zap.Logger) *RetryDriver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Run implements Driver.
func (r *RetryDriver) Run(ctx context.Context, point []float64, runID string) (float64, error) {
	value, _, err := r.RunWithAttempts(ctx, point, runID)
	return value, err
}

// RunWithAttempts is Run that also reports how many attempts were made.
// The first attempt uses runID; later attempts append "-{attempt}" so every
// attempt has its own output location. Out-of-bounds points and context
// cancellation are not retried.
func (r *RetryDriver) RunWithAttempts(ctx context.Context, point []float64, runID string) (float64, int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		id := runID
		if attempt > 1 {
			id = fmt.Sprintf("%s-%d", runID, attempt)
		}

		value, err := r.driver.Run(ctx, point, id)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, ErrOutOfBounds) {
			return 0, attempt, err
		}

		r.logger.Warn("simulation attempt failed",
			zap.String("run_id", id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.maxAttempts),
			zap.Error(err))

		if attempt < r.maxAttempts && r.backoff > 0 {
			timer := time.NewTimer(r.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return 0, attempt, lastErr
			case <-timer.C:
			}
		}
	}

	return 0, r.maxAttempts, lastErr
}
