package simulator

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/nroy/internal/design"
)

func testSpace(t *testing.T) design.ParameterSpace {
	t.Helper()
	space, err := design.NewParameterSpace(design.Bound{Lower: -120, Upper: -80}, design.Bound{Lower: 0.1, Upper: 0.4})
	require.NoError(t, err)
	return space
}

func constant(v float64) FuncDriver {
	return func(ctx context.Context, point []float64, runID string) (float64, error) {
		return v, nil
	}
}

func TestGuard_PassesFiniteValue(t *testing.T) {
	g := NewGuard(FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		return point[0] * point[1], nil
	}), testSpace(t))

	v, err := g.Run(context.Background(), []float64{-100, 0.2}, "run-1")
	require.NoError(t, err)
	assert.InDelta(t, -20.0, v, 1e-12)
}

func TestGuard_NonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		g := NewGuard(constant(v), testSpace(t))
		_, err := g.Run(context.Background(), []float64{-100, 0.2}, "run-nan")

		require.Error(t, err)
		assert.True(t, IsFailure(err))
		assert.ErrorIs(t, err, ErrNonFinite)

		f, ok := AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, "run-nan", f.RunID)
		assert.Equal(t, []float64{-100, 0.2}, f.Point)
	}
}

func TestGuard_OutOfBounds(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard(FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		calls.Add(1)
		return 1, nil
	}), testSpace(t))

	for _, p := range [][]float64{{-130, 0.2}, {-100}, {-100, 0.2, 1}} {
		_, err := g.Run(context.Background(), p, "run-oob")
		assert.ErrorIs(t, err, ErrOutOfBounds)
		assert.True(t, IsFailure(err))
	}
	assert.Zero(t, calls.Load(), "driver must not run for rejected points")
}

func TestGuard_WrapsPlainErrors(t *testing.T) {
	cause := errors.New("mesh did not converge")
	g := NewGuard(FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		return 0, cause
	}), testSpace(t))

	_, err := g.Run(context.Background(), []float64{-90, 0.3}, "run-2")
	require.Error(t, err)
	assert.True(t, IsFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "run-2")
}

func TestGuard_KeepsExistingFailure(t *testing.T) {
	original := &Failure{RunID: "run-3", Reason: "segfault", ExitCode: 139}
	g := NewGuard(FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		return 0, original
	}), testSpace(t))

	_, err := g.Run(context.Background(), []float64{-90, 0.3}, "run-3")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Same(t, original, f)
	assert.Contains(t, err.Error(), "exit code 139")
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var runIDs []string
	driver := FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		runIDs = append(runIDs, runID)
		if len(runIDs) < 3 {
			return 0, &Failure{RunID: runID, Reason: "flaky"}
		}
		return 42, nil
	})

	v, attempts, err := Retry(driver, 5, 0).RunWithAttempts(context.Background(), []float64{0}, "run")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"run", "run-2", "run-3"}, runIDs)
}

func TestRetry_Exhausted(t *testing.T) {
	var calls int
	driver := FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		calls++
		return 0, &Failure{RunID: runID, Reason: "always"}
	})

	_, attempts, err := Retry(driver, 3, time.Millisecond).RunWithAttempts(context.Background(), []float64{0}, "run")
	assert.True(t, IsFailure(err))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetry_MinimumOneAttempt(t *testing.T) {
	var calls int
	driver := FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		calls++
		return 0, errors.New("boom")
	})

	_, err := Retry(driver, 0, 0).Run(context.Background(), []float64{0}, "run")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_DoesNotRetryOutOfBounds(t *testing.T) {
	var calls int
	driver := FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		calls++
		return 1, nil
	})

	_, attempts, err := Retry(NewGuard(driver, testSpace(t)), 5, 0).RunWithAttempts(context.Background(), []float64{0, 0}, "run")
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, 1, attempts)
	assert.Zero(t, calls)
}

func TestRetry_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	driver := FuncDriver(func(ctx context.Context, point []float64, runID string) (float64, error) {
		calls++
		cancel()
		return 0, &Failure{RunID: runID, Reason: "interrupted", Err: ctx.Err()}
	})

	_, _, err := Retry(driver, 10, time.Hour).RunWithAttempts(ctx, []float64{0}, "run")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
