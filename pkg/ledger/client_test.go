package ledger

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/nroy/internal/design"
	"github.com/dyluth/nroy/internal/emulator"
	"github.com/dyluth/nroy/internal/storage"
)

// setupTestLedger creates a ledger backed by a miniredis instance
func setupTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := storage.NewRedisStore(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	l, err := New(store, "test-campaign")
	require.NoError(t, err)
	return l, mr
}

func observation(index int, value float64) *Observation {
	return &Observation{
		Index:    index,
		Point:    []float64{float64(index), 0.5},
		Value:    value,
		RunID:    "sample_point_" + strconv.Itoa(index),
		Attempts: 1,
	}
}

func TestNew(t *testing.T) {
	t.Run("creates ledger successfully", func(t *testing.T) {
		l, _ := setupTestLedger(t)
		assert.Equal(t, "test-campaign", l.Campaign())
	})

	t.Run("rejects empty campaign name", func(t *testing.T) {
		_, err := New(storage.NewMemoryStore(), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "campaign name cannot be empty")
	})

	t.Run("rejects nil store", func(t *testing.T) {
		_, err := New(nil, "c")
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	l, mr := setupTestLedger(t)
	ctx := context.Background()

	assert.NoError(t, l.Ping(ctx))

	mr.Close()
	assert.Error(t, l.Ping(ctx))
}

func TestDesignRoundTrip(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.LoadDesign(ctx)
	assert.True(t, IsNotFound(err))

	space, err := design.NewParameterSpace(
		design.Bound{Lower: -100, Upper: 100},
		design.Bound{Lower: 0, Upper: 1},
	)
	require.NoError(t, err)
	d, err := design.New(space, 42)
	require.NoError(t, err)

	first, err := d.Sample(4)
	require.NoError(t, err)
	require.NoError(t, l.SaveDesign(ctx, d))

	loaded, err := l.LoadDesign(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), loaded.Seed())
	assert.Equal(t, d.Space(), loaded.Space())

	// The restored generator continues where the saved one stopped.
	want, err := d.Sample(3)
	require.NoError(t, err)
	got, err := loaded.Sample(3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NotEqual(t, first[:3], got)
}

func TestTrainingPoints(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.LoadTrainingPoints(ctx)
	assert.True(t, IsNotFound(err))

	points := [][]float64{{1, 2}, {3, 4}, {1, 2}}
	require.NoError(t, l.SaveTrainingPoints(ctx, points))

	got, err := l.LoadTrainingPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, points, got)
}

func TestRecordObservation(t *testing.T) {
	t.Run("is immutable once recorded", func(t *testing.T) {
		l, _ := setupTestLedger(t)
		ctx := context.Background()

		require.NoError(t, l.RecordObservation(ctx, observation(0, 1.5)))

		err := l.RecordObservation(ctx, observation(0, 9.9))
		assert.ErrorIs(t, err, ErrAlreadyRecorded)

		obs, err := l.Observations(ctx)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, 1.5, obs[0].Value)
	})

	t.Run("stamps creation time", func(t *testing.T) {
		l, _ := setupTestLedger(t)
		o := observation(1, 2)
		require.NoError(t, l.RecordObservation(context.Background(), o))
		assert.NotZero(t, o.CreatedAtMs)
	})

	t.Run("rejects invalid observations", func(t *testing.T) {
		l, _ := setupTestLedger(t)
		ctx := context.Background()

		bad := observation(0, math.NaN())
		assert.Error(t, l.RecordObservation(ctx, bad))

		bad = observation(0, 1)
		bad.Attempts = 0
		assert.Error(t, l.RecordObservation(ctx, bad))

		bad = observation(0, 1)
		bad.Point = nil
		assert.Error(t, l.RecordObservation(ctx, bad))
	})

	t.Run("clears an earlier failure", func(t *testing.T) {
		l, _ := setupTestLedger(t)
		ctx := context.Background()

		require.NoError(t, l.RecordFailure(ctx, &Failure{Index: 2, Reason: "exit status 1", Attempts: 3}))
		require.NoError(t, l.RecordObservation(ctx, observation(2, 4)))

		failures, err := l.Failures(ctx)
		require.NoError(t, err)
		assert.Empty(t, failures)
	})
}

func TestObservationsSortedByIndex(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	for _, i := range []int{10, 2, 7, 0} {
		require.NoError(t, l.RecordObservation(ctx, observation(i, float64(i)*2)))
	}

	obs, err := l.Observations(ctx)
	require.NoError(t, err)
	require.Len(t, obs, 4)
	for k, want := range []int{0, 2, 7, 10} {
		assert.Equal(t, want, obs[k].Index)
	}

	ts, err := l.TrainingSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, ts.Len())
	assert.Equal(t, []int{0, 2, 7, 10}, ts.Indices)
	assert.Equal(t, []float64{0, 4, 14, 20}, ts.Outputs)
	assert.Equal(t, []float64{7, 0.5}, ts.Inputs[2])
}

func TestFailures(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordFailure(ctx, &Failure{Index: 3, Reason: "timeout", Attempts: 1}))
	require.NoError(t, l.RecordFailure(ctx, &Failure{Index: 1, Reason: "exit status 2", ExitCode: 2, Attempts: 3}))
	// Replacing is allowed.
	require.NoError(t, l.RecordFailure(ctx, &Failure{Index: 3, Reason: "out of memory", Attempts: 2}))

	failures, err := l.Failures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].Index)
	assert.Equal(t, 2, failures[0].ExitCode)
	assert.Equal(t, "out of memory", failures[1].Reason)

	assert.Error(t, l.RecordFailure(ctx, &Failure{Index: 4}))

	n, err := l.ClearFailures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	failures, err = l.Failures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestReference(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.LoadReference(ctx)
	assert.True(t, IsNotFound(err))

	ref := observation(0, 3.25)
	ref.RunID = "reference"
	require.NoError(t, l.SaveReference(ctx, ref))

	got, err := l.LoadReference(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.25, got.Value)
	assert.Equal(t, "reference", got.RunID)

	// The reference is not part of the training set.
	obs, err := l.Observations(ctx)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestReportRoundTrip(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	r := &Report{
		Campaign:       "test-campaign",
		ParameterNames: []string{"x"},
		Threshold:      3,
		Observed:       0,
		Hyperparameters: emulator.Hyperparameters{
			LengthScales:    []float64{1.5},
			ProcessVariance: 2,
			Nugget:          1e-8,
		},
		TrainingSize:   5,
		QueryPoints:    [][]float64{{0}, {6}},
		Predictions:    []emulator.Prediction{{Mean: 0, Variance: 0}, {Mean: 6, Variance: 0}},
		Implausibility: Floats([]float64{0, math.Inf(1)}),
		NROY:           []int{0},
	}
	require.NoError(t, l.SaveReport(ctx, r))
	assert.NotZero(t, r.CreatedAtMs)

	got, err := l.LoadReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got.NROY)
	impl := got.ImplausibilityValues()
	assert.Equal(t, 0.0, impl[0])
	assert.True(t, math.IsInf(impl[1], 1))
	assert.Equal(t, []float64{1.5}, got.Hyperparameters.LengthScales)

	t.Run("rejects inconsistent report", func(t *testing.T) {
		bad := *r
		bad.NROY = []int{5}
		assert.Error(t, l.SaveReport(ctx, &bad))

		bad = *r
		bad.Predictions = bad.Predictions[:1]
		assert.Error(t, l.SaveReport(ctx, &bad))
	})
}

func TestCampaignIsolation(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	a, err := New(store, "alpha")
	require.NoError(t, err)
	b, err := New(store, "beta")
	require.NoError(t, err)

	require.NoError(t, a.RecordObservation(ctx, observation(0, 1)))
	require.NoError(t, b.RecordObservation(ctx, observation(0, 2)))

	obs, err := b.Observations(ctx)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 2.0, obs[0].Value)

	n, err := a.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	obs, err = a.Observations(ctx)
	require.NoError(t, err)
	assert.Empty(t, obs)

	obs, err = b.Observations(ctx)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(storage.ErrNotFound))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.False(t, IsNotFound(nil))
}
