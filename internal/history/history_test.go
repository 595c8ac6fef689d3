package history

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/nroy/internal/emulator"
)

func TestImplausibility_Scenario(t *testing.T) {
	preds := []emulator.Prediction{{Mean: 10, Variance: 1}, {Mean: 4, Variance: 1}}

	impl, err := Implausibility(10, preds, 0)
	require.NoError(t, err)
	require.Len(t, impl, 2)
	assert.InDelta(t, 0.0, impl[0], 1e-12)
	assert.InDelta(t, 6.0, impl[1], 1e-12)

	nroy, err := NotRuledOut(impl, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, nroy)
}

func TestImplausibility_ExactMatchIsZero(t *testing.T) {
	impl, err := Implausibility(2.5, []emulator.Prediction{{Mean: 2.5, Variance: 0.3}}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, impl[0])
}

func TestImplausibility_ZeroVariance(t *testing.T) {
	preds := []emulator.Prediction{{Mean: 1, Variance: 0}, {Mean: 2, Variance: 0}}

	impl, err := Implausibility(1, preds, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, impl[0])
	assert.True(t, math.IsInf(impl[1], 1))

	nroy, err := NotRuledOut(impl, 1e9)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, nroy)
}

func TestMatcher_VarianceTerms(t *testing.T) {
	preds := []emulator.Prediction{{Mean: 0, Variance: 1}, {Mean: 0, Variance: 1}}

	m := Matcher{
		Observed:                 4,
		ObservationVariance:      1,
		DiscrepancyVariance:      2,
		PointDiscrepancy:         []float64{0, 12},
		PointObservationVariance: []float64{0, 0},
	}
	impl, err := m.Implausibility(preds)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, impl[0], 1e-12)
	assert.InDelta(t, 1.0, impl[1], 1e-12)
}

func TestMatcher_Errors(t *testing.T) {
	preds := []emulator.Prediction{{Mean: 0, Variance: 1}}

	tests := []struct {
		name    string
		matcher Matcher
		preds   []emulator.Prediction
		target  error
	}{
		{"point discrepancy length", Matcher{PointDiscrepancy: []float64{1, 2}}, preds, ErrLengthMismatch},
		{"point obs variance length", Matcher{PointObservationVariance: []float64{}}, preds, ErrLengthMismatch},
		{"negative observation variance", Matcher{ObservationVariance: -1}, preds, ErrInvalidVariance},
		{"nan discrepancy", Matcher{DiscrepancyVariance: math.NaN()}, preds, ErrInvalidVariance},
		{"negative point discrepancy", Matcher{PointDiscrepancy: []float64{-0.5}}, preds, ErrInvalidVariance},
		{"negative prediction variance", Matcher{}, []emulator.Prediction{{Mean: 0, Variance: -1}}, ErrInvalidVariance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.matcher.Implausibility(tt.preds)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("non-finite observed", func(t *testing.T) {
		_, err := Matcher{Observed: math.Inf(1)}.Implausibility(preds)
		assert.Error(t, err)
	})
}

func TestNotRuledOut_InvalidThreshold(t *testing.T) {
	for _, threshold := range []float64{-1, math.NaN()} {
		_, err := NotRuledOut([]float64{0}, threshold)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
		_, err = RuledOut([]float64{0}, threshold)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
		_, err = Match(Matcher{}, nil, threshold)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	}
}

func TestNotRuledOut_Boundary(t *testing.T) {
	nroy, err := NotRuledOut([]float64{3, 3.0000001, 0, math.NaN()}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, nroy)
}

func TestNotRuledOut_MonotoneInThreshold(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	impl := make([]float64, 200)
	for i := range impl {
		impl[i] = rng.ExpFloat64() * 3
	}

	for trial := 0; trial < 50; trial++ {
		t1 := rng.Float64() * 6
		t2 := t1 + rng.Float64()*6

		small, err := NotRuledOut(impl, t1)
		require.NoError(t, err)
		large, err := NotRuledOut(impl, t2)
		require.NoError(t, err)

		kept := make(map[int]bool, len(large))
		for _, i := range large {
			kept[i] = true
		}
		for _, i := range small {
			assert.True(t, kept[i], "index %d kept at %g but not at %g", i, t1, t2)
		}
	}
}

func TestMatch(t *testing.T) {
	preds := []emulator.Prediction{{Mean: 10, Variance: 1}, {Mean: 4, Variance: 1}, {Mean: 8, Variance: 0.5}}

	res, err := Match(Matcher{Observed: 10, ObservationVariance: 0.5}, preds, DefaultThreshold)
	require.NoError(t, err)

	assert.Equal(t, DefaultThreshold, res.Threshold)
	assert.Equal(t, []int{0, 2}, res.NROY)
	assert.Equal(t, []bool{false, true, false}, res.RuledOut)
	assert.InDelta(t, 2.0/3.0, res.Fraction(), 1e-12)

	for i, out := range res.RuledOut {
		assert.Equal(t, out, res.Implausibility[i] > res.Threshold)
	}
}
