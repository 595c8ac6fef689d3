// Package history implements history matching: the implausibility measure
// and the NROY (not ruled out yet) partition of candidate points.
package history

import (
	"errors"
	"fmt"
	"math"

	"github.com/dyluth/nroy/internal/emulator"
)

// DefaultThreshold is the conventional three-sigma implausibility cutoff.
const DefaultThreshold = 3.0

var (
	// ErrLengthMismatch is returned when a per-point sequence does not have
	// one entry per prediction.
	ErrLengthMismatch = errors.New("history: length mismatch")

	// ErrInvalidThreshold is returned for a negative or NaN threshold.
	ErrInvalidThreshold = errors.New("history: invalid threshold")

	// ErrInvalidVariance is returned for a negative or non-finite variance.
	ErrInvalidVariance = errors.New("history: invalid variance")
)

// Matcher holds the observation and the variance terms that enter the
// implausibility denominator. PointDiscrepancy and PointObservationVariance
// are optional per-point additions; when set they must have one entry per
// prediction.
type Matcher struct {
	Observed                 float64
	ObservationVariance      float64
	DiscrepancyVariance      float64
	PointDiscrepancy         []float64
	PointObservationVariance []float64
}

// Result is the outcome of one history-matching pass.
type Result struct {
	Implausibility []float64 `json:"implausibility"`
	RuledOut       []bool    `json:"ruled_out"`
	NROY           []int     `json:"nroy"`
	Threshold      float64   `json:"threshold"`
}

// Implausibility computes Iᵢ = |z - μᵢ| / sqrt(σᵢ² + σ_obs²) for each
// prediction, with no model discrepancy.
func Implausibility(observed float64, preds []emulator.Prediction, obsVariance float64) ([]float64, error) {
	m := Matcher{Observed: observed, ObservationVariance: obsVariance}
	return m.Implausibility(preds)
}

// Implausibility computes Iᵢ = |z - μᵢ| / sqrt(σᵢ² + σ_obs² + σ_disc²). When
// the combined variance is zero the value is 0 for an exact match and +Inf
// otherwise.
func (m Matcher) Implausibility(preds []emulator.Prediction) ([]float64, error) {
	if err := m.validate(len(preds)); err != nil {
		return nil, err
	}

	impl := make([]float64, len(preds))
	for i, p := range preds {
		if math.IsNaN(p.Mean) || math.IsInf(p.Mean, 0) {
			return nil, fmt.Errorf("prediction %d has non-finite mean %g", i, p.Mean)
		}
		if err := checkVariance(fmt.Sprintf("prediction %d variance", i), p.Variance); err != nil {
			return nil, err
		}

		variance := p.Variance + m.ObservationVariance + m.DiscrepancyVariance
		if m.PointDiscrepancy != nil {
			variance += m.PointDiscrepancy[i]
		}
		if m.PointObservationVariance != nil {
			variance += m.PointObservationVariance[i]
		}

		diff := math.Abs(m.Observed - p.Mean)
		switch {
		case variance > 0:
			impl[i] = diff / math.Sqrt(variance)
		case diff == 0:
			impl[i] = 0
		default:
			impl[i] = math.Inf(1)
		}
	}

	return impl, nil
}

func (m Matcher) validate(n int) error {
	if math.IsNaN(m.Observed) || math.IsInf(m.Observed, 0) {
		return fmt.Errorf("observed value must be finite, got %g", m.Observed)
	}
	if err := checkVariance("observation variance", m.ObservationVariance); err != nil {
		return err
	}
	if err := checkVariance("discrepancy variance", m.DiscrepancyVariance); err != nil {
		return err
	}

	if m.PointDiscrepancy != nil && len(m.PointDiscrepancy) != n {
		return fmt.Errorf("%w: %d point discrepancies for %d predictions", ErrLengthMismatch, len(m.PointDiscrepancy), n)
	}
	if m.PointObservationVariance != nil && len(m.PointObservationVariance) != n {
		return fmt.Errorf("%w: %d point observation variances for %d predictions", ErrLengthMismatch, len(m.PointObservationVariance), n)
	}

	for i, v := range m.PointDiscrepancy {
		if err := checkVariance(fmt.Sprintf("point %d discrepancy", i), v); err != nil {
			return err
		}
	}
	for i, v := range m.PointObservationVariance {
		if err := checkVariance(fmt.Sprintf("point %d observation variance", i), v); err != nil {
			return err
		}
	}
	return nil
}

func checkVariance(what string, v float64) error {
	if !(v >= 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is %g", ErrInvalidVariance, what, v)
	}
	return nil
}

func checkThreshold(threshold float64) error {
	if !(threshold >= 0) {
		return fmt.Errorf("%w: %g (must be >= 0)", ErrInvalidThreshold, threshold)
	}
	return nil
}

// NotRuledOut returns the indices i with Iᵢ <= threshold in ascending order.
// A NaN implausibility is never kept.
func NotRuledOut(impl []float64, threshold float64) ([]int, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	nroy := make([]int, 0, len(impl))
	for i, v := range impl {
		if v <= threshold {
			nroy = append(nroy, i)
		}
	}
	return nroy, nil
}

// RuledOut returns, per point, whether Iᵢ exceeds threshold. It is the
// complement of NotRuledOut.
func RuledOut(impl []float64, threshold float64) ([]bool, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	out := make([]bool, len(impl))
	for i, v := range impl {
		out[i] = !(v <= threshold)
	}
	return out, nil
}

// Match computes implausibilities for preds and partitions them at
// threshold.
func Match(m Matcher, preds []emulator.Prediction, threshold float64) (*Result, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	impl, err := m.Implausibility(preds)
	if err != nil {
		return nil, err
	}
	nroy, err := NotRuledOut(impl, threshold)
	if err != nil {
		return nil, err
	}
	ruledOut, err := RuledOut(impl, threshold)
	if err != nil {
		return nil, err
	}

	return &Result{
		Implausibility: impl,
		RuledOut:       ruledOut,
		NROY:           nroy,
		Threshold:      threshold,
	}, nil
}

// Fraction returns the share of points not ruled out, or 0 for an empty
// result.
func (r *Result) Fraction() float64 {
	if len(r.Implausibility) == 0 {
		return 0
	}
	return float64(len(r.NROY)) / float64(len(r.Implausibility))
}
