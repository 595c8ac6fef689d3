package ledger

import (
	"fmt"
	"math"

	"github.com/dyluth/nroy/internal/emulator"
)

// Observation is the simulator output at one training point.
// Observations are immutable once recorded.
type Observation struct {
	Index       int       `json:"index"`
	Point       []float64 `json:"point"`
	Value       float64   `json:"value"`
	RunID       string    `json:"run_id"`
	Attempts    int       `json:"attempts"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAtMs int64     `json:"created_at_ms"`
}

// Failure records a training point the simulator could not evaluate within
// the allowed attempts. The point is dropped from the training set.
type Failure struct {
	Index       int       `json:"index"`
	Point       []float64 `json:"point"`
	RunID       string    `json:"run_id"`
	Attempts    int       `json:"attempts"`
	ExitCode    int       `json:"exit_code"`
	Reason      string    `json:"reason"`
	CreatedAtMs int64     `json:"created_at_ms"`
}

// TrainingSet is the emulator's training data as parallel arrays sorted by
// sample index. Duplicate inputs are allowed.
type TrainingSet struct {
	Indices []int       `json:"indices"`
	Inputs  [][]float64 `json:"inputs"`
	Outputs []float64   `json:"outputs"`
}

// Len returns the number of observations.
func (ts *TrainingSet) Len() int {
	return len(ts.Outputs)
}

// Report is the outcome of one analyse stage.
type Report struct {
	Campaign            string                   `json:"campaign"`
	ParameterNames      []string                 `json:"parameter_names"`
	Threshold           float64                  `json:"threshold"`
	Observed            float64                  `json:"observed"`
	ObservationVariance float64                  `json:"observation_variance"`
	DiscrepancyVariance float64                  `json:"discrepancy_variance"`
	Reference           *Observation             `json:"reference,omitempty"`
	Hyperparameters     emulator.Hyperparameters `json:"hyperparameters"`
	TrainingSize        int                      `json:"training_size"`
	FailedPoints        int                      `json:"failed_points"`
	QueryPoints         [][]float64              `json:"query_points"`
	Predictions         []emulator.Prediction    `json:"predictions"`
	Implausibility      []Float                  `json:"implausibility"`
	NROY                []int                    `json:"nroy"`
	CreatedAtMs         int64                    `json:"created_at_ms"`
}

// ImplausibilityValues returns the implausibilities as plain floats.
func (r *Report) ImplausibilityValues() []float64 {
	out := make([]float64, len(r.Implausibility))
	for i, v := range r.Implausibility {
		out[i] = float64(v)
	}
	return out
}

// Validate checks if the Observation has valid field values.
func (o *Observation) Validate() error {
	if o.Index < 0 {
		return fmt.Errorf("invalid index: must be >= 0, got %d", o.Index)
	}
	if len(o.Point) == 0 {
		return fmt.Errorf("point cannot be empty")
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return fmt.Errorf("value must be finite, got %g", o.Value)
	}
	if o.Attempts < 1 {
		return fmt.Errorf("invalid attempts: must be >= 1, got %d", o.Attempts)
	}
	return nil
}

// Validate checks if the Failure has valid field values.
func (f *Failure) Validate() error {
	if f.Index < 0 {
		return fmt.Errorf("invalid index: must be >= 0, got %d", f.Index)
	}
	if f.Reason == "" {
		return fmt.Errorf("reason cannot be empty")
	}
	return nil
}

// Validate checks the report is internally consistent.
func (r *Report) Validate() error {
	if r.Campaign == "" {
		return fmt.Errorf("campaign cannot be empty")
	}
	if len(r.Predictions) != len(r.QueryPoints) {
		return fmt.Errorf("%d predictions for %d query points", len(r.Predictions), len(r.QueryPoints))
	}
	if len(r.Implausibility) != len(r.QueryPoints) {
		return fmt.Errorf("%d implausibilities for %d query points", len(r.Implausibility), len(r.QueryPoints))
	}
	for _, i := range r.NROY {
		if i < 0 || i >= len(r.QueryPoints) {
			return fmt.Errorf("NROY index %d out of range", i)
		}
	}
	return nil
}
