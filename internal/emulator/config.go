package emulator

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFit is returned when the emulator cannot be trained: too few or
	// malformed points, or a covariance that stays singular after nugget
	// regularisation for every restart.
	ErrFit = errors.New("emulator: fit failed")

	// ErrNotFitted is returned by Predict before a successful Fit.
	ErrNotFitted = errors.New("emulator: not fitted")

	// ErrDimension is returned when a query point does not have the training
	// dimensionality.
	ErrDimension = errors.New("emulator: dimension mismatch")
)

// Optimizer selects the gonum/optimize method used for the likelihood fit.
type Optimizer string

const (
	NelderMead Optimizer = "nelder-mead"
	BFGS       Optimizer = "bfgs"
	LBFGS      Optimizer = "lbfgs"
)

// NuggetMode controls how the nugget ν is chosen.
type NuggetMode string

const (
	// NuggetAdaptive starts at FitConfig.Nugget and multiplies by ten until
	// the covariance factorises, up to MaxNugget.
	NuggetAdaptive NuggetMode = "adaptive"
	// NuggetFixed uses FitConfig.Nugget as is.
	NuggetFixed NuggetMode = "fixed"
	// NuggetFit treats log ν as an extra hyperparameter.
	NuggetFit NuggetMode = "fit"
)

// MeanFunction is the regression basis of the GP prior mean.
type MeanFunction string

const (
	MeanConstant MeanFunction = "constant"
	MeanLinear   MeanFunction = "linear"
)

const (
	DefaultRestarts      = 5
	DefaultMaxIterations = 1000
	DefaultNugget        = 1e-8
	DefaultMaxNugget     = 1e-2
	DefaultSeed          = 157374

	// Length scales are bounded in the unit-cube scaled input space.
	DefaultMinLengthScale = 1e-2
	DefaultMaxLengthScale = 1e2
)

// FitConfig is the explicit optimiser and restart policy for Fit. The zero
// value is valid and selects the defaults.
type FitConfig struct {
	Optimizer     Optimizer    `yaml:"optimizer" json:"optimizer"`
	Restarts      int          `yaml:"restarts" json:"restarts"`
	MaxIterations int          `yaml:"max_iterations" json:"max_iterations"`
	Seed          uint64       `yaml:"seed" json:"seed"`
	Nugget        float64      `yaml:"nugget" json:"nugget"`
	MaxNugget     float64      `yaml:"max_nugget" json:"max_nugget"`
	NuggetMode    NuggetMode   `yaml:"nugget_mode" json:"nugget_mode"`
	MeanFunction  MeanFunction `yaml:"mean_function" json:"mean_function"`

	// LengthScaleBounds is [min, max] in unit-cube scaled input space.
	LengthScaleBounds [2]float64 `yaml:"length_scale_bounds" json:"length_scale_bounds"`
}

// WithDefaults returns a copy with every unset field defaulted.
func (c FitConfig) WithDefaults() FitConfig {
	if c.Optimizer == "" {
		c.Optimizer = NelderMead
	}
	if c.Restarts == 0 {
		c.Restarts = DefaultRestarts
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.Nugget == 0 {
		c.Nugget = DefaultNugget
	}
	if c.MaxNugget == 0 {
		c.MaxNugget = DefaultMaxNugget
	}
	if c.NuggetMode == "" {
		c.NuggetMode = NuggetAdaptive
	}
	if c.MeanFunction == "" {
		c.MeanFunction = MeanConstant
	}
	if c.LengthScaleBounds == [2]float64{} {
		c.LengthScaleBounds = [2]float64{DefaultMinLengthScale, DefaultMaxLengthScale}
	}
	return c
}

// Validate checks a defaulted configuration.
func (c FitConfig) Validate() error {
	switch c.Optimizer {
	case NelderMead, BFGS, LBFGS:
	default:
		return fmt.Errorf("unknown optimizer %q (expected %s, %s or %s)", c.Optimizer, NelderMead, BFGS, LBFGS)
	}

	switch c.NuggetMode {
	case NuggetAdaptive, NuggetFixed, NuggetFit:
	default:
		return fmt.Errorf("unknown nugget_mode %q", c.NuggetMode)
	}

	switch c.MeanFunction {
	case MeanConstant, MeanLinear:
	default:
		return fmt.Errorf("unknown mean_function %q", c.MeanFunction)
	}

	if c.Restarts < 1 {
		return fmt.Errorf("restarts must be at least 1, got %d", c.Restarts)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if !(c.Nugget > 0) || math.IsInf(c.Nugget, 0) {
		return fmt.Errorf("nugget must be positive and finite, got %g", c.Nugget)
	}
	if !(c.MaxNugget >= c.Nugget) || math.IsInf(c.MaxNugget, 0) {
		return fmt.Errorf("max_nugget (%g) must be finite and >= nugget (%g)", c.MaxNugget, c.Nugget)
	}

	lo, hi := c.LengthScaleBounds[0], c.LengthScaleBounds[1]
	if !(lo > 0) || !(hi > lo) || math.IsInf(hi, 0) {
		return fmt.Errorf("length_scale_bounds must satisfy 0 < min < max, got [%g, %g]", lo, hi)
	}

	return nil
}
