// Package emulator implements a Gaussian-process surrogate for an expensive
// scalar simulator.
//
// The process uses a squared-exponential correlation
//
//	r(x, x') = exp(-½ Σ_d ((x_d - x'_d) / ℓ_d)²)
//
// with covariance K = σ² (R + ν I) and a regression mean h(x)ᵀβ. Inputs are
// scaled to the unit cube by the training range and outputs standardised
// before fitting. β and σ² are profiled out by generalised least squares, so
// Fit only searches over the length scales (and the nugget when it is
// fitted). Predictions are returned in the original output units.
package emulator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Hyperparameters are the fitted values of a GaussianProcess.
type Hyperparameters struct {
	// LengthScales in original input units.
	LengthScales []float64 `json:"length_scales"`
	// ProcessVariance σ² in original output units.
	ProcessVariance float64 `json:"process_variance"`
	// Nugget ν, relative to the process variance.
	Nugget float64 `json:"nugget"`
	// MeanCoefficients β of the mean basis, in scaled input and
	// standardised output space.
	MeanCoefficients []float64 `json:"mean_coefficients"`
	LogLikelihood    float64   `json:"log_likelihood"`
}

// Prediction is the predictive mean and variance at one point.
type Prediction struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// GaussianProcess is a GP emulator. It is fitted once; new training data
// needs a new GaussianProcess.
type GaussianProcess struct {
	dim int

	inputs  [][]float64
	outputs []float64

	// Unit-cube input scaling and output standardisation.
	offset []float64
	scale  []float64
	yMean  float64
	yStd   float64

	x [][]float64
	y *mat.VecDense

	cfg   FitConfig
	state *fitState
}

// New copies the training data into an unfitted emulator.
func New(inputs [][]float64, outputs []float64) (*GaussianProcess, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no training points", ErrFit)
	}
	if len(inputs) != len(outputs) {
		return nil, fmt.Errorf("%w: %d inputs but %d outputs", ErrFit, len(inputs), len(outputs))
	}

	dim := len(inputs[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: training inputs have no coordinates", ErrFit)
	}

	gp := &GaussianProcess{
		dim:     dim,
		inputs:  make([][]float64, len(inputs)),
		outputs: append([]float64(nil), outputs...),
	}

	for i, in := range inputs {
		if len(in) != dim {
			return nil, fmt.Errorf("%w: input %d has %d coordinates, expected %d", ErrFit, i, len(in), dim)
		}
		if !allFinite(in) {
			return nil, fmt.Errorf("%w: input %d has non-finite coordinates", ErrFit, i)
		}
		gp.inputs[i] = append([]float64(nil), in...)
	}
	if !allFinite(outputs) {
		return nil, fmt.Errorf("%w: outputs contain non-finite values", ErrFit)
	}

	gp.normalise()
	return gp, nil
}

func (gp *GaussianProcess) normalise() {
	n := len(gp.inputs)

	gp.offset = make([]float64, gp.dim)
	gp.scale = make([]float64, gp.dim)
	column := make([]float64, n)
	for d := 0; d < gp.dim; d++ {
		for i := range gp.inputs {
			column[i] = gp.inputs[i][d]
		}
		lo, hi := floats.Min(column), floats.Max(column)
		gp.offset[d] = lo
		gp.scale[d] = hi - lo
		if gp.scale[d] == 0 {
			gp.scale[d] = 1
		}
	}

	gp.yMean, gp.yStd = stat.MeanStdDev(gp.outputs, nil)
	if !(gp.yStd > 0) || math.IsInf(gp.yStd, 0) {
		gp.yStd = 1
	}

	gp.x = make([][]float64, n)
	y := make([]float64, n)
	for i := range gp.inputs {
		gp.x[i] = gp.scaleInput(gp.inputs[i])
		y[i] = (gp.outputs[i] - gp.yMean) / gp.yStd
	}
	gp.y = mat.NewVecDense(n, y)
}

func (gp *GaussianProcess) scaleInput(point []float64) []float64 {
	scaled := make([]float64, gp.dim)
	for d, v := range point {
		scaled[d] = (v - gp.offset[d]) / gp.scale[d]
	}
	return scaled
}

// Dim returns the input dimensionality.
func (gp *GaussianProcess) Dim() int {
	return gp.dim
}

// Len returns the number of training points.
func (gp *GaussianProcess) Len() int {
	return len(gp.inputs)
}

// Fitted reports whether Fit has succeeded.
func (gp *GaussianProcess) Fitted() bool {
	return gp.state != nil
}

// Fit estimates the hyperparameters by maximising the profile marginal
// likelihood. It runs cfg.Restarts optimisations, the first from the centre
// of the length-scale box and the rest from points drawn with cfg.Seed, and
// keeps the best.
func (gp *GaussianProcess) Fit(cfg FitConfig) error {
	if gp.state != nil {
		return fmt.Errorf("%w: emulator is already fitted, build a new one to refit", ErrFit)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrFit, err)
	}

	n := len(gp.x)
	if n < gp.dim+1 {
		return fmt.Errorf("%w: need at least %d points for %d dimensions, got %d", ErrFit, gp.dim+1, gp.dim, n)
	}

	obj := newObjective(gp.x, gp.y, cfg)
	best, err := obj.search()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFit, err)
	}

	gp.cfg = cfg
	gp.state = best
	return nil
}

// Hyperparameters returns the fitted values, or the zero value before Fit.
func (gp *GaussianProcess) Hyperparameters() Hyperparameters {
	s := gp.state
	if s == nil {
		return Hyperparameters{}
	}

	ls := make([]float64, gp.dim)
	for d := range ls {
		ls[d] = s.lengthScales[d] * gp.scale[d]
	}

	return Hyperparameters{
		LengthScales:     ls,
		ProcessVariance:  s.sigma2 * gp.yStd * gp.yStd,
		Nugget:           s.nugget,
		MeanCoefficients: append([]float64(nil), s.beta...),
		LogLikelihood:    -s.nll,
	}
}

// NuggetVariance returns σ²ν in output units, the upper bound of the
// predictive variance at a training input.
func (gp *GaussianProcess) NuggetVariance() float64 {
	if gp.state == nil {
		return 0
	}
	return gp.state.sigma2 * gp.state.nugget * gp.yStd * gp.yStd
}

// PriorMean returns the regression mean h(x)ᵀβ at point in output units,
// the value predictions revert to far from the training data.
func (gp *GaussianProcess) PriorMean(point []float64) (float64, error) {
	if gp.state == nil {
		return 0, ErrNotFitted
	}
	if len(point) != gp.dim {
		return 0, fmt.Errorf("%w: point has %d coordinates, emulator expects %d", ErrDimension, len(point), gp.dim)
	}
	h := basisRow(gp.cfg.MeanFunction, gp.scaleInput(point))
	return gp.yMean + gp.yStd*floats.Dot(h, gp.state.beta), nil
}

// Predict returns the predictive mean and variance at each point. The
// covariance factorisation is reused from Fit; each point costs one
// correlation vector and one solve.
func (gp *GaussianProcess) Predict(points [][]float64) ([]Prediction, error) {
	s := gp.state
	if s == nil {
		return nil, ErrNotFitted
	}

	n := len(gp.x)
	preds := make([]Prediction, len(points))
	rstar := mat.NewVecDense(n, nil)
	var solved mat.VecDense

	for i, p := range points {
		if len(p) != gp.dim {
			return nil, fmt.Errorf("%w: point %d has %d coordinates, emulator expects %d", ErrDimension, i, len(p), gp.dim)
		}
		if !allFinite(p) {
			return nil, fmt.Errorf("point %d has non-finite coordinates", i)
		}

		xs := gp.scaleInput(p)
		for j := 0; j < n; j++ {
			rstar.SetVec(j, correlation(xs, gp.x[j], s.lengthScales))
		}

		mean := floats.Dot(basisRow(gp.cfg.MeanFunction, xs), s.beta) + mat.Dot(rstar, s.alpha)

		if err := ignoreCondition(s.chol.SolveVecTo(&solved, rstar)); err != nil {
			return nil, fmt.Errorf("failed to solve for predictive variance at point %d: %w", i, err)
		}
		variance := s.sigma2 * (1 - mat.Dot(rstar, &solved))
		if !(variance > 0) {
			variance = 0
		}

		preds[i] = Prediction{
			Mean:     gp.yMean + gp.yStd*mean,
			Variance: gp.yStd * gp.yStd * variance,
		}
	}

	return preds, nil
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
