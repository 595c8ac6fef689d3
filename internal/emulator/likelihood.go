package emulator

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// minProcessVariance floors σ² so a constant training set still yields a
// finite likelihood.
const minProcessVariance = 1e-12

// restartSpread is the half-width of the box restarts are drawn from in the
// unbounded optimiser coordinates.
const restartSpread = 3.0

var errSingular = errors.New("covariance matrix is not positive definite")

// fitState is everything Predict needs from a fit.
type fitState struct {
	lengthScales []float64
	nugget       float64
	sigma2       float64
	beta         []float64
	chol         mat.Cholesky
	alpha        *mat.VecDense
	nll          float64
}

// objective is the negative profile log-likelihood over the unbounded
// optimiser coordinates θ. Length scales and the fitted nugget are mapped
// into their boxes on the log scale through a logistic function.
type objective struct {
	x   [][]float64
	y   *mat.VecDense
	h   *mat.Dense
	cfg FitConfig
	dim int

	logLSLo, logLSHi float64
	logNuLo, logNuHi float64
}

func newObjective(x [][]float64, y *mat.VecDense, cfg FitConfig) *objective {
	dim := len(x[0])
	p := len(basisRow(cfg.MeanFunction, x[0]))
	h := mat.NewDense(len(x), p, nil)
	for i, row := range x {
		h.SetRow(i, basisRow(cfg.MeanFunction, row))
	}

	return &objective{
		x:       x,
		y:       y,
		h:       h,
		cfg:     cfg,
		dim:     dim,
		logLSLo: math.Log(cfg.LengthScaleBounds[0]),
		logLSHi: math.Log(cfg.LengthScaleBounds[1]),
		logNuLo: math.Log(cfg.Nugget),
		logNuHi: math.Log(cfg.MaxNugget),
	}
}

func (o *objective) size() int {
	if o.cfg.NuggetMode == NuggetFit {
		return o.dim + 1
	}
	return o.dim
}

func (o *objective) params(theta []float64) ([]float64, float64) {
	ls := make([]float64, o.dim)
	for d := range ls {
		ls[d] = math.Exp(o.logLSLo + (o.logLSHi-o.logLSLo)*logistic(theta[d]))
	}

	nugget := o.cfg.Nugget
	if o.cfg.NuggetMode == NuggetFit {
		nugget = math.Exp(o.logNuLo + (o.logNuHi-o.logNuLo)*logistic(theta[o.dim]))
	}
	return ls, nugget
}

func (o *objective) value(theta []float64) float64 {
	s, err := o.evaluate(theta)
	if err != nil {
		return math.Inf(1)
	}
	return s.nll
}

// search runs the configured optimiser from every restart point and returns
// the best state found.
func (o *objective) search() (*fitState, error) {
	rng := rand.New(rand.NewPCG(o.cfg.Seed, o.cfg.Seed+1))

	var best *fitState
	var lastErr error
	for restart := 0; restart < o.cfg.Restarts; restart++ {
		theta0 := make([]float64, o.size())
		if restart > 0 {
			for i := range theta0 {
				theta0[i] = (2*rng.Float64() - 1) * restartSpread
			}
		}

		s, err := o.minimize(theta0)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || s.nll < best.nll {
			best = s
		}
	}

	if best == nil {
		if lastErr == nil {
			lastErr = errSingular
		}
		return nil, lastErr
	}
	return best, nil
}

func (o *objective) minimize(theta0 []float64) (*fitState, error) {
	problem := optimize.Problem{Func: o.value}

	var method optimize.Method
	switch o.cfg.Optimizer {
	case BFGS:
		method = &optimize.BFGS{}
	case LBFGS:
		method = &optimize.LBFGS{}
	default:
		method = &optimize.NelderMead{}
	}
	if o.cfg.Optimizer != NelderMead {
		settings := &fd.Settings{Formula: fd.Central}
		problem.Grad = func(grad, theta []float64) {
			fd.Gradient(grad, o.value, theta, settings)
		}
	}

	result, err := optimize.Minimize(problem, theta0, &optimize.Settings{
		MajorIterations: o.cfg.MaxIterations,
	}, method)
	if result == nil {
		return nil, err
	}

	// A line search that cannot improve still leaves a usable location.
	theta := result.X
	if math.IsInf(result.F, 1) || math.IsNaN(result.F) {
		theta = theta0
	}
	return o.evaluate(theta)
}

// evaluate factorises R + νI at θ and profiles out β and σ². In adaptive
// mode the nugget is raised tenfold until the factorisation succeeds.
func (o *objective) evaluate(theta []float64) (*fitState, error) {
	ls, nugget := o.params(theta)
	n := len(o.x)

	r := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r.SetSym(i, j, correlation(o.x[i], o.x[j], ls))
		}
	}

	s := &fitState{lengthScales: ls}
	a := mat.NewSymDense(n, nil)
	for {
		a.CopySym(r)
		for i := 0; i < n; i++ {
			a.SetSym(i, i, 1+nugget)
		}
		if s.chol.Factorize(a) {
			break
		}
		if o.cfg.NuggetMode != NuggetAdaptive {
			return nil, errSingular
		}
		nugget *= 10
		if nugget > o.cfg.MaxNugget {
			return nil, errSingular
		}
	}
	s.nugget = nugget

	if err := o.profile(s); err != nil {
		return nil, err
	}
	return s, nil
}

// profile computes the GLS estimate of β, the ML estimate of σ², the
// weights α = A⁻¹(y - Hβ) and the negative log-likelihood.
func (o *objective) profile(s *fitState) error {
	n := len(o.x)

	var ainvH mat.Dense
	if err := ignoreCondition(s.chol.SolveTo(&ainvH, o.h)); err != nil {
		return err
	}
	var ainvY mat.VecDense
	if err := ignoreCondition(s.chol.SolveVecTo(&ainvY, o.y)); err != nil {
		return err
	}

	var gram mat.Dense
	gram.Mul(o.h.T(), &ainvH)
	var rhs mat.VecDense
	rhs.MulVec(o.h.T(), &ainvY)

	var beta mat.VecDense
	if err := ignoreCondition(beta.SolveVec(&gram, &rhs)); err != nil {
		return err
	}

	var trend mat.VecDense
	trend.MulVec(o.h, &beta)
	resid := mat.NewVecDense(n, nil)
	resid.SubVec(o.y, &trend)

	alpha := mat.NewVecDense(n, nil)
	if err := ignoreCondition(s.chol.SolveVecTo(alpha, resid)); err != nil {
		return err
	}

	quad := mat.Dot(resid, alpha)
	if math.IsNaN(quad) || math.IsInf(quad, 0) {
		return errSingular
	}
	sigma2 := quad / float64(n)
	if sigma2 < minProcessVariance {
		sigma2 = minProcessVariance
	}

	s.beta = make([]float64, beta.Len())
	for i := range s.beta {
		s.beta[i] = beta.AtVec(i)
	}
	s.sigma2 = sigma2
	s.alpha = alpha
	s.nll = 0.5 * (float64(n)*math.Log(2*math.Pi*sigma2) + s.chol.LogDet() + quad/sigma2)
	if math.IsNaN(s.nll) {
		return errSingular
	}
	return nil
}

func correlation(a, b, ls []float64) float64 {
	var sum float64
	for d := range a {
		z := (a[d] - b[d]) / ls[d]
		sum += z * z
	}
	return math.Exp(-0.5 * sum)
}

func basisRow(kind MeanFunction, x []float64) []float64 {
	row := []float64{1}
	if kind == MeanLinear {
		row = append(row, x...)
	}
	return row
}

func logistic(t float64) float64 {
	return 1 / (1 + math.Exp(-t))
}

// ignoreCondition drops gonum's ill-conditioning report. The solution has
// still been written to the destination.
func ignoreCondition(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}
	return err
}
