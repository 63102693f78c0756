package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"airflow-service/app/src/domain"
)

const (
	DefaultFitMaxIterations = 200
	DefaultInitialRate      = 1e-3
	DefaultStepTolerance    = 1e-10
	DefaultCostTolerance    = 1e-12

	initialDamping = 1e-3
	minDamping     = 1e-12
	maxDamping     = 1e12
)

var (
	ErrTooFewSamples     = errors.New("too few samples")
	ErrNonFiniteInput    = errors.New("non-finite measurement")
	ErrNonFiniteResidual = errors.New("non-finite residual")
	ErrSingularSystem    = errors.New("singular normal equations")
	ErrMaxIterations     = errors.New("iteration limit reached")
)

// FitResult is the fitted decay model C(t) = C0 * exp(-Lambda * (t - t0)).
type FitResult struct {
	C0         float64
	Lambda     float64
	Iterations int
	RSS        float64
	RSquared   float64
}

// DecayFitter fits the exponential decay model by Levenberg-Marquardt.
type DecayFitter struct {
	MaxIterations int
	InitialRate   float64
	StepTolerance float64
	CostTolerance float64
}

func NewDecayFitter(maxIterations int) DecayFitter {
	if maxIterations <= 0 {
		maxIterations = DefaultFitMaxIterations
	}
	return DecayFitter{
		MaxIterations: maxIterations,
		InitialRate:   DefaultInitialRate,
		StepTolerance: DefaultStepTolerance,
		CostTolerance: DefaultCostTolerance,
	}
}

// Fit seeds C0 with the first observed value and lambda with InitialRate. Every
// failure is a *domain.FitFailedError.
func (f DecayFitter) Fit(window []domain.Measurement) (FitResult, error) {
	n := len(window)
	if n < MinSamples {
		return FitResult{}, fitFailed(fmt.Errorf("%w: %d", ErrTooFewSamples, n))
	}

	t0 := window[0].Timestamp
	dt := make([]float64, n)
	obs := make([]float64, n)
	for i, m := range window {
		dt[i] = m.Timestamp - t0
		obs[i] = m.ConcentrationPPM
	}
	if !allFinite(dt) || !allFinite(obs) {
		return FitResult{}, fitFailed(ErrNonFiniteInput)
	}

	c0, lambda := obs[0], f.InitialRate
	residuals := make([]float64, n)
	trial := make([]float64, n)
	cost, ok := sumSquaredResiduals(c0, lambda, dt, obs, residuals)
	if !ok {
		return FitResult{}, fitFailed(ErrNonFiniteResidual)
	}

	jac := mat.NewDense(n, 2, nil)
	normal := mat.NewDense(2, 2, nil)
	damped := mat.NewDense(2, 2, nil)
	gradient := mat.NewVecDense(2, nil)
	var step mat.VecDense

	mu := initialDamping
	for iter := 1; iter <= f.MaxIterations; iter++ {
		for i := range dt {
			e := math.Exp(-lambda * dt[i])
			jac.Set(i, 0, e)
			jac.Set(i, 1, -c0*dt[i]*e)
		}
		normal.Mul(jac.T(), jac)
		gradient.MulVec(jac.T(), mat.NewVecDense(n, residuals))

		for {
			damped.Copy(normal)
			for k := 0; k < 2; k++ {
				damped.Set(k, k, normal.At(k, k)*(1+mu))
			}
			if err := step.SolveVec(damped, gradient); err != nil {
				return FitResult{}, fitFailed(fmt.Errorf("%w: %v", ErrSingularSystem, err))
			}

			dc0, dlambda := step.AtVec(0), step.AtVec(1)
			nextC0, nextLambda := c0+dc0, lambda+dlambda
			next, ok := sumSquaredResiduals(nextC0, nextLambda, dt, obs, trial)
			if ok && next <= cost {
				small := math.Abs(dc0) <= f.StepTolerance*(math.Abs(c0)+f.StepTolerance) &&
					math.Abs(dlambda) <= f.StepTolerance*(math.Abs(lambda)+f.StepTolerance)
				flat := cost-next <= f.CostTolerance*cost

				c0, lambda, cost = nextC0, nextLambda, next
				residuals, trial = trial, residuals
				mu = math.Max(mu/10, minDamping)
				if small || flat {
					return f.result(c0, lambda, iter, cost, dt, obs), nil
				}
				break
			}

			mu *= 10
			if mu > maxDamping {
				return f.result(c0, lambda, iter, cost, dt, obs), nil
			}
		}
	}

	return FitResult{}, fitFailed(fmt.Errorf("%w: %d", ErrMaxIterations, f.MaxIterations))
}

func (f DecayFitter) result(c0, lambda float64, iterations int, rss float64, dt, obs []float64) FitResult {
	res := FitResult{C0: c0, Lambda: lambda, Iterations: iterations, RSS: rss}

	curve := make([]float64, len(dt))
	for i := range dt {
		curve[i] = c0 * math.Exp(-lambda*dt[i])
	}
	if r2 := stat.RSquaredFrom(curve, obs, nil); !math.IsNaN(r2) && !math.IsInf(r2, 0) {
		res.RSquared = r2
	}
	return res
}

// sumSquaredResiduals fills residuals with obs - model and returns their sum of squares.
func sumSquaredResiduals(c0, lambda float64, dt, obs, residuals []float64) (float64, bool) {
	for i := range dt {
		residuals[i] = obs[i] - c0*math.Exp(-lambda*dt[i])
	}
	if !allFinite(residuals) {
		return 0, false
	}
	ssr := floats.Dot(residuals, residuals)
	return ssr, !math.IsInf(ssr, 0) && !math.IsNaN(ssr)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func fitFailed(err error) error {
	return &domain.FitFailedError{Err: err}
}
