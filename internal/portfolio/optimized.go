package portfolio

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

const (
	solverMaxIter   = 5000
	solverTolerance = 1e-10
	// singularEps bounds the largest covariance eigenvalue from below.
	singularEps = 1e-14
)

// moments estimates the mean vector and covariance matrix of a row's window.
func moments(r row) ([]float64, *mat.SymDense, error) {
	n, k := len(r.history[0]), len(r.assets)
	if n < 2 {
		return nil, nil, failed("window of %d rows is too short for a covariance", n)
	}

	x := mat.NewDense(n, k, nil)
	mu := make([]float64, k)
	for j, hist := range r.history {
		x.SetCol(j, hist)
		mu[j] = stat.Mean(hist, nil)
	}

	cov := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(cov, x, nil)

	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			if v := cov.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, failed("covariance is not finite")
			}
		}
	}

	return mu, cov, nil
}

// largestEigenvalue fails on a covariance with no variance at all.
func largestEigenvalue(cov *mat.SymDense) (float64, error) {
	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return 0, failed("eigen decomposition did not converge")
	}

	values := eig.Values(nil)
	top := values[len(values)-1]
	if top <= singularEps {
		return 0, failed("covariance is singular")
	}

	return top, nil
}

// projectSimplex returns the Euclidean projection of v onto
// {w : w >= 0, sum(w) = 1}.
func projectSimplex(v []float64) []float64 {
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	cum, theta := 0.0, 0.0
	for i, x := range u {
		cum += x
		if t := (cum - 1) / float64(i+1); x-t > 0 {
			theta = t
		}
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Max(x-theta, 0)
	}

	return out
}

// quadratic minimises wᵀΣw - λ·μᵀw over the simplex by projected gradient
// with step 1/L, L = 2·λmax(Σ).
func quadratic(mu []float64, cov *mat.SymDense, lambda float64) ([]float64, error) {
	top, err := largestEigenvalue(cov)
	if err != nil {
		return nil, err
	}

	k := len(mu)
	step := 1 / (2 * top)
	w := make([]float64, k)
	for i := range w {
		w[i] = 1 / float64(k)
	}

	grad := mat.NewVecDense(k, nil)
	for iter := 0; iter < solverMaxIter; iter++ {
		grad.MulVec(cov, mat.NewVecDense(k, w))

		next := make([]float64, k)
		for i := range next {
			next[i] = w[i] - step*(2*grad.AtVec(i)-lambda*mu[i])
		}

		next = projectSimplex(next)
		if floats.Distance(next, w, math.Inf(1)) < solverTolerance {
			return next, nil
		}

		w = next
	}

	return nil, failed("projected gradient did not converge in %d iterations", solverMaxIter)
}

// MinimumVariance solves min wᵀΣw with w on the simplex.
type MinimumVariance struct {
	Window int
}

func NewMinimumVariance(window int) (*MinimumVariance, error) {
	if err := checkWindow(KindMinimumVariance, window, 2); err != nil {
		return nil, err
	}

	return &MinimumVariance{Window: window}, nil
}

func (a *MinimumVariance) Kind() Kind { return KindMinimumVariance }
func (a *MinimumVariance) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *MinimumVariance) Params() condition.Params {
	return condition.Params{{Name: "window", Kind: condition.ParamInt, Value: float64(a.Window)}}
}

func (a *MinimumVariance) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, a.Window, func(r row) ([]float64, error) {
		if len(r.assets) == 1 {
			return []float64{1}, nil
		}

		mu, cov, err := moments(r)
		if err != nil {
			return nil, err
		}

		return quadratic(mu, cov, 0)
	})
}

// MeanVariance solves min wᵀΣw - RiskAversion·μᵀw with w on the simplex.
type MeanVariance struct {
	Window       int
	RiskAversion float64
}

func NewMeanVariance(window int, riskAversion float64) (*MeanVariance, error) {
	if err := checkWindow(KindMeanVariance, window, 2); err != nil {
		return nil, err
	}

	if riskAversion < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "%s: risk aversion must be non-negative, got %v", KindMeanVariance, riskAversion)
	}

	return &MeanVariance{Window: window, RiskAversion: riskAversion}, nil
}

func (a *MeanVariance) Kind() Kind { return KindMeanVariance }
func (a *MeanVariance) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *MeanVariance) Params() condition.Params {
	return condition.Params{
		{Name: "window", Kind: condition.ParamInt, Value: float64(a.Window)},
		{Name: "risk_aversion", Kind: condition.ParamFloat, Value: a.RiskAversion},
	}
}

func (a *MeanVariance) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, a.Window, func(r row) ([]float64, error) {
		if len(r.assets) == 1 {
			return []float64{1}, nil
		}

		mu, cov, err := moments(r)
		if err != nil {
			return nil, err
		}

		return quadratic(mu, cov, a.RiskAversion)
	})
}

// RiskParity equalises the risk contributions w_i·(Σw)_i by cyclical
// coordinate descent on ½yᵀΣy - Σ log(y_i)/n, then normalises y.
type RiskParity struct {
	Window int
}

func NewRiskParity(window int) (*RiskParity, error) {
	if err := checkWindow(KindRiskParity, window, 2); err != nil {
		return nil, err
	}

	return &RiskParity{Window: window}, nil
}

func (a *RiskParity) Kind() Kind { return KindRiskParity }
func (a *RiskParity) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *RiskParity) Params() condition.Params {
	return condition.Params{{Name: "window", Kind: condition.ParamInt, Value: float64(a.Window)}}
}

func (a *RiskParity) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, a.Window, func(r row) ([]float64, error) {
		if len(r.assets) == 1 {
			return []float64{1}, nil
		}

		_, cov, err := moments(r)
		if err != nil {
			return nil, err
		}

		return equalRiskContribution(cov)
	})
}

func equalRiskContribution(cov *mat.SymDense) ([]float64, error) {
	k := cov.SymmetricDim()
	budget := 1 / float64(k)

	y := make([]float64, k)
	for i := range y {
		v := cov.At(i, i)
		if !(v > singularEps) {
			return nil, failed("asset %d has no variance", i)
		}

		y[i] = 1 / math.Sqrt(v)
	}

	for iter := 0; iter < solverMaxIter; iter++ {
		change := 0.0
		for i := range y {
			c := 0.0
			for j := range y {
				if j != i {
					c += cov.At(i, j) * y[j]
				}
			}

			s := cov.At(i, i)
			next := (-c + math.Sqrt(c*c+4*s*budget)) / (2 * s)
			change = math.Max(change, math.Abs(next-y[i]))
			y[i] = next
		}

		if change < solverTolerance {
			return y, nil
		}
	}

	return nil, failed("risk parity did not converge in %d iterations", solverMaxIter)
}

// MaxSharpe maximises (μᵀw - RiskFree)/√(wᵀΣw) over the simplex by projected
// gradient ascent with backtracking. RiskFree is a per-row rate.
type MaxSharpe struct {
	Window   int
	RiskFree float64
}

func NewMaxSharpe(window int, riskFree float64) (*MaxSharpe, error) {
	if err := checkWindow(KindMaxSharpe, window, 2); err != nil {
		return nil, err
	}

	return &MaxSharpe{Window: window, RiskFree: riskFree}, nil
}

func (a *MaxSharpe) Kind() Kind { return KindMaxSharpe }
func (a *MaxSharpe) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *MaxSharpe) Params() condition.Params {
	return condition.Params{
		{Name: "window", Kind: condition.ParamInt, Value: float64(a.Window)},
		{Name: "risk_free", Kind: condition.ParamFloat, Value: a.RiskFree},
	}
}

func (a *MaxSharpe) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, a.Window, func(r row) ([]float64, error) {
		mu, cov, err := moments(r)
		if err != nil {
			return nil, err
		}

		return maxSharpe(mu, cov, a.RiskFree)
	})
}

func maxSharpe(mu []float64, cov *mat.SymDense, riskFree float64) ([]float64, error) {
	k := len(mu)
	if floats.Max(mu) <= riskFree {
		return nil, failed("no asset beats the risk-free rate")
	}

	sharpe := func(w []float64) (float64, float64, *mat.VecDense) {
		sw := mat.NewVecDense(k, nil)
		sw.MulVec(cov, mat.NewVecDense(k, w))
		variance := floats.Dot(w, sw.RawVector().Data)

		return floats.Dot(w, mu) - riskFree, math.Sqrt(math.Max(variance, 0)), sw
	}

	// start on the best single asset so the excess return is positive
	w := make([]float64, k)
	w[floats.MaxIdx(mu)] = 1

	excess, sd, sw := sharpe(w)
	if sd <= singularEps {
		return nil, failed("best asset has no variance")
	}

	current := excess / sd
	step := 1.0
	for iter := 0; iter < solverMaxIter; iter++ {
		grad := make([]float64, k)
		for i := range grad {
			grad[i] = (mu[i]-riskFree)/sd - excess*sw.AtVec(i)/(sd*sd*sd)
		}

		var next []float64
		improved := false
		for step > 1e-16 {
			candidate := make([]float64, k)
			floats.AddScaledTo(candidate, w, step, grad)
			next = projectSimplex(candidate)

			e, s, _ := sharpe(next)
			if s > singularEps && e/s >= current {
				improved = true

				break
			}

			step /= 2
		}

		if !improved || floats.Distance(next, w, math.Inf(1)) < solverTolerance {
			return w, nil
		}

		w = next
		excess, sd, sw = sharpe(w)
		current = excess / sd
		step = math.Min(step*2, 1e6)
	}

	return nil, failed("max sharpe did not converge in %d iterations", solverMaxIter)
}
