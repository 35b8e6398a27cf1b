// Package portfolio maps a universe's signals and returns to long-only
// target weights. Every row of an allocation sums to one, or to zero when
// nothing is allocated.
package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type Kind string

const (
	KindEqualWeight        Kind = "EqualWeight"
	KindInverseVolatility  Kind = "InverseVolatility"
	KindVolatilityWeighted Kind = "VolatilityWeighted"
	KindMomentum           Kind = "Momentum"
	KindRiskParity         Kind = "RiskParity"
	KindMinimumVariance    Kind = "MinimumVariance"
	KindMeanVariance       Kind = "MeanVariance"
	KindMaxSharpe          Kind = "MaxSharpe"
	KindWinnerTakesAll     Kind = "WinnerTakesAll"
)

// DefaultWindow is the look-back, in rows, of the rolling allocators.
const DefaultWindow = 20

type Allocator interface {
	Kind() Kind
	ID() string
	Params() condition.Params
	// Allocate returns weights on the index and columns of returns. signals
	// marks the assets eligible on each row (value > 0); nil makes every
	// asset eligible.
	Allocate(signals, returns *frame.Frame) (Allocation, error)
}

// Failure is a row whose optimisation did not produce weights. The row is
// allocated to cash.
type Failure struct {
	Row       int
	Timestamp time.Time
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("row %d (%s): %v", f.Row, f.Timestamp.Format(time.RFC3339), f.Err)
}

type Allocation struct {
	Weights  *frame.Frame
	Failures []Failure
}

// row is what a solver sees of one timestep.
type row struct {
	index int
	time  time.Time
	// dayEnd is set on the last row of a UTC calendar day.
	dayEnd bool
	assets []string
	signal []float64
	// history[k] holds the trailing window of returns of assets[k].
	history [][]float64
}

type solver func(r row) ([]float64, error)

// failed marks a row as an optimisation failure rather than a hard error.
func failed(format string, args ...any) error {
	return errors.Newf(errors.ErrCodeOptimizationFailure, format, args...)
}

// allocate drives a solver over every row. window is the number of trailing
// rows each solver needs; rows before that, and assets with gaps inside the
// window, receive no weight.
func allocate(signals, returns *frame.Frame, window int, solve solver) (Allocation, error) {
	assets, err := validate(signals, returns)
	if err != nil {
		return Allocation{}, err
	}

	n := returns.Len()
	weights := make(map[string][]float64, len(assets))
	for _, a := range assets {
		weights[a] = make([]float64, n)
	}

	var failures []Failure

	for i := 0; i < n; i++ {
		if window > 0 && i < window-1 {
			continue
		}

		r := row{
			index:  i,
			time:   returns.Time(i),
			dayEnd: i == n-1 || !sameUTCDay(returns.Time(i), returns.Time(i+1)),
		}

		for _, a := range assets {
			s := 1.0
			if signals != nil {
				s = signals.Float(a)[i]
			}

			if !(s > 0) {
				continue
			}

			var hist []float64
			if window > 0 {
				hist = returns.Float(a)[i-window+1 : i+1]
				if hasNaN(hist) {
					continue
				}
			}

			r.assets = append(r.assets, a)
			r.signal = append(r.signal, s)
			r.history = append(r.history, hist)
		}

		if len(r.assets) == 0 {
			continue
		}

		w, err := solve(r)
		if err != nil {
			if !errors.HasCode(err, errors.ErrCodeOptimizationFailure) {
				return Allocation{}, err
			}

			failures = append(failures, Failure{Row: i, Timestamp: r.time, Err: err})

			continue
		}

		for k, v := range normalise(w) {
			weights[r.assets[k]][i] = v
		}
	}

	out := frame.New(returns.Index())
	for _, a := range assets {
		if err := out.SetFloat(a, weights[a]); err != nil {
			return Allocation{}, err
		}
	}

	return Allocation{Weights: out, Failures: failures}, nil
}

// normalise clamps to non-negative finite values and scales to sum one. A
// row with nothing left stays all zero.
func normalise(w []float64) []float64 {
	out := make([]float64, len(w))
	sum := 0.0
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 1e-12 {
			continue
		}

		out[i] = v
		sum += v
	}

	if sum <= 0 {
		return make([]float64, len(w))
	}

	for i := range out {
		out[i] /= sum
	}

	return out
}

func validate(signals, returns *frame.Frame) ([]string, error) {
	if returns == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "returns are required")
	}

	if err := returns.ValidateIndex(); err != nil {
		return nil, err
	}

	assets := returns.Columns()
	if len(assets) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "returns have no asset columns")
	}

	for _, a := range assets {
		if err := checkColumn(returns, a); err != nil {
			return nil, err
		}
	}

	if signals == nil {
		return assets, nil
	}

	if signals.Len() != returns.Len() {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "signals have %d rows, returns have %d", signals.Len(), returns.Len())
	}

	for i := 0; i < returns.Len(); i++ {
		if !signals.Time(i).Equal(returns.Time(i)) {
			return nil, errors.Newf(errors.ErrCodeInvalidInput, "signals index differs from returns at row %d", i)
		}
	}

	for _, a := range assets {
		if !signals.Has(a) {
			return nil, errors.Newf(errors.ErrCodeInvalidInput, "signals are missing asset %s", a)
		}

		if err := checkColumn(signals, a); err != nil {
			return nil, err
		}
	}

	return assets, nil
}

// checkColumn accepts NaN, which marks missing history, but rejects text,
// infinities and extreme magnitudes.
func checkColumn(f *frame.Frame, name string) error {
	if !f.IsFloat(name) {
		return errors.Newf(errors.ErrCodeInvalidInput, "column %s is not numeric", name)
	}

	for i, v := range f.Float(name) {
		if math.IsInf(v, 0) || math.Abs(v) >= frame.MaxAbsValue {
			return errors.Newf(errors.ErrCodeInvalidInput, "column %s has invalid value %v at row %d", name, v, i)
		}
	}

	return nil
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}

	return false
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()

	return ay == by && am == bm && ad == bd
}
