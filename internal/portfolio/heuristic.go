package portfolio

import (
	"gonum.org/v1/gonum/stat"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

func formatID(kind Kind, params condition.Params) string {
	return condition.FormatID(condition.Kind(kind), params)
}

func checkWindow(kind Kind, window, minimum int) error {
	if window < minimum {
		return errors.Newf(errors.ErrCodeInvalidParameter, "%s: window must be at least %d, got %d", kind, minimum, window)
	}

	return nil
}

// EqualWeight splits evenly over the eligible assets.
type EqualWeight struct{}

func (EqualWeight) Kind() Kind               { return KindEqualWeight }
func (a EqualWeight) ID() string             { return formatID(a.Kind(), a.Params()) }
func (EqualWeight) Params() condition.Params { return condition.Params{} }

func (EqualWeight) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, 0, func(r row) ([]float64, error) {
		w := make([]float64, len(r.assets))
		for k := range w {
			w[k] = 1
		}

		return w, nil
	})
}

// InverseVolatility weights by the reciprocal of the rolling sample standard
// deviation. Assets with zero volatility are left out.
type InverseVolatility struct {
	Window int
}

func NewInverseVolatility(window int) (*InverseVolatility, error) {
	if err := checkWindow(KindInverseVolatility, window, 2); err != nil {
		return nil, err
	}

	return &InverseVolatility{Window: window}, nil
}

func (a *InverseVolatility) Kind() Kind { return KindInverseVolatility }
func (a *InverseVolatility) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *InverseVolatility) Params() condition.Params {
	return condition.Params{{Name: "window", Kind: condition.ParamInt, Value: float64(a.Window)}}
}

func (a *InverseVolatility) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, a.Window, volatilitySolver(true))
}

// VolatilityWeighted weights by rolling volatility, or by its reciprocal
// when Inverse is set.
type VolatilityWeighted struct {
	Window  int
	Inverse bool
}

func NewVolatilityWeighted(window int, inverse bool) (*VolatilityWeighted, error) {
	if err := checkWindow(KindVolatilityWeighted, window, 2); err != nil {
		return nil, err
	}

	return &VolatilityWeighted{Window: window, Inverse: inverse}, nil
}

func (a *VolatilityWeighted) Kind() Kind { return KindVolatilityWeighted }
func (a *VolatilityWeighted) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *VolatilityWeighted) Params() condition.Params {
	inverse := 0.0
	if a.Inverse {
		inverse = 1
	}

	return condition.Params{
		{Name: "window", Kind: condition.ParamInt, Value: float64(a.Window)},
		{Name: "inverse", Kind: condition.ParamChoice, Value: inverse},
	}
}

func (a *VolatilityWeighted) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, a.Window, volatilitySolver(a.Inverse))
}

func volatilitySolver(inverse bool) solver {
	return func(r row) ([]float64, error) {
		w := make([]float64, len(r.assets))
		for k, hist := range r.history {
			sd := stat.StdDev(hist, nil)
			if !(sd > 0) {
				continue
			}

			if inverse {
				w[k] = 1 / sd
			} else {
				w[k] = sd
			}
		}

		return w, nil
	}
}

// Momentum weights by the positive compounded return over the window.
type Momentum struct {
	Window int
}

func NewMomentum(window int) (*Momentum, error) {
	if err := checkWindow(KindMomentum, window, 1); err != nil {
		return nil, err
	}

	return &Momentum{Window: window}, nil
}

func (a *Momentum) Kind() Kind { return KindMomentum }
func (a *Momentum) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *Momentum) Params() condition.Params {
	return condition.Params{{Name: "window", Kind: condition.ParamInt, Value: float64(a.Window)}}
}

func (a *Momentum) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, a.Window, func(r row) ([]float64, error) {
		w := make([]float64, len(r.assets))
		for k, hist := range r.history {
			growth := 1.0
			for _, ret := range hist {
				growth *= 1 + ret
			}

			if growth > 1 {
				w[k] = growth - 1
			}
		}

		return w, nil
	})
}

// WinnerTakesAll puts everything on the asset with the strongest signal,
// the first column on ties. With CashAtDayEnd the last row of each UTC day
// is held in cash.
type WinnerTakesAll struct {
	CashAtDayEnd bool
}

func (a *WinnerTakesAll) Kind() Kind { return KindWinnerTakesAll }
func (a *WinnerTakesAll) ID() string { return formatID(a.Kind(), a.Params()) }

func (a *WinnerTakesAll) Params() condition.Params {
	cash := 0.0
	if a.CashAtDayEnd {
		cash = 1
	}

	return condition.Params{{Name: "cash_at_day_end", Kind: condition.ParamChoice, Value: cash}}
}

func (a *WinnerTakesAll) Allocate(signals, returns *frame.Frame) (Allocation, error) {
	return allocate(signals, returns, 0, func(r row) ([]float64, error) {
		w := make([]float64, len(r.assets))
		if a.CashAtDayEnd && r.dayEnd {
			return w, nil
		}

		best := 0
		for k, s := range r.signal {
			if s > r.signal[best] {
				best = k
			}
		}

		w[best] = 1

		return w, nil
	})
}
