// Package condition holds the library of boolean predicates strategies are
// composed of. A condition reads a fixed set of columns and returns one bool
// per row. Windowed conditions return false until their window is complete
// and whenever an input is NaN, so a value only depends on the trailing
// Window() rows.
package condition

import (
	"math"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
)

// Kind names a condition type.
type Kind string

const (
	KindRSIBelow            Kind = "RSIBelow"
	KindRSIAbove            Kind = "RSIAbove"
	KindMACDBullishCross    Kind = "MACDBullishCross"
	KindMACDBearishCross    Kind = "MACDBearishCross"
	KindMACrossover         Kind = "MACrossover"
	KindMACrossunder        Kind = "MACrossunder"
	KindBollingerLowerBreak Kind = "BollingerLowerBreak"
	KindBollingerUpperBreak Kind = "BollingerUpperBreak"
	KindPriceAboveSMA       Kind = "PriceAboveSMA"
	KindPriceBelowSMA       Kind = "PriceBelowSMA"
	KindSMASlopeUp          Kind = "SMASlopeUp"
	KindVolumeSurge         Kind = "VolumeSurge"
	KindVolatilityRegime    Kind = "VolatilityRegime"
	KindTimeOfDayFilter     Kind = "TimeOfDayFilter"
	KindDayOfWeekFilter     Kind = "DayOfWeekFilter"
	KindVWAPReversion       Kind = "VWAPReversion"
	KindReturnDrop          Kind = "ReturnDrop"
)

// Condition is an immutable, parameterised predicate.
type Condition interface {
	Kind() Kind
	// ID is the fingerprint Kind(k1=v1,...) used for deduplication and hashing.
	ID() string
	Params() Params
	RequiredColumns() []string
	// Window is the number of trailing rows, including the current one, a value depends on.
	Window() int
	// Apply evaluates every row of f.
	Apply(f *frame.Frame) ([]bool, error)
}

// rowwise evaluates pred on every row whose inputs are all finite.
func rowwise(f *frame.Frame, columns []string, pred func(v []float64) bool) ([]bool, error) {
	if err := f.Require(columns...); err != nil {
		return nil, err
	}

	inputs := make([][]float64, len(columns))
	for j, name := range columns {
		inputs[j] = f.Float(name)
	}

	out := make([]bool, f.Len())
	v := make([]float64, len(columns))
	for i := range out {
		ok := true
		for j := range inputs {
			v[j] = inputs[j][i]
			if math.IsNaN(v[j]) {
				ok = false
				break
			}
		}

		out[i] = ok && pred(v)
	}

	return out, nil
}

// crossed evaluates a two-row cross of a over b. up selects the direction.
func crossed(f *frame.Frame, a, b string, up bool) ([]bool, error) {
	if err := f.Require(a, b); err != nil {
		return nil, err
	}

	x, y := f.Float(a), f.Float(b)
	out := make([]bool, f.Len())
	for i := 1; i < len(out); i++ {
		if anyNaN(x[i-1], y[i-1], x[i], y[i]) {
			continue
		}

		if up {
			out[i] = x[i-1] <= y[i-1] && x[i] > y[i]
		} else {
			out[i] = x[i-1] >= y[i-1] && x[i] < y[i]
		}
	}

	return out, nil
}

func anyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}

	return false
}

// AllOf combines masks with AND. No masks yields all true.
func AllOf(n int, masks ...[]bool) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
		for _, m := range masks {
			if !m[i] {
				out[i] = false
				break
			}
		}
	}

	return out
}

// AnyOf combines masks with OR. No masks yields all false.
func AnyOf(n int, masks ...[]bool) []bool {
	out := make([]bool, n)
	for i := range out {
		for _, m := range masks {
			if m[i] {
				out[i] = true
				break
			}
		}
	}

	return out
}

// ApplyAll evaluates each condition on f.
func ApplyAll(f *frame.Frame, conditions []Condition) ([][]bool, error) {
	masks := make([][]bool, len(conditions))
	for i, c := range conditions {
		m, err := c.Apply(f)
		if err != nil {
			return nil, err
		}

		masks[i] = m
	}

	return masks, nil
}
