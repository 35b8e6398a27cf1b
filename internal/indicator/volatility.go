package indicator

import (
	"fmt"
	"math"
	"slices"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// Volatility is the rolling sample standard deviation of log returns.
type Volatility struct {
	periods []int
}

// NewVolatility creates a new volatility indicator with default configuration.
func NewVolatility() Indicator {
	return &Volatility{
		periods: []int{20},
	}
}

func (v *Volatility) Name() types.IndicatorType {
	return types.IndicatorTypeVolatility
}

// Config expects one or more periods (int), each at least 2.
func (v *Volatility) Config(params ...any) error {
	periods, err := toPeriods(params)
	if err != nil {
		return err
	}

	for _, p := range periods {
		if p < 2 {
			return fmt.Errorf("volatility period must be at least 2, got %d", p)
		}
	}

	v.periods = periods

	return nil
}

// Lookback needs one extra row for the oldest return.
func (v *Volatility) Lookback() int {
	return slices.Max(v.periods) + 1
}

func (v *Volatility) Columns() []string {
	cols := make([]string, len(v.periods))
	for i, p := range v.periods {
		cols[i] = VolatilityColumn(p)
	}

	return cols
}

func (v *Volatility) RequiredColumns() []string {
	return []string{types.ColumnClose}
}

func (v *Volatility) Compute(f *frame.Frame) error {
	if err := f.Require(v.RequiredColumns()...); err != nil {
		return err
	}

	returns := LogReturns(f.Float(types.ColumnClose))
	for _, p := range v.periods {
		if err := f.SetFloat(VolatilityColumn(p), RollingStd(returns, p, true)); err != nil {
			return err
		}
	}

	return nil
}

// VolatilityColumn returns the feature column name of a rolling volatility.
func VolatilityColumn(period int) string {
	return fmt.Sprintf("volatility_%d", period)
}

// LogReturns returns ln(x[i]/x[i-1]) with NaN in the first row.
func LogReturns(x []float64) []float64 {
	out := nans(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = math.Log(x[i] / x[i-1])
	}

	return out
}

// PctReturns returns x[i]/x[i-1]-1 with NaN in the first row.
func PctReturns(x []float64) []float64 {
	out := nans(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = x[i]/x[i-1] - 1
	}

	return out
}
