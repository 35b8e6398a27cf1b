package indicator

import (
	"fmt"
	"slices"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// EMA computes truncated exponential moving averages of the close.
type EMA struct {
	periods []int
}

// NewEMA creates a new EMA indicator with default configuration.
func NewEMA() Indicator {
	return &EMA{
		periods: []int{20},
	}
}

// Name returns the name of the indicator.
func (e *EMA) Name() types.IndicatorType {
	return types.IndicatorTypeEMA
}

// Config configures the EMA indicator. Expected parameters: one or more periods (int).
func (e *EMA) Config(params ...any) error {
	periods, err := toPeriods(params)
	if err != nil {
		return err
	}

	e.periods = periods

	return nil
}

func (e *EMA) Lookback() int {
	return EMAWindow(slices.Max(e.periods))
}

func (e *EMA) Columns() []string {
	cols := make([]string, len(e.periods))
	for i, p := range e.periods {
		cols[i] = EMAColumn(p)
	}

	return cols
}

func (e *EMA) RequiredColumns() []string {
	return []string{types.ColumnClose}
}

func (e *EMA) Compute(f *frame.Frame) error {
	if err := f.Require(e.RequiredColumns()...); err != nil {
		return err
	}

	closes := f.Float(types.ColumnClose)
	for _, p := range e.periods {
		if err := f.SetFloat(EMAColumn(p), truncatedEMA(closes, p)); err != nil {
			return err
		}
	}

	return nil
}

// EMAColumn returns the feature column name of an exponential moving average.
func EMAColumn(period int) string {
	return fmt.Sprintf("ema_%d", period)
}
