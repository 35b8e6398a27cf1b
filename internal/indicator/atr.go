package indicator

import (
	"fmt"
	"math"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// ATR represents the Average True Range indicator, a simple mean of true ranges.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator with default configuration.
func NewATR() Indicator {
	return &ATR{
		period: 14,
	}
}

// Name returns the name of the indicator.
func (a *ATR) Name() types.IndicatorType {
	return types.IndicatorTypeATR
}

// Config configures the ATR indicator. Expected parameters: period (int).
func (a *ATR) Config(params ...any) error {
	if len(params) != 1 {
		return fmt.Errorf("Config expects 1 parameter: period (int)")
	}

	period, err := toPeriod("period", params[0])
	if err != nil {
		return err
	}

	a.period = period

	return nil
}

// Lookback needs the previous close of the oldest true range.
func (a *ATR) Lookback() int {
	return a.period + 1
}

func (a *ATR) Columns() []string {
	return []string{types.ColumnATR}
}

func (a *ATR) RequiredColumns() []string {
	return []string{types.ColumnHigh, types.ColumnLow, types.ColumnClose}
}

func (a *ATR) Compute(f *frame.Frame) error {
	if err := f.Require(a.RequiredColumns()...); err != nil {
		return err
	}

	high := f.Float(types.ColumnHigh)
	low := f.Float(types.ColumnLow)
	closes := f.Float(types.ColumnClose)

	trueRange := nans(f.Len())
	for i := 1; i < f.Len(); i++ {
		trueRange[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
	}

	atr := nans(f.Len())
	for i := a.period; i < f.Len(); i++ {
		var sum float64
		for j := i - a.period + 1; j <= i; j++ {
			sum += trueRange[j]
		}

		atr[i] = sum / float64(a.period)
	}

	return f.SetFloat(types.ColumnATR, atr)
}
