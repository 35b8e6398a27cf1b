package indicator

import (
	"fmt"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// BollingerBands computes a moving average with bands at a multiple of the
// population standard deviation.
type BollingerBands struct {
	period int
	stdDev float64
}

// NewBollingerBands creates a new Bollinger Bands indicator with default configuration.
func NewBollingerBands() Indicator {
	return &BollingerBands{
		period: 20,
		stdDev: 2.0,
	}
}

// Name returns the name of the indicator.
func (bb *BollingerBands) Name() types.IndicatorType {
	return types.IndicatorTypeBollingerBands
}

// Config configures the Bollinger Bands indicator. Expected parameters: period (int), stdDev (float64).
func (bb *BollingerBands) Config(params ...any) error {
	if len(params) != 2 {
		return fmt.Errorf("Config expects 2 parameters: period (int), stdDev (float64)")
	}

	period, err := toPeriod("period", params[0])
	if err != nil {
		return err
	}

	stdDev, err := toFloat("stdDev", params[1])
	if err != nil {
		return err
	}

	if stdDev <= 0 {
		return fmt.Errorf("stdDev must be a positive number, got %f", stdDev)
	}

	bb.period = period
	bb.stdDev = stdDev

	return nil
}

func (bb *BollingerBands) Lookback() int {
	return bb.period
}

func (bb *BollingerBands) Columns() []string {
	return []string{types.ColumnBBMid, types.ColumnBBUpper, types.ColumnBBLower}
}

func (bb *BollingerBands) RequiredColumns() []string {
	return []string{types.ColumnClose}
}

func (bb *BollingerBands) Compute(f *frame.Frame) error {
	if err := f.Require(bb.RequiredColumns()...); err != nil {
		return err
	}

	closes := f.Float(types.ColumnClose)
	mid := RollingMean(closes, bb.period)
	std := RollingStd(closes, bb.period, false)

	upper := make([]float64, len(closes))
	lower := make([]float64, len(closes))
	for i := range closes {
		upper[i] = mid[i] + bb.stdDev*std[i]
		lower[i] = mid[i] - bb.stdDev*std[i]
	}

	if err := f.SetFloat(types.ColumnBBMid, mid); err != nil {
		return err
	}

	if err := f.SetFloat(types.ColumnBBUpper, upper); err != nil {
		return err
	}

	return f.SetFloat(types.ColumnBBLower, lower)
}
