package indicator

import (
	"fmt"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// RSI represents the Relative Strength Index indicator. Gains and losses are
// averaged with a simple mean over the period.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator with default configuration.
func NewRSI() Indicator {
	return &RSI{
		period: 14,
	}
}

// Name returns the name of the indicator.
func (r *RSI) Name() types.IndicatorType {
	return types.IndicatorTypeRSI
}

// Config configures the RSI indicator. Expected parameters: period (int).
func (r *RSI) Config(params ...any) error {
	if len(params) != 1 {
		return fmt.Errorf("Config expects 1 parameter: period (int)")
	}

	period, err := toPeriod("period", params[0])
	if err != nil {
		return err
	}

	r.period = period

	return nil
}

// Lookback needs one extra row for the first price change.
func (r *RSI) Lookback() int {
	return r.period + 1
}

func (r *RSI) Columns() []string {
	return []string{types.ColumnRSI}
}

func (r *RSI) RequiredColumns() []string {
	return []string{types.ColumnClose}
}

func (r *RSI) Compute(f *frame.Frame) error {
	if err := f.Require(r.RequiredColumns()...); err != nil {
		return err
	}

	return f.SetFloat(types.ColumnRSI, RSIValues(f.Float(types.ColumnClose), r.period))
}

// RSIValues computes the RSI series of closes.
func RSIValues(closes []float64, period int) []float64 {
	out := nans(len(closes))
	for i := period; i < len(closes); i++ {
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if change > 0 {
				gain += change
			} else {
				loss -= change
			}
		}

		gain /= float64(period)
		loss /= float64(period)

		switch {
		case loss == 0 && gain == 0:
			out[i] = 50
		case loss == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+gain/loss)
		}
	}

	return out
}
