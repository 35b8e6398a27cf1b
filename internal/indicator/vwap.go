package indicator

import (
	"fmt"
	"slices"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// VWAP is the rolling volume weighted average of the typical price
// (high+low+close)/3. Windows without volume fall back to the plain mean.
type VWAP struct {
	periods []int
}

// NewVWAP creates a new VWAP indicator with default configuration.
func NewVWAP() Indicator {
	return &VWAP{
		periods: []int{20},
	}
}

func (v *VWAP) Name() types.IndicatorType {
	return types.IndicatorTypeVWAP
}

// Config expects one or more periods (int).
func (v *VWAP) Config(params ...any) error {
	periods, err := toPeriods(params)
	if err != nil {
		return err
	}

	v.periods = periods

	return nil
}

func (v *VWAP) Lookback() int {
	return slices.Max(v.periods)
}

func (v *VWAP) Columns() []string {
	cols := make([]string, len(v.periods))
	for i, p := range v.periods {
		cols[i] = VWAPColumn(p)
	}

	return cols
}

func (v *VWAP) RequiredColumns() []string {
	return []string{types.ColumnHigh, types.ColumnLow, types.ColumnClose, types.ColumnVolume}
}

func (v *VWAP) Compute(f *frame.Frame) error {
	if err := f.Require(v.RequiredColumns()...); err != nil {
		return err
	}

	high := f.Float(types.ColumnHigh)
	low := f.Float(types.ColumnLow)
	closes := f.Float(types.ColumnClose)
	volume := f.Float(types.ColumnVolume)

	typical := make([]float64, f.Len())
	for i := range typical {
		typical[i] = (high[i] + low[i] + closes[i]) / 3
	}

	for _, p := range v.periods {
		out := nans(f.Len())
		for i := p - 1; i < f.Len(); i++ {
			var pv, vol, plain float64
			for j := i - p + 1; j <= i; j++ {
				pv += typical[j] * volume[j]
				vol += volume[j]
				plain += typical[j]
			}

			if vol > 0 {
				out[i] = pv / vol
			} else {
				out[i] = plain / float64(p)
			}
		}

		if err := f.SetFloat(VWAPColumn(p), out); err != nil {
			return err
		}
	}

	return nil
}

// VWAPColumn returns the feature column name of a rolling VWAP.
func VWAPColumn(period int) string {
	return fmt.Sprintf("vwap_%d", period)
}
