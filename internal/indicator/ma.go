package indicator

import (
	"fmt"
	"slices"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// SMA computes simple moving averages of the close at one or more periods.
type SMA struct {
	periods []int
}

// NewSMA creates a new SMA indicator with default configuration.
func NewSMA() Indicator {
	return &SMA{
		periods: []int{20},
	}
}

// Name returns the name of the indicator.
func (m *SMA) Name() types.IndicatorType {
	return types.IndicatorTypeSMA
}

// Config configures the SMA indicator. Expected parameters: one or more periods (int).
func (m *SMA) Config(params ...any) error {
	periods, err := toPeriods(params)
	if err != nil {
		return err
	}

	m.periods = periods

	return nil
}

// Lookback is the longest configured period.
func (m *SMA) Lookback() int {
	return slices.Max(m.periods)
}

func (m *SMA) Columns() []string {
	cols := make([]string, len(m.periods))
	for i, p := range m.periods {
		cols[i] = SMAColumn(p)
	}

	return cols
}

func (m *SMA) RequiredColumns() []string {
	return []string{types.ColumnClose}
}

func (m *SMA) Compute(f *frame.Frame) error {
	if err := f.Require(m.RequiredColumns()...); err != nil {
		return err
	}

	closes := f.Float(types.ColumnClose)
	for _, p := range m.periods {
		if err := f.SetFloat(SMAColumn(p), RollingMean(closes, p)); err != nil {
			return err
		}
	}

	return nil
}

// SMAColumn returns the feature column name of a simple moving average.
func SMAColumn(period int) string {
	return fmt.Sprintf("sma_%d", period)
}
