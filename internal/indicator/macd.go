package indicator

import (
	"fmt"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// MACD computes the MACD line, its signal line and the histogram.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator with the classic 12/26/9 configuration.
func NewMACD() Indicator {
	return &MACD{
		fastPeriod:   12,
		slowPeriod:   26,
		signalPeriod: 9,
	}
}

// Name returns the name of the indicator.
func (m *MACD) Name() types.IndicatorType {
	return types.IndicatorTypeMACD
}

// Config configures the MACD indicator. Expected parameters: fast, slow, signal periods (int).
func (m *MACD) Config(params ...any) error {
	if len(params) != 3 {
		return fmt.Errorf("Config expects 3 parameters: fast period, slow period, signal period (int)")
	}

	fast, err := toPeriod("fast period", params[0])
	if err != nil {
		return err
	}

	slow, err := toPeriod("slow period", params[1])
	if err != nil {
		return err
	}

	signal, err := toPeriod("signal period", params[2])
	if err != nil {
		return err
	}

	if fast >= slow {
		return fmt.Errorf("fast period (%d) must be smaller than slow period (%d)", fast, slow)
	}

	m.fastPeriod = fast
	m.slowPeriod = slow
	m.signalPeriod = signal

	return nil
}

// Lookback is the slow line window plus the signal window stacked on it.
func (m *MACD) Lookback() int {
	return EMAWindow(m.slowPeriod) + EMAWindow(m.signalPeriod) - 1
}

func (m *MACD) Columns() []string {
	return []string{types.ColumnMACD, types.ColumnMACDSignal, types.ColumnMACDHist}
}

func (m *MACD) RequiredColumns() []string {
	return []string{types.ColumnClose}
}

func (m *MACD) Compute(f *frame.Frame) error {
	if err := f.Require(m.RequiredColumns()...); err != nil {
		return err
	}

	closes := f.Float(types.ColumnClose)
	fast := truncatedEMA(closes, m.fastPeriod)
	slow := truncatedEMA(closes, m.slowPeriod)

	line := make([]float64, len(closes))
	for i := range line {
		line[i] = fast[i] - slow[i]
	}

	signal := truncatedEMA(line, m.signalPeriod)

	hist := make([]float64, len(closes))
	for i := range hist {
		hist[i] = line[i] - signal[i]
	}

	if err := f.SetFloat(types.ColumnMACD, line); err != nil {
		return err
	}

	if err := f.SetFloat(types.ColumnMACDSignal, signal); err != nil {
		return err
	}

	return f.SetFloat(types.ColumnMACDHist, hist)
}
