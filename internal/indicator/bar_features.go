package indicator

import (
	"math"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// Candle decomposes each bar into range, body and wicks.
type Candle struct{}

func NewCandle() Indicator {
	return &Candle{}
}

func (c *Candle) Name() types.IndicatorType {
	return types.IndicatorTypeCandle
}

// Config takes no parameters.
func (c *Candle) Config(params ...any) error {
	return nil
}

func (c *Candle) Lookback() int {
	return 1
}

func (c *Candle) Columns() []string {
	return []string{types.ColumnRange, types.ColumnBody, types.ColumnUpperWick, types.ColumnLowerWick}
}

func (c *Candle) RequiredColumns() []string {
	return []string{types.ColumnOpen, types.ColumnHigh, types.ColumnLow, types.ColumnClose}
}

func (c *Candle) Compute(f *frame.Frame) error {
	if err := f.Require(c.RequiredColumns()...); err != nil {
		return err
	}

	open := f.Float(types.ColumnOpen)
	high := f.Float(types.ColumnHigh)
	low := f.Float(types.ColumnLow)
	closes := f.Float(types.ColumnClose)

	n := f.Len()
	rng, body, upper, lower := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		rng[i] = high[i] - low[i]
		body[i] = closes[i] - open[i]
		upper[i] = high[i] - math.Max(open[i], closes[i])
		lower[i] = math.Min(open[i], closes[i]) - low[i]
	}

	if err := f.SetFloat(types.ColumnRange, rng); err != nil {
		return err
	}

	if err := f.SetFloat(types.ColumnBody, body); err != nil {
		return err
	}

	if err := f.SetFloat(types.ColumnUpperWick, upper); err != nil {
		return err
	}

	return f.SetFloat(types.ColumnLowerWick, lower)
}

// Returns adds log and percentage close-to-close returns.
type Returns struct{}

func NewReturns() Indicator {
	return &Returns{}
}

func (r *Returns) Name() types.IndicatorType {
	return types.IndicatorTypeReturns
}

// Config takes no parameters.
func (r *Returns) Config(params ...any) error {
	return nil
}

func (r *Returns) Lookback() int {
	return 2
}

func (r *Returns) Columns() []string {
	return []string{types.ColumnLogReturn, types.ColumnPctReturn}
}

func (r *Returns) RequiredColumns() []string {
	return []string{types.ColumnClose}
}

func (r *Returns) Compute(f *frame.Frame) error {
	if err := f.Require(r.RequiredColumns()...); err != nil {
		return err
	}

	closes := f.Float(types.ColumnClose)
	if err := f.SetFloat(types.ColumnLogReturn, LogReturns(closes)); err != nil {
		return err
	}

	return f.SetFloat(types.ColumnPctReturn, PctReturns(closes))
}

// Calendar adds the UTC hour of day and the day of week (Monday=0).
type Calendar struct{}

func NewCalendar() Indicator {
	return &Calendar{}
}

func (c *Calendar) Name() types.IndicatorType {
	return types.IndicatorTypeCalendar
}

// Config takes no parameters.
func (c *Calendar) Config(params ...any) error {
	return nil
}

func (c *Calendar) Lookback() int {
	return 1
}

func (c *Calendar) Columns() []string {
	return []string{types.ColumnHour, types.ColumnDayOfWeek}
}

func (c *Calendar) RequiredColumns() []string {
	return nil
}

func (c *Calendar) Compute(f *frame.Frame) error {
	hours := make([]float64, f.Len())
	days := make([]float64, f.Len())
	for i, t := range f.Index() {
		t = t.UTC()
		hours[i] = float64(t.Hour())
		days[i] = float64((int(t.Weekday()) + 6) % 7)
	}

	if err := f.SetFloat(types.ColumnHour, hours); err != nil {
		return err
	}

	return f.SetFloat(types.ColumnDayOfWeek, days)
}
