package condition

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// RSIBelow is true while the RSI is under Threshold (oversold).
type RSIBelow struct {
	Threshold float64
}

func NewRSIBelow(threshold float64) (*RSIBelow, error) {
	if threshold <= 0 || threshold >= 100 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "rsi threshold must be in (0, 100), got %v", threshold)
	}

	return &RSIBelow{Threshold: threshold}, nil
}

func (c *RSIBelow) Kind() Kind                { return KindRSIBelow }
func (c *RSIBelow) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *RSIBelow) Params() Params            { return Params{floatParam("threshold", c.Threshold)} }
func (c *RSIBelow) RequiredColumns() []string { return []string{types.ColumnRSI} }
func (c *RSIBelow) Window() int               { return 1 }

func (c *RSIBelow) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool { return v[0] < c.Threshold })
}

func rsiBelowSpec() Spec {
	return Spec{
		Kind:   KindRSIBelow,
		Params: []ParamSpec{{Name: "threshold", Kind: ParamFloat, Low: 20, High: 40, Step: 5}},
		New:    func(p Params) (Condition, error) { return NewRSIBelow(p.Get("threshold")) },
	}
}

// RSIAbove is true while the RSI is over Threshold (overbought).
type RSIAbove struct {
	Threshold float64
}

func NewRSIAbove(threshold float64) (*RSIAbove, error) {
	if threshold <= 0 || threshold >= 100 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "rsi threshold must be in (0, 100), got %v", threshold)
	}

	return &RSIAbove{Threshold: threshold}, nil
}

func (c *RSIAbove) Kind() Kind                { return KindRSIAbove }
func (c *RSIAbove) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *RSIAbove) Params() Params            { return Params{floatParam("threshold", c.Threshold)} }
func (c *RSIAbove) RequiredColumns() []string { return []string{types.ColumnRSI} }
func (c *RSIAbove) Window() int               { return 1 }

func (c *RSIAbove) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool { return v[0] > c.Threshold })
}

func rsiAboveSpec() Spec {
	return Spec{
		Kind:   KindRSIAbove,
		Params: []ParamSpec{{Name: "threshold", Kind: ParamFloat, Low: 60, High: 80, Step: 5}},
		New:    func(p Params) (Condition, error) { return NewRSIAbove(p.Get("threshold")) },
	}
}

// MACDBullishCross fires on the bar where the MACD line crosses above its signal line.
type MACDBullishCross struct{}

func (c *MACDBullishCross) Kind() Kind     { return KindMACDBullishCross }
func (c *MACDBullishCross) ID() string     { return FormatID(c.Kind(), nil) }
func (c *MACDBullishCross) Params() Params { return nil }
func (c *MACDBullishCross) Window() int    { return 2 }

func (c *MACDBullishCross) RequiredColumns() []string {
	return []string{types.ColumnMACD, types.ColumnMACDSignal}
}

func (c *MACDBullishCross) Apply(f *frame.Frame) ([]bool, error) {
	return crossed(f, types.ColumnMACD, types.ColumnMACDSignal, true)
}

// MACDBearishCross fires on the bar where the MACD line crosses below its signal line.
type MACDBearishCross struct{}

func (c *MACDBearishCross) Kind() Kind     { return KindMACDBearishCross }
func (c *MACDBearishCross) ID() string     { return FormatID(c.Kind(), nil) }
func (c *MACDBearishCross) Params() Params { return nil }
func (c *MACDBearishCross) Window() int    { return 2 }

func (c *MACDBearishCross) RequiredColumns() []string {
	return []string{types.ColumnMACD, types.ColumnMACDSignal}
}

func (c *MACDBearishCross) Apply(f *frame.Frame) ([]bool, error) {
	return crossed(f, types.ColumnMACD, types.ColumnMACDSignal, false)
}

func macdCrossSpecs() []Spec {
	return []Spec{
		{Kind: KindMACDBullishCross, New: func(Params) (Condition, error) { return &MACDBullishCross{}, nil }},
		{Kind: KindMACDBearishCross, New: func(Params) (Condition, error) { return &MACDBearishCross{}, nil }},
	}
}
