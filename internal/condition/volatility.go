package condition

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/indicator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// RollingPeriods are the periods the feature engineer emits volatility_<n>
// and vwap_<n> columns for.
var RollingPeriods = []float64{10, 20}

func positive(name string, v float64) error {
	if !(v > 0) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "%s must be positive, got %v", name, v)
	}

	return nil
}

// bollinger computes the bands from close so that any period can be searched.
func bollinger(f *frame.Frame, period int, numStd float64) (lower, upper []float64, err error) {
	if err := f.Require(types.ColumnClose); err != nil {
		return nil, nil, err
	}

	closes := f.Float(types.ColumnClose)
	mid := indicator.RollingMean(closes, period)
	std := indicator.RollingStd(closes, period, false)

	lower = make([]float64, len(closes))
	upper = make([]float64, len(closes))
	for i := range closes {
		lower[i] = mid[i] - numStd*std[i]
		upper[i] = mid[i] + numStd*std[i]
	}

	return lower, upper, nil
}

// BollingerLowerBreak is true while the close is below the lower band.
type BollingerLowerBreak struct {
	Period int
	NumStd float64
}

func NewBollingerLowerBreak(period int, numStd float64) (*BollingerLowerBreak, error) {
	if period < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "bollinger period must be at least 2, got %d", period)
	}

	if err := positive("num_std", numStd); err != nil {
		return nil, err
	}

	return &BollingerLowerBreak{Period: period, NumStd: numStd}, nil
}

func (c *BollingerLowerBreak) Kind() Kind                { return KindBollingerLowerBreak }
func (c *BollingerLowerBreak) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *BollingerLowerBreak) RequiredColumns() []string { return []string{types.ColumnClose} }
func (c *BollingerLowerBreak) Window() int               { return c.Period }

func (c *BollingerLowerBreak) Params() Params {
	return Params{intParam("period", c.Period), floatParam("num_std", c.NumStd)}
}

func (c *BollingerLowerBreak) Apply(f *frame.Frame) ([]bool, error) {
	lower, _, err := bollinger(f, c.Period, c.NumStd)
	if err != nil {
		return nil, err
	}

	closes := f.Float(types.ColumnClose)
	out := make([]bool, f.Len())
	for i := range out {
		out[i] = !anyNaN(closes[i], lower[i]) && closes[i] < lower[i]
	}

	return out, nil
}

// BollingerUpperBreak is true while the close is above the upper band.
type BollingerUpperBreak struct {
	Period int
	NumStd float64
}

func NewBollingerUpperBreak(period int, numStd float64) (*BollingerUpperBreak, error) {
	lower, err := NewBollingerLowerBreak(period, numStd)
	if err != nil {
		return nil, err
	}

	return &BollingerUpperBreak{Period: lower.Period, NumStd: lower.NumStd}, nil
}

func (c *BollingerUpperBreak) Kind() Kind                { return KindBollingerUpperBreak }
func (c *BollingerUpperBreak) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *BollingerUpperBreak) RequiredColumns() []string { return []string{types.ColumnClose} }
func (c *BollingerUpperBreak) Window() int               { return c.Period }

func (c *BollingerUpperBreak) Params() Params {
	return Params{intParam("period", c.Period), floatParam("num_std", c.NumStd)}
}

func (c *BollingerUpperBreak) Apply(f *frame.Frame) ([]bool, error) {
	_, upper, err := bollinger(f, c.Period, c.NumStd)
	if err != nil {
		return nil, err
	}

	closes := f.Float(types.ColumnClose)
	out := make([]bool, f.Len())
	for i := range out {
		out[i] = !anyNaN(closes[i], upper[i]) && closes[i] > upper[i]
	}

	return out, nil
}

func bollingerSpecs() []Spec {
	params := []ParamSpec{
		{Name: "period", Kind: ParamInt, Low: 10, High: 30, Step: 10},
		{Name: "num_std", Kind: ParamFloat, Low: 1.5, High: 2.5, Step: 0.5},
	}

	return []Spec{
		{
			Kind:   KindBollingerLowerBreak,
			Params: params,
			New: func(p Params) (Condition, error) {
				return NewBollingerLowerBreak(p.Int("period"), p.Get("num_std"))
			},
		},
		{
			Kind:   KindBollingerUpperBreak,
			Params: params,
			New: func(p Params) (Condition, error) {
				return NewBollingerUpperBreak(p.Int("period"), p.Get("num_std"))
			},
		},
	}
}

// VolumeSurge is true when volume exceeds Multiplier times the mean volume
// of the Period bars before it.
type VolumeSurge struct {
	Period     int
	Multiplier float64
}

func NewVolumeSurge(period int, multiplier float64) (*VolumeSurge, error) {
	if period < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "volume period must be at least 1, got %d", period)
	}

	if err := positive("multiplier", multiplier); err != nil {
		return nil, err
	}

	return &VolumeSurge{Period: period, Multiplier: multiplier}, nil
}

func (c *VolumeSurge) Kind() Kind                { return KindVolumeSurge }
func (c *VolumeSurge) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *VolumeSurge) RequiredColumns() []string { return []string{types.ColumnVolume} }
func (c *VolumeSurge) Window() int               { return c.Period + 1 }

func (c *VolumeSurge) Params() Params {
	return Params{intParam("period", c.Period), floatParam("multiplier", c.Multiplier)}
}

func (c *VolumeSurge) Apply(f *frame.Frame) ([]bool, error) {
	if err := f.Require(types.ColumnVolume); err != nil {
		return nil, err
	}

	volume := f.Float(types.ColumnVolume)
	// mean[i-1] covers the Period bars ending just before i
	mean := indicator.RollingMean(volume, c.Period)

	out := make([]bool, f.Len())
	for i := c.Period; i < len(out); i++ {
		if !anyNaN(volume[i], mean[i-1]) {
			out[i] = volume[i] > c.Multiplier*mean[i-1]
		}
	}

	return out, nil
}

func volumeSurgeSpec() Spec {
	return Spec{
		Kind: KindVolumeSurge,
		Params: []ParamSpec{
			{Name: "period", Kind: ParamInt, Low: 10, High: 30, Step: 10},
			{Name: "multiplier", Kind: ParamFloat, Low: 1.5, High: 3.0, Step: 0.5},
		},
		New: func(p Params) (Condition, error) { return NewVolumeSurge(p.Int("period"), p.Get("multiplier")) },
	}
}

// VolatilityRegime is true while volatility_<Period> stays at or below MaxVolatility.
type VolatilityRegime struct {
	Period        int
	MaxVolatility float64
}

func NewVolatilityRegime(period int, maxVolatility float64) (*VolatilityRegime, error) {
	if err := validPeriod("period", period, RollingPeriods); err != nil {
		return nil, err
	}

	if err := positive("max_volatility", maxVolatility); err != nil {
		return nil, err
	}

	return &VolatilityRegime{Period: period, MaxVolatility: maxVolatility}, nil
}

func (c *VolatilityRegime) Kind() Kind  { return KindVolatilityRegime }
func (c *VolatilityRegime) ID() string  { return FormatID(c.Kind(), c.Params()) }
func (c *VolatilityRegime) Window() int { return 1 }

func (c *VolatilityRegime) Params() Params {
	return Params{choiceParam("period", c.Period), floatParam("max_volatility", c.MaxVolatility)}
}

func (c *VolatilityRegime) RequiredColumns() []string {
	return []string{indicator.VolatilityColumn(c.Period)}
}

func (c *VolatilityRegime) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool { return v[0] <= c.MaxVolatility })
}

func volatilityRegimeSpec() Spec {
	return Spec{
		Kind: KindVolatilityRegime,
		Params: []ParamSpec{
			{Name: "period", Kind: ParamChoice, Choices: RollingPeriods},
			{Name: "max_volatility", Kind: ParamFloat, Low: 0.01, High: 0.05, Step: 0.01},
		},
		New: func(p Params) (Condition, error) {
			return NewVolatilityRegime(p.Int("period"), p.Get("max_volatility"))
		},
	}
}

// VWAPReversion is true while the close sits more than Deviation below vwap_<Period>.
type VWAPReversion struct {
	Period    int
	Deviation float64
}

func NewVWAPReversion(period int, deviation float64) (*VWAPReversion, error) {
	if err := validPeriod("period", period, RollingPeriods); err != nil {
		return nil, err
	}

	if !(deviation > 0 && deviation < 1) {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "deviation must be in (0, 1), got %v", deviation)
	}

	return &VWAPReversion{Period: period, Deviation: deviation}, nil
}

func (c *VWAPReversion) Kind() Kind  { return KindVWAPReversion }
func (c *VWAPReversion) ID() string  { return FormatID(c.Kind(), c.Params()) }
func (c *VWAPReversion) Window() int { return 1 }

func (c *VWAPReversion) Params() Params {
	return Params{choiceParam("period", c.Period), floatParam("deviation", c.Deviation)}
}

func (c *VWAPReversion) RequiredColumns() []string {
	return []string{types.ColumnClose, indicator.VWAPColumn(c.Period)}
}

func (c *VWAPReversion) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool { return v[0] < v[1]*(1-c.Deviation) })
}

func vwapReversionSpec() Spec {
	return Spec{
		Kind: KindVWAPReversion,
		Params: []ParamSpec{
			{Name: "period", Kind: ParamChoice, Choices: RollingPeriods},
			{Name: "deviation", Kind: ParamFloat, Low: 0.01, High: 0.05, Step: 0.01},
		},
		New: func(p Params) (Condition, error) { return NewVWAPReversion(p.Int("period"), p.Get("deviation")) },
	}
}

// ReturnDrop is true when the close has fallen by at least Threshold over the last Period bars.
type ReturnDrop struct {
	Period    int
	Threshold float64
}

func NewReturnDrop(period int, threshold float64) (*ReturnDrop, error) {
	if period < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "return period must be at least 1, got %d", period)
	}

	if err := positive("threshold", threshold); err != nil {
		return nil, err
	}

	return &ReturnDrop{Period: period, Threshold: threshold}, nil
}

func (c *ReturnDrop) Kind() Kind                { return KindReturnDrop }
func (c *ReturnDrop) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *ReturnDrop) RequiredColumns() []string { return []string{types.ColumnClose} }
func (c *ReturnDrop) Window() int               { return c.Period + 1 }

func (c *ReturnDrop) Params() Params {
	return Params{intParam("period", c.Period), floatParam("threshold", c.Threshold)}
}

func (c *ReturnDrop) Apply(f *frame.Frame) ([]bool, error) {
	if err := f.Require(types.ColumnClose); err != nil {
		return nil, err
	}

	closes := f.Float(types.ColumnClose)
	out := make([]bool, f.Len())
	for i := c.Period; i < len(out); i++ {
		prev := closes[i-c.Period]
		if anyNaN(closes[i], prev) || prev == 0 {
			continue
		}

		out[i] = closes[i]/prev-1 <= -c.Threshold
	}

	return out, nil
}

func returnDropSpec() Spec {
	return Spec{
		Kind: KindReturnDrop,
		Params: []ParamSpec{
			{Name: "period", Kind: ParamInt, Low: 1, High: 5, Step: 1},
			{Name: "threshold", Kind: ParamFloat, Low: 0.01, High: 0.05, Step: 0.01},
		},
		New: func(p Params) (Condition, error) { return NewReturnDrop(p.Int("period"), p.Get("threshold")) },
	}
}
