package condition

import (
	"slices"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/indicator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// SMAPeriods are the periods the feature engineer emits sma_<n> columns for.
var SMAPeriods = []float64{10, 20, 50}

func validPeriod(name string, period int, allowed []float64) error {
	if !slices.Contains(allowed, float64(period)) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "%s %d is not one of %v", name, period, allowed)
	}

	return nil
}

// MACrossover fires when the fast SMA crosses above the slow SMA.
type MACrossover struct {
	Fast int
	Slow int
}

func NewMACrossover(fast, slow int) (*MACrossover, error) {
	if err := validCrossPeriods(fast, slow); err != nil {
		return nil, err
	}

	return &MACrossover{Fast: fast, Slow: slow}, nil
}

func validCrossPeriods(fast, slow int) error {
	if err := validPeriod("fast period", fast, SMAPeriods); err != nil {
		return err
	}

	if err := validPeriod("slow period", slow, SMAPeriods); err != nil {
		return err
	}

	if fast >= slow {
		return errors.Newf(errors.ErrCodeInvalidParameter, "fast period %d must be below slow period %d", fast, slow)
	}

	return nil
}

func (c *MACrossover) Kind() Kind { return KindMACrossover }
func (c *MACrossover) ID() string { return FormatID(c.Kind(), c.Params()) }
func (c *MACrossover) Window() int {
	return 2
}

func (c *MACrossover) Params() Params {
	return Params{choiceParam("fast", c.Fast), choiceParam("slow", c.Slow)}
}

func (c *MACrossover) RequiredColumns() []string {
	return []string{indicator.SMAColumn(c.Fast), indicator.SMAColumn(c.Slow)}
}

func (c *MACrossover) Apply(f *frame.Frame) ([]bool, error) {
	return crossed(f, indicator.SMAColumn(c.Fast), indicator.SMAColumn(c.Slow), true)
}

// MACrossunder fires when the fast SMA crosses below the slow SMA.
type MACrossunder struct {
	Fast int
	Slow int
}

func NewMACrossunder(fast, slow int) (*MACrossunder, error) {
	if err := validCrossPeriods(fast, slow); err != nil {
		return nil, err
	}

	return &MACrossunder{Fast: fast, Slow: slow}, nil
}

func (c *MACrossunder) Kind() Kind  { return KindMACrossunder }
func (c *MACrossunder) ID() string  { return FormatID(c.Kind(), c.Params()) }
func (c *MACrossunder) Window() int { return 2 }

func (c *MACrossunder) Params() Params {
	return Params{choiceParam("fast", c.Fast), choiceParam("slow", c.Slow)}
}

func (c *MACrossunder) RequiredColumns() []string {
	return []string{indicator.SMAColumn(c.Fast), indicator.SMAColumn(c.Slow)}
}

func (c *MACrossunder) Apply(f *frame.Frame) ([]bool, error) {
	return crossed(f, indicator.SMAColumn(c.Fast), indicator.SMAColumn(c.Slow), false)
}

func maCrossSpecs() []Spec {
	params := []ParamSpec{
		{Name: "fast", Kind: ParamChoice, Choices: []float64{10, 20}},
		{Name: "slow", Kind: ParamChoice, Choices: []float64{20, 50}},
	}

	return []Spec{
		{
			Kind:   KindMACrossover,
			Params: params,
			New:    func(p Params) (Condition, error) { return NewMACrossover(p.Int("fast"), p.Int("slow")) },
		},
		{
			Kind:   KindMACrossunder,
			Params: params,
			New:    func(p Params) (Condition, error) { return NewMACrossunder(p.Int("fast"), p.Int("slow")) },
		},
	}
}

// PriceAboveSMA is true while the close is above sma_<Period>.
type PriceAboveSMA struct {
	Period int
}

func NewPriceAboveSMA(period int) (*PriceAboveSMA, error) {
	if err := validPeriod("period", period, SMAPeriods); err != nil {
		return nil, err
	}

	return &PriceAboveSMA{Period: period}, nil
}

func (c *PriceAboveSMA) Kind() Kind     { return KindPriceAboveSMA }
func (c *PriceAboveSMA) ID() string     { return FormatID(c.Kind(), c.Params()) }
func (c *PriceAboveSMA) Params() Params { return Params{choiceParam("period", c.Period)} }
func (c *PriceAboveSMA) Window() int    { return 1 }

func (c *PriceAboveSMA) RequiredColumns() []string {
	return []string{types.ColumnClose, indicator.SMAColumn(c.Period)}
}

func (c *PriceAboveSMA) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool { return v[0] > v[1] })
}

// PriceBelowSMA is true while the close is below sma_<Period>.
type PriceBelowSMA struct {
	Period int
}

func NewPriceBelowSMA(period int) (*PriceBelowSMA, error) {
	if err := validPeriod("period", period, SMAPeriods); err != nil {
		return nil, err
	}

	return &PriceBelowSMA{Period: period}, nil
}

func (c *PriceBelowSMA) Kind() Kind     { return KindPriceBelowSMA }
func (c *PriceBelowSMA) ID() string     { return FormatID(c.Kind(), c.Params()) }
func (c *PriceBelowSMA) Params() Params { return Params{choiceParam("period", c.Period)} }
func (c *PriceBelowSMA) Window() int    { return 1 }

func (c *PriceBelowSMA) RequiredColumns() []string {
	return []string{types.ColumnClose, indicator.SMAColumn(c.Period)}
}

func (c *PriceBelowSMA) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool { return v[0] < v[1] })
}

func priceSMASpecs() []Spec {
	params := []ParamSpec{{Name: "period", Kind: ParamChoice, Choices: SMAPeriods}}

	return []Spec{
		{
			Kind:   KindPriceAboveSMA,
			Params: params,
			New:    func(p Params) (Condition, error) { return NewPriceAboveSMA(p.Int("period")) },
		},
		{
			Kind:   KindPriceBelowSMA,
			Params: params,
			New:    func(p Params) (Condition, error) { return NewPriceBelowSMA(p.Int("period")) },
		},
	}
}

// SMASlopeUp is true while sma_<Period> is above its value Lag bars ago.
type SMASlopeUp struct {
	Period int
	Lag    int
}

func NewSMASlopeUp(period, lag int) (*SMASlopeUp, error) {
	if err := validPeriod("period", period, SMAPeriods); err != nil {
		return nil, err
	}

	if lag < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "lag must be at least 1, got %d", lag)
	}

	return &SMASlopeUp{Period: period, Lag: lag}, nil
}

func (c *SMASlopeUp) Kind() Kind  { return KindSMASlopeUp }
func (c *SMASlopeUp) ID() string  { return FormatID(c.Kind(), c.Params()) }
func (c *SMASlopeUp) Window() int { return c.Lag + 1 }

func (c *SMASlopeUp) Params() Params {
	return Params{choiceParam("period", c.Period), intParam("lag", c.Lag)}
}

func (c *SMASlopeUp) RequiredColumns() []string {
	return []string{indicator.SMAColumn(c.Period)}
}

func (c *SMASlopeUp) Apply(f *frame.Frame) ([]bool, error) {
	if err := f.Require(c.RequiredColumns()...); err != nil {
		return nil, err
	}

	sma := f.Float(indicator.SMAColumn(c.Period))
	out := make([]bool, f.Len())
	for i := c.Lag; i < len(out); i++ {
		if !anyNaN(sma[i], sma[i-c.Lag]) {
			out[i] = sma[i] > sma[i-c.Lag]
		}
	}

	return out, nil
}

func smaSlopeSpec() Spec {
	return Spec{
		Kind: KindSMASlopeUp,
		Params: []ParamSpec{
			{Name: "period", Kind: ParamChoice, Choices: SMAPeriods},
			{Name: "lag", Kind: ParamInt, Low: 1, High: 5, Step: 1},
		},
		New: func(p Params) (Condition, error) { return NewSMASlopeUp(p.Int("period"), p.Int("lag")) },
	}
}
