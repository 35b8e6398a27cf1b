package logic

import (
	"math"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

func validStop(stopPct float64) error {
	if !(stopPct > 0 && stopPct < 1) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "stop_pct must be in (0, 1), got %v", stopPct)
	}

	return nil
}

// TrailingStop exits once the close falls StopPct below the highest close
// since entry.
type TrailingStop struct {
	StopPct float64
}

func NewTrailingStop(stopPct float64) (*TrailingStop, error) {
	if err := validStop(stopPct); err != nil {
		return nil, err
	}

	return &TrailingStop{StopPct: stopPct}, nil
}

func (l *TrailingStop) Kind() Kind { return KindTrailingStop }
func (l *TrailingStop) ID() string {
	return condition.FormatID(condition.Kind(l.Kind()), l.Params())
}

func (l *TrailingStop) Params() condition.Params {
	return condition.Params{{Name: "stop_pct", Kind: condition.ParamFloat, Value: l.StopPct}}
}

func (l *TrailingStop) RequiredColumns() []string { return []string{types.ColumnClose} }

func (l *TrailingStop) NewState() State {
	return State{stateInPosition: 0, stateTrailingHigh: math.NaN()}
}

func (l *TrailingStop) Step(i int, f *frame.Frame, masks Masks, state State) (bool, bool, State) {
	next := state.Clone()
	price := f.Float(types.ColumnClose)[i]

	if next.flag(stateInPosition) {
		if finite(price) {
			next[stateTrailingHigh] = math.Max(next[stateTrailingHigh], price)
		}

		stopped := finite(price) && price <= next[stateTrailingHigh]*(1-l.StopPct)
		if stopped || at(masks.Exit, i) {
			next.set(stateInPosition, false)
			next[stateTrailingHigh] = math.NaN()

			return false, true, next
		}

		return false, false, next
	}

	if at(masks.Entry, i) && finite(price) {
		next.set(stateInPosition, true)
		next[stateTrailingHigh] = price

		return true, false, next
	}

	return false, false, next
}

func trailingStopSpec() Spec {
	return Spec{
		Kind:   KindTrailingStop,
		Params: []condition.ParamSpec{{Name: "stop_pct", Kind: condition.ParamFloat, Low: 0.01, High: 0.05, Step: 0.01}},
		New:    func(p condition.Params) (Logic, error) { return NewTrailingStop(p.Get("stop_pct")) },
	}
}

// MeanReversion exits at a fixed stop below the entry price or on the exit
// mask, then ignores entries for Cooldown bars.
type MeanReversion struct {
	StopPct  float64
	Cooldown int
}

func NewMeanReversion(stopPct float64, cooldown int) (*MeanReversion, error) {
	if err := validStop(stopPct); err != nil {
		return nil, err
	}

	if cooldown < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "cooldown must not be negative, got %d", cooldown)
	}

	return &MeanReversion{StopPct: stopPct, Cooldown: cooldown}, nil
}

func (l *MeanReversion) Kind() Kind { return KindMeanReversion }
func (l *MeanReversion) ID() string {
	return condition.FormatID(condition.Kind(l.Kind()), l.Params())
}

func (l *MeanReversion) Params() condition.Params {
	return condition.Params{
		{Name: "stop_pct", Kind: condition.ParamFloat, Value: l.StopPct},
		{Name: "cooldown", Kind: condition.ParamInt, Value: float64(l.Cooldown)},
	}
}

func (l *MeanReversion) RequiredColumns() []string { return []string{types.ColumnClose} }

func (l *MeanReversion) NewState() State {
	return State{stateInPosition: 0, stateEntryPrice: math.NaN(), stateCooldown: 0}
}

func (l *MeanReversion) Step(i int, f *frame.Frame, masks Masks, state State) (bool, bool, State) {
	next := state.Clone()
	price := f.Float(types.ColumnClose)[i]

	if next.flag(stateInPosition) {
		stopped := finite(price) && price <= next[stateEntryPrice]*(1-l.StopPct)
		if stopped || at(masks.Exit, i) {
			next.set(stateInPosition, false)
			next[stateEntryPrice] = math.NaN()
			next[stateCooldown] = float64(l.Cooldown)

			return false, true, next
		}

		return false, false, next
	}

	if next[stateCooldown] > 0 {
		next[stateCooldown]--

		return false, false, next
	}

	if at(masks.Entry, i) && finite(price) {
		next.set(stateInPosition, true)
		next[stateEntryPrice] = price

		return true, false, next
	}

	return false, false, next
}

func meanReversionSpec() Spec {
	return Spec{
		Kind: KindMeanReversion,
		Params: []condition.ParamSpec{
			{Name: "stop_pct", Kind: condition.ParamFloat, Low: 0.01, High: 0.05, Step: 0.01},
			{Name: "cooldown", Kind: condition.ParamInt, Low: 0, High: 5, Step: 1},
		},
		New: func(p condition.Params) (Logic, error) {
			return NewMeanReversion(p.Get("stop_pct"), p.Int("cooldown"))
		},
	}
}

// MACDTrailing trails a stop ATRMultiplier ATRs below the close. The stop
// only ratchets upward.
type MACDTrailing struct {
	ATRMultiplier float64
}

func NewMACDTrailing(atrMultiplier float64) (*MACDTrailing, error) {
	if !(atrMultiplier > 0) {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "atr_multiplier must be positive, got %v", atrMultiplier)
	}

	return &MACDTrailing{ATRMultiplier: atrMultiplier}, nil
}

func (l *MACDTrailing) Kind() Kind { return KindMACDTrailing }
func (l *MACDTrailing) ID() string {
	return condition.FormatID(condition.Kind(l.Kind()), l.Params())
}

func (l *MACDTrailing) Params() condition.Params {
	return condition.Params{{Name: "atr_multiplier", Kind: condition.ParamFloat, Value: l.ATRMultiplier}}
}

func (l *MACDTrailing) RequiredColumns() []string {
	return []string{types.ColumnClose, types.ColumnATR}
}

func (l *MACDTrailing) NewState() State {
	return State{stateInPosition: 0, stateTrailingStop: math.NaN()}
}

func (l *MACDTrailing) Step(i int, f *frame.Frame, masks Masks, state State) (bool, bool, State) {
	next := state.Clone()
	price := f.Float(types.ColumnClose)[i]
	atr := f.Float(types.ColumnATR)[i]
	level := price - l.ATRMultiplier*atr

	if next.flag(stateInPosition) {
		stopped := finite(price) && price < next[stateTrailingStop]
		if stopped || at(masks.Exit, i) {
			next.set(stateInPosition, false)
			next[stateTrailingStop] = math.NaN()

			return false, true, next
		}

		if finite(level) {
			next[stateTrailingStop] = math.Max(next[stateTrailingStop], level)
		}

		return false, false, next
	}

	if at(masks.Entry, i) && finite(level) {
		next.set(stateInPosition, true)
		next[stateTrailingStop] = level

		return true, false, next
	}

	return false, false, next
}

func macdTrailingSpec() Spec {
	return Spec{
		Kind:   KindMACDTrailing,
		Params: []condition.ParamSpec{{Name: "atr_multiplier", Kind: condition.ParamFloat, Low: 1, High: 3, Step: 0.5}},
		New:    func(p condition.Params) (Logic, error) { return NewMACDTrailing(p.Get("atr_multiplier")) },
	}
}
