// Package feature turns bars into enriched rows using the indicator library.
package feature

import (
	"iter"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/indicator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// MACDConfig holds the MACD periods. A zero fast period disables MACD.
type MACDConfig struct {
	Fast   int `yaml:"fast" json:"fast" default:"12" validate:"gte=0"`
	Slow   int `yaml:"slow" json:"slow" default:"26" validate:"gte=0"`
	Signal int `yaml:"signal" json:"signal" default:"9" validate:"gte=0"`
}

// BollingerConfig holds the Bollinger parameters. A zero period disables the bands.
type BollingerConfig struct {
	Period int     `yaml:"period" json:"period" default:"20" validate:"gte=0"`
	StdDev float64 `yaml:"std_dev" json:"std_dev" default:"2" validate:"gte=0"`
}

// Config selects the features to compute. Empty period lists and zero
// periods disable the corresponding indicator.
type Config struct {
	SMAPeriods        []int           `yaml:"sma_periods" json:"sma_periods" jsonschema:"title=SMA periods"`
	EMAPeriods        []int           `yaml:"ema_periods" json:"ema_periods" jsonschema:"title=EMA periods"`
	RSIPeriod         int             `yaml:"rsi_period" json:"rsi_period" validate:"gte=0"`
	MACD              MACDConfig      `yaml:"macd" json:"macd"`
	ATRPeriod         int             `yaml:"atr_period" json:"atr_period" validate:"gte=0"`
	Bollinger         BollingerConfig `yaml:"bollinger" json:"bollinger"`
	VolatilityPeriods []int           `yaml:"volatility_periods" json:"volatility_periods"`
	VWAPPeriods       []int           `yaml:"vwap_periods" json:"vwap_periods"`
	Candles           bool            `yaml:"candles" json:"candles"`
	Returns           bool            `yaml:"returns" json:"returns"`
	Calendar          bool            `yaml:"calendar" json:"calendar"`
	// LookbackBuffer is added to the longest declared look-back.
	LookbackBuffer int `yaml:"lookback_buffer" json:"lookback_buffer" validate:"gte=0"`
	// KeepWarmup keeps the leading rows whose features are not yet defined.
	KeepWarmup bool `yaml:"keep_warmup" json:"keep_warmup"`
}

// DefaultConfig enables the full feature set.
func DefaultConfig() Config {
	return Config{
		SMAPeriods:        []int{10, 20, 50},
		EMAPeriods:        []int{10, 20, 50},
		RSIPeriod:         14,
		MACD:              MACDConfig{Fast: 12, Slow: 26, Signal: 9},
		ATRPeriod:         14,
		Bollinger:         BollingerConfig{Period: 20, StdDev: 2},
		VolatilityPeriods: []int{10, 20},
		VWAPPeriods:       []int{10, 20},
		Candles:           true,
		Returns:           true,
		Calendar:          true,
	}
}

// Engineer computes a fixed, ordered set of indicators. It holds no per-symbol
// state and can be shared across goroutines.
type Engineer struct {
	set         *indicator.Set
	maxLookback int
	keepWarmup  bool
}

// NewEngineer configures the indicators selected by cfg.
func NewEngineer(cfg Config) (*Engineer, error) {
	set := indicator.NewSet()

	steps := []struct {
		enabled bool
		ind     indicator.Indicator
		params  []any
	}{
		{len(cfg.SMAPeriods) > 0, indicator.NewSMA(), []any{cfg.SMAPeriods}},
		{len(cfg.EMAPeriods) > 0, indicator.NewEMA(), []any{cfg.EMAPeriods}},
		{cfg.RSIPeriod > 0, indicator.NewRSI(), []any{cfg.RSIPeriod}},
		{cfg.MACD.Fast > 0, indicator.NewMACD(), []any{cfg.MACD.Fast, cfg.MACD.Slow, cfg.MACD.Signal}},
		{cfg.ATRPeriod > 0, indicator.NewATR(), []any{cfg.ATRPeriod}},
		{cfg.Bollinger.Period > 0, indicator.NewBollingerBands(), []any{cfg.Bollinger.Period, cfg.Bollinger.StdDev}},
		{len(cfg.VolatilityPeriods) > 0, indicator.NewVolatility(), []any{cfg.VolatilityPeriods}},
		{len(cfg.VWAPPeriods) > 0, indicator.NewVWAP(), []any{cfg.VWAPPeriods}},
		{cfg.Candles, indicator.NewCandle(), nil},
		{cfg.Returns, indicator.NewReturns(), nil},
		{cfg.Calendar, indicator.NewCalendar(), nil},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}

		if len(step.params) > 0 {
			if err := step.ind.Config(step.params...); err != nil {
				return nil, err
			}
		}

		if err := set.Add(step.ind); err != nil {
			return nil, err
		}
	}

	return &Engineer{
		set:         set,
		maxLookback: set.Lookback() + cfg.LookbackBuffer,
		keepWarmup:  cfg.KeepWarmup,
	}, nil
}

// MaxLookback is the number of trailing rows any feature depends on.
func (e *Engineer) MaxLookback() int {
	return e.maxLookback
}

// Columns lists the produced feature columns in output order.
func (e *Engineer) Columns() []string {
	return e.set.Columns()
}

// RequiredColumns is the union of input columns read by the indicators.
func (e *Engineer) RequiredColumns() []string {
	return e.set.RequiredColumns()
}

// Apply returns a copy of f with every feature column added. Warm-up rows are kept.
func (e *Engineer) Apply(f *frame.Frame) (*frame.Frame, error) {
	out := f.Clone()
	if err := e.set.Compute(out); err != nil {
		return nil, err
	}

	return out, nil
}

// Transform applies the features and drops the warm-up rows unless configured to keep them.
func (e *Engineer) Transform(f *frame.Frame) (*frame.Frame, error) {
	out, err := e.Apply(f)
	if err != nil {
		return nil, err
	}

	if e.keepWarmup {
		return out, nil
	}

	return out.Slice(e.maxLookback-1, out.Len()), nil
}

// Stream applies the features page by page. The last MaxLookback()-1 input
// rows of each page are carried into the next one so that page boundaries do
// not change any value. Warm-up rows at the start of the series are dropped
// unless configured otherwise; pages left empty are skipped.
func (e *Engineer) Stream(pages iter.Seq2[*frame.Frame, error]) iter.Seq2[*frame.Frame, error] {
	return func(yield func(*frame.Frame, error) bool) {
		var (
			carry *frame.Frame
			seen  int
		)

		for page, err := range pages {
			if err != nil {
				if !yield(nil, err) {
					return
				}

				continue
			}

			combined, err := frame.Concat(carry, page)
			if err != nil {
				if !yield(nil, err) {
					return
				}

				continue
			}

			out, err := e.Apply(combined)
			if err != nil {
				if !yield(nil, err) {
					return
				}

				continue
			}

			out = out.Slice(carry.Len(), out.Len())
			if !e.keepWarmup {
				drop := max(0, e.maxLookback-1-seen)
				out = out.Slice(drop, out.Len())
			}

			seen += page.Len()
			carry = combined.Tail(e.maxLookback - 1)

			if out.Empty() {
				continue
			}

			if !yield(out, nil) {
				return
			}
		}
	}
}

// Describe returns the look-back declared by every configured indicator.
func (e *Engineer) Describe() map[types.IndicatorType]int {
	return e.set.Lookbacks()
}
