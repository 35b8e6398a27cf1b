package mocks

import (
	"iter"
	"math"
	"math/rand"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// DataGenerator produces deterministic synthetic bars for tests.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bars are generated.
type GeneratorConfig struct {
	Symbol    string
	StartTime time.Time
	// Interval is the duration between bars.
	Interval time.Duration
	// BusinessDays skips Saturdays and Sundays. Intended for daily intervals.
	BusinessDays bool
	Count        int
	InitialPrice float64
	// Volatility is the per-bar standard deviation of returns.
	Volatility float64
	// Trend is the per-bar drift.
	Trend float64
	// CycleLength, when positive, adds a sine drift of that period so that
	// mean reversion and trend strategies have something to trade.
	CycleLength    int
	VolumeBase     float64
	VolumeVariance float64
}

// DefaultConfig returns a daily business-day series with a visible cycle.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         "TEST",
		StartTime:      time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Interval:       24 * time.Hour,
		BusinessDays:   true,
		Count:          500,
		InitialPrice:   100.0,
		Volatility:     0.01,
		Trend:          0.0002,
		CycleLength:    40,
		VolumeBase:     10000,
		VolumeVariance: 0.3,
	}
}

// Generate creates bars following a geometric Brownian motion with an optional cycle.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	price := config.InitialPrice
	ts := config.StartTime.UTC()

	for i := 0; i < config.Count; i++ {
		for config.BusinessDays && (ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday) {
			ts = ts.Add(config.Interval)
		}

		open := price
		drift := config.Trend
		if config.CycleLength > 0 {
			drift += 3 * config.Volatility * math.Sin(2*math.Pi*float64(i)/float64(config.CycleLength)) / math.Sqrt(float64(config.CycleLength))
		}

		closePrice := open * (1 + drift + config.Volatility*g.rng.NormFloat64())
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		high := math.Max(open, closePrice) * (1 + g.rng.Float64()*config.Volatility*0.5)
		low := math.Min(open, closePrice) * (1 - g.rng.Float64()*config.Volatility*0.5)

		volume := config.VolumeBase * (1 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.Bar{
			Symbol: config.Symbol,
			Time:   ts,
			Open:   roundToDecimals(open, 4),
			High:   roundToDecimals(high, 4),
			Low:    roundToDecimals(low, 4),
			Close:  roundToDecimals(closePrice, 4),
			Volume: roundToDecimals(volume, 2),
		}

		price = closePrice
		ts = ts.Add(config.Interval)
	}

	return bars
}

// GenerateFrame is Generate followed by frame.FromBars.
func (g *DataGenerator) GenerateFrame(config GeneratorConfig) *frame.Frame {
	return frame.FromBars(g.Generate(config))
}

// GenerateMultiSymbol generates one series per symbol with slightly different prices and volatility.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) map[string][]types.Bar {
	out := make(map[string][]types.Bar, len(symbols))

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)
		out[symbol] = g.Generate(config)
	}

	return out
}

// StreamBars yields the bars of the given symbols in order, the way a market
// data source does.
func StreamBars(bars map[string][]types.Bar, symbols []string) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		for _, symbol := range symbols {
			for _, bar := range bars[symbol] {
				if !yield(bar, nil) {
					return
				}
			}
		}
	}
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
