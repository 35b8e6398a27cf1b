// Package evaluator turns trade ledgers and return series into metric
// dictionaries.
package evaluator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

const (
	// DefaultPeriodsPerYear annualises daily bars.
	DefaultPeriodsPerYear = 252
	// ProfitFactorCap replaces an infinite profit factor (no losing trades).
	ProfitFactorCap = 100.0

	ColumnPortfolioValues  = "portfolio_values"
	ColumnPortfolioReturns = "portfolio_returns"
)

type Config struct {
	PeriodsPerYear float64 `yaml:"periods_per_year" json:"periods_per_year" default:"252" validate:"gt=0"`
}

type Evaluator struct {
	periodsPerYear float64
}

func New(cfg Config) *Evaluator {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}

	return &Evaluator{periodsPerYear: cfg.PeriodsPerYear}
}

// Signal computes the signal metric set from closed trades and per-bar
// strategy returns.
func (e *Evaluator) Signal(trades []types.Trade, returns []float64) (types.Metrics, error) {
	if err := frame.ValidateValues("returns", returns); err != nil {
		return nil, err
	}

	tradeReturns := make([]float64, len(trades))
	for i, t := range trades {
		tradeReturns[i] = t.Return
	}

	if err := frame.ValidateValues("trade returns", tradeReturns); err != nil {
		return nil, err
	}

	m := e.returnMetrics(returns)
	m[types.MetricWinRate] = winRate(tradeReturns)
	m[types.MetricProfitFactor] = profitFactor(tradeReturns)
	m[types.MetricAvgTradeReturn] = mean(tradeReturns)
	m[types.MetricNTrades] = float64(len(trades))

	return m, nil
}

// PortfolioSeries is the value and return path of a simulated portfolio.
type PortfolioSeries struct {
	Index   []time.Time
	Values  []float64
	Returns []float64
	// Transactions is reported as n_trades.
	Transactions int
}

// Portfolio computes the signal metric set plus cagr. Win rate and average
// trade return are taken over the periods with a non-zero return.
func (e *Evaluator) Portfolio(series PortfolioSeries) (types.Metrics, error) {
	if len(series.Values) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "portfolio series is empty")
	}

	if len(series.Values) != len(series.Returns) {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "portfolio has %d values but %d returns",
			len(series.Values), len(series.Returns))
	}

	if err := validateFinite(ColumnPortfolioValues, series.Values); err != nil {
		return nil, err
	}

	if err := validateFinite(ColumnPortfolioReturns, series.Returns); err != nil {
		return nil, err
	}

	active := make([]float64, 0, len(series.Returns))
	for _, r := range series.Returns {
		if r != 0 {
			active = append(active, r)
		}
	}

	m := e.returnMetrics(series.Returns)
	m[types.MetricWinRate] = winRate(active)
	m[types.MetricProfitFactor] = profitFactor(active)
	m[types.MetricAvgTradeReturn] = mean(active)
	m[types.MetricNTrades] = float64(series.Transactions)
	m[types.MetricCAGR] = e.cagr(series.Returns)

	return m, nil
}

// PortfolioFrame evaluates a frame holding portfolio_values and portfolio_returns.
func (e *Evaluator) PortfolioFrame(f *frame.Frame) (types.Metrics, error) {
	if f == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "portfolio frame is nil")
	}

	if err := f.Require(ColumnPortfolioValues, ColumnPortfolioReturns); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, "portfolio frame is incomplete", err)
	}

	return e.Portfolio(PortfolioSeries{
		Index:   f.Index(),
		Values:  f.Float(ColumnPortfolioValues),
		Returns: f.Float(ColumnPortfolioReturns),
	})
}

// validateFinite rejects NaN and infinities. Portfolio values are money and
// may exceed the magnitude bound applied to raw inputs.
func validateFinite(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf(errors.ErrCodeInvalidInput, "%s has invalid value %v at row %d", name, v, i)
		}
	}

	return nil
}

func (e *Evaluator) returnMetrics(returns []float64) types.Metrics {
	return types.Metrics{
		types.MetricTotalReturn:  totalReturn(returns),
		types.MetricSharpeRatio:  e.sharpe(returns),
		types.MetricSortinoRatio: e.sortino(returns),
		types.MetricMaxDrawdown:  MaxDrawdown(returns),
	}
}

func totalReturn(returns []float64) float64 {
	return equity(returns)[len(returns)] - 1
}

// equity is the compounded curve starting at 1, one point longer than returns.
func equity(returns []float64) []float64 {
	curve := make([]float64, len(returns)+1)
	curve[0] = 1
	for i, r := range returns {
		curve[i+1] = curve[i] * (1 + r)
	}

	return curve
}

func (e *Evaluator) sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mu, sd := stat.MeanStdDev(returns, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}

	return mu / sd * math.Sqrt(e.periodsPerYear)
}

func (e *Evaluator) sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	downside := make([]float64, len(returns))
	for i, r := range returns {
		downside[i] = math.Min(r, 0)
	}

	dd := math.Sqrt(floats.Dot(downside, downside) / float64(len(returns)))
	if dd == 0 {
		return 0
	}

	return stat.Mean(returns, nil) / dd * math.Sqrt(e.periodsPerYear)
}

// MaxDrawdown is the largest peak-to-trough loss of the compounded curve,
// as a positive fraction.
func MaxDrawdown(returns []float64) float64 {
	curve := equity(returns)
	peak, worst := curve[0], 0.0
	for _, v := range curve {
		peak = math.Max(peak, v)
		if peak > 0 {
			worst = math.Max(worst, 1-v/peak)
		}
	}

	return worst
}

func (e *Evaluator) cagr(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	final := equity(returns)[len(returns)]
	if final <= 0 {
		return -1
	}

	return math.Pow(final, e.periodsPerYear/float64(len(returns))) - 1
}

func winRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}

	return float64(wins) / float64(len(returns))
}

func profitFactor(returns []float64) float64 {
	var gains, losses float64
	for _, r := range returns {
		if r > 0 {
			gains += r
		} else {
			losses -= r
		}
	}

	switch {
	case losses == 0 && gains > 0:
		return ProfitFactorCap
	case losses == 0:
		return 0
	default:
		return math.Min(gains/losses, ProfitFactorCap)
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	return stat.Mean(values, nil)
}
