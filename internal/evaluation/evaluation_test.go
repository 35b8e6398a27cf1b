package evaluation

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ashourz/AlgoRoyale-sub003/internal/executor"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/metrics"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/internal/portfolio"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/mocks"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type EvaluationTestSuite struct {
	suite.Suite
	aggregator *Aggregator
}

func TestEvaluationSuite(t *testing.T) {
	suite.Run(t, new(EvaluationTestSuite))
}

func (suite *EvaluationTestSuite) SetupTest() {
	var err error
	suite.aggregator, err = NewAggregator(DefaultConfig(), nil)
	suite.Require().NoError(err)
}

func windowResults(totalReturns []float64, params []map[string]any) walkforward.Results {
	out := make(walkforward.Results, len(totalReturns))
	for i, r := range totalReturns {
		out[i] = walkforward.WindowResult{
			Window:       types.Window{Index: i},
			Optimization: walkforward.Optimization{BestParams: params[i]},
			Test: walkforward.Test{Metrics: types.Metrics{
				types.MetricTotalReturn: r,
				types.MetricSharpeRatio: 1.2,
				types.MetricWinRate:     0.6,
				types.MetricMaxDrawdown: 0.1,
			}},
		}
	}

	return out
}

func rsi(threshold int) map[string]any {
	return map[string]any{"entry": "RSIBelow", "entry_RSIBelow_threshold": threshold}
}

func (suite *EvaluationTestSuite) TestViabilityAggregation() {
	results := windowResults(
		[]float64{0.10, 0.08, 0.12, 0.06, 0.09},
		[]map[string]any{rsi(30), rsi(30), rsi(25), rsi(30), rsi(30)},
	)

	ev, err := suite.aggregator.EvaluateWindows(results)
	suite.Require().NoError(err)

	suite.Equal(5, ev.NWindows)
	suite.Equal(5, ev.NSucceededWindows)
	suite.Equal(0, ev.NFailedWindows)
	suite.InDelta(1.0, ev.ViabilityScore, 1e-12)
	suite.True(ev.IsViable)
	suite.InDelta(0.8, ev.ParamConsistency, 1e-12)
	suite.Equal(rsi(30), ev.MostCommonBestParams)
	suite.Len(ev.WindowParams, 5)

	s := ev.Summary[types.MetricTotalReturn]
	suite.InDelta(0.09, s.Mean, 1e-12)
	suite.InDelta(0.06, s.Min, 1e-12)
	suite.InDelta(0.12, s.Max, 1e-12)
	suite.InDelta(0.0223606797749979, s.Std, 1e-9)
	suite.Zero(ev.Summary[types.MetricSharpeRatio].Std)
}

func (suite *EvaluationTestSuite) TestViabilityCountsPresentMetricsOnly() {
	tests := []struct {
		name   string
		values map[string]float64
		want   float64
	}{
		{
			name:   "drawdown above bound",
			values: map[string]float64{types.MetricTotalReturn: 0.1, types.MetricSharpeRatio: 1, types.MetricWinRate: 0.6, types.MetricMaxDrawdown: 0.6},
			want:   0.75,
		},
		{
			name:   "two of two",
			values: map[string]float64{types.MetricTotalReturn: 0.1, types.MetricSharpeRatio: 1},
			want:   1,
		},
		{
			name:   "one of two",
			values: map[string]float64{types.MetricTotalReturn: 0.01, types.MetricSharpeRatio: 1},
			want:   0.5,
		},
		{
			name:   "nothing to judge",
			values: map[string]float64{types.MetricNTrades: 4},
			want:   0,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			score := suite.aggregator.Viability(tc.values)
			suite.InDelta(tc.want, score, 1e-12)
			suite.GreaterOrEqual(score, 0.0)
			suite.LessOrEqual(score, 1.0)
		})
	}

	suite.True(suite.aggregator.IsViable(0.75))
	suite.False(suite.aggregator.IsViable(0.5))

	custom, err := NewAggregator(Config{Thresholds: map[string]float64{"sharpe": 2}, ViabilityCutoff: 1}, nil)
	suite.Require().NoError(err)
	suite.InDelta(0.0, custom.Viability(map[string]float64{types.MetricSharpeRatio: 1.5}), 1e-12)

	_, err = NewAggregator(Config{Thresholds: map[string]float64{}, ViabilityCutoff: 2}, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *EvaluationTestSuite) TestFailedWindowsAreExcluded() {
	results := windowResults([]float64{0.1, 0.2, 0.3}, []map[string]any{rsi(30), rsi(25), rsi(25)})
	results[2].Error = "optimization failed"

	ev, err := suite.aggregator.EvaluateWindows(results)
	suite.Require().NoError(err)
	suite.Equal(len(results), ev.NWindows)
	suite.Equal(2, ev.NSucceededWindows)
	suite.Equal(1, ev.NFailedWindows)
	suite.InDelta(0.15, ev.Summary[types.MetricTotalReturn].Mean, 1e-12)
	// tie between the two remaining windows goes to the first
	suite.Equal(rsi(30), ev.MostCommonBestParams)
	suite.InDelta(0.5, ev.ParamConsistency, 1e-12)

	for i := range results {
		results[i].Error = "failed"
	}

	ev, err = suite.aggregator.EvaluateWindows(results)
	suite.Require().NoError(err)
	suite.Equal(len(results), ev.NWindows)
	suite.Equal(len(results), ev.NFailedWindows)
	suite.Zero(ev.NSucceededWindows)
	suite.Zero(ev.ViabilityScore)
	suite.False(ev.IsViable)
	suite.Zero(ev.ParamConsistency)
}

func (suite *EvaluationTestSuite) TestSelectStrategy() {
	evaluations := map[string]StrategyEvaluation{
		"MomentumStrategy":       {ViabilityScore: 0.75, ParamConsistency: 0.4},
		"MeanReversionStrategy":  {ViabilityScore: 1.0, ParamConsistency: 0.2},
		"TrendFollowingStrategy": {ViabilityScore: 1.0, ParamConsistency: 0.6},
		"BreakoutStrategy":       {ViabilityScore: 1.0, ParamConsistency: 0.6},
	}

	summary, err := suite.aggregator.SelectStrategy("AAPL", evaluations)
	suite.Require().NoError(err)
	suite.Equal("BreakoutStrategy", summary.Strategy)
	suite.Equal("AAPL", summary.Symbol)
	suite.Len(summary.Candidates, 4)

	path := filepath.Join(suite.T().TempDir(), "AAPL", SummaryFile)
	suite.Require().NoError(WriteSymbolSummary(path, summary))

	loaded, err := ReadSymbolSummary(path)
	suite.Require().NoError(err)
	suite.Equal(summary.Strategy, loaded.Strategy)
	suite.InDelta(0.6, loaded.ParamConsistency, 1e-12)

	_, err = suite.aggregator.SelectStrategy("AAPL", nil)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func (suite *EvaluationTestSuite) TestEvaluationFileRoundTrip() {
	results := windowResults([]float64{0.1, 0.2}, []map[string]any{rsi(30), rsi(30)})
	ev, err := suite.aggregator.EvaluateWindows(results)
	suite.Require().NoError(err)

	path := filepath.Join(suite.T().TempDir(), EvaluationFile)
	suite.Require().NoError(WriteEvaluation(path, ev))

	loaded, err := ReadEvaluation(path)
	suite.Require().NoError(err)
	suite.Equal(ev.NWindows, loaded.NWindows)
	suite.Equal(ev.Summary, loaded.Summary)
	// numbers come back as float64
	suite.Equal(float64(30), loaded.MostCommonBestParams["entry_RSIBelow_threshold"])
}

func (suite *EvaluationTestSuite) TestExposure() {
	f := frame.New(frame.Daily(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5))
	suite.Require().NoError(f.SetText(types.ColumnEntrySignal, []string{"BUY", "HOLD", "HOLD", "HOLD", "BUY"}))
	suite.Require().NoError(f.SetText(types.ColumnExitSignal, []string{"HOLD", "HOLD", "SELL", "HOLD", "HOLD"}))

	exposure, err := Exposure(f)
	suite.Require().NoError(err)
	suite.Equal([]float64{1, 1, 0, 0, 1}, exposure)

	_, err = Exposure(frame.New(f.Index()))
	suite.True(errors.HasCode(err, errors.ErrCodeSchemaViolation))
}

func (suite *EvaluationTestSuite) TestAlign() {
	days := frame.Daily(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)

	a, err := frame.FromColumns(days, map[string][]float64{types.ColumnClose: {1, 2, 3, 4, 5}})
	suite.Require().NoError(err)
	b, err := frame.FromColumns(days[1:4], map[string][]float64{types.ColumnClose: {20, 30, 40}})
	suite.Require().NoError(err)

	aligned, err := Align(map[string]*frame.Frame{"A": a, "B": b}, types.ColumnClose)
	suite.Require().NoError(err)
	suite.Equal([]string{"A", "B"}, aligned.Columns())
	suite.Equal(days[1:4], aligned.Index())
	suite.Equal([]float64{2, 3, 4}, aligned.Float("A"))
	suite.Equal([]float64{20, 30, 40}, aligned.Float("B"))

	_, err = Align(map[string]*frame.Frame{"A": a}, "missing")
	suite.True(errors.HasCode(err, errors.ErrCodeSchemaViolation))
}

func (suite *EvaluationTestSuite) TestEvaluatePortfolio() {
	config := mocks.DefaultConfig()
	config.Count = 120
	universe := mocks.NewDataGenerator(4).GenerateMultiSymbol([]string{"AAPL", "MSFT", "NVDA"}, config)

	closes := map[string]*frame.Frame{}
	exposures := map[string]*frame.Frame{}
	selections := map[string]SymbolSummary{}
	for symbol, bars := range universe {
		f := frame.FromBars(bars)
		closes[symbol] = f

		e := frame.New(f.Index())
		ones := make([]float64, f.Len())
		for i := range ones {
			ones[i] = 1
		}
		suite.Require().NoError(e.SetFloat(ColumnExposure, ones))
		exposures[symbol] = e

		selections[symbol] = SymbolSummary{
			Symbol:             symbol,
			Strategy:           "MomentumStrategy",
			StrategyEvaluation: StrategyEvaluation{ViabilityScore: 0.75},
		}
	}

	prices, err := Align(closes, types.ColumnClose)
	suite.Require().NoError(err)
	exposure, err := Align(exposures, ColumnExposure)
	suite.Require().NoError(err)

	recorder := metrics.New()
	summary, evaluations, err := suite.aggregator.EvaluatePortfolio(context.Background(), selections,
		PortfolioInput{Prices: prices, Exposure: exposure},
		PortfolioConfig{
			Allocators: []portfolio.Kind{portfolio.KindEqualWeight, portfolio.KindInverseVolatility},
			Executor:   executor.PortfolioConfig{InitialCash: 100000, MinLot: 1, Leverage: 1},
		},
		allocatorWalkForward(types.MetricSharpeRatio, 3),
		nil, recorder)
	suite.Require().NoError(err)
	suite.Len(evaluations, 2)
	suite.Len(summary, 3)

	total := 0.0
	for symbol, allocation := range summary {
		suite.Equal("MomentumStrategy", allocation.RecommendedStrategy, symbol)
		suite.InDelta(0.75, allocation.ViabilityScore, 1e-12)
		suite.Contains([]any{"EqualWeight", "InverseVolatility"}, allocation.AllocationParams["allocator"])
		total += allocation.AllocationParams["mean_weight"].(float64)
	}

	suite.LessOrEqual(total, 1+1e-9)
	suite.Greater(total, 0.0)

	for _, e := range evaluations {
		suite.Empty(e.Error)
		suite.Contains(e.Metrics, types.MetricCAGR)
		suite.Equal(3, e.NWindows)
		suite.Len(e.Windows, 3)
		suite.Equal(3, e.NSucceededWindows)
		suite.Greater(e.ParamConsistency, 0.0)
		suite.LessOrEqual(e.ParamConsistency, 1.0)

		for _, w := range e.Windows {
			suite.Empty(w.Error)
			suite.Contains(w.Test, types.MetricSharpeRatio)
		}
	}

	suite.Empty(evaluations[0].Params)
	suite.Contains(evaluations[1].Params, "window")
	suite.Contains(evaluations[1].Windows[0].BestParams, "window")

	path := filepath.Join(suite.T().TempDir(), SummaryFile)
	suite.Require().NoError(WritePortfolioSummary(path, summary))
	loaded, err := ReadPortfolioSummary(path)
	suite.Require().NoError(err)
	suite.Len(loaded, 3)

	_, _, err = suite.aggregator.EvaluatePortfolio(context.Background(), nil, PortfolioInput{Prices: prices},
		PortfolioConfig{}, walkforward.Config{}, nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func allocatorWalkForward(metric string, nTrials int) walkforward.Config {
	return walkforward.Config{
		Windows:    walkforward.WindowConfig{TrainSize: 60, TestSize: 20, Step: 20, Mode: walkforward.ModeSliding},
		NTrials:    nTrials,
		Objectives: []optimizer.Objective{{Metric: metric, Direction: types.DirectionMaximize}},
		Seed:       11,
	}
}

// falling builds a universe whose prices lose a fixed share every day.
func (suite *EvaluationTestSuite) falling(n int, start map[string]float64) *frame.Frame {
	days := frame.Daily(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), n)
	columns := make(map[string][]float64, len(start))
	for symbol, p := range start {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = p * math.Pow(0.99, float64(i))
		}
		columns[symbol] = closes
	}

	prices, err := frame.FromColumns(days, columns)
	suite.Require().NoError(err)

	return prices
}

func (suite *EvaluationTestSuite) TestAllocatorParamsAreOptimised() {
	prices := suite.falling(120, map[string]float64{"AAA": 100, "BBB": 50})
	selections := map[string]SymbolSummary{
		"AAA": {Symbol: "AAA", Strategy: "MomentumStrategy"},
		"BBB": {Symbol: "BBB", Strategy: "MeanReversionStrategy"},
	}

	fallback, err := portfolio.Default(portfolio.KindWinnerTakesAll)
	suite.Require().NoError(err)
	suite.Equal(0, fallback.Params().Map()["cash_at_day_end"])

	summary, evaluations, err := suite.aggregator.EvaluatePortfolio(context.Background(), selections,
		PortfolioInput{Prices: prices},
		PortfolioConfig{
			Allocators: []portfolio.Kind{portfolio.KindWinnerTakesAll},
			Executor:   executor.PortfolioConfig{InitialCash: 100000, MinLot: 1, Leverage: 1},
		},
		allocatorWalkForward(types.MetricTotalReturn, 16),
		nil, metrics.New())
	suite.Require().NoError(err)
	suite.Require().Len(evaluations, 1)

	// daily rows all end a day, so holding cash at day end never invests
	e := evaluations[0]
	suite.Equal(3, e.NWindows)
	suite.Equal(3, e.NSucceededWindows)
	suite.InDelta(1.0, e.ParamConsistency, 1e-12)
	suite.Equal(map[string]any{"cash_at_day_end": 1}, e.Params)
	suite.InDelta(0.0, e.MeanWeights["AAA"], 1e-12)

	for _, w := range e.Windows {
		suite.Equal(map[string]any{"cash_at_day_end": 1}, w.BestParams, w.Window)
		suite.InDelta(0.0, w.Test[types.MetricTotalReturn], 1e-12, w.Window)
	}

	for symbol, allocation := range summary {
		suite.Equal("WinnerTakesAll", allocation.AllocationParams["allocator"], symbol)
		suite.Equal(1, allocation.AllocationParams["cash_at_day_end"], symbol)
	}
}

func (suite *EvaluationTestSuite) TestPortfolioNeedsWindowAndTrials() {
	prices := suite.falling(50, map[string]float64{"AAA": 100})
	selections := map[string]SymbolSummary{"AAA": {Symbol: "AAA", Strategy: "MomentumStrategy"}}
	config := PortfolioConfig{
		Allocators: []portfolio.Kind{portfolio.KindEqualWeight},
		Executor:   executor.PortfolioConfig{InitialCash: 100000},
	}

	_, _, err := suite.aggregator.EvaluatePortfolio(context.Background(), selections,
		PortfolioInput{Prices: prices}, config, allocatorWalkForward(types.MetricSharpeRatio, 2), nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidWindow))

	_, _, err = suite.aggregator.EvaluatePortfolio(context.Background(), selections,
		PortfolioInput{Prices: prices}, config, allocatorWalkForward(types.MetricSharpeRatio, 0), nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}
