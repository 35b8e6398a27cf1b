package evaluator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type EvaluatorTestSuite struct {
	suite.Suite
	evaluator *Evaluator
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorTestSuite))
}

func (suite *EvaluatorTestSuite) SetupTest() {
	suite.evaluator = New(Config{})
}

func (suite *EvaluatorTestSuite) TestSignalMetrics() {
	trades := []types.Trade{{Return: 0.1}, {Return: -0.05}, {Return: 0.05}}
	returns := []float64{0.1, -0.05, 0.05, 0}

	m, err := suite.evaluator.Signal(trades, returns)
	suite.Require().NoError(err)

	suite.InDelta(1.1*0.95*1.05-1, m[types.MetricTotalReturn], 1e-12)
	suite.InDelta(0.05, m[types.MetricMaxDrawdown], 1e-12)
	suite.InDelta(2.0/3.0, m[types.MetricWinRate], 1e-12)
	suite.InDelta(3.0, m[types.MetricProfitFactor], 1e-12)
	suite.InDelta(0.1/3, m[types.MetricAvgTradeReturn], 1e-12)
	suite.Equal(3.0, m[types.MetricNTrades])
	suite.Greater(m[types.MetricSharpeRatio], 0.0)
	suite.Greater(m[types.MetricSortinoRatio], 0.0)
	suite.NotContains(m, types.MetricCAGR)
}

func (suite *EvaluatorTestSuite) TestDegenerateSeries() {
	tests := []struct {
		name    string
		trades  []types.Trade
		returns []float64
		check   func(types.Metrics)
	}{
		{
			name:    "flat returns have zero sharpe",
			returns: []float64{0.01, 0.01, 0.01},
			check: func(m types.Metrics) {
				suite.Equal(0.0, m[types.MetricSharpeRatio])
				suite.Equal(0.0, m[types.MetricSortinoRatio])
			},
		},
		{
			name:   "no losing trade caps the profit factor",
			trades: []types.Trade{{Return: 0.2}},
			check: func(m types.Metrics) {
				suite.Equal(ProfitFactorCap, m[types.MetricProfitFactor])
			},
		},
		{
			name: "no trades",
			check: func(m types.Metrics) {
				suite.Equal(0.0, m[types.MetricWinRate])
				suite.Equal(0.0, m[types.MetricProfitFactor])
				suite.Equal(0.0, m[types.MetricTotalReturn])
				suite.Equal(0.0, m[types.MetricMaxDrawdown])
			},
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			m, err := suite.evaluator.Signal(tc.trades, tc.returns)
			suite.Require().NoError(err)
			tc.check(m)
		})
	}
}

func (suite *EvaluatorTestSuite) TestMaxDrawdownUsesRunningPeak() {
	// 1 -> 1.2 -> 0.6 -> 0.9 -> 1.35
	suite.InDelta(0.5, MaxDrawdown([]float64{0.2, -0.5, 0.5, 0.5}), 1e-12)
}

func (suite *EvaluatorTestSuite) TestInvalidInputs() {
	_, err := suite.evaluator.Signal(nil, []float64{0.1, math.NaN()})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = suite.evaluator.Portfolio(PortfolioSeries{Values: []float64{1, 2}, Returns: []float64{0}})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = suite.evaluator.Portfolio(PortfolioSeries{})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = suite.evaluator.Portfolio(PortfolioSeries{Values: []float64{math.Inf(1)}, Returns: []float64{0}})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func (suite *EvaluatorTestSuite) TestPortfolioFrameAndSeriesAgree() {
	values := []float64{1010, 1030.2, 1009.596, 1050}
	returns := []float64{0.01, 0.02, -0.02, 1050/1009.596 - 1}

	f, err := frame.FromColumns(frame.Daily(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 4), map[string][]float64{
		ColumnPortfolioValues:  values,
		ColumnPortfolioReturns: returns,
	})
	suite.Require().NoError(err)

	fromFrame, err := suite.evaluator.PortfolioFrame(f)
	suite.Require().NoError(err)
	fromSeries, err := suite.evaluator.Portfolio(PortfolioSeries{Values: values, Returns: returns})
	suite.Require().NoError(err)
	suite.Equal(fromSeries, fromFrame)

	suite.InDelta(0.05, fromFrame[types.MetricTotalReturn], 1e-9)
	suite.InDelta(math.Pow(1.05, 252.0/4)-1, fromFrame[types.MetricCAGR], 1e-6)
	suite.InDelta(0.75, fromFrame[types.MetricWinRate], 1e-12)

	_, err = suite.evaluator.PortfolioFrame(frame.New(nil))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func (suite *EvaluatorTestSuite) TestAnnualisationIsConfigurable() {
	returns := []float64{0.01, -0.005, 0.02, 0.0}
	daily, err := New(Config{}).Signal(nil, returns)
	suite.Require().NoError(err)
	hourly, err := New(Config{PeriodsPerYear: 252 * 4}).Signal(nil, returns)
	suite.Require().NoError(err)

	suite.InDelta(daily[types.MetricSharpeRatio]*2, hourly[types.MetricSharpeRatio], 1e-9)
}
