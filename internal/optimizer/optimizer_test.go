package optimizer

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type OptimizerTestSuite struct {
	suite.Suite
	df *frame.Frame
}

func TestOptimizerSuite(t *testing.T) {
	suite.Run(t, new(OptimizerTestSuite))
}

func (suite *OptimizerTestSuite) SetupTest() {
	suite.df = frame.New(frame.Daily(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), 5))
}

type point struct {
	X int
	Y float64
}

func suggestPoint(trial Trial) (point, error) {
	return point{
		X: trial.SuggestInt("x", 0, 10, 1),
		Y: trial.SuggestFloat("y", 0, 1, 0.1),
	}, nil
}

func scorePoint(_ context.Context, p point, _ *frame.Frame) (types.Metrics, error) {
	return types.Metrics{
		"score": -math.Pow(float64(p.X)-3, 2) - p.Y,
		"risk":  float64(p.X),
	}, nil
}

func (suite *OptimizerTestSuite) newOptimizer(backtest BacktestFunc[point], objectives []Objective, timeout time.Duration) *Optimizer[point] {
	o, err := New(suggestPoint, backtest, Options{Objectives: objectives, Seed: 42, TrialTimeout: timeout})
	suite.Require().NoError(err)

	return o
}

func (suite *OptimizerTestSuite) TestBestIsBestRecordedTrial() {
	o := suite.newOptimizer(scorePoint, []Objective{{Metric: "score", Direction: types.DirectionMaximize}}, 0)

	res, err := o.Optimize(context.Background(), "AAPL", suite.df, 40)
	suite.Require().NoError(err)
	suite.Len(res.Trials, 40)
	suite.Empty(res.ParetoFront)

	for _, t := range res.Trials {
		suite.LessOrEqual(t.Values[0], res.BestValue)
	}

	suite.Equal(res.Metrics["score"], res.BestValue)
	suite.Contains(res.BestParams, "x")
	suite.Contains(res.BestParams, "y")
}

func (suite *OptimizerTestSuite) TestSameSeedSameTrials() {
	objectives := []Objective{{Metric: "score", Direction: types.DirectionMaximize}}
	first, err := suite.newOptimizer(scorePoint, objectives, 0).Optimize(context.Background(), "AAPL", suite.df, 15)
	suite.Require().NoError(err)
	second, err := suite.newOptimizer(scorePoint, objectives, 0).Optimize(context.Background(), "AAPL", suite.df, 15)
	suite.Require().NoError(err)

	for i := range first.Trials {
		suite.Equal(first.Trials[i].Params, second.Trials[i].Params)
	}

	suite.Equal(first.BestParams, second.BestParams)
}

func (suite *OptimizerTestSuite) TestFailuresScoreWorst() {
	calls := 0
	backtest := func(ctx context.Context, p point, df *frame.Frame) (types.Metrics, error) {
		calls++
		switch calls % 3 {
		case 0:
			return nil, errors.New(errors.ErrCodeInvalidInput, "boom")
		case 1:
			return types.Metrics{"score": math.NaN()}, nil
		default:
			return scorePoint(ctx, p, df)
		}
	}

	o := suite.newOptimizer(backtest, []Objective{{Metric: "score", Direction: types.DirectionMinimize}}, 0)
	res, err := o.Optimize(context.Background(), "AAPL", suite.df, 9)
	suite.Require().NoError(err)

	failed := 0
	for _, t := range res.Trials {
		if t.State == TrialFailed || math.IsNaN(t.Metrics.Get("score")) {
			suite.Equal(math.Inf(1), t.Values[0])
			failed++
		}
	}

	suite.Equal(6, failed)
	suite.False(math.IsInf(res.BestValue, 0))
}

func (suite *OptimizerTestSuite) TestAllTrialsFailing() {
	backtest := func(context.Context, point, *frame.Frame) (types.Metrics, error) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no data")
	}

	o := suite.newOptimizer(backtest, []Objective{{Metric: types.MetricSharpeRatio, Direction: types.DirectionMaximize}}, 0)

	res, err := o.Optimize(context.Background(), "AAPL", suite.df, 3)
	suite.True(errors.HasCode(err, errors.ErrCodeOptimizationFailure))
	suite.Equal(math.Inf(-1), res.Metrics[types.MetricSharpeRatio])
	suite.NotNil(res.BestParams)
}

func (suite *OptimizerTestSuite) TestTrialTimeout() {
	backtest := func(ctx context.Context, p point, df *frame.Frame) (types.Metrics, error) {
		if p.X%2 == 0 {
			<-ctx.Done()
			return nil, ctx.Err()
		}

		return scorePoint(ctx, p, df)
	}

	o := suite.newOptimizer(backtest, []Objective{{Metric: "score", Direction: types.DirectionMaximize}}, 20*time.Millisecond)
	res, err := o.Optimize(context.Background(), "AAPL", suite.df, 10)
	suite.Require().NoError(err)

	for _, t := range res.Trials {
		if t.Params["x"].(int)%2 == 0 {
			suite.Equal(TrialTimeout, t.State)
			suite.Equal(math.Inf(-1), t.Values[0])
		} else {
			suite.Equal(TrialComplete, t.State)
		}
	}
}

func (suite *OptimizerTestSuite) TestCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := suite.newOptimizer(scorePoint, []Objective{{Metric: "score", Direction: types.DirectionMaximize}}, 0)
	_, err := o.Optimize(ctx, "AAPL", suite.df, 5)
	suite.True(errors.HasCode(err, errors.ErrCodeCancellationRequested))
	suite.Equal("cancelled", errors.Kind(err))
}

func (suite *OptimizerTestSuite) TestParetoFront() {
	objectives, err := NewObjectives([]string{"score", "risk"}, []types.Direction{types.DirectionMaximize, types.DirectionMinimize})
	suite.Require().NoError(err)

	o := suite.newOptimizer(scorePoint, objectives, 0)
	res, err := o.Optimize(context.Background(), "AAPL", suite.df, 30)
	suite.Require().NoError(err)
	suite.NotEmpty(res.ParetoFront)

	study := &Study{objectives: objectives}
	for _, member := range res.ParetoFront {
		values := []float64{member.Metrics["score"], member.Metrics["risk"]}
		for _, t := range res.Trials {
			suite.False(study.dominates(t.Values, values), "front member is dominated")
		}
	}

	// best_params is the front member best on the first objective
	best := math.Inf(-1)
	for _, member := range res.ParetoFront {
		best = math.Max(best, member.Metrics["score"])
	}

	suite.Equal(best, res.BestValue)
}

func (suite *OptimizerTestSuite) TestNewObjectives() {
	objectives, err := NewObjectives([]string{"sharpe", "max_drawdown"}, []types.Direction{types.DirectionMaximize})
	suite.Require().NoError(err)
	suite.Equal(types.MetricSharpeRatio, objectives[0].Metric)
	suite.Equal(types.DirectionMaximize, objectives[1].Direction)

	_, err = NewObjectives([]string{"a", "b", "c"}, []types.Direction{types.DirectionMaximize, types.DirectionMinimize})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	_, err = NewObjectives([]string{"a"}, []types.Direction{"up"})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *OptimizerTestSuite) TestFixedTrialReplaysJSON() {
	var params map[string]any
	suite.Require().NoError(json.Unmarshal([]byte(`{"x": 4, "y": 0.3, "kind": "RSIBelow"}`), &params))

	trial := NewFixedTrial(params)
	p, err := suggestPoint(trial)
	suite.Require().NoError(err)
	suite.Equal(point{X: 4, Y: 0.3}, p)
	suite.Equal("RSIBelow", trial.SuggestCategorical("kind", []string{"RSIAbove", "RSIBelow"}))
	suite.NoError(trial.Err())

	trial.SuggestInt("missing", 1, 2, 1)
	suite.True(errors.HasCode(trial.Err(), errors.ErrCodeInvalidParameter))
}

func (suite *OptimizerTestSuite) TestSamplerRespectsGrid() {
	s := NewRandomSampler(7)
	for i := 0; i < 200; i++ {
		v := s.SampleFloat("f", 0.01, 0.05, 0.01)
		suite.GreaterOrEqual(v, 0.01)
		suite.LessOrEqual(v, 0.05)
		suite.Equal(v, RoundStep(math.Round(v/0.01)*0.01))

		n := s.SampleInt("n", 10, 30, 10)
		suite.Contains([]int{10, 20, 30}, n)
	}
}
