package portfolio

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type PortfolioTestSuite struct {
	suite.Suite
	start time.Time
}

func TestPortfolioSuite(t *testing.T) {
	suite.Run(t, new(PortfolioTestSuite))
}

func (suite *PortfolioTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *PortfolioTestSuite) frameOf(columns map[string][]float64) *frame.Frame {
	var n int
	for _, v := range columns {
		n = len(v)
	}

	f, err := frame.FromColumns(frame.Daily(suite.start, n), columns)
	suite.Require().NoError(err)

	return f
}

// pattern repeats unit with the given scale and drift for n rows.
func pattern(n int, unit []float64, scale, drift float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = drift + scale*unit[i%len(unit)]
	}

	return out
}

// two uncorrelated zero-mean assets, B twice as volatile as A
func (suite *PortfolioTestSuite) uncorrelated(n int, driftA, driftB float64) *frame.Frame {
	return suite.frameOf(map[string][]float64{
		"A": pattern(n, []float64{1, -1}, 0.01, driftA),
		"B": pattern(n, []float64{1, 1, -1, -1}, 0.02, driftB),
	})
}

func (suite *PortfolioTestSuite) assertRows(alloc Allocation) {
	w := alloc.Weights
	for i := 0; i < w.Len(); i++ {
		sum := 0.0
		for _, a := range w.Columns() {
			v := w.Float(a)[i]
			suite.GreaterOrEqual(v, -1e-8)
			sum += v
		}

		suite.True(math.Abs(sum) < 1e-6 || math.Abs(sum-1) < 1e-6, "row %d sums to %v", i, sum)
	}
}

func (suite *PortfolioTestSuite) TestRowsSumToZeroOrOne() {
	rng := rand.New(rand.NewPCG(3, 4))
	n := 90
	returns := map[string][]float64{}
	signals := map[string][]float64{}
	for _, a := range []string{"AAPL", "MSFT", "NVDA", "XOM"} {
		r := make([]float64, n)
		s := make([]float64, n)
		for i := range r {
			r[i] = 0.0005 + 0.015*rng.NormFloat64()
			s[i] = math.Max(rng.Float64()-0.3, 0)
		}

		r[0] = math.NaN()
		returns[a] = r
		signals[a] = s
	}

	ret := suite.frameOf(returns)
	sig := suite.frameOf(signals)

	for _, kind := range Kinds() {
		suite.Run(string(kind), func() {
			allocator, err := Default(kind)
			suite.Require().NoError(err)

			for _, s := range []*frame.Frame{nil, sig} {
				alloc, err := allocator.Allocate(s, ret)
				suite.Require().NoError(err)
				suite.Equal(ret.Index(), alloc.Weights.Index())
				suite.Equal(ret.Columns(), alloc.Weights.Columns())
				suite.assertRows(alloc)
			}
		})
	}
}

func (suite *PortfolioTestSuite) TestEqualWeight() {
	ret := suite.frameOf(map[string][]float64{"A": {0, 0}, "B": {0, 0}, "C": {0, 0}})
	sig := suite.frameOf(map[string][]float64{"A": {1, 0}, "B": {0, 0}, "C": {2, 0}})

	alloc, err := EqualWeight{}.Allocate(sig, ret)
	suite.Require().NoError(err)
	suite.Equal([]float64{0.5, 0}, alloc.Weights.Float("A"))
	suite.Equal([]float64{0, 0}, alloc.Weights.Float("B"))
	suite.Equal([]float64{0.5, 0}, alloc.Weights.Float("C"))
	suite.Empty(alloc.Failures)
}

func (suite *PortfolioTestSuite) TestVolatilityWeights() {
	ret := suite.uncorrelated(24, 0, 0)

	inverse, err := NewInverseVolatility(8)
	suite.Require().NoError(err)
	alloc, err := inverse.Allocate(nil, ret)
	suite.Require().NoError(err)

	// warm-up rows hold cash
	suite.Equal(0.0, alloc.Weights.Float("A")[6])
	suite.InDelta(2.0/3, alloc.Weights.Float("A")[7], 1e-9)
	suite.InDelta(1.0/3, alloc.Weights.Float("B")[23], 1e-9)

	direct, err := NewVolatilityWeighted(8, false)
	suite.Require().NoError(err)
	alloc, err = direct.Allocate(nil, ret)
	suite.Require().NoError(err)
	suite.InDelta(1.0/3, alloc.Weights.Float("A")[10], 1e-9)
	suite.InDelta(2.0/3, alloc.Weights.Float("B")[10], 1e-9)
}

func (suite *PortfolioTestSuite) TestMomentum() {
	ret := suite.frameOf(map[string][]float64{
		"A": pattern(10, []float64{1}, 0.01, 0),
		"B": pattern(10, []float64{-1}, 0.01, 0),
		"C": pattern(10, []float64{1}, 0.03, 0),
	})

	m, err := NewMomentum(5)
	suite.Require().NoError(err)
	alloc, err := m.Allocate(nil, ret)
	suite.Require().NoError(err)

	a := math.Pow(1.01, 5) - 1
	c := math.Pow(1.03, 5) - 1
	suite.InDelta(a/(a+c), alloc.Weights.Float("A")[9], 1e-12)
	suite.Equal(0.0, alloc.Weights.Float("B")[9])
	suite.InDelta(c/(a+c), alloc.Weights.Float("C")[9], 1e-12)
}

func (suite *PortfolioTestSuite) TestCovarianceAllocators() {
	ret := suite.uncorrelated(40, 0, 0)

	minVar, err := NewMinimumVariance(20)
	suite.Require().NoError(err)
	alloc, err := minVar.Allocate(nil, ret)
	suite.Require().NoError(err)
	suite.Empty(alloc.Failures)
	// weights proportional to 1/variance
	suite.InDelta(0.8, alloc.Weights.Float("A")[30], 1e-6)
	suite.InDelta(0.2, alloc.Weights.Float("B")[30], 1e-6)

	meanVar, err := NewMeanVariance(20, 0)
	suite.Require().NoError(err)
	same, err := meanVar.Allocate(nil, ret)
	suite.Require().NoError(err)
	suite.InDeltaSlice(alloc.Weights.Float("A"), same.Weights.Float("A"), 1e-6)

	erc, err := NewRiskParity(20)
	suite.Require().NoError(err)
	alloc, err = erc.Allocate(nil, ret)
	suite.Require().NoError(err)
	suite.Empty(alloc.Failures)
	// uncorrelated assets: proportional to 1/volatility
	suite.InDelta(2.0/3, alloc.Weights.Float("A")[25], 1e-6)
	suite.InDelta(1.0/3, alloc.Weights.Float("B")[25], 1e-6)
}

func (suite *PortfolioTestSuite) TestMeanVariancePrefersReturn() {
	ret := suite.uncorrelated(40, 0, 0.01)

	meanVar, err := NewMeanVariance(20, 5)
	suite.Require().NoError(err)
	alloc, err := meanVar.Allocate(nil, ret)
	suite.Require().NoError(err)
	suite.Greater(alloc.Weights.Float("B")[30], 0.2)
}

func (suite *PortfolioTestSuite) TestMaxSharpe() {
	ret := suite.uncorrelated(40, 0.001, 0.002)

	ms, err := NewMaxSharpe(20, 0)
	suite.Require().NoError(err)
	alloc, err := ms.Allocate(nil, ret)
	suite.Require().NoError(err)
	suite.Empty(alloc.Failures)
	// tangency of uncorrelated assets is proportional to mu/variance
	suite.InDelta(2.0/3, alloc.Weights.Float("A")[30], 1e-4)
	suite.InDelta(1.0/3, alloc.Weights.Float("B")[30], 1e-4)
}

func (suite *PortfolioTestSuite) TestFailuresEmitZeros() {
	losing := suite.uncorrelated(30, -0.005, -0.01)
	ms, err := NewMaxSharpe(20, 0)
	suite.Require().NoError(err)
	alloc, err := ms.Allocate(nil, losing)
	suite.Require().NoError(err)
	suite.Len(alloc.Failures, 11)
	suite.True(errors.HasCode(alloc.Failures[0].Err, errors.ErrCodeOptimizationFailure))
	suite.Equal(19, alloc.Failures[0].Row)
	suite.assertRows(alloc)
	suite.Equal(0.0, alloc.Weights.Float("A")[25])

	flat := suite.frameOf(map[string][]float64{"A": make([]float64, 25), "B": make([]float64, 25)})
	for _, kind := range []Kind{KindMinimumVariance, KindRiskParity, KindMaxSharpe} {
		allocator, err := Default(kind)
		suite.Require().NoError(err)

		alloc, err := allocator.Allocate(nil, flat)
		suite.Require().NoError(err, kind)
		suite.Len(alloc.Failures, 6, kind)
		suite.Equal(make([]float64, 25), alloc.Weights.Float("B"), kind)
	}
}

func (suite *PortfolioTestSuite) TestWinnerTakesAll() {
	var index []time.Time
	for day := 0; day < 2; day++ {
		for hour := 0; hour < 3; hour++ {
			index = append(index, suite.start.AddDate(0, 0, day).Add(time.Duration(14+hour)*time.Hour))
		}
	}

	ret, err := frame.FromColumns(index, map[string][]float64{"A": make([]float64, 6), "B": make([]float64, 6)})
	suite.Require().NoError(err)
	sig, err := frame.FromColumns(index, map[string][]float64{
		"A": {0.2, 0.9, 0.5, 0.5, 0, 0.1},
		"B": {0.5, 0.1, 0.5, 0.4, 0, 0.3},
	})
	suite.Require().NoError(err)

	alloc, err := (&WinnerTakesAll{}).Allocate(sig, ret)
	suite.Require().NoError(err)
	suite.Equal([]float64{0, 1, 1, 1, 0, 0}, alloc.Weights.Float("A"))
	suite.Equal([]float64{1, 0, 0, 0, 0, 1}, alloc.Weights.Float("B"))

	alloc, err = (&WinnerTakesAll{CashAtDayEnd: true}).Allocate(sig, ret)
	suite.Require().NoError(err)
	suite.Equal([]float64{0, 1, 0, 1, 0, 0}, alloc.Weights.Float("A"))
	suite.Equal([]float64{1, 0, 0, 0, 0, 0}, alloc.Weights.Float("B"))
}

func (suite *PortfolioTestSuite) TestInvalidInput() {
	good := suite.frameOf(map[string][]float64{"A": {0.01, 0.02}})

	_, err := EqualWeight{}.Allocate(nil, suite.frameOf(map[string][]float64{"A": {0.01, math.Inf(1)}}))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = EqualWeight{}.Allocate(nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = EqualWeight{}.Allocate(suite.frameOf(map[string][]float64{"B": {1, 1}}), good)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	shifted, err := frame.FromColumns(frame.Daily(suite.start.AddDate(0, 0, 1), 2), map[string][]float64{"A": {1, 1}})
	suite.Require().NoError(err)
	_, err = EqualWeight{}.Allocate(shifted, good)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	text := good.Clone()
	suite.Require().NoError(text.SetText("A", []string{"x", "y"}))
	_, err = EqualWeight{}.Allocate(nil, text)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = NewMinimumVariance(1)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *PortfolioTestSuite) TestRegistry() {
	suite.Len(Kinds(), 9)
	suite.Equal(KindEqualWeight, Kinds()[0])

	_, err := Get("Nope")
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedStrategy))

	counts := map[Kind]int{
		KindEqualWeight:        1,
		KindInverseVolatility:  6,
		KindVolatilityWeighted: 12,
		KindMeanVariance:       30,
		KindWinnerTakesAll:     2,
	}
	for kind, want := range counts {
		spec, err := Get(kind)
		suite.Require().NoError(err)
		suite.Len(spec.AllPossible(), want, kind)
	}

	spec, err := Get(KindMeanVariance)
	suite.Require().NoError(err)

	drawn, err := spec.Suggest(optimizer.NewStudy(nil, optimizer.NewRandomSampler(1)).Ask(), "alloc_")
	suite.Require().NoError(err)

	values := map[string]float64{}
	for _, p := range drawn.Params() {
		values[p.Name] = p.Value
	}

	rebuilt, err := spec.Build(values)
	suite.Require().NoError(err)
	suite.Equal(drawn.ID(), rebuilt.ID())

	_, err = spec.Build(map[string]float64{"window": 20})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	fixed, err := spec.Suggest(optimizer.NewFixedTrial(map[string]any{"alloc_window": 40.0, "alloc_risk_aversion": 2.5}), "alloc_")
	suite.Require().NoError(err)
	suite.Equal("MeanVariance(window=40,risk_aversion=2.5)", fixed.ID())
}
