package frame

import (
	"math"
	"testing"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type FrameTestSuite struct {
	suite.Suite
	start time.Time
}

func TestFrameSuite(t *testing.T) {
	suite.Run(t, new(FrameTestSuite))
}

func (suite *FrameTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *FrameTestSuite) sample() *Frame {
	f, err := FromColumns(Daily(suite.start, 4), map[string][]float64{
		"close":  {10, 20, 30, 40},
		"volume": {1, 2, 3, 4},
	})
	suite.Require().NoError(err)
	f.FillText("symbol", "AAPL")

	return f
}

func (suite *FrameTestSuite) TestFromBars() {
	bars := []types.Bar{
		{Symbol: "AAPL", Time: suite.start, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Symbol: "AAPL", Time: suite.start.Add(time.Hour), Open: 10.5, High: 12, Low: 10, Close: 11, Volume: 200},
	}

	f := FromBars(bars)
	suite.Equal(2, f.Len())
	suite.Equal(types.BarColumns, f.Columns())
	suite.Equal([]float64{10.5, 11}, f.Float(types.ColumnClose))
	suite.Equal(time.UTC, f.Time(1).Location())
}

func (suite *FrameTestSuite) TestSetFloatLengthMismatch() {
	f := suite.sample()
	err := f.SetFloat("x", []float64{1})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func (suite *FrameTestSuite) TestSetReplacesTypeKeepingOrder() {
	f := suite.sample()
	suite.NoError(f.SetText("close", []string{"a", "b", "c", "d"}))
	suite.True(f.IsText("close"))
	suite.False(f.IsFloat("close"))
	suite.Equal([]string{"close", "volume", "symbol"}, f.Columns())
}

func (suite *FrameTestSuite) TestRenameAndDrop() {
	f := suite.sample()
	f.Rename(map[string]string{"close": "price", "missing": "other"})
	suite.Equal([]string{"price", "volume", "symbol"}, f.Columns())
	suite.Equal([]float64{10, 20, 30, 40}, f.Float("price"))

	f.Drop("volume", "nope")
	suite.Equal([]string{"price", "symbol"}, f.Columns())
}

func (suite *FrameTestSuite) TestRequire() {
	f := suite.sample()
	suite.NoError(f.Require("close", "symbol"))

	err := f.Require("close", "rsi", "atr")
	suite.True(errors.HasCode(err, errors.ErrCodeMissingColumn))
	suite.Contains(err.Error(), "[atr rsi]")
}

func (suite *FrameTestSuite) TestSliceCopies() {
	f := suite.sample()
	s := f.Slice(1, 3)
	suite.Equal(2, s.Len())
	suite.Equal([]float64{20, 30}, s.Float("close"))

	s.Float("close")[0] = 99
	suite.Equal(20.0, f.Float("close")[1])

	suite.Equal(0, f.Slice(5, 9).Len())
	suite.Equal([]float64{30, 40}, f.Tail(2).Float("close"))
	suite.Equal([]float64{10}, f.Head(1).Float("close"))
}

func (suite *FrameTestSuite) TestBetweenIsInclusive() {
	f := suite.sample()
	s := f.Between(suite.start.AddDate(0, 0, 1), suite.start.AddDate(0, 0, 2))
	suite.Equal([]float64{20, 30}, s.Float("close"))
}

func (suite *FrameTestSuite) TestFilter() {
	f := suite.sample()
	s := f.Filter([]bool{true, false, true, false})
	suite.Equal([]float64{10, 30}, s.Float("close"))
	suite.Equal([]string{"AAPL", "AAPL"}, s.Text("symbol"))
}

func (suite *FrameTestSuite) TestConcatFillsMissingColumns() {
	a := suite.sample().Slice(0, 2)
	b := suite.sample().Slice(2, 4)
	b.Drop("volume")

	out, err := Concat(a, nil, b)
	suite.NoError(err)
	suite.Equal(4, out.Len())
	suite.Equal([]float64{10, 20, 30, 40}, out.Float("close"))
	suite.True(math.IsNaN(out.Float("volume")[3]))
	suite.True(out.Equal(out.Clone()))
}

func (suite *FrameTestSuite) TestConcatRejectsTypeChange() {
	a := suite.sample()
	b := suite.sample()
	suite.NoError(b.SetText("close", []string{"a", "b", "c", "d"}))

	_, err := Concat(a, b)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func (suite *FrameTestSuite) TestEqualTreatsNaNAsEqual() {
	a, _ := FromColumns(Daily(suite.start, 2), map[string][]float64{"x": {math.NaN(), 1}})
	b, _ := FromColumns(Daily(suite.start, 2), map[string][]float64{"x": {math.NaN(), 1}})
	suite.True(a.Equal(b))

	suite.NoError(b.SetFloat("x", []float64{0, 1}))
	suite.False(a.Equal(b))
}

func (suite *FrameTestSuite) TestValidateNumeric() {
	tests := []struct {
		name    string
		index   []time.Time
		values  []float64
		wantErr bool
	}{
		{name: "valid", index: Daily(suite.start, 3), values: []float64{1, 2, 3}},
		{name: "empty", index: nil, values: nil, wantErr: true},
		{name: "nan", index: Daily(suite.start, 3), values: []float64{1, math.NaN(), 3}, wantErr: true},
		{name: "inf", index: Daily(suite.start, 3), values: []float64{1, math.Inf(-1), 3}, wantErr: true},
		{name: "extreme", index: Daily(suite.start, 3), values: []float64{1, 1e7, 3}, wantErr: true},
		{
			name:    "duplicate index",
			index:   []time.Time{suite.start, suite.start, suite.start.Add(time.Hour)},
			values:  []float64{1, 2, 3},
			wantErr: true,
		},
		{
			name:    "unsorted index",
			index:   []time.Time{suite.start.Add(time.Hour), suite.start, suite.start.Add(2 * time.Hour)},
			values:  []float64{1, 2, 3},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			f, err := FromColumns(tc.index, map[string][]float64{"close": tc.values})
			suite.Require().NoError(err)

			err = f.ValidateNumeric("close")
			if tc.wantErr {
				suite.True(errors.HasCode(err, errors.ErrCodeInvalidInput), "got %v", err)
			} else {
				suite.NoError(err)
			}
		})
	}
}

func (suite *FrameTestSuite) TestValidateNumericRejectsTextColumn() {
	f := suite.sample()
	err := f.ValidateNumeric("symbol")
	suite.Error(err)
	suite.Contains(err.Error(), "not numeric")
}
