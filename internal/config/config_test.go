package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ashourz/AlgoRoyale-sub003/internal/executor"
	"github.com/ashourz/AlgoRoyale-sub003/internal/portfolio"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/marketdata"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestDefault() {
	c := Default()

	suite.Equal("data", c.DataRoot)
	suite.Equal("1d", c.Timeframe)
	suite.Equal(1, c.Concurrency)
	suite.Equal(marketdata.ProviderFile, c.Source.Provider)
	suite.Equal(stage.FormatParquet, c.Storage.Format)
	suite.Equal(stage.DefaultMaxRowsPerFile, c.Storage.MaxRowsPerFile)
	suite.Equal(walkforward.ModeSliding, c.WalkForward.Windows.Mode)
	suite.Equal(252, c.WalkForward.Windows.TrainSize)
	suite.Equal(50, c.WalkForward.NTrials)
	suite.Equal(0.75, c.Evaluation.ViabilityCutoff)
	suite.Equal(executor.BrokerZero, c.Portfolio.Executor.Broker)
	suite.Equal(252.0, c.Evaluator.PeriodsPerYear)
	suite.True(c.Start.IsNone())
	suite.Len(c.WalkForward.Objectives, 1)
}

func (suite *ConfigTestSuite) TestParseComplete() {
	c, err := Parse([]byte(`
data_root: /tmp/royale
start: 2023-01-02
end: 2024-06-28T00:00:00Z
symbols: [AAPL, MSFT]
timeframe: 1h
source:
  provider: polygon
  api_key: secret
storage:
  max_rows_per_file: 100
  format: csv
strategies: [MomentumStrategy, BreakoutStrategy]
walk_forward:
  windows: {train_size: 120, test_size: 40, step: 20, mode: expanding}
  n_trials: 10
  trial_timeout: 30s
  objectives:
    - {metric: total_return, direction: maximize}
    - {metric: max_drawdown, direction: minimize}
portfolio:
  allocators: [EqualWeight, RiskParity]
  executor: {initial_cash: 50000, min_lot: 0}
concurrency: 4
`))
	suite.Require().NoError(err)

	suite.Equal("/tmp/royale", c.DataRoot)
	suite.True(c.Start.IsSome())
	suite.Equal(time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC), c.Start.Unwrap())
	suite.Equal(time.Date(2024, time.June, 28, 0, 0, 0, 0, time.UTC), c.End.Unwrap())
	suite.Equal([]string{"AAPL", "MSFT"}, c.Symbols)
	suite.Equal(marketdata.ProviderPolygon, c.Source.Provider)
	suite.Equal(stage.FormatCSV, c.Storage.Format)
	suite.Equal(walkforward.ModeExpanding, c.WalkForward.Windows.Mode)
	suite.Equal(30*time.Second, c.WalkForward.TrialTimeout)
	suite.Len(c.WalkForward.Objectives, 2)
	suite.Equal(types.DirectionMinimize, c.WalkForward.Objectives[1].Direction)
	suite.Equal([]portfolio.Kind{portfolio.KindEqualWeight, portfolio.KindRiskParity}, c.Portfolio.Allocators)
	suite.Equal(50000.0, c.Portfolio.Executor.InitialCash)
	suite.Equal(0.0, c.Portfolio.Executor.MinLot)
	suite.Equal(4, c.Concurrency)

	// untouched keys keep their defaults
	suite.Equal(stage.DefaultMaxRowsPerFile, Default().Storage.MaxRowsPerFile)
	suite.Equal(14, c.Features.RSIPeriod)
	suite.Equal(1.0, c.Portfolio.Executor.Leverage)

	start, end := c.DateRange(time.Now())
	suite.Equal(c.Start.Unwrap(), start)
	suite.Equal(c.End.Unwrap(), end)
}

func (suite *ConfigTestSuite) TestParseInvalid() {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "symbols: [AAPL"},
		{name: "no symbols", yaml: "data_root: x"},
		{name: "bad provider", yaml: "symbols: [A]\nsource: {provider: yahoo}"},
		{name: "bad timeframe", yaml: "symbols: [A]\ntimeframe: 2d"},
		{name: "end before start", yaml: "symbols: [A]\nstart: 2024-01-02\nend: 2023-01-02"},
		{name: "unknown strategy", yaml: "symbols: [A]\nstrategies: [Nope]"},
		{name: "unknown allocator", yaml: "symbols: [A]\nportfolio: {allocators: [Nope]}"},
		{name: "bad direction", yaml: "symbols: [A]\nwalk_forward: {objectives: [{metric: x, direction: up}]}"},
		{name: "zero concurrency", yaml: "symbols: [A]\nconcurrency: 0"},
		{name: "bad cutoff", yaml: "symbols: [A]\nevaluation: {viability_cutoff: 2}"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := Parse([]byte(tc.yaml))
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration) ||
				errors.HasCode(err, errors.ErrCodeInvalidTimeframe), err.Error())
		})
	}
}

func (suite *ConfigTestSuite) TestWatchlistAndLoad() {
	dir := suite.T().TempDir()
	watchlist := filepath.Join(dir, "watchlist.txt")
	suite.Require().NoError(os.WriteFile(watchlist, []byte("SPY\nQQQ # index\nSPY\n"), 0o644))

	path := filepath.Join(dir, "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte("watchlist: "+watchlist+"\n"), 0o644))

	c, err := Load(path)
	suite.Require().NoError(err)

	symbols, err := c.ResolveSymbols()
	suite.Require().NoError(err)
	suite.Equal([]string{"SPY", "QQQ"}, symbols)

	now := time.Date(2025, time.March, 3, 15, 30, 0, 0, time.UTC)
	start, end := c.DateRange(now)
	suite.Equal(time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), end)
	suite.Equal(end.Add(-DefaultHistory), start)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestGenerateSchema() {
	schema := GenerateSchema()
	suite.Equal("royale-config", schema.Title)

	data, err := GenerateSchemaJSON()
	suite.Require().NoError(err)

	var result map[string]any
	suite.Require().NoError(json.Unmarshal([]byte(data), &result))
	suite.Equal("royale-config", result["title"])

	properties, ok := result["properties"].(map[string]any)
	suite.Require().True(ok)
	suite.Contains(properties, "walk_forward")

	start, ok := properties["start"].(map[string]any)
	suite.Require().True(ok)
	suite.Equal("date-time", start["format"])
}
