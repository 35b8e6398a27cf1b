package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ashourz/AlgoRoyale-sub003/internal/config"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/strategy"
	"github.com/ashourz/AlgoRoyale-sub003/mocks"
)

type RoyaleCmdTestSuite struct {
	suite.Suite
	dir string
}

func TestRoyaleCmdSuite(t *testing.T) {
	suite.Run(t, new(RoyaleCmdTestSuite))
}

func (suite *RoyaleCmdTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func (suite *RoyaleCmdTestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	err := app.Run(context.Background(), append([]string{"royale"}, args...))

	return out.String(), err
}

// writeFixture stores generated daily bars as CSV files and returns a config path.
func (suite *RoyaleCmdTestSuite) writeFixture(symbols ...string) string {
	marketDir := filepath.Join(suite.dir, "market")
	suite.Require().NoError(os.MkdirAll(marketDir, 0o755))

	gen := mocks.DefaultConfig()
	gen.Count = 220
	bars := mocks.NewDataGenerator(11).GenerateMultiSymbol(symbols, gen)

	for _, symbol := range symbols {
		var b strings.Builder
		b.WriteString("timestamp,open,high,low,close,volume\n")
		for _, bar := range bars[symbol] {
			fmt.Fprintf(&b, "%s,%g,%g,%g,%g,%g\n", bar.Time.Format("2006-01-02 15:04:05"), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}

		suite.Require().NoError(os.WriteFile(filepath.Join(marketDir, symbol+".csv"), []byte(b.String()), 0o644))
	}

	cfg := fmt.Sprintf(`
data_root: %s
start: 2023-01-02
end: 2024-12-31
symbols: [%s]
source:
  provider: file
  path: %s
storage:
  format: csv
walk_forward:
  windows: {train_size: 100, test_size: 20, step: 20}
  n_trials: 3
`, filepath.Join(suite.dir, "data"), strings.Join(symbols, ", "), marketDir)

	path := filepath.Join(suite.dir, "royale.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(cfg), 0o644))

	return path
}

func (suite *RoyaleCmdTestSuite) TestSchema() {
	dir := filepath.Join(suite.dir, "config")

	_, err := suite.run("schema", "--dir", dir)
	suite.Require().NoError(err)

	schema, err := os.ReadFile(filepath.Join(dir, schemaName))
	suite.Require().NoError(err)

	var decoded map[string]any
	suite.Require().NoError(json.Unmarshal(schema, &decoded))
	suite.Equal("royale-config", decoded["title"])

	samplePath := filepath.Join(dir, sampleConfigName)
	sample, err := os.ReadFile(samplePath)
	suite.Require().NoError(err)
	suite.True(strings.HasPrefix(string(sample), "# yaml-language-server: $schema="+schemaName))

	cfg, err := config.Load(samplePath)
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL", "MSFT"}, cfg.Symbols)

	// an existing sample config is left alone
	suite.Require().NoError(os.WriteFile(samplePath, []byte("symbols: [SPY]\n"), 0o644))
	_, err = suite.run("schema", "--dir", dir)
	suite.Require().NoError(err)

	sample, err = os.ReadFile(samplePath)
	suite.Require().NoError(err)
	suite.Equal("symbols: [SPY]\n", string(sample))
}

func (suite *RoyaleCmdTestSuite) TestCatalogue() {
	out, err := suite.run("catalogue", "--strategy", strategy.FamilyBreakout)
	suite.Require().NoError(err)

	var catalogue map[string][]string
	suite.Require().NoError(json.Unmarshal([]byte(out), &catalogue))
	suite.Len(catalogue, 1)
	suite.NotEmpty(catalogue[strategy.FamilyBreakout])

	path := filepath.Join(suite.dir, "catalogue.json")
	_, err = suite.run("catalogue", "--output", path)
	suite.Require().NoError(err)
	suite.FileExists(path)

	_, err = suite.run("catalogue", "--strategy", "Nope")
	suite.Error(err)
}

func (suite *RoyaleCmdTestSuite) TestRunAndWindows() {
	path := suite.writeFixture("AAA", "BBB")

	_, err := suite.run("run", "--config", path, "--no-progress",
		"--stage", string(stage.DataIngest), "--stage", string(stage.FeatureEngineering))
	suite.Require().NoError(err)

	cfg, err := config.Load(path)
	suite.Require().NoError(err)

	start, end := cfg.DateRange(time.Now())
	manager := stage.NewManager(cfg.DataRoot, start, end)
	for _, symbol := range []string{"AAA", "BBB"} {
		suite.True(manager.IsDone(stage.DataIngest, "", symbol))
		suite.True(manager.IsDone(stage.FeatureEngineering, "", symbol))
	}

	out, err := suite.run("windows", "--config", path, "--symbol", "AAA")
	suite.Require().NoError(err)
	suite.Contains(out, "window_0")
	suite.Contains(out, "6 windows over 220 bars")
}

func (suite *RoyaleCmdTestSuite) TestRunErrors() {
	_, err := suite.run("run", "--config", filepath.Join(suite.dir, "missing.yaml"))
	suite.Error(err)

	path := suite.writeFixture("AAA")
	_, err = suite.run("run", "--config", path, "--no-progress", "--stage", "nope")
	suite.Error(err)
}
