package pipeline

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/ashourz/AlgoRoyale-sub003/internal/config"
	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluation"
	"github.com/ashourz/AlgoRoyale-sub003/internal/metrics"
	"github.com/ashourz/AlgoRoyale-sub003/internal/portfolio"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/strategy"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/internal/version"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/mocks"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/marketdata"
)

type PipelineTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	source  *mocks.MockSource
	bars    map[string][]types.Bar
	symbols []string
	cfg     *config.Config
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (suite *PipelineTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.source = mocks.NewMockSource(suite.ctrl)
	suite.symbols = []string{"AAA", "BBB"}

	gen := mocks.DefaultConfig()
	gen.Count = 400
	suite.bars = mocks.NewDataGenerator(7).GenerateMultiSymbol(suite.symbols, gen)

	cfg := config.Default()
	cfg.DataRoot = suite.T().TempDir()
	cfg.Symbols = suite.symbols
	cfg.Start = optional.Some(time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC))
	cfg.End = optional.Some(time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC))
	cfg.Storage.MaxRowsPerFile = 100
	cfg.Strategies = []string{strategy.FamilyMomentum, strategy.FamilyMeanReversion}
	cfg.WalkForward.Windows = walkforward.WindowConfig{TrainSize: 120, TestSize: 40, Step: 40, Mode: walkforward.ModeSliding}
	cfg.WalkForward.NTrials = 4
	cfg.Portfolio.Allocators = []portfolio.Kind{portfolio.KindEqualWeight, portfolio.KindInverseVolatility}
	suite.Require().NoError(cfg.Validate())
	suite.cfg = &cfg
}

func (suite *PipelineTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

// expectFetch serves the generated bars for any symbol list.
func (suite *PipelineTestSuite) expectFetch() *gomock.Call {
	return suite.source.EXPECT().
		FetchBars(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), marketdata.TimeframeOneDay).
		DoAndReturn(func(_ context.Context, symbols []string, _, _ time.Time, _ marketdata.Timeframe) iter.Seq2[types.Bar, error] {
			return mocks.StreamBars(suite.bars, symbols)
		})
}

func (suite *PipelineTestSuite) newPipeline() *Pipeline {
	p, err := New(suite.cfg, suite.source, nil, metrics.New())
	suite.Require().NoError(err)
	suite.T().Cleanup(func() { suite.NoError(p.Close()) })

	return p
}

func (suite *PipelineTestSuite) read(path string) []byte {
	data, err := os.ReadFile(path)
	suite.Require().NoError(err, path)

	return data
}

func (suite *PipelineTestSuite) TestFullRun() {
	suite.expectFetch().Times(len(suite.symbols))
	p := suite.newPipeline()
	m := p.Manager()

	suite.Require().NoError(p.Run(context.Background(), RunOptions{}, LifecycleCallbacks{}))

	for _, symbol := range suite.symbols {
		suite.True(m.IsDone(stage.DataIngest, "", symbol))
		suite.True(m.IsDone(stage.FeatureEngineering, "", symbol))

		pages, err := m.ListPages(stage.DataIngest, "", symbol)
		suite.Require().NoError(err)
		suite.Len(pages, 4)

		for _, family := range suite.cfg.Strategies {
			suite.True(m.IsDone(stage.Backtest, family, symbol))
			suite.True(m.IsDone(stage.StrategyOptimization, family, symbol))
			suite.True(m.IsDone(stage.ResultsAnalysis, family, symbol))

			var report BacktestReport
			suite.Require().NoError(stage.ReadJSON(m.FilePath(stage.Backtest, family, symbol, BacktestFile), &report))
			suite.Equal(family, report.Strategy[:len(family)])
			suite.NotEmpty(report.StrategyID)

			results, err := walkforward.ReadResults(m.FilePath(stage.StrategyOptimization, family, symbol, walkforward.ResultFile))
			suite.Require().NoError(err)
			suite.NotEmpty(results)

			ev, err := evaluation.ReadEvaluation(m.FilePath(stage.ResultsAnalysis, family, symbol, evaluation.EvaluationFile))
			suite.Require().NoError(err)
			suite.Equal(len(results), ev.NWindows)
			suite.Equal(len(results.Succeeded()), ev.NSucceededWindows)
			suite.GreaterOrEqual(ev.ViabilityScore, 0.0)
			suite.LessOrEqual(ev.ParamConsistency, 1.0)
		}

		summary, err := evaluation.ReadSymbolSummary(m.FilePath(stage.StrategySelection, "", symbol, evaluation.SummaryFile))
		suite.Require().NoError(err)
		suite.Contains(suite.cfg.Strategies, summary.Strategy)
		suite.Len(summary.Candidates, len(suite.cfg.Strategies))

		pages, err = m.ListPages(stage.StrategyMetrics, summary.Strategy, symbol)
		suite.Require().NoError(err)
		suite.NotEmpty(pages)
	}

	suite.True(m.IsDone(stage.StrategyMetrics, "", ""))

	recommendation, err := evaluation.ReadPortfolioSummary(m.FilePath(stage.StrategyMetrics, "", "", evaluation.SummaryFile))
	suite.Require().NoError(err)
	suite.Len(recommendation, len(suite.symbols))

	for symbol, allocation := range recommendation {
		selected, err := evaluation.ReadSymbolSummary(m.FilePath(stage.StrategySelection, "", symbol, evaluation.SummaryFile))
		suite.Require().NoError(err)
		suite.Equal(selected.Strategy, allocation.RecommendedStrategy)
		suite.Contains(allocation.AllocationParams, "allocator")
	}

	suite.FileExists(m.FilePath(stage.StrategyMetrics, "", "", evaluation.AllocatorFile))
}

func (suite *PipelineTestSuite) TestForcedRerunIsIdempotent() {
	suite.expectFetch().Times(2 * len(suite.symbols))
	p := suite.newPipeline()
	m := p.Manager()

	suite.Require().NoError(p.Run(context.Background(), RunOptions{}, LifecycleCallbacks{}))

	files := []string{
		m.FilePath(stage.Backtest, strategy.FamilyMomentum, "AAA", BacktestFile),
		m.FilePath(stage.StrategyOptimization, strategy.FamilyMomentum, "AAA", walkforward.ResultFile),
		m.FilePath(stage.ResultsAnalysis, strategy.FamilyMeanReversion, "BBB", evaluation.EvaluationFile),
		m.FilePath(stage.StrategySelection, "", "AAA", evaluation.SummaryFile),
		m.FilePath(stage.StrategyMetrics, "", "", evaluation.SummaryFile),
	}

	before := make(map[string][]byte, len(files))
	for _, path := range files {
		before[path] = suite.read(path)
	}

	loader, err := stage.NewLoader(m, nil)
	suite.Require().NoError(err)
	defer loader.Close()

	features, err := loader.LoadSymbol(context.Background(), stage.LoadRequest{Stage: stage.FeatureEngineering}, "AAA")
	suite.Require().NoError(err)

	suite.Require().NoError(p.Run(context.Background(), RunOptions{Force: true}, LifecycleCallbacks{}))

	for _, path := range files {
		suite.Equal(string(before[path]), string(suite.read(path)), path)
	}

	rerun, err := loader.LoadSymbol(context.Background(), stage.LoadRequest{Stage: stage.FeatureEngineering}, "AAA")
	suite.Require().NoError(err)
	suite.True(features.Equal(rerun))
}

func (suite *PipelineTestSuite) TestSkipsCompletedUnits() {
	suite.expectFetch().Times(len(suite.symbols))
	p := suite.newPipeline()

	var (
		mu      sync.Mutex
		reports []string
	)

	onUnit := OnUnitDoneCallback(func(name stage.Name, _ string, symbol string, err error, done, total int) {
		mu.Lock()
		defer mu.Unlock()

		suite.NoError(err)
		suite.Equal(len(suite.symbols), total)
		reports = append(reports, symbol)
	})
	callbacks := LifecycleCallbacks{OnUnitDone: &onUnit}
	opts := RunOptions{Stages: []stage.Name{stage.DataIngest}}

	suite.Require().NoError(p.Run(context.Background(), opts, callbacks))
	// the mock fails the test if the second run fetches again
	suite.Require().NoError(p.Run(context.Background(), opts, callbacks))

	suite.ElementsMatch([]string{"AAA", "BBB", "AAA", "BBB"}, reports)
}

func (suite *PipelineTestSuite) TestUnitFailureIsIsolated() {
	suite.source.EXPECT().
		FetchBars(gomock.Any(), []string{"AAA"}, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(mocks.StreamBars(suite.bars, []string{"AAA"}))
	suite.source.EXPECT().
		FetchBars(gomock.Any(), []string{"BBB"}, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(iter.Seq2[types.Bar, error](func(yield func(types.Bar, error) bool) {
			yield(types.Bar{}, errors.New(errors.ErrCodeMarketDataFetchFailed, "upstream unavailable"))
		}))

	p := suite.newPipeline()
	m := p.Manager()

	err := p.Run(context.Background(), RunOptions{Stages: []stage.Name{stage.DataIngest, stage.FeatureEngineering}}, LifecycleCallbacks{})
	suite.Require().NoError(err)

	suite.True(m.IsDone(stage.DataIngest, "", "AAA"))
	suite.True(m.IsDone(stage.FeatureEngineering, "", "AAA"))
	suite.False(m.IsDone(stage.DataIngest, "", "BBB"))

	reason, err := m.ReadError(stage.DataIngest, "", "BBB")
	suite.Require().NoError(err)
	suite.Contains(reason, "upstream unavailable")

	reason, err = m.ReadError(stage.FeatureEngineering, "", "BBB")
	suite.Require().NoError(err)
	suite.NotEmpty(reason)
}

func (suite *PipelineTestSuite) TestStageFailsWhenEveryUnitFails() {
	suite.source.EXPECT().
		FetchBars(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(mocks.StreamBars(nil, nil)).
		Times(len(suite.symbols))

	p := suite.newPipeline()

	var ended []stage.Name
	onStageEnd := OnStageEndCallback(func(_ int, name stage.Name, err error) {
		suite.Error(err)
		ended = append(ended, name)
	})

	err := p.Run(context.Background(), RunOptions{Stages: []stage.Name{stage.FeatureEngineering, stage.DataIngest}}, LifecycleCallbacks{OnStageEnd: &onStageEnd})
	suite.True(errors.HasCode(err, errors.ErrCodeStageFailed), err)
	suite.Equal([]stage.Name{stage.DataIngest, stage.FeatureEngineering}, ended)

	reason, err := p.Manager().ReadError(stage.DataIngest, "", "AAA")
	suite.Require().NoError(err)
	suite.Contains(reason, "no bars")
}

func (suite *PipelineTestSuite) TestMissingUpstreamStage() {
	p := suite.newPipeline()

	for _, name := range []stage.Name{stage.FeatureEngineering, stage.Backtest, stage.StrategyOptimization, stage.ResultsAnalysis, stage.StrategySelection, stage.StrategyMetrics} {
		suite.Run(string(name), func() {
			err := p.Run(context.Background(), RunOptions{Stages: []stage.Name{name}}, LifecycleCallbacks{})
			suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound), err)
		})
	}
}

func (suite *PipelineTestSuite) TestUnknownStage() {
	p := suite.newPipeline()

	err := p.Run(context.Background(), RunOptions{Stages: []stage.Name{"nope"}}, LifecycleCallbacks{})
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownStage))
}

func (suite *PipelineTestSuite) TestCancellationLeavesMarkers() {
	p := suite.newPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	onStageStart := OnStageStartCallback(func(_ int, _ stage.Name, _ int, units int) error {
		suite.Equal(len(suite.symbols), units)
		cancel()

		return nil
	})

	var runErr error
	onRunEnd := OnRunEndCallback(func(err error) { runErr = err })

	err := p.Run(ctx, RunOptions{Stages: []stage.Name{stage.DataIngest}}, LifecycleCallbacks{
		OnStageStart: &onStageStart,
		OnRunEnd:     &onRunEnd,
	})
	suite.True(errors.IsCancellation(err), err)
	suite.Equal(err, runErr)

	for _, symbol := range suite.symbols {
		reason, err := p.Manager().ReadError(stage.DataIngest, "", symbol)
		suite.Require().NoError(err)
		suite.Equal(CancelledReason, reason)
	}
}

func (suite *PipelineTestSuite) TestStartCallbackAborts() {
	p := suite.newPipeline()

	onRunStart := OnRunStartCallback(func(runID string, stages []stage.Name, symbols []string) error {
		suite.Equal(p.RunID(), runID)
		suite.Equal(stage.All(), stages)
		suite.Equal(suite.symbols, symbols)

		return errors.New(errors.ErrCodeInternalError, "stop")
	})

	err := p.Run(context.Background(), RunOptions{}, LifecycleCallbacks{OnRunStart: &onRunStart})
	suite.Error(err)

	_, statErr := os.Stat(filepath.Join(suite.cfg.DataRoot, string(stage.DataIngest)))
	suite.True(os.IsNotExist(statErr))
}

func (suite *PipelineTestSuite) TestMetricsFile() {
	suite.expectFetch().Times(len(suite.symbols))
	suite.cfg.MetricsFile = filepath.Join(suite.T().TempDir(), "royale.prom")
	p := suite.newPipeline()

	suite.Require().NoError(p.Run(context.Background(), RunOptions{Stages: []stage.Name{stage.DataIngest}}, LifecycleCallbacks{}))
	suite.Contains(string(suite.read(suite.cfg.MetricsFile)), "royale_pages_written_total")
}

func (suite *PipelineTestSuite) TestOrderStages() {
	ordered, err := orderStages([]stage.Name{stage.StrategyMetrics, stage.DataIngest, stage.Backtest})
	suite.Require().NoError(err)
	suite.Equal([]stage.Name{stage.DataIngest, stage.Backtest, stage.StrategyMetrics}, ordered)

	all, err := orderStages(nil)
	suite.Require().NoError(err)
	suite.Equal(stage.All(), all)
}

func (suite *PipelineTestSuite) TestDataVersionGate() {
	original := version.Version
	defer func() { version.Version = original }()

	version.Version = "v1.4.2"
	path := filepath.Join(suite.cfg.DataRoot, ManifestFile)
	suite.Require().NoError(stage.WriteJSON(path, Manifest{Version: "v1.3.0"}))

	p := suite.newPipeline()
	err := p.Run(context.Background(), RunOptions{Stages: []stage.Name{stage.DataIngest}}, LifecycleCallbacks{})
	suite.True(errors.HasCode(err, errors.ErrCodeIncompatibleVersion), err)

	_, statErr := os.Stat(filepath.Join(suite.cfg.DataRoot, string(stage.DataIngest)))
	suite.True(os.IsNotExist(statErr))

	suite.expectFetch().Times(len(suite.symbols))
	suite.Require().NoError(p.Run(context.Background(), RunOptions{Stages: []stage.Name{stage.DataIngest}, Force: true}, LifecycleCallbacks{}))

	var manifest Manifest
	suite.Require().NoError(stage.ReadJSON(path, &manifest))
	suite.Equal("v1.4.2", manifest.Version)
	suite.Equal(p.RunID(), manifest.RunID)

	// patch releases share data
	version.Version = "v1.4.7"
	suite.NoError(p.Run(context.Background(), RunOptions{Stages: []stage.Name{stage.DataIngest}}, LifecycleCallbacks{}))
}
