package pipeline

import (
	"context"
	"iter"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluation"
	"github.com/ashourz/AlgoRoyale-sub003/internal/executor"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/strategy"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// BacktestFile holds the full-history metrics of a family's default strategy.
const BacktestFile = "backtest_result.json"

// BacktestReport is the content of BacktestFile.
type BacktestReport struct {
	Strategy   string         `json:"strategy"`
	StrategyID string         `json:"strategy_id"`
	Params     map[string]any `json:"params"`
	Bars       int            `json:"bars"`
	Trades     int            `json:"trades"`
	Metrics    types.Metrics  `json:"metrics"`
}

func (p *Pipeline) symbolUnits() []unit {
	units := make([]unit, 0, len(p.symbols))
	for _, symbol := range p.symbols {
		units = append(units, unit{symbol: symbol})
	}

	return units
}

func (p *Pipeline) strategyUnits() []unit {
	families := p.factory.Families()
	units := make([]unit, 0, len(families)*len(p.symbols))
	for _, family := range families {
		for _, symbol := range p.symbols {
			units = append(units, unit{strategy: family, symbol: symbol})
		}
	}

	return units
}

func (p *Pipeline) requireStage(name stage.Name) error {
	if !p.manager.Exists(name) {
		return errors.Newf(errors.ErrCodeDataNotFound, "stage directory %s does not exist", p.manager.StageDir(name))
	}

	return nil
}

func (p *Pipeline) preparer(name stage.Name) *stage.Preparer {
	return stage.NewPreparer(stage.MustDescribe(name), p.logger)
}

func (p *Pipeline) planIngest(_ context.Context) ([]unit, processFunc, error) {
	start, end := p.manager.DateRange().Start, p.manager.DateRange().End
	preparer := p.preparer(stage.DataIngest)

	process := func(ctx context.Context, u unit) error {
		var bars []types.Bar
		for bar, err := range p.source.FetchBars(ctx, []string{u.symbol}, start, end, p.timeframe) {
			if err != nil {
				return err
			}

			bars = append(bars, bar)
		}

		if len(bars) == 0 {
			return errors.Newf(errors.ErrCodeDataNotFound, "source returned no bars for %s", u.symbol)
		}

		f, err := preparer.Prepare(frame.FromBars(bars))
		if err != nil {
			return err
		}

		if err := f.ValidateIndex(); err != nil {
			return err
		}

		paths, err := p.writer.Write(ctx, stage.WriteRequest{Stage: stage.DataIngest, Symbol: u.symbol}, f)
		p.recorder.PagesWritten(string(stage.DataIngest), len(paths))

		return err
	}

	return p.symbolUnits(), process, nil
}

func (p *Pipeline) planFeatures(ctx context.Context) ([]unit, processFunc, error) {
	streams, err := p.loader.LoadAllStageData(ctx, stage.LoadRequest{
		Stage:   stage.DataIngest,
		Symbols: p.symbols,
	})
	if err != nil {
		return nil, nil, err
	}

	preparer := p.preparer(stage.FeatureEngineering)

	process := func(ctx context.Context, u unit) error {
		pages := preparer.PrepareStream(p.countReads(stage.DataIngest, streams[u.symbol](ctx)))

		paths, err := p.writer.WriteStream(ctx, stage.WriteRequest{Stage: stage.FeatureEngineering, Symbol: u.symbol}, p.engineer.Stream(pages))
		p.recorder.PagesWritten(string(stage.FeatureEngineering), len(paths))
		if err != nil {
			return err
		}

		if len(paths) == 0 {
			return errors.Newf(errors.ErrCodeDataNotFound, "no usable %s pages for %s", stage.DataIngest, u.symbol)
		}

		return nil
	}

	return p.symbolUnits(), process, nil
}

// signalStream runs a session over pages and collects every output page.
func signalStream(session *strategy.Session, pages iter.Seq2[*frame.Frame, error], collected *[]*frame.Frame) iter.Seq2[*frame.Frame, error] {
	return func(yield func(*frame.Frame, error) bool) {
		for page, err := range pages {
			if err != nil {
				yield(nil, err)

				return
			}

			out, err := session.Process(page)
			if err != nil {
				yield(nil, err)

				return
			}

			*collected = append(*collected, out)
			if !yield(out, nil) {
				return
			}
		}
	}
}

func (p *Pipeline) planBacktest(ctx context.Context) ([]unit, processFunc, error) {
	streams, err := p.loader.LoadAllStageData(ctx, stage.LoadRequest{
		Stage:   stage.FeatureEngineering,
		Symbols: p.symbols,
	})
	if err != nil {
		return nil, nil, err
	}

	preparer := p.preparer(stage.Backtest)

	process := func(ctx context.Context, u unit) error {
		combinator, err := p.factory.Combinator(u.strategy)
		if err != nil {
			return err
		}

		s, err := combinator.Default()
		if err != nil {
			return err
		}

		var processed []*frame.Frame
		pages := preparer.PrepareStream(p.countReads(stage.FeatureEngineering, streams[u.symbol](ctx)))
		req := stage.WriteRequest{Stage: stage.Backtest, Strategy: u.strategy, Symbol: u.symbol}

		paths, err := p.writer.WriteStream(ctx, req, signalStream(strategy.NewSession(s), pages, &processed))
		p.recorder.PagesWritten(string(stage.Backtest), len(paths))
		if err != nil {
			return err
		}

		if len(processed) == 0 {
			return errors.Newf(errors.ErrCodeDataNotFound, "no %s pages for %s", stage.FeatureEngineering, u.symbol)
		}

		signals, err := frame.Concat(processed...)
		if err != nil {
			return err
		}

		cfg := p.config.WalkForward.Signal
		cfg.Symbol = u.symbol

		result, err := executor.NewSignalExecutor(cfg, p.evaluator, p.logger).Execute(signals)
		if err != nil {
			return err
		}

		return stage.WriteJSON(p.manager.FilePath(stage.Backtest, u.strategy, u.symbol, BacktestFile), BacktestReport{
			Strategy:   s.String(),
			StrategyID: s.HashID(),
			Params:     s.Params(),
			Bars:       signals.Len(),
			Trades:     len(result.Trades),
			Metrics:    result.Metrics,
		})
	}

	return p.strategyUnits(), process, nil
}

func (p *Pipeline) planOptimization(_ context.Context) ([]unit, processFunc, error) {
	if err := p.requireStage(stage.FeatureEngineering); err != nil {
		return nil, nil, err
	}

	preparer := p.preparer(stage.StrategyOptimization)

	process := func(ctx context.Context, u unit) error {
		combinator, err := p.factory.Combinator(u.strategy)
		if err != nil {
			return err
		}

		df, err := p.loader.LoadSymbol(ctx, stage.LoadRequest{Stage: stage.FeatureEngineering}, u.symbol)
		if err != nil {
			return err
		}

		if df, err = preparer.Prepare(df); err != nil {
			return err
		}

		log := p.logger.With(zap.String("strategy", u.strategy), zap.String("symbol", u.symbol))
		onWindow := walkforward.OnWindowCallback(func(done, total int, result walkforward.WindowResult) {
			log.Debug("Window done", zap.Int("done", done), zap.Int("total", total), zap.Bool("failed", result.Failed()))
		})

		results, err := p.coordinator.Run(ctx, u.symbol, combinator, df, optional.Some(onWindow))
		if err != nil {
			return err
		}

		return walkforward.WriteResults(p.manager.FilePath(stage.StrategyOptimization, u.strategy, u.symbol, walkforward.ResultFile), results)
	}

	return p.strategyUnits(), process, nil
}

func (p *Pipeline) planAnalysis(_ context.Context) ([]unit, processFunc, error) {
	if err := p.requireStage(stage.StrategyOptimization); err != nil {
		return nil, nil, err
	}

	process := func(_ context.Context, u unit) error {
		results, err := walkforward.ReadResults(p.manager.FilePath(stage.StrategyOptimization, u.strategy, u.symbol, walkforward.ResultFile))
		if err != nil {
			return err
		}

		ev, err := p.aggregator.EvaluateWindows(results)
		if err != nil {
			return err
		}

		return evaluation.WriteEvaluation(p.manager.FilePath(stage.ResultsAnalysis, u.strategy, u.symbol, evaluation.EvaluationFile), ev)
	}

	return p.strategyUnits(), process, nil
}

func (p *Pipeline) planSelection(_ context.Context) ([]unit, processFunc, error) {
	if err := p.requireStage(stage.ResultsAnalysis); err != nil {
		return nil, nil, err
	}

	process := func(_ context.Context, u unit) error {
		evaluations := make(map[string]evaluation.StrategyEvaluation)
		for _, family := range p.factory.Families() {
			ev, err := evaluation.ReadEvaluation(p.manager.FilePath(stage.ResultsAnalysis, family, u.symbol, evaluation.EvaluationFile))
			if errors.HasCode(err, errors.ErrCodeDataNotFound) {
				p.logger.Debug("No evaluation", zap.String("strategy", family), zap.String("symbol", u.symbol))

				continue
			}

			if err != nil {
				return err
			}

			evaluations[family] = ev
		}

		summary, err := p.aggregator.SelectStrategy(u.symbol, evaluations)
		if err != nil {
			return err
		}

		return evaluation.WriteSymbolSummary(p.manager.FilePath(stage.StrategySelection, "", u.symbol, evaluation.SummaryFile), summary)
	}

	return p.symbolUnits(), process, nil
}

// planStrategyMetrics is a single global unit: it rebuilds every symbol's
// selected strategy, writes its signal pages and evaluates the allocators
// over the whole universe.
func (p *Pipeline) planStrategyMetrics(_ context.Context) ([]unit, processFunc, error) {
	if err := p.requireStage(stage.StrategySelection); err != nil {
		return nil, nil, err
	}

	process := func(ctx context.Context, _ unit) error {
		selections := make(map[string]evaluation.SymbolSummary)
		signals := make(map[string]*frame.Frame)

		for _, symbol := range p.symbols {
			log := p.logger.With(zap.String("symbol", symbol))

			summary, err := evaluation.ReadSymbolSummary(p.manager.FilePath(stage.StrategySelection, "", symbol, evaluation.SummaryFile))
			if err != nil {
				log.Warn("No strategy selection, leaving symbol out of the portfolio", zap.Error(err))

				continue
			}

			f, err := p.selectedSignals(ctx, summary)
			if err != nil {
				if errors.IsCancellation(err) {
					return err
				}

				log.Warn("Cannot rebuild selected strategy, leaving symbol out of the portfolio",
					zap.String("strategy", summary.Strategy),
					zap.Error(err),
				)

				continue
			}

			selections[symbol] = summary
			signals[symbol] = f
		}

		if len(selections) == 0 {
			return errors.New(errors.ErrCodeDataNotFound, "no symbol has a usable strategy selection")
		}

		prices, err := evaluation.Align(signals, types.ColumnClose)
		if err != nil {
			return err
		}

		exposure, err := evaluation.Align(signals, evaluation.ColumnExposure)
		if err != nil {
			return err
		}

		summary, allocators, err := p.aggregator.EvaluatePortfolio(ctx, selections, evaluation.PortfolioInput{
			Prices:   prices,
			Exposure: exposure,
		}, p.config.Portfolio, p.config.WalkForward, p.evaluator, p.recorder)

		if len(allocators) > 0 {
			if werr := evaluation.WriteAllocatorEvaluations(p.manager.FilePath(stage.StrategyMetrics, "", "", evaluation.AllocatorFile), allocators); werr != nil {
				return werr
			}
		}

		if err != nil {
			return err
		}

		return evaluation.WritePortfolioSummary(p.manager.FilePath(stage.StrategyMetrics, "", "", evaluation.SummaryFile), summary)
	}

	return []unit{{}}, process, nil
}

// selectedSignals rebuilds the selected strategy from its most common best
// parameters, runs it over the symbol's features and persists the signals
// with their exposure under strategy_metrics/<strategy>/<symbol>.
func (p *Pipeline) selectedSignals(ctx context.Context, summary evaluation.SymbolSummary) (*frame.Frame, error) {
	combinator, err := p.factory.Combinator(summary.Strategy)
	if err != nil {
		return nil, err
	}

	s, err := rebuild(combinator, summary.MostCommonBestParams)
	if err != nil {
		return nil, err
	}

	streams, err := p.loader.LoadAllStageData(ctx, stage.LoadRequest{
		Stage:   stage.FeatureEngineering,
		Symbols: []string{summary.Symbol},
	})
	if err != nil {
		return nil, err
	}

	var processed []*frame.Frame
	pages := p.preparer(stage.StrategyMetrics).PrepareStream(p.countReads(stage.FeatureEngineering, streams[summary.Symbol](ctx)))
	for _, err := range signalStream(strategy.NewSession(s), pages, &processed) {
		if err != nil {
			return nil, err
		}
	}

	if len(processed) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no %s pages for %s", stage.FeatureEngineering, summary.Symbol)
	}

	f, err := frame.Concat(processed...)
	if err != nil {
		return nil, err
	}

	exposure, err := evaluation.Exposure(f)
	if err != nil {
		return nil, err
	}

	if err := f.SetFloat(evaluation.ColumnExposure, exposure); err != nil {
		return nil, err
	}

	if err := p.manager.Reset(stage.StrategyMetrics, summary.Strategy, summary.Symbol); err != nil {
		return nil, err
	}

	req := stage.WriteRequest{Stage: stage.StrategyMetrics, Strategy: summary.Strategy, Symbol: summary.Symbol}
	paths, err := p.writer.Write(ctx, req, f)
	p.recorder.PagesWritten(string(stage.StrategyMetrics), len(paths))
	if err != nil {
		return nil, err
	}

	return f, nil
}

// rebuild turns persisted best parameters back into a strategy. A selection
// without parameters falls back to the family's default strategy.
func rebuild(combinator *strategy.Combinator, params map[string]any) (*strategy.Strategy, error) {
	if len(params) == 0 {
		return combinator.Default()
	}

	trial := optimizer.NewFixedTrial(params)
	s, err := combinator.FromTrial(trial)
	if err == nil {
		err = trial.Err()
	}

	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyBuildFailed, "cannot rebuild "+combinator.Family, err)
	}

	return s, nil
}
