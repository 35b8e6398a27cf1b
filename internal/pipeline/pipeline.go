// Package pipeline runs the stage coordinators in dependency order: ingest,
// features, backtest, walk-forward optimisation, analysis, selection and
// portfolio metrics. Each stage iterates its (strategy, symbol) units, skips
// those already marked done and records failures as error markers without
// stopping the other units.
package pipeline

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ashourz/AlgoRoyale-sub003/internal/config"
	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluation"
	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/feature"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/metrics"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/strategy"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/marketdata"
)

// CancelledReason is the content of the error marker left by a cancelled unit.
const CancelledReason = "cancelled"

// RunOptions selects what a run does.
type RunOptions struct {
	// Stages to run; empty runs every stage. They always run in pipeline order.
	Stages []stage.Name
	// Force reprocesses units that already carry their completion marker.
	Force bool
}

// unit is one (strategy, symbol) work item of a stage. Global units leave
// both empty.
type unit struct {
	strategy string
	symbol   string
}

type processFunc func(ctx context.Context, u unit) error

type Pipeline struct {
	config      *config.Config
	source      marketdata.Source
	timeframe   marketdata.Timeframe
	manager     *stage.Manager
	writer      *stage.Writer
	loader      *stage.Loader
	engineer    *feature.Engineer
	factory     *strategy.Factory
	evaluator   *evaluator.Evaluator
	aggregator  *evaluation.Aggregator
	coordinator *walkforward.Coordinator
	recorder    *metrics.Recorder
	logger      *logger.Logger
	symbols     []string
	runID       string
}

// New wires every stage collaborator from cfg. The date range is resolved
// against the current time when cfg leaves it open.
func New(cfg *config.Config, source marketdata.Source, log *logger.Logger, recorder *metrics.Recorder) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "config is nil")
	}

	if source == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "market data source is nil")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	symbols, err := cfg.ResolveSymbols()
	if err != nil {
		return nil, err
	}

	timeframe, err := marketdata.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}

	engineer, err := feature.NewEngineer(cfg.Features)
	if err != nil {
		return nil, err
	}

	factory, err := strategy.DefaultFactory(log).Select(cfg.Strategies)
	if err != nil {
		return nil, err
	}

	ev := evaluator.New(cfg.Evaluator)

	aggregator, err := evaluation.NewAggregator(cfg.Evaluation, log)
	if err != nil {
		return nil, err
	}

	coordinator, err := walkforward.NewCoordinator(cfg.WalkForward, ev, log, recorder)
	if err != nil {
		return nil, err
	}

	start, end := cfg.DateRange(time.Now())
	manager := stage.NewManager(cfg.DataRoot, start, end)

	writer, err := stage.NewWriter(manager, cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	loader, err := stage.NewLoader(manager, log)
	if err != nil {
		_ = writer.Close()

		return nil, err
	}

	runID := uuid.NewString()

	return &Pipeline{
		config:      cfg,
		source:      source,
		timeframe:   timeframe,
		manager:     manager,
		writer:      writer,
		loader:      loader,
		engineer:    engineer,
		factory:     factory,
		evaluator:   ev,
		aggregator:  aggregator,
		coordinator: coordinator,
		recorder:    recorder,
		logger:      log.Named("pipeline").With(zap.String("run_id", runID)),
		symbols:     symbols,
		runID:       runID,
	}, nil
}

func (p *Pipeline) RunID() string {
	return p.runID
}

func (p *Pipeline) Manager() *stage.Manager {
	return p.manager
}

func (p *Pipeline) Symbols() []string {
	return slices.Clone(p.symbols)
}

// Close releases the DuckDB connections of the writer and the loader.
func (p *Pipeline) Close() error {
	werr := p.writer.Close()
	lerr := p.loader.Close()

	if werr != nil {
		return werr
	}

	return lerr
}

// Run executes the selected stages in order. A stage-wide failure aborts that
// stage only; the remaining stages still run and the first such error is
// returned. Cancellation stops the run immediately.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions, callbacks LifecycleCallbacks) (err error) {
	stages, err := orderStages(opts.Stages)
	if err != nil {
		return err
	}

	if err := p.checkManifest(opts.Force); err != nil {
		return err
	}

	if err := callbacks.runStart(p.runID, stages, p.Symbols()); err != nil {
		return errors.Wrap(errors.ErrCodeCancellationRequested, "run aborted by start callback", err)
	}

	defer func() {
		callbacks.runEnd(err)
	}()

	p.logger.Info("Pipeline started",
		zap.Any("stages", stages),
		zap.Strings("symbols", p.symbols),
		zap.String("date_range", p.manager.DateRange().String()),
		zap.Bool("force", opts.Force),
	)

	var firstErr error
	for i, name := range stages {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(errors.ErrCodeCancellationRequested, "pipeline cancelled", ctxErr)
		}

		stageErr := p.runStage(ctx, i, len(stages), name, opts, callbacks)
		if stageErr == nil {
			continue
		}

		p.recorder.StageError(string(name), errors.Kind(stageErr))

		if errors.IsCancellation(stageErr) {
			p.logger.Warn("Pipeline cancelled", zap.String("stage", string(name)))

			return stageErr
		}

		p.logger.Error("Stage failed", zap.String("stage", string(name)), zap.Error(stageErr))

		if firstErr == nil {
			firstErr = stageErr
		}
	}

	if path := p.config.MetricsFile; path != "" {
		if err := p.recorder.WriteTextfile(path); err != nil {
			p.logger.Warn("Failed to write metrics file", zap.String("path", path), zap.Error(err))
		}
	}

	p.logger.Info("Pipeline finished", zap.Bool("ok", firstErr == nil))

	return firstErr
}

func (p *Pipeline) runStage(ctx context.Context, index, total int, name stage.Name, opts RunOptions, callbacks LifecycleCallbacks) (err error) {
	started := time.Now()
	log := p.logger.With(zap.String("stage", string(name)))

	units, process, err := p.plan(ctx, name)
	if err != nil {
		callbacks.stageEnd(index, name, err)

		return err
	}

	if err := callbacks.stageStart(index, name, total, len(units)); err != nil {
		err = errors.Wrap(errors.ErrCodeCancellationRequested, "run aborted by stage callback", err)
		callbacks.stageEnd(index, name, err)

		return err
	}

	defer func() {
		p.recorder.StageDuration(string(name), time.Since(started))
		callbacks.stageEnd(index, name, err)
	}()

	log.Info("Stage started", zap.Int("units", len(units)))

	failed, err := p.forEach(ctx, name, units, process, opts.Force, callbacks)
	if err != nil {
		return err
	}

	if len(units) > 0 && failed == len(units) {
		return errors.Newf(errors.ErrCodeStageFailed, "%s: all %d units failed", name, failed)
	}

	log.Info("Stage finished",
		zap.Int("units", len(units)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(started)),
	)

	return nil
}

func (p *Pipeline) plan(ctx context.Context, name stage.Name) ([]unit, processFunc, error) {
	switch name {
	case stage.DataIngest:
		return p.planIngest(ctx)
	case stage.FeatureEngineering:
		return p.planFeatures(ctx)
	case stage.Backtest:
		return p.planBacktest(ctx)
	case stage.StrategyOptimization:
		return p.planOptimization(ctx)
	case stage.ResultsAnalysis:
		return p.planAnalysis(ctx)
	case stage.StrategySelection:
		return p.planSelection(ctx)
	case stage.StrategyMetrics:
		return p.planStrategyMetrics(ctx)
	}

	return nil, nil, errors.Newf(errors.ErrCodeUnknownStage, "unknown stage %q", name)
}

// forEach processes units with at most Concurrency in flight. Unit failures
// are isolated: they leave an error marker and are counted. Only cancellation
// is returned, after every running unit has marked itself cancelled.
func (p *Pipeline) forEach(
	ctx context.Context,
	name stage.Name,
	units []unit,
	process processFunc,
	force bool,
	callbacks LifecycleCallbacks,
) (int, error) {
	var (
		mu     sync.Mutex
		done   int
		failed int
	)

	finish := func(u unit, err error) {
		mu.Lock()
		defer mu.Unlock()

		done++
		if err != nil {
			failed++
		}

		callbacks.unitDone(name, u, err, done, len(units))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.config.Concurrency))

	for _, u := range units {
		g.Go(func() error {
			log := p.logger.With(
				zap.String("stage", string(name)),
				zap.String("strategy", u.strategy),
				zap.String("symbol", u.symbol),
			)

			if err := gctx.Err(); err != nil {
				return p.cancelled(name, u, err)
			}

			if !force && p.manager.IsDone(name, u.strategy, u.symbol) {
				log.Debug("Unit already done, skipping")
				finish(u, nil)

				return nil
			}

			err := p.manager.Reset(name, u.strategy, u.symbol)
			if err == nil {
				err = process(gctx, u)
			}

			if err == nil {
				err = p.manager.MarkDone(name, u.strategy, u.symbol)
			}

			if err != nil && errors.IsCancellation(err) {
				return p.cancelled(name, u, err)
			}

			if err != nil {
				log.Warn("Unit failed", zap.String("kind", errors.Kind(err)), zap.Error(err))
				p.recorder.StageError(string(name), errors.Kind(err))

				if markErr := p.manager.MarkError(name, u.strategy, u.symbol, err.Error()); markErr != nil {
					log.Error("Failed to write error marker", zap.Error(markErr))
				}
			} else {
				p.recorder.UnitCompleted(string(name))
			}

			finish(u, err)

			return nil
		})
	}

	err := g.Wait()

	return failed, err
}

func (p *Pipeline) cancelled(name stage.Name, u unit, cause error) error {
	if markErr := p.manager.MarkError(name, u.strategy, u.symbol, CancelledReason); markErr != nil {
		p.logger.Error("Failed to write cancellation marker", zap.Error(markErr))
	}

	if errors.IsCancellation(cause) {
		return cause
	}

	return errors.Wrap(errors.ErrCodeCancellationRequested, string(name)+" cancelled", cause)
}

// countReads reports every page pulled from a stream to the recorder.
func (p *Pipeline) countReads(name stage.Name, pages iter.Seq2[*frame.Frame, error]) iter.Seq2[*frame.Frame, error] {
	return func(yield func(*frame.Frame, error) bool) {
		for page, err := range pages {
			if err == nil {
				p.recorder.PageRead(string(name))
			}

			if !yield(page, err) {
				return
			}
		}
	}
}

// orderStages validates the requested stages and returns them in pipeline order.
func orderStages(requested []stage.Name) ([]stage.Name, error) {
	all := stage.All()
	if len(requested) == 0 {
		return all, nil
	}

	for _, name := range requested {
		if _, err := stage.Describe(name); err != nil {
			return nil, err
		}
	}

	return slices.DeleteFunc(all, func(name stage.Name) bool {
		return !slices.Contains(requested, name)
	}), nil
}
