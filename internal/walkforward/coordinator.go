package walkforward

import (
	"context"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/executor"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/metrics"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/internal/strategy"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// Config drives one walk-forward run.
type Config struct {
	Windows    WindowConfig          `yaml:"windows" json:"windows"`
	NTrials    int                   `yaml:"n_trials" json:"n_trials" default:"50" validate:"gt=0"`
	Objectives []optimizer.Objective `yaml:"objectives" json:"objectives" validate:"required,min=1,dive"`
	Seed       uint64                `yaml:"seed" json:"seed" default:"42"`
	// TrialTimeout bounds one optimizer trial. Zero disables it.
	TrialTimeout time.Duration         `yaml:"trial_timeout" json:"trial_timeout"`
	Signal       executor.SignalConfig `yaml:"signal" json:"signal"`
}

// OnWindowCallback is called after every window with the number of windows
// done so far.
type OnWindowCallback func(done, total int, result WindowResult)

// Coordinator optimises a strategy family window by window.
type Coordinator struct {
	config    Config
	evaluator *evaluator.Evaluator
	logger    *logger.Logger
	recorder  *metrics.Recorder
}

func NewCoordinator(config Config, ev *evaluator.Evaluator, log *logger.Logger, recorder *metrics.Recorder) (*Coordinator, error) {
	if config.NTrials <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "n_trials must be positive, got %d", config.NTrials)
	}

	if len(config.Objectives) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "walk-forward needs at least one objective")
	}

	if config.Windows.Mode == "" {
		config.Windows.Mode = ModeSliding
	}

	if err := config.Windows.validate(); err != nil {
		return nil, err
	}

	if ev == nil {
		ev = evaluator.New(evaluator.Config{})
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Coordinator{
		config:    config,
		evaluator: ev,
		logger:    log.Named("walkforward"),
		recorder:  recorder,
	}, nil
}

// Windows validates the frame index and returns the windows it holds.
func (c *Coordinator) Windows(df *frame.Frame) ([]types.Window, error) {
	if df == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "frame is nil")
	}

	if err := df.ValidateIndex(); err != nil {
		return nil, err
	}

	return GenerateWindows(df.Index(), c.config.Windows)
}

// Run processes every window of df in chronological order. A window whose
// optimisation or test fails is recorded with its error and worst metrics;
// only cancellation and configuration errors stop the run, in which case the
// windows finished so far are returned with the error.
func (c *Coordinator) Run(
	ctx context.Context,
	symbol string,
	combinator *strategy.Combinator,
	df *frame.Frame,
	onWindow optional.Option[OnWindowCallback],
) (Results, error) {
	if combinator == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "combinator is nil")
	}

	windows, err := c.Windows(df)
	if err != nil {
		return nil, err
	}

	if len(windows) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidWindow,
			"%s has %d bars, not enough for one window of %d+%d",
			symbol, df.Len(), c.config.Windows.TrainSize, c.config.Windows.TestSize)
	}

	log := c.logger.With(zap.String("symbol", symbol), zap.String("strategy", combinator.Family))
	results := make(Results, 0, len(windows))

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(errors.ErrCodeCancellationRequested, "walk-forward cancelled", err)
		}

		result, err := c.runWindow(ctx, symbol, combinator, df, w)
		if err != nil {
			return results, err
		}

		status := statusOK
		if result.Failed() {
			status = statusFailed
			log.Warn("Window failed",
				zap.String("window", w.Key()),
				zap.String("error", result.Error),
			)
		} else {
			log.Info("Window processed",
				zap.String("window", w.String()),
				zap.Any("best_params", result.Optimization.BestParams),
			)
		}

		c.recorder.WindowProcessed(combinator.Family, status)
		results = append(results, result)

		if onWindow.IsSome() {
			onWindow.Unwrap()(len(results), len(windows), result)
		}
	}

	return results, nil
}

func (c *Coordinator) runWindow(
	ctx context.Context,
	symbol string,
	combinator *strategy.Combinator,
	df *frame.Frame,
	w types.Window,
) (WindowResult, error) {
	trainLo, trainHi := span(df, w.TrainStart, w.TrainEnd)
	testLo, testHi := span(df, w.TestStart, w.TestEnd)

	result := WindowResult{Window: w}

	opt, err := optimizer.New[*strategy.Strategy](
		combinator.FromTrial,
		func(ctx context.Context, s *strategy.Strategy, train *frame.Frame) (types.Metrics, error) {
			return c.score(ctx, symbol, s, df, trainLo, train)
		},
		optimizer.Options{
			Objectives:   c.config.Objectives,
			Seed:         c.config.Seed + uint64(w.Index),
			TrialTimeout: c.config.TrialTimeout,
			Logger:       c.logger,
			Recorder:     c.recorder,
		},
	)
	if err != nil {
		return result, err
	}

	best, err := opt.Optimize(ctx, symbol, df.Slice(trainLo, trainHi), c.config.NTrials)
	if err != nil && !errors.HasCode(err, errors.ErrCodeOptimizationFailure) {
		return result, err
	}

	result.Optimization = Optimization{
		BestParams:  best.BestParams,
		Metrics:     best.Metrics,
		ParetoFront: best.ParetoFront,
	}

	if err != nil {
		return c.fail(result, err), nil
	}

	trial := optimizer.NewFixedTrial(best.BestParams)
	rebuilt, err := combinator.FromTrial(trial)
	if err == nil {
		err = trial.Err()
	}

	if err != nil {
		return c.fail(result, errors.Wrap(errors.ErrCodeStrategyBuildFailed, "cannot rebuild best strategy", err)), nil
	}

	testMetrics, err := c.score(ctx, symbol, rebuilt, df, testLo, df.Slice(testLo, testHi))
	if err != nil {
		if errors.IsCancellation(err) {
			return result, errors.Wrap(errors.ErrCodeCancellationRequested, "walk-forward cancelled", err)
		}

		return c.fail(result, err), nil
	}

	result.Test.Metrics = testMetrics

	return result, nil
}

// score runs s over page, priming the session with the bars of df that
// precede row lo so look-back conditions see real history.
func (c *Coordinator) score(ctx context.Context, symbol string, s *strategy.Strategy, df *frame.Frame, lo int, page *frame.Frame) (types.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session := strategy.NewSession(s)
	if err := session.Prime(df.Slice(lo-s.Window()+1, lo)); err != nil {
		return nil, err
	}

	signals, err := session.Process(page)
	if err != nil {
		return nil, err
	}

	cfg := c.config.Signal
	cfg.Symbol = symbol

	res, err := executor.NewSignalExecutor(cfg, c.evaluator, c.logger).Execute(signals)
	if err != nil {
		return nil, err
	}

	return res.Metrics, nil
}

func (c *Coordinator) fail(result WindowResult, err error) WindowResult {
	result.Error = err.Error()
	result.Test.Metrics = c.worstMetrics()

	if result.Optimization.Metrics == nil {
		result.Optimization.Metrics = c.worstMetrics()
	}

	return result
}

func (c *Coordinator) worstMetrics() types.Metrics {
	m := make(types.Metrics, len(c.config.Objectives))
	for _, obj := range c.config.Objectives {
		m[obj.Metric] = obj.Direction.Worst()
	}

	return m
}

// span returns the row range [lo, hi) of df whose timestamps lie in [start, end].
func span(df *frame.Frame, start, end time.Time) (int, int) {
	index := df.Index()
	lo := sort.Search(len(index), func(i int) bool { return !index[i].Before(start) })
	hi := sort.Search(len(index), func(i int) bool { return index[i].After(end) })

	return lo, hi
}
