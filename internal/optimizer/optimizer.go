package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/metrics"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// SuggestFunc builds a candidate from a trial.
type SuggestFunc[T any] func(trial Trial) (T, error)

// BacktestFunc scores a candidate on a frame.
type BacktestFunc[T any] func(ctx context.Context, candidate T, df *frame.Frame) (types.Metrics, error)

// Options configures an Optimizer.
type Options struct {
	Objectives []Objective
	Seed       uint64
	// TrialTimeout bounds the wall clock time of one trial. Zero disables it.
	TrialTimeout time.Duration
	Logger       *logger.Logger
	Recorder     *metrics.Recorder
}

// Optimizer runs a study of n trials over one training frame.
type Optimizer[T any] struct {
	suggest  SuggestFunc[T]
	backtest BacktestFunc[T]
	options  Options
	logger   *logger.Logger
}

// ParetoPoint is one member of a multi-objective front.
type ParetoPoint struct {
	Params  map[string]any `json:"params"`
	Metrics types.Metrics  `json:"metrics"`
}

// Result is the outcome of Optimize.
type Result struct {
	BestParams  map[string]any `json:"best_params"`
	BestValue   float64        `json:"-"`
	Metrics     types.Metrics  `json:"metrics"`
	ParetoFront []ParetoPoint  `json:"pareto_front,omitempty"`
	Trials      []FrozenTrial  `json:"-"`
}

func New[T any](suggest SuggestFunc[T], backtest BacktestFunc[T], options Options) (*Optimizer[T], error) {
	if suggest == nil || backtest == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "optimizer needs a suggest and a backtest function")
	}

	if len(options.Objectives) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "optimizer needs at least one objective")
	}

	log := options.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Optimizer[T]{
		suggest:  suggest,
		backtest: backtest,
		options:  options,
		logger:   log,
	}, nil
}

// Optimize runs nTrials trials on df. Failed, timed out and NaN trials score
// the worst admissible value. The returned error is OptimizationFailure when
// no trial produced a usable value; the result is still filled in so the
// caller can record it. Cancellation of ctx aborts between trials.
func (o *Optimizer[T]) Optimize(ctx context.Context, symbol string, df *frame.Frame, nTrials int) (Result, error) {
	if nTrials <= 0 {
		return Result{}, errors.Newf(errors.ErrCodeInvalidParameter, "n_trials must be positive, got %d", nTrials)
	}

	study := NewStudy(o.options.Objectives, NewRandomSampler(o.options.Seed))
	log := o.logger.With(zap.String("symbol", symbol))

	for i := 0; i < nTrials; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, errors.Wrap(errors.ErrCodeCancellationRequested, "optimization cancelled", err)
		}

		trial := study.Ask()
		m, state, err := o.runTrial(ctx, trial, df)
		if ctx.Err() != nil {
			return Result{}, errors.Wrap(errors.ErrCodeCancellationRequested, "optimization cancelled", ctx.Err())
		}

		frozen := study.Tell(trial, m, state, err)
		o.options.Recorder.TrialFinished(string(state), frozen.Duration)

		if err != nil {
			log.Debug("trial failed",
				zap.Int("trial", frozen.Number),
				zap.String("state", string(state)),
				zap.Error(err),
			)
		}
	}

	return o.result(study)
}

func (o *Optimizer[T]) runTrial(ctx context.Context, trial *LiveTrial, df *frame.Frame) (types.Metrics, TrialState, error) {
	candidate, err := o.suggest(trial)
	if err != nil {
		return nil, TrialFailed, err
	}

	trialCtx := ctx
	if o.options.TrialTimeout > 0 {
		var cancel context.CancelFunc
		trialCtx, cancel = context.WithTimeout(ctx, o.options.TrialTimeout)
		defer cancel()
	}

	type outcome struct {
		metrics types.Metrics
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Newf(errors.ErrCodeInternalError, "trial panicked: %v", r)}
			}
		}()

		m, err := o.backtest(trialCtx, candidate, df)
		done <- outcome{metrics: m, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if trialCtx.Err() != nil && ctx.Err() == nil {
				return nil, TrialTimeout, errors.Wrap(errors.ErrCodeTrialTimeout, "trial timed out", out.err)
			}

			return out.metrics, TrialFailed, out.err
		}

		return out.metrics, TrialComplete, nil
	case <-trialCtx.Done():
		if ctx.Err() != nil {
			return nil, TrialFailed, ctx.Err()
		}

		return nil, TrialTimeout, errors.Newf(errors.ErrCodeTrialTimeout, "trial exceeded %s", o.options.TrialTimeout)
	}
}

func (o *Optimizer[T]) result(study *Study) (Result, error) {
	best, err := study.BestTrial()
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeOptimizationFailure, "no trials were run", err)
	}

	res := Result{
		BestParams: best.Params,
		BestValue:  best.Values[0],
		Metrics:    best.Metrics,
		Trials:     study.Trials(),
	}

	if res.Metrics == nil {
		res.Metrics = worstMetrics(o.options.Objectives)
	}

	if len(o.options.Objectives) > 1 {
		for _, t := range study.ParetoFront() {
			m := t.Metrics
			if m == nil {
				m = worstMetrics(o.options.Objectives)
			}

			res.ParetoFront = append(res.ParetoFront, ParetoPoint{Params: t.Params, Metrics: m})
		}
	}

	if best.State != TrialComplete || math.IsInf(best.Values[0], 0) {
		res.Metrics = res.Metrics.Clone()
		for k, v := range worstMetrics(o.options.Objectives) {
			res.Metrics[k] = v
		}

		return res, errors.Newf(errors.ErrCodeOptimizationFailure,
			"no usable trial out of %d: %s", len(res.Trials), describeFailure(best))
	}

	return res, nil
}

func worstMetrics(objectives []Objective) types.Metrics {
	m := make(types.Metrics, len(objectives))
	for _, obj := range objectives {
		m[obj.Metric] = obj.Direction.Worst()
	}

	return m
}

func describeFailure(t FrozenTrial) string {
	if t.Error != "" {
		return t.Error
	}

	return fmt.Sprintf("objective value %v", t.Values[0])
}
