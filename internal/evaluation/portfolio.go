package evaluation

import (
	"cmp"
	"context"
	"maps"
	"math"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/executor"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/metrics"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/internal/portfolio"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// ColumnExposure carries Exposure in a symbol's signal frame.
const ColumnExposure = "exposure"

type PortfolioConfig struct {
	// Allocators to evaluate; empty means the whole library.
	Allocators []portfolio.Kind        `yaml:"allocators" json:"allocators"`
	Executor   executor.PortfolioConfig `yaml:"executor" json:"executor"`
}

// AllocatorPrefix namespaces allocator parameters inside an optimizer trial.
const AllocatorPrefix = "alloc_"

// AllocatorWindow is one walk-forward window of an allocator: the parameters
// chosen on the train segment and the metrics they earned on the test segment.
type AllocatorWindow struct {
	Window     string         `json:"window"`
	BestParams map[string]any `json:"best_params,omitempty"`
	Train      types.Metrics  `json:"train_metrics,omitempty"`
	Test       types.Metrics  `json:"test_metrics,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// AllocatorEvaluation is one allocator optimised window by window over the
// universe. Metrics holds the mean test metrics of the successful windows and
// Params the most common best parameters.
type AllocatorEvaluation struct {
	Allocator         string             `json:"allocator"`
	Kind              portfolio.Kind     `json:"kind"`
	Params            map[string]any     `json:"params"`
	Metrics           types.Metrics      `json:"metrics,omitempty"`
	Summary           map[string]Summary `json:"summary,omitempty"`
	NWindows          int                `json:"n_windows"`
	NSucceededWindows int                `json:"n_succeeded_windows"`
	ParamConsistency  float64            `json:"param_consistency"`
	ViabilityScore    float64            `json:"viability_score"`
	IsViable          bool               `json:"is_viable"`
	Failures          int                `json:"failures"`
	MeanWeights       map[string]float64 `json:"mean_weights,omitempty"`
	Windows           []AllocatorWindow  `json:"windows,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// SymbolAllocation is one entry of the global recommendation.
type SymbolAllocation struct {
	RecommendedStrategy string         `json:"recommended_strategy"`
	ViabilityScore      float64        `json:"viability_score"`
	AllocationParams    map[string]any `json:"allocation_params"`
}

// PortfolioSummary maps each symbol to its recommendation.
type PortfolioSummary map[string]SymbolAllocation

// PortfolioInput is the universe as the allocators see it: one column per
// symbol on a shared index.
type PortfolioInput struct {
	Prices *frame.Frame
	// Exposure is 1 where the symbol's selected strategy holds a position.
	Exposure *frame.Frame
}

// universe is a row range of the portfolio input with its returns.
type universe struct {
	prices   *frame.Frame
	exposure *frame.Frame
	returns  *frame.Frame
}

// slice keeps rows [lo, hi).
func (u universe) slice(lo, hi int) universe {
	out := universe{
		prices:  u.prices.Slice(lo, hi),
		returns: u.returns.Slice(lo, hi),
	}

	if u.exposure != nil {
		out.exposure = u.exposure.Slice(lo, hi)
	}

	return out
}

// EvaluatePortfolio walks every allocator forward over the universe the same
// way strategies are walked: per window the allocator parameters are optimised
// on the train rows and the best ones are scored on the test rows. The
// allocator with the best cross-window evaluation is recommended, with its most
// common parameters, for each selected symbol.
func (a *Aggregator) EvaluatePortfolio(
	ctx context.Context,
	selections map[string]SymbolSummary,
	input PortfolioInput,
	config PortfolioConfig,
	wf walkforward.Config,
	ev *evaluator.Evaluator,
	recorder *metrics.Recorder,
) (PortfolioSummary, []AllocatorEvaluation, error) {
	if len(selections) == 0 {
		return nil, nil, errors.New(errors.ErrCodeDataNotFound, "no symbol selections to allocate")
	}

	if input.Prices == nil || input.Prices.Empty() {
		return nil, nil, errors.New(errors.ErrCodeInvalidInput, "portfolio prices are empty")
	}

	if wf.NTrials <= 0 || len(wf.Objectives) == 0 {
		return nil, nil, errors.New(errors.ErrCodeInvalidConfiguration, "allocator optimisation needs n_trials and at least one objective")
	}

	exec, err := executor.NewPortfolioExecutor(config.Executor, ev, a.logger)
	if err != nil {
		return nil, nil, err
	}

	returns, err := PctReturns(input.Prices)
	if err != nil {
		return nil, nil, err
	}

	windows, err := walkforward.GenerateWindows(input.Prices.Index(), wf.Windows)
	if err != nil {
		return nil, nil, err
	}

	if len(windows) == 0 {
		return nil, nil, errors.Newf(errors.ErrCodeInvalidWindow, "universe of %d rows holds no walk-forward window", input.Prices.Len())
	}

	u := universe{prices: input.Prices, exposure: input.Exposure, returns: returns}

	kinds := config.Allocators
	if len(kinds) == 0 {
		kinds = portfolio.Kinds()
	}

	evaluations := make([]AllocatorEvaluation, 0, len(kinds))
	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeCancellationRequested, "portfolio evaluation cancelled", err)
		}

		result, err := a.evaluateAllocator(ctx, kind, u, windows, wf, exec, recorder)
		if err != nil {
			if errors.IsCancellation(err) {
				return nil, nil, err
			}

			a.logger.Warn("Allocator failed", zap.String("allocator", string(kind)), zap.Error(err))
			result.Error = err.Error()
		}

		evaluations = append(evaluations, result)
	}

	best, ok := bestAllocator(evaluations)
	if !ok {
		return nil, evaluations, errors.New(errors.ErrCodeOptimizationFailure, "no allocator produced a portfolio")
	}

	a.logger.Info("Selected allocator",
		zap.String("allocator", best.Allocator),
		zap.Float64("viability_score", best.ViabilityScore),
		zap.Float64("param_consistency", best.ParamConsistency),
		zap.Float64("sharpe_ratio", best.Metrics.Get(types.MetricSharpeRatio)),
	)

	summary := make(PortfolioSummary, len(selections))
	for symbol, sel := range selections {
		params := map[string]any{
			"allocator":   string(best.Kind),
			"mean_weight": best.MeanWeights[symbol],
		}
		maps.Copy(params, best.Params)

		summary[symbol] = SymbolAllocation{
			RecommendedStrategy: sel.Strategy,
			ViabilityScore:      sel.ViabilityScore,
			AllocationParams:    params,
		}
	}

	return summary, evaluations, nil
}

// evaluateAllocator runs one allocator kind through every window and
// aggregates the successful ones. The allocator rebuilt from the most common
// best parameters is then run over the whole universe for its mean weights.
func (a *Aggregator) evaluateAllocator(
	ctx context.Context,
	kind portfolio.Kind,
	u universe,
	windows []types.Window,
	wf walkforward.Config,
	exec *executor.PortfolioExecutor,
	recorder *metrics.Recorder,
) (AllocatorEvaluation, error) {
	out := AllocatorEvaluation{Allocator: string(kind), Kind: kind, NWindows: len(windows)}

	spec, err := portfolio.Get(kind)
	if err != nil {
		return out, err
	}

	// every trial of a parameterless allocator is the same
	nTrials := wf.NTrials
	if len(spec.Params) == 0 {
		nTrials = 1
	}

	var succeeded []AllocatorWindow
	for _, w := range windows {
		result, err := a.allocatorWindow(ctx, spec, u, w, wf, nTrials, exec, recorder)
		if err != nil {
			if errors.IsCancellation(err) {
				return out, err
			}

			a.logger.Debug("Allocator window failed",
				zap.String("allocator", string(kind)),
				zap.String("window", result.Window),
				zap.Error(err),
			)

			result.Error = err.Error()
			recorder.WindowProcessed(string(kind), "failed")
		} else {
			succeeded = append(succeeded, result)
			recorder.WindowProcessed(string(kind), "ok")
		}

		out.Windows = append(out.Windows, result)
	}

	out.NSucceededWindows = len(succeeded)
	if len(succeeded) == 0 {
		return out, errors.Newf(errors.ErrCodeOptimizationFailure, "no window of %s succeeded out of %d", kind, len(windows))
	}

	samples := map[string][]float64{}
	best := make([]map[string]any, len(succeeded))
	for i, w := range succeeded {
		for name, v := range w.Test {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}

			samples[name] = append(samples[name], v)
		}

		best[i] = w.BestParams
	}

	out.Summary = make(map[string]Summary, len(samples))
	out.Metrics = make(types.Metrics, len(samples))
	for name, values := range samples {
		s := summarise(values)
		out.Summary[name] = s
		out.Metrics[name] = s.Mean
	}

	params, count, err := mostCommon(best)
	if err != nil {
		return out, err
	}

	out.ParamConsistency = float64(count) / float64(len(succeeded))
	out.ViabilityScore = a.Viability(out.Metrics)
	out.IsViable = a.IsViable(out.ViabilityScore)

	alloc, err := spec.Build(numeric(params))
	if err != nil {
		return out, err
	}

	out.Allocator = alloc.ID()
	out.Params = alloc.Params().Map()

	allocation, err := alloc.Allocate(u.exposure, u.returns)
	if err != nil {
		return out, err
	}

	out.Failures = len(allocation.Failures)
	recorder.AllocationFailures(alloc.ID(), out.Failures)

	out.MeanWeights = make(map[string]float64, len(allocation.Weights.Columns()))
	for _, symbol := range allocation.Weights.Columns() {
		out.MeanWeights[symbol] = stat.Mean(allocation.Weights.Float(symbol), nil)
	}

	return out, nil
}

// allocatorWindow optimises the allocator parameters on the train rows of w,
// rebuilds the best trial and scores it on the test rows. The test run sees
// the train rows as history so rolling allocators start warm.
func (a *Aggregator) allocatorWindow(
	ctx context.Context,
	spec portfolio.Spec,
	u universe,
	w types.Window,
	wf walkforward.Config,
	nTrials int,
	exec *executor.PortfolioExecutor,
	recorder *metrics.Recorder,
) (AllocatorWindow, error) {
	out := AllocatorWindow{Window: w.Key()}

	index := u.prices.Index()
	trainLo := position(index, w.TrainStart)
	testLo := position(index, w.TestStart)
	testHi := position(index, w.TestEnd) + 1
	train := u.slice(trainLo, testLo)

	opt, err := optimizer.New[portfolio.Allocator](
		func(trial optimizer.Trial) (portfolio.Allocator, error) {
			return spec.Suggest(trial, AllocatorPrefix)
		},
		func(_ context.Context, alloc portfolio.Allocator, _ *frame.Frame) (types.Metrics, error) {
			return simulate(alloc, train, 0, exec)
		},
		optimizer.Options{
			Objectives:   wf.Objectives,
			Seed:         wf.Seed + uint64(w.Index),
			TrialTimeout: wf.TrialTimeout,
			Logger:       a.logger,
			Recorder:     recorder,
		},
	)
	if err != nil {
		return out, err
	}

	res, err := opt.Optimize(ctx, string(spec.Kind), train.prices, nTrials)
	if err != nil {
		return out, err
	}

	out.Train = res.Metrics

	alloc, err := spec.Suggest(optimizer.NewFixedTrial(res.BestParams), AllocatorPrefix)
	if err != nil {
		return out, errors.Wrap(errors.ErrCodeOptimizationFailure, "cannot rebuild best allocator", err)
	}

	out.BestParams = alloc.Params().Map()

	test, err := simulate(alloc, u.slice(trainLo, testHi), testLo-trainLo, exec)
	if err != nil {
		return out, err
	}

	out.Test = test

	return out, nil
}

// simulate allocates over every row of u and executes from row from on.
func simulate(alloc portfolio.Allocator, u universe, from int, exec *executor.PortfolioExecutor) (types.Metrics, error) {
	allocation, err := alloc.Allocate(u.exposure, u.returns)
	if err != nil {
		return nil, err
	}

	n := u.prices.Len()
	result, err := exec.Execute(u.prices.Slice(from, n), allocation.Weights.Slice(from, n))
	if err != nil {
		return nil, err
	}

	return result.Metrics, nil
}

// position is the first row at or after t.
func position(index []time.Time, t time.Time) int {
	return sort.Search(len(index), func(k int) bool { return !index[k].Before(t) })
}

// numeric converts a parameter map read from a window back to plain values.
func numeric(params map[string]any) map[string]float64 {
	out := make(map[string]float64, len(params))
	for name, v := range params {
		switch x := v.(type) {
		case int:
			out[name] = float64(x)
		case float64:
			out[name] = x
		}
	}

	return out
}

// bestAllocator ranks by viability score, then sharpe ratio, then ID.
func bestAllocator(evaluations []AllocatorEvaluation) (AllocatorEvaluation, bool) {
	candidates := slices.DeleteFunc(slices.Clone(evaluations), func(e AllocatorEvaluation) bool {
		return e.Error != "" || e.Metrics == nil
	})

	if len(candidates) == 0 {
		return AllocatorEvaluation{}, false
	}

	slices.SortStableFunc(candidates, func(x, y AllocatorEvaluation) int {
		if c := cmp.Compare(y.ViabilityScore, x.ViabilityScore); c != 0 {
			return c
		}

		if c := cmp.Compare(finite(y.Metrics.Get(types.MetricSharpeRatio)), finite(x.Metrics.Get(types.MetricSharpeRatio))); c != 0 {
			return c
		}

		return cmp.Compare(x.Allocator, y.Allocator)
	})

	return candidates[0], true
}

func finite(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(-1)
	}

	return v
}

// Align joins one column of every symbol's frame on the timestamps they all
// share. The result has one column per symbol.
func Align(series map[string]*frame.Frame, column string) (*frame.Frame, error) {
	if len(series) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no series to align")
	}

	symbols := slices.Sorted(maps.Keys(series))

	var common []time.Time
	for i, symbol := range symbols {
		f := series[symbol]
		if f == nil || !f.Has(column) {
			return nil, errors.Newf(errors.ErrCodeSchemaViolation, "%s has no %s column", symbol, column)
		}

		if i == 0 {
			common = slices.Clone(f.Index())
			continue
		}

		common = slices.DeleteFunc(common, func(t time.Time) bool {
			idx := f.Index()
			j := sort.Search(len(idx), func(k int) bool { return !idx[k].Before(t) })

			return j == len(idx) || !idx[j].Equal(t)
		})
	}

	columns := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		f := series[symbol]
		idx := f.Index()
		values := f.Float(column)
		out := make([]float64, len(common))
		for i, t := range common {
			out[i] = values[sort.Search(len(idx), func(k int) bool { return !idx[k].Before(t) })]
		}

		columns[symbol] = out
	}

	return frame.FromColumns(common, columns)
}

// PctReturns returns the simple return of every column; the first row is NaN.
func PctReturns(prices *frame.Frame) (*frame.Frame, error) {
	out := frame.New(prices.Index())
	for _, name := range prices.Columns() {
		p := prices.Float(name)
		r := frame.NaNs(len(p))
		for i := 1; i < len(p); i++ {
			r[i] = p[i]/p[i-1] - 1
		}

		if err := out.SetFloat(name, r); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Exposure reads a signal frame and returns 1 on the bars a long position is
// held, from the entry bar up to the bar before the exit.
func Exposure(signals *frame.Frame) ([]float64, error) {
	if err := signals.Require(types.ColumnEntrySignal, types.ColumnExitSignal); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSchemaViolation, "signals lack entry/exit columns", err)
	}

	entries := signals.Text(types.ColumnEntrySignal)
	exits := signals.Text(types.ColumnExitSignal)

	out := make([]float64, signals.Len())
	held := false
	for i := range out {
		switch {
		case held && types.Signal(exits[i]) == types.SignalSell:
			held = false
		case !held && types.Signal(entries[i]) == types.SignalBuy:
			held = true
		}

		if held {
			out[i] = 1
		}
	}

	return out, nil
}

func WritePortfolioSummary(path string, summary PortfolioSummary) error {
	return stage.WriteJSON(path, summary)
}

func ReadPortfolioSummary(path string) (PortfolioSummary, error) {
	var summary PortfolioSummary
	err := stage.ReadJSON(path, &summary)

	return summary, err
}

func WriteAllocatorEvaluations(path string, evaluations []AllocatorEvaluation) error {
	return stage.WriteJSON(path, evaluations)
}
