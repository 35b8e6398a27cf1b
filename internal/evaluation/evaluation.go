// Package evaluation aggregates walk-forward results: per strategy across
// windows, per symbol across strategies, and across the universe for the
// portfolio allocators.
package evaluation

import (
	"encoding/json"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// DefaultViabilityCutoff is the score from which a strategy is viable.
const DefaultViabilityCutoff = 0.75

// DefaultThresholds returns the viability thresholds. max_drawdown is an
// upper bound, the others are lower bounds.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		types.MetricTotalReturn: 0.05,
		types.MetricSharpeRatio: 0.5,
		types.MetricWinRate:     0.5,
		types.MetricMaxDrawdown: 0.5,
	}
}

type Config struct {
	Thresholds map[string]float64 `yaml:"thresholds" json:"thresholds"`
	// UpperBounded lists the threshold metrics a mean must not exceed.
	UpperBounded    []string `yaml:"upper_bounded" json:"upper_bounded"`
	ViabilityCutoff float64  `yaml:"viability_cutoff" json:"viability_cutoff" default:"0.75" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		Thresholds:      DefaultThresholds(),
		UpperBounded:    []string{types.MetricMaxDrawdown},
		ViabilityCutoff: DefaultViabilityCutoff,
	}
}

// Summary describes one metric across windows.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// StrategyEvaluation is the content of evaluation_result.json. NWindows
// counts every window result aggregated, failed ones included.
type StrategyEvaluation struct {
	Summary              map[string]Summary `json:"summary"`
	NWindows             int                `json:"n_windows"`
	NSucceededWindows    int                `json:"n_succeeded_windows"`
	NFailedWindows       int                `json:"n_failed_windows"`
	ViabilityScore       float64            `json:"viability_score"`
	IsViable             bool               `json:"is_viable"`
	MostCommonBestParams map[string]any     `json:"most_common_best_params"`
	ParamConsistency     float64            `json:"param_consistency"`
	WindowParams         []map[string]any   `json:"window_params"`
}

// Aggregator scores strategies against the viability thresholds.
type Aggregator struct {
	thresholds   map[string]float64
	upperBounded map[string]bool
	cutoff       float64
	logger       *logger.Logger
}

func NewAggregator(config Config, log *logger.Logger) (*Aggregator, error) {
	if config.Thresholds == nil {
		defaults := DefaultConfig()
		config.Thresholds = defaults.Thresholds
		config.UpperBounded = defaults.UpperBounded
		if config.ViabilityCutoff == 0 {
			config.ViabilityCutoff = defaults.ViabilityCutoff
		}
	}

	if config.ViabilityCutoff < 0 || config.ViabilityCutoff > 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "viability_cutoff must lie in [0, 1], got %v", config.ViabilityCutoff)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	a := &Aggregator{
		thresholds:   make(map[string]float64, len(config.Thresholds)),
		upperBounded: make(map[string]bool, len(config.UpperBounded)),
		cutoff:       config.ViabilityCutoff,
		logger:       log.Named("evaluation"),
	}

	for name, v := range config.Thresholds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "threshold %s must be finite", name)
		}

		a.thresholds[types.CanonicalMetric(name)] = v
	}

	for _, name := range config.UpperBounded {
		a.upperBounded[types.CanonicalMetric(name)] = true
	}

	return a, nil
}

// Viability is the fraction of thresholds met by the given metric values,
// counting only the thresholds whose metric is present and finite.
func (a *Aggregator) Viability(values map[string]float64) float64 {
	considered, met := 0, 0
	for name, threshold := range a.thresholds {
		v, ok := values[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		considered++
		if a.upperBounded[name] && v <= threshold || !a.upperBounded[name] && v >= threshold {
			met++
		}
	}

	if considered == 0 {
		return 0
	}

	return float64(met) / float64(considered)
}

func (a *Aggregator) IsViable(score float64) bool {
	return score >= a.cutoff
}

// EvaluateWindows aggregates the test metrics of every successful window.
// Failed windows are counted in NWindows and NFailedWindows but contribute
// neither metrics nor parameters.
func (a *Aggregator) EvaluateWindows(results walkforward.Results) (StrategyEvaluation, error) {
	ok := results.Succeeded()
	out := StrategyEvaluation{
		Summary:              map[string]Summary{},
		NWindows:             len(results),
		NSucceededWindows:    len(ok),
		NFailedWindows:       len(results) - len(ok),
		MostCommonBestParams: map[string]any{},
		WindowParams:         make([]map[string]any, 0, len(ok)),
	}

	if len(ok) == 0 {
		return out, nil
	}

	samples := map[string][]float64{}
	for _, w := range ok {
		for name, v := range w.Test.Metrics {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}

			samples[name] = append(samples[name], v)
		}

		out.WindowParams = append(out.WindowParams, w.Optimization.BestParams)
	}

	means := make(map[string]float64, len(samples))
	for name, values := range samples {
		s := summarise(values)
		out.Summary[name] = s
		means[name] = s.Mean
	}

	params, count, err := mostCommon(out.WindowParams)
	if err != nil {
		return StrategyEvaluation{}, err
	}

	out.MostCommonBestParams = params
	out.ParamConsistency = float64(count) / float64(out.NSucceededWindows)
	out.ViabilityScore = a.Viability(means)
	out.IsViable = a.IsViable(out.ViabilityScore)

	return out, nil
}

func summarise(values []float64) Summary {
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}

	return Summary{
		Mean: mean,
		Std:  std,
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}

// mostCommon returns the most frequent parameter map and its count. Maps are
// compared through their JSON encoding, which orders keys; ties go to the
// earliest window.
func mostCommon(params []map[string]any) (map[string]any, int, error) {
	counts := map[string]int{}
	var order []string
	first := map[string]map[string]any{}

	for _, p := range params {
		key, err := json.Marshal(p)
		if err != nil {
			return nil, 0, errors.Wrap(errors.ErrCodeInternalError, "cannot fingerprint best params", err)
		}

		k := string(key)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
			first[k] = p
		}

		counts[k]++
	}

	best := slices.MaxFunc(order, func(a, b string) int { return counts[a] - counts[b] })

	return first[best], counts[best], nil
}
