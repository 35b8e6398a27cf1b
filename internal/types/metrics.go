package types

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Metric names produced by the evaluators.
const (
	MetricTotalReturn    = "total_return"
	MetricSharpeRatio    = "sharpe_ratio"
	MetricSortinoRatio   = "sortino_ratio"
	MetricMaxDrawdown    = "max_drawdown"
	MetricWinRate        = "win_rate"
	MetricProfitFactor   = "profit_factor"
	MetricAvgTradeReturn = "avg_trade_return"
	MetricNTrades        = "n_trades"
	MetricCAGR           = "cagr"
)

var metricAliases = map[string]string{
	"sharpe":   MetricSharpeRatio,
	"sortino":  MetricSortinoRatio,
	"drawdown": MetricMaxDrawdown,
	"return":   MetricTotalReturn,
	"CAGR":     MetricCAGR,
}

// CanonicalMetric resolves short metric aliases such as "sharpe".
func CanonicalMetric(name string) string {
	if canonical, ok := metricAliases[name]; ok {
		return canonical
	}

	return name
}

// Direction is the optimisation direction of a metric.
type Direction string

const (
	DirectionMaximize Direction = "maximize"
	DirectionMinimize Direction = "minimize"
)

// Worst returns the worst admissible value for the direction.
func (d Direction) Worst() float64 {
	if d == DirectionMinimize {
		return math.Inf(1)
	}

	return math.Inf(-1)
}

// Better reports whether a is strictly better than b.
func (d Direction) Better(a, b float64) bool {
	if d == DirectionMinimize {
		return a < b
	}

	return a > b
}

// Metrics is a metric dictionary. Non-finite values survive JSON round trips
// as the strings "inf", "-inf" and "nan".
type Metrics map[string]float64

// Names returns the metric names sorted.
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Get returns the metric or NaN when absent. Aliases are resolved.
func (m Metrics) Get(name string) float64 {
	v, ok := m[CanonicalMetric(name)]
	if !ok {
		return math.NaN()
	}

	return v
}

// Clone copies the dictionary.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case math.IsNaN(v):
			raw[k] = "nan"
		case math.IsInf(v, 1):
			raw[k] = "inf"
		case math.IsInf(v, -1):
			raw[k] = "-inf"
		default:
			raw[k] = v
		}
	}

	return json.Marshal(raw)
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Metrics, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case float64:
			out[k] = x
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return err
			}

			out[k] = f
		case nil:
			out[k] = math.NaN()
		}
	}

	*m = out

	return nil
}
