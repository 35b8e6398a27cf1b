package walkforward

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// ResultFile is the name of the per (symbol, strategy) window result file.
const ResultFile = "optimization_result.json"

// Optimization is what the train segment produced.
type Optimization struct {
	BestParams  map[string]any          `json:"best_params"`
	Metrics     types.Metrics           `json:"metrics"`
	ParetoFront []optimizer.ParetoPoint `json:"pareto_front,omitempty"`
}

// Test holds the metrics of the rebuilt strategy on the test segment.
type Test struct {
	Metrics types.Metrics `json:"metrics"`
}

// WindowResult is one entry of the result file.
type WindowResult struct {
	Window       types.Window `json:"window"`
	Optimization Optimization `json:"optimization"`
	Test         Test         `json:"test"`
	// Error is set when the window could not be optimised or tested.
	Error string `json:"error,omitempty"`
}

func (r WindowResult) Failed() bool {
	return r.Error != ""
}

// Results is the content of a result file: window_<i> keys in window order.
type Results []WindowResult

func (r Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, w := range r {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(w.Window.Key())
		if err != nil {
			return nil, err
		}

		value, err := json.Marshal(w)
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (r *Results) UnmarshalJSON(data []byte) error {
	var raw map[string]WindowResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Results, 0, len(raw))
	for key, w := range raw {
		i, err := parseWindowKey(key)
		if err != nil {
			return err
		}

		w.Window.Index = i
		out = append(out, w)
	}

	out.sort()
	*r = out

	return nil
}

func (r Results) sort() {
	slices.SortFunc(r, func(a, b WindowResult) int { return a.Window.Index - b.Window.Index })
}

func parseWindowKey(key string) (int, error) {
	suffix, ok := strings.CutPrefix(key, "window_")
	if !ok {
		return 0, fmt.Errorf("unexpected window key %q", key)
	}

	i, err := strconv.Atoi(suffix)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("unexpected window key %q", key)
	}

	return i, nil
}

// Succeeded returns the windows that carry test metrics.
func (r Results) Succeeded() Results {
	out := make(Results, 0, len(r))
	for _, w := range r {
		if !w.Failed() {
			out = append(out, w)
		}
	}

	return out
}

func WriteResults(path string, results Results) error {
	return stage.WriteJSON(path, results)
}

func ReadResults(path string) (Results, error) {
	var results Results
	if err := stage.ReadJSON(path, &results); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, errors.Newf(errors.ErrCodeSchemaViolation, "%s has no windows", path)
	}

	return results, nil
}
