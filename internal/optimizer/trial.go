// Package optimizer implements the hyper-parameter search used on walk-forward
// training windows: a study of trials drawn by a sampler, scored by one or
// more objectives, with failures recorded at the worst admissible value.
package optimizer

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Trial hands out parameter values. Asking twice for the same name returns
// the value drawn the first time.
type Trial interface {
	SuggestInt(name string, low, high, step int) int
	SuggestFloat(name string, low, high, step float64) float64
	SuggestCategorical(name string, choices []string) string
}

// TrialState is the outcome of a finished trial.
type TrialState string

const (
	TrialComplete TrialState = "complete"
	TrialFailed   TrialState = "failed"
	TrialTimeout  TrialState = "timeout"
)

// FrozenTrial is the record of a finished trial.
type FrozenTrial struct {
	Number int            `json:"number"`
	Params map[string]any `json:"params"`
	// Values are the objective values. They may be infinite, so only
	// Metrics is serialised.
	Values   []float64     `json:"-"`
	Metrics  types.Metrics `json:"metrics,omitempty"`
	State    TrialState    `json:"state"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// LiveTrial is a trial being run by a study. Values come from the study's sampler.
type LiveTrial struct {
	number  int
	sampler Sampler
	params  map[string]any
	started time.Time
}

func (t *LiveTrial) Number() int {
	return t.number
}

// Params returns a copy of the parameters drawn so far.
func (t *LiveTrial) Params() map[string]any {
	return maps.Clone(t.params)
}

func (t *LiveTrial) SuggestInt(name string, low, high, step int) int {
	if v, ok := t.params[name].(int); ok {
		return v
	}

	v := t.sampler.SampleInt(name, low, high, step)
	t.params[name] = v

	return v
}

func (t *LiveTrial) SuggestFloat(name string, low, high, step float64) float64 {
	if v, ok := t.params[name].(float64); ok {
		return v
	}

	v := t.sampler.SampleFloat(name, low, high, step)
	t.params[name] = v

	return v
}

func (t *LiveTrial) SuggestCategorical(name string, choices []string) string {
	if v, ok := t.params[name].(string); ok {
		return v
	}

	v := t.sampler.SampleCategorical(name, choices)
	t.params[name] = v

	return v
}

// FixedTrial replays a stored parameter map, for instance the best_params of
// a window read back from JSON. Numbers may arrive as float64 or json.Number.
// Names absent from the map are collected and reported by Err.
type FixedTrial struct {
	params  map[string]any
	missing []string
	invalid []string
}

func NewFixedTrial(params map[string]any) *FixedTrial {
	return &FixedTrial{params: params}
}

func (t *FixedTrial) SuggestInt(name string, low, high, step int) int {
	raw, ok := t.params[name]
	if !ok {
		t.missing = append(t.missing, name)
		return low
	}

	f, ok := toFloat(raw)
	if !ok || f != math.Trunc(f) {
		t.invalid = append(t.invalid, name)
		return low
	}

	return int(f)
}

func (t *FixedTrial) SuggestFloat(name string, low, high, step float64) float64 {
	raw, ok := t.params[name]
	if !ok {
		t.missing = append(t.missing, name)
		return low
	}

	f, ok := toFloat(raw)
	if !ok {
		t.invalid = append(t.invalid, name)
		return low
	}

	return f
}

func (t *FixedTrial) SuggestCategorical(name string, choices []string) string {
	raw, ok := t.params[name]
	if !ok {
		t.missing = append(t.missing, name)
		return choices[0]
	}

	v := fmt.Sprint(raw)
	for _, c := range choices {
		if c == v {
			return c
		}
	}

	t.invalid = append(t.invalid, name)

	return choices[0]
}

// Err reports parameters that were asked for but missing or malformed.
func (t *FixedTrial) Err() error {
	if len(t.missing) == 0 && len(t.invalid) == 0 {
		return nil
	}

	sort.Strings(t.missing)
	sort.Strings(t.invalid)

	return errors.Newf(errors.ErrCodeInvalidParameter, "fixed trial: missing params %v, invalid params %v", t.missing, t.invalid)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
