package condition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// ParamKind is the type of a condition parameter.
type ParamKind int

const (
	// ParamInt ranges over Low..High in Step increments.
	ParamInt ParamKind = iota
	// ParamFloat ranges over Low..High in Step increments.
	ParamFloat
	// ParamChoice takes one of Choices, e.g. the periods for which a feature column exists.
	ParamChoice
)

// ParamSpec declares one parameter and its admissible values.
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Low     float64
	High    float64
	Step    float64
	Choices []float64
}

// Values enumerates the admissible values in ascending order.
func (s ParamSpec) Values() []float64 {
	if s.Kind == ParamChoice {
		return append([]float64(nil), s.Choices...)
	}

	if s.Step <= 0 || s.High <= s.Low {
		return []float64{s.Low}
	}

	n := int(math.Floor((s.High-s.Low)/s.Step+1e-9)) + 1
	values := make([]float64, n)
	for k := range values {
		values[k] = optimizer.RoundStep(s.Low + float64(k)*s.Step)
	}

	return values
}

// Suggest draws the parameter from a trial under key.
func (s ParamSpec) Suggest(trial optimizer.Trial, key string) (float64, error) {
	switch s.Kind {
	case ParamInt:
		return float64(trial.SuggestInt(key, int(s.Low), int(s.High), max(1, int(s.Step)))), nil
	case ParamFloat:
		return trial.SuggestFloat(key, s.Low, s.High, s.Step), nil
	case ParamChoice:
		choices := make([]string, len(s.Choices))
		for i, c := range s.Choices {
			choices[i] = formatValue(c, ParamChoice)
		}

		v, err := strconv.ParseFloat(trial.SuggestCategorical(key, choices), 64)
		if err != nil {
			return 0, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid choice for %s", key)
		}

		return v, nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "unknown kind for parameter %s", s.Name)
	}
}

// Param is one bound parameter value.
type Param struct {
	Name  string
	Kind  ParamKind
	Value float64
}

// Params keeps the declared parameter order, which the ID depends on.
type Params []Param

// Get returns the named value, or NaN.
func (p Params) Get(name string) float64 {
	for _, param := range p {
		if param.Name == name {
			return param.Value
		}
	}

	return math.NaN()
}

// Int returns the named value as an int.
func (p Params) Int(name string) int {
	return int(p.Get(name))
}

// Map returns the parameters keyed by name. Integer kinds become ints.
func (p Params) Map() map[string]any {
	out := make(map[string]any, len(p))
	for _, param := range p {
		if param.Kind == ParamFloat {
			out[param.Name] = param.Value
		} else {
			out[param.Name] = int(param.Value)
		}
	}

	return out
}

func (p Params) String() string {
	parts := make([]string, len(p))
	for i, param := range p {
		parts[i] = param.Name + "=" + formatValue(param.Value, param.Kind)
	}

	return strings.Join(parts, ",")
}

// FormatID renders the stable fingerprint Kind(k1=v1,k2=v2).
func FormatID(kind Kind, params Params) string {
	return fmt.Sprintf("%s(%s)", kind, params)
}

func formatValue(v float64, kind ParamKind) string {
	if kind != ParamFloat && v == math.Trunc(v) {
		return strconv.Itoa(int(v))
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

func intParam(name string, v int) Param {
	return Param{Name: name, Kind: ParamInt, Value: float64(v)}
}

func floatParam(name string, v float64) Param {
	return Param{Name: name, Kind: ParamFloat, Value: v}
}

func choiceParam(name string, v int) Param {
	return Param{Name: name, Kind: ParamChoice, Value: float64(v)}
}
