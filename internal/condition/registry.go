package condition

import (
	"slices"
	"sync"

	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Spec describes how to build a condition kind from its parameters.
type Spec struct {
	Kind   Kind
	Params []ParamSpec
	New    func(Params) (Condition, error)
}

// Grid enumerates the cartesian product of the parameter values.
func (s Spec) Grid() []Params {
	return ParamGrid(s.Params)
}

// AllPossible builds every valid grid member. Combinations the constructor
// rejects, e.g. a fast period not below the slow one, are skipped.
func (s Spec) AllPossible() []Condition {
	var out []Condition
	for _, params := range s.Grid() {
		c, err := s.New(params)
		if err != nil {
			continue
		}

		out = append(out, c)
	}

	return out
}

// Suggest draws every parameter under prefix+name and builds the condition.
func (s Spec) Suggest(trial optimizer.Trial, prefix string) (Condition, error) {
	params, err := SuggestParams(trial, prefix, s.Params)
	if err != nil {
		return nil, err
	}

	return s.New(params)
}

// ParamGrid enumerates the cartesian product of the declared values. The last
// parameter varies fastest.
func ParamGrid(specs []ParamSpec) []Params {
	grid := [][]float64{{}}
	for _, p := range specs {
		next := make([][]float64, 0, len(grid)*len(p.Values()))
		for _, prefix := range grid {
			for _, v := range p.Values() {
				next = append(next, append(slices.Clone(prefix), v))
			}
		}

		grid = next
	}

	out := make([]Params, len(grid))
	for i, values := range grid {
		out[i] = bind(specs, values)
	}

	return out
}

// SuggestParams draws every parameter from trial under prefix+name.
func SuggestParams(trial optimizer.Trial, prefix string, specs []ParamSpec) (Params, error) {
	values := make([]float64, len(specs))
	for i, p := range specs {
		v, err := p.Suggest(trial, prefix+p.Name)
		if err != nil {
			return nil, err
		}

		values[i] = v
	}

	// fixed trials report missing parameters after the fact
	if replay, ok := trial.(interface{ Err() error }); ok {
		if err := replay.Err(); err != nil {
			return nil, err
		}
	}

	return bind(specs, values), nil
}

// BindParams binds named values, e.g. a persisted parameter map, in declared order.
func BindParams(specs []ParamSpec, values map[string]float64) (Params, error) {
	bound := make([]float64, len(specs))
	for i, p := range specs {
		v, ok := values[p.Name]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "missing parameter %s", p.Name)
		}

		bound[i] = v
	}

	return bind(specs, bound), nil
}

func bind(specs []ParamSpec, values []float64) Params {
	params := make(Params, len(specs))
	for i, p := range specs {
		params[i] = Param{Name: p.Name, Kind: p.Kind, Value: values[i]}
	}

	return params
}

// Registry maps condition kinds to their specs.
type Registry struct {
	specs map[Kind]Spec
	order []Kind
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[Kind]Spec)}
}

// DefaultRegistry returns a registry holding the full condition library.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	var specs []Spec
	specs = append(specs, rsiBelowSpec(), rsiAboveSpec())
	specs = append(specs, macdCrossSpecs()...)
	specs = append(specs, maCrossSpecs()...)
	specs = append(specs, bollingerSpecs()...)
	specs = append(specs, priceSMASpecs()...)
	specs = append(specs, smaSlopeSpec(), volumeSurgeSpec(), volatilityRegimeSpec())
	specs = append(specs, timeOfDaySpec(), dayOfWeekSpec(), vwapReversionSpec(), returnDropSpec())

	for _, s := range specs {
		// kinds are unique in the library
		_ = r.Register(s)
	}

	return r
}

func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Kind]; exists {
		return errors.Newf(errors.ErrCodeConditionExists, "condition %s already registered", spec.Kind)
	}

	r.specs[spec.Kind] = spec
	r.order = append(r.order, spec.Kind)

	return nil
}

func (r *Registry) Get(kind Kind) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, exists := r.specs[kind]
	if !exists {
		return Spec{}, errors.Newf(errors.ErrCodeConditionNotFound, "condition %s not found", kind)
	}

	return spec, nil
}

// List returns the kinds in registration order.
func (r *Registry) List() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

func (r *Registry) Remove(kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[kind]; !exists {
		return errors.Newf(errors.ErrCodeConditionNotFound, "condition %s not found", kind)
	}

	delete(r.specs, kind)
	r.order = slices.DeleteFunc(r.order, func(k Kind) bool { return k == kind })

	return nil
}

func (r *Registry) Grid(kind Kind) ([]Params, error) {
	spec, err := r.Get(kind)
	if err != nil {
		return nil, err
	}

	return spec.Grid(), nil
}

func (r *Registry) AllPossible(kind Kind) ([]Condition, error) {
	spec, err := r.Get(kind)
	if err != nil {
		return nil, err
	}

	return spec.AllPossible(), nil
}

func (r *Registry) Suggest(kind Kind, trial optimizer.Trial, prefix string) (Condition, error) {
	spec, err := r.Get(kind)
	if err != nil {
		return nil, err
	}

	return spec.Suggest(trial, prefix)
}

// Build constructs a condition from named values.
func (r *Registry) Build(kind Kind, values map[string]float64) (Condition, error) {
	spec, err := r.Get(kind)
	if err != nil {
		return nil, err
	}

	params, err := BindParams(spec.Params, values)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "cannot build %s", kind)
	}

	return spec.New(params)
}
