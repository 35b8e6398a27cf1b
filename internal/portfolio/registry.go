package portfolio

import (
	"slices"
	"sync"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Spec describes how to build an allocator kind from its parameters.
type Spec struct {
	Kind   Kind
	Params []condition.ParamSpec
	New    func(condition.Params) (Allocator, error)
}

func (s Spec) AllPossible() []Allocator {
	var out []Allocator
	for _, params := range condition.ParamGrid(s.Params) {
		a, err := s.New(params)
		if err != nil {
			continue
		}

		out = append(out, a)
	}

	return out
}

func (s Spec) Suggest(trial optimizer.Trial, prefix string) (Allocator, error) {
	params, err := condition.SuggestParams(trial, prefix, s.Params)
	if err != nil {
		return nil, err
	}

	return s.New(params)
}

// Build binds persisted values, e.g. allocation_params, and constructs the allocator.
func (s Spec) Build(values map[string]float64) (Allocator, error) {
	params, err := condition.BindParams(s.Params, values)
	if err != nil {
		return nil, err
	}

	return s.New(params)
}

var (
	windowSpec = condition.ParamSpec{Name: "window", Kind: condition.ParamInt, Low: 10, High: 60, Step: 10}
	// covariance allocators need more rows than assets to be well posed
	covWindow = condition.ParamSpec{Name: "window", Kind: condition.ParamInt, Low: 20, High: 60, Step: 20}
)

func flagSpec(name string) condition.ParamSpec {
	return condition.ParamSpec{Name: name, Kind: condition.ParamChoice, Choices: []float64{0, 1}}
}

func specs() []Spec {
	return []Spec{
		{
			Kind: KindEqualWeight,
			New:  func(condition.Params) (Allocator, error) { return EqualWeight{}, nil },
		},
		{
			Kind:   KindInverseVolatility,
			Params: []condition.ParamSpec{windowSpec},
			New: func(p condition.Params) (Allocator, error) {
				return NewInverseVolatility(p.Int("window"))
			},
		},
		{
			Kind:   KindVolatilityWeighted,
			Params: []condition.ParamSpec{windowSpec, flagSpec("inverse")},
			New: func(p condition.Params) (Allocator, error) {
				return NewVolatilityWeighted(p.Int("window"), p.Get("inverse") != 0)
			},
		},
		{
			Kind:   KindMomentum,
			Params: []condition.ParamSpec{windowSpec},
			New: func(p condition.Params) (Allocator, error) {
				return NewMomentum(p.Int("window"))
			},
		},
		{
			Kind:   KindRiskParity,
			Params: []condition.ParamSpec{covWindow},
			New: func(p condition.Params) (Allocator, error) {
				return NewRiskParity(p.Int("window"))
			},
		},
		{
			Kind:   KindMinimumVariance,
			Params: []condition.ParamSpec{covWindow},
			New: func(p condition.Params) (Allocator, error) {
				return NewMinimumVariance(p.Int("window"))
			},
		},
		{
			Kind: KindMeanVariance,
			Params: []condition.ParamSpec{
				covWindow,
				{Name: "risk_aversion", Kind: condition.ParamFloat, Low: 0.5, High: 5, Step: 0.5},
			},
			New: func(p condition.Params) (Allocator, error) {
				return NewMeanVariance(p.Int("window"), p.Get("risk_aversion"))
			},
		},
		{
			Kind: KindMaxSharpe,
			Params: []condition.ParamSpec{
				covWindow,
				{Name: "risk_free", Kind: condition.ParamFloat, Low: 0, High: 0},
			},
			New: func(p condition.Params) (Allocator, error) {
				return NewMaxSharpe(p.Int("window"), p.Get("risk_free"))
			},
		},
		{
			Kind:   KindWinnerTakesAll,
			Params: []condition.ParamSpec{flagSpec("cash_at_day_end")},
			New: func(p condition.Params) (Allocator, error) {
				return &WinnerTakesAll{CashAtDayEnd: p.Get("cash_at_day_end") != 0}, nil
			},
		},
	}
}

var (
	libraryOnce sync.Once
	library     map[Kind]Spec
	kinds       []Kind
)

func load() (map[Kind]Spec, []Kind) {
	libraryOnce.Do(func() {
		library = make(map[Kind]Spec)
		for _, s := range specs() {
			library[s.Kind] = s
			kinds = append(kinds, s.Kind)
		}
	})

	return library, kinds
}

// Get returns the spec of an allocator kind.
func Get(kind Kind) (Spec, error) {
	all, _ := load()

	s, ok := all[kind]
	if !ok {
		return Spec{}, errors.Newf(errors.ErrCodeUnsupportedStrategy, "allocator %s not found", kind)
	}

	return s, nil
}

// Kinds lists the allocator library in declaration order.
func Kinds() []Kind {
	_, all := load()

	return slices.Clone(all)
}

// Default builds an allocator kind with its default window.
func Default(kind Kind) (Allocator, error) {
	s, err := Get(kind)
	if err != nil {
		return nil, err
	}

	values := map[string]float64{}
	for _, p := range s.Params {
		switch p.Name {
		case "window":
			values[p.Name] = DefaultWindow
		case "risk_aversion":
			values[p.Name] = 1
		default:
			values[p.Name] = p.Values()[0]
		}
	}

	return s.Build(values)
}
