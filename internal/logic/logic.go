// Package logic holds stateful rules evaluated row by row after the condition
// masks are known. A logic may suppress an entry or synthesise an exit.
package logic

import (
	"math"
	"slices"
	"sync"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type Kind string

const (
	KindTrailingStop  Kind = "TrailingStop"
	KindMeanReversion Kind = "MeanReversion"
	KindMACDTrailing  Kind = "MACDTrailing"
)

// Masks are the combined condition masks of a strategy for one frame.
type Masks struct {
	Entry  []bool
	Exit   []bool
	Trend  []bool
	Filter []bool
}

// State is owned by the logic and reset between backtests.
type State map[string]float64

// Clone copies the state so a caller can keep a snapshot.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}

	return out
}

func (s State) flag(name string) bool {
	return s[name] != 0
}

func (s State) set(name string, on bool) {
	if on {
		s[name] = 1
	} else {
		s[name] = 0
	}
}

const (
	stateInPosition   = "in_position"
	stateTrailingHigh = "trailing_high"
	stateTrailingStop = "trailing_stop"
	stateEntryPrice   = "entry_price"
	stateCooldown     = "cooldown"
)

// Logic is an immutable, parameterised stateful rule.
type Logic interface {
	Kind() Kind
	ID() string
	Params() condition.Params
	RequiredColumns() []string
	NewState() State
	// Step decides the signals of row i. The returned state replaces the one passed in.
	Step(i int, f *frame.Frame, masks Masks, state State) (entry, exit bool, next State)
}

// Spec describes how to build a logic kind.
type Spec struct {
	Kind   Kind
	Params []condition.ParamSpec
	New    func(condition.Params) (Logic, error)
}

func (s Spec) AllPossible() []Logic {
	var out []Logic
	for _, params := range condition.ParamGrid(s.Params) {
		l, err := s.New(params)
		if err != nil {
			continue
		}

		out = append(out, l)
	}

	return out
}

func (s Spec) Suggest(trial optimizer.Trial, prefix string) (Logic, error) {
	params, err := condition.SuggestParams(trial, prefix, s.Params)
	if err != nil {
		return nil, err
	}

	return s.New(params)
}

var (
	specsOnce sync.Once
	specs     map[Kind]Spec
	order     []Kind
)

func library() (map[Kind]Spec, []Kind) {
	specsOnce.Do(func() {
		specs = make(map[Kind]Spec)
		for _, s := range []Spec{trailingStopSpec(), meanReversionSpec(), macdTrailingSpec()} {
			specs[s.Kind] = s
			order = append(order, s.Kind)
		}
	})

	return specs, order
}

// Get returns the spec of a logic kind.
func Get(kind Kind) (Spec, error) {
	all, _ := library()

	s, ok := all[kind]
	if !ok {
		return Spec{}, errors.Newf(errors.ErrCodeConditionNotFound, "logic %s not found", kind)
	}

	return s, nil
}

// Kinds lists the logic library.
func Kinds() []Kind {
	_, kinds := library()

	return slices.Clone(kinds)
}

// Run steps the logic over every row of f starting from a fresh state.
func Run(l Logic, f *frame.Frame, masks Masks) (entry, exit []bool, err error) {
	if err := f.Require(l.RequiredColumns()...); err != nil {
		return nil, nil, err
	}

	entry = make([]bool, f.Len())
	exit = make([]bool, f.Len())
	state := l.NewState()
	for i := 0; i < f.Len(); i++ {
		entry[i], exit[i], state = l.Step(i, f, masks, state)
	}

	return entry, exit, nil
}

func at(mask []bool, i int) bool {
	return i < len(mask) && mask[i]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
