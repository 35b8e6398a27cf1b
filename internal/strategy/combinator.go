package strategy

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logic"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

const (
	// NoneChoice is the categorical value of a slot left empty.
	NoneChoice = "none"

	DefaultMaxPerSlot      = 3
	DefaultMaxCombinations = 500
)

// Combinator declares the admissible shapes of a strategy family. Every slot
// holds at most one member.
type Combinator struct {
	Family  string
	Filters []condition.Kind
	Entries []condition.Kind
	Trends  []condition.Kind
	Exits   []condition.Kind
	Logics  []logic.Kind

	AllowEmptyFilter bool
	AllowEmptyTrend  bool
	AllowEmptyExit   bool
	AllowEmptyLogic  bool

	ExitMode ExitMode
	// MaxPerSlot bounds the candidate members enumerated per slot.
	MaxPerSlot int
	// MaxCombinations bounds the enumerated strategies.
	MaxCombinations int

	Registry *condition.Registry
}

// Builder produces one strategy of an enumeration.
type Builder func() (*Strategy, error)

func (c *Combinator) registry() *condition.Registry {
	if c.Registry == nil {
		c.Registry = condition.DefaultRegistry()
	}

	return c.Registry
}

// candidates interleaves the grid members of each kind so that truncation
// keeps every kind represented. The empty choice comes last.
func (c *Combinator) candidates(kinds []condition.Kind, allowEmpty bool) ([]condition.Condition, error) {
	limit := c.MaxPerSlot
	if limit <= 0 {
		limit = DefaultMaxPerSlot
	}

	grids := make([][]condition.Condition, len(kinds))
	for i, kind := range kinds {
		all, err := c.registry().AllPossible(kind)
		if err != nil {
			return nil, err
		}

		grids[i] = all
	}

	var out []condition.Condition
	for k := 0; len(out) < limit; k++ {
		added := false
		for _, grid := range grids {
			if k < len(grid) && len(out) < limit {
				out = append(out, grid[k])
				added = true
			}
		}

		if !added {
			break
		}
	}

	if allowEmpty || len(kinds) == 0 {
		out = append(out, nil)
	}

	return out, nil
}

func (c *Combinator) logicCandidates() []logic.Logic {
	limit := c.MaxPerSlot
	if limit <= 0 {
		limit = DefaultMaxPerSlot
	}

	var out []logic.Logic
	for _, kind := range c.Logics {
		spec, err := logic.Get(kind)
		if err != nil {
			continue
		}

		all := spec.AllPossible()
		out = append(out, all[:min(len(all), max(1, limit/len(c.Logics)))]...)
	}

	if c.AllowEmptyLogic || len(c.Logics) == 0 {
		out = append(out, nil)
	}

	return out
}

// AllCombinations enumerates the bounded cartesian product of the slot
// candidates in filter, entry, trend, exit, logic order.
func (c *Combinator) AllCombinations() ([]Builder, error) {
	filters, err := c.candidates(c.Filters, c.AllowEmptyFilter)
	if err != nil {
		return nil, err
	}

	entries, err := c.candidates(c.Entries, false)
	if err != nil {
		return nil, err
	}

	trends, err := c.candidates(c.Trends, c.AllowEmptyTrend)
	if err != nil {
		return nil, err
	}

	exits, err := c.candidates(c.Exits, c.AllowEmptyExit)
	if err != nil {
		return nil, err
	}

	logics := c.logicCandidates()

	limit := c.MaxCombinations
	if limit <= 0 {
		limit = DefaultMaxCombinations
	}

	var out []Builder
	for _, f := range filters {
		for _, e := range entries {
			if e == nil {
				continue
			}

			for _, t := range trends {
				for _, x := range exits {
					for _, l := range logics {
						if len(out) == limit {
							return out, nil
						}

						composition := Composition{
							Filters:  members(f),
							Entries:  members(e),
							Trends:   members(t),
							Exits:    members(x),
							Logic:    l,
							ExitMode: c.ExitMode,
						}

						out = append(out, func() (*Strategy, error) { return New(c.Family, composition) })
					}
				}
			}
		}
	}

	return out, nil
}

func members(c condition.Condition) []condition.Condition {
	if c == nil {
		return nil
	}

	return []condition.Condition{c}
}

// Default builds the first enumerated strategy of the family.
func (c *Combinator) Default() (*Strategy, error) {
	builders, err := c.AllCombinations()
	if err != nil {
		return nil, err
	}

	if len(builders) == 0 {
		return nil, errors.Newf(errors.ErrCodeStrategyBuildFailed, "%s has no admissible combination", c.Family)
	}

	return builders[0]()
}

// FromTrial draws one member per slot: the kind under <slot>, its parameters
// under <slot>_<Kind>_<name>.
func (c *Combinator) FromTrial(trial optimizer.Trial) (*Strategy, error) {
	pick := func(slot Slot, kinds []condition.Kind, allowEmpty bool) ([]condition.Condition, error) {
		if len(kinds) == 0 {
			return nil, nil
		}

		choices := make([]string, 0, len(kinds)+1)
		for _, k := range kinds {
			choices = append(choices, string(k))
		}

		if allowEmpty {
			choices = append(choices, NoneChoice)
		}

		kind := trial.SuggestCategorical(string(slot), choices)
		if kind == NoneChoice {
			return nil, nil
		}

		cond, err := c.registry().Suggest(condition.Kind(kind), trial, ParamPrefix(slot, kind))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStrategyBuildFailed, err, "%s: cannot draw %s", c.Family, slot)
		}

		return []condition.Condition{cond}, nil
	}

	var (
		composition = Composition{ExitMode: c.ExitMode}
		err         error
	)

	if composition.Filters, err = pick(SlotFilter, c.Filters, c.AllowEmptyFilter); err != nil {
		return nil, err
	}

	if composition.Entries, err = pick(SlotEntry, c.Entries, false); err != nil {
		return nil, err
	}

	if composition.Trends, err = pick(SlotTrend, c.Trends, c.AllowEmptyTrend); err != nil {
		return nil, err
	}

	if composition.Exits, err = pick(SlotExit, c.Exits, c.AllowEmptyExit); err != nil {
		return nil, err
	}

	if len(c.Logics) > 0 {
		choices := make([]string, 0, len(c.Logics)+1)
		for _, k := range c.Logics {
			choices = append(choices, string(k))
		}

		if c.AllowEmptyLogic {
			choices = append(choices, NoneChoice)
		}

		if kind := trial.SuggestCategorical(string(SlotLogic), choices); kind != NoneChoice {
			spec, err := logic.Get(logic.Kind(kind))
			if err != nil {
				return nil, err
			}

			composition.Logic, err = spec.Suggest(trial, ParamPrefix(SlotLogic, kind))
			if err != nil {
				return nil, errors.Wrapf(errors.ErrCodeStrategyBuildFailed, err, "%s: cannot draw logic", c.Family)
			}
		}
	}

	if replay, ok := trial.(interface{ Err() error }); ok {
		if err := replay.Err(); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStrategyBuildFailed, err, "%s: cannot replay parameters", c.Family)
		}
	}

	return New(c.Family, composition)
}
