// Package strategy composes conditions and an optional stateful logic into
// trading strategies, and enumerates the strategies of each family.
package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sort"
	"strings"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logic"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Slot is a position in a strategy's composition.
type Slot string

const (
	SlotFilter Slot = "filter"
	SlotEntry  Slot = "entry"
	SlotTrend  Slot = "trend"
	SlotExit   Slot = "exit"
	SlotLogic  Slot = "logic"
)

// ExitMode selects how exit conditions combine.
type ExitMode string

const (
	// ExitAny exits when any exit condition holds.
	ExitAny ExitMode = "any"
	// ExitAllFiltered exits when every exit condition and the filter hold.
	ExitAllFiltered ExitMode = "all_filtered"
)

// Strategy is an immutable composition of conditions. Entries must not be
// empty; the other slots may be.
type Strategy struct {
	family   string
	filters  []condition.Condition
	entries  []condition.Condition
	trends   []condition.Condition
	exits    []condition.Condition
	logic    logic.Logic
	exitMode ExitMode
}

// Composition lists the members of a strategy by slot.
type Composition struct {
	Filters  []condition.Condition
	Entries  []condition.Condition
	Trends   []condition.Condition
	Exits    []condition.Condition
	Logic    logic.Logic
	ExitMode ExitMode
}

func New(family string, c Composition) (*Strategy, error) {
	if len(c.Entries) == 0 {
		return nil, errors.Newf(errors.ErrCodeStrategyBuildFailed, "%s: at least one entry condition is required", family)
	}

	for slot, members := range map[Slot][]condition.Condition{
		SlotFilter: c.Filters, SlotEntry: c.Entries, SlotTrend: c.Trends, SlotExit: c.Exits,
	} {
		seen := map[condition.Kind]bool{}
		for _, m := range members {
			if seen[m.Kind()] {
				return nil, errors.Newf(errors.ErrCodeStrategyBuildFailed, "%s: %s appears twice in slot %s", family, m.Kind(), slot)
			}

			seen[m.Kind()] = true
		}
	}

	mode := c.ExitMode
	if mode == "" {
		mode = ExitAny
	}

	if mode != ExitAny && mode != ExitAllFiltered {
		return nil, errors.Newf(errors.ErrCodeStrategyBuildFailed, "%s: unknown exit mode %q", family, mode)
	}

	return &Strategy{
		family:   family,
		filters:  slices.Clone(c.Filters),
		entries:  slices.Clone(c.Entries),
		trends:   slices.Clone(c.Trends),
		exits:    slices.Clone(c.Exits),
		logic:    c.Logic,
		exitMode: mode,
	}, nil
}

func (s *Strategy) Family() string {
	return s.family
}

func (s *Strategy) Filters() []condition.Condition { return slices.Clone(s.filters) }
func (s *Strategy) Entries() []condition.Condition { return slices.Clone(s.entries) }
func (s *Strategy) Trends() []condition.Condition  { return slices.Clone(s.trends) }
func (s *Strategy) Exits() []condition.Condition   { return slices.Clone(s.exits) }

func (s *Strategy) Logic() logic.Logic {
	return s.logic
}

func (s *Strategy) ExitMode() ExitMode {
	return s.exitMode
}

func (s *Strategy) slots() []struct {
	slot    Slot
	members []condition.Condition
} {
	return []struct {
		slot    Slot
		members []condition.Condition
	}{
		{SlotFilter, s.filters},
		{SlotEntry, s.entries},
		{SlotTrend, s.trends},
		{SlotExit, s.exits},
	}
}

// Conditions returns every condition in slot order.
func (s *Strategy) Conditions() []condition.Condition {
	var out []condition.Condition
	for _, slot := range s.slots() {
		out = append(out, slot.members...)
	}

	return out
}

// RequiredColumns is the sorted union over conditions and logic.
func (s *Strategy) RequiredColumns() []string {
	set := map[string]bool{}
	for _, c := range s.Conditions() {
		for _, name := range c.RequiredColumns() {
			set[name] = true
		}
	}

	if s.logic != nil {
		for _, name := range s.logic.RequiredColumns() {
			set[name] = true
		}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Window is the number of trailing rows a signal depends on.
func (s *Strategy) Window() int {
	w := 1
	for _, c := range s.Conditions() {
		w = max(w, c.Window())
	}

	return w
}

// HashID fingerprints the composition: SHA-256 over the sorted condition IDs
// followed by the logic ID.
func (s *Strategy) HashID() string {
	ids := make([]string, 0, len(s.Conditions()))
	for _, c := range s.Conditions() {
		ids = append(ids, c.ID())
	}

	sort.Strings(ids)

	if s.logic != nil {
		ids = append(ids, s.logic.ID())
	}

	sum := sha256.Sum256([]byte(strings.Join(ids, "|")))

	return hex.EncodeToString(sum[:])
}

// Params flattens the composition into the parameter namespace used by
// trials: the chosen kind under <slot> and each parameter under
// <slot>_<Kind>_<name>.
func (s *Strategy) Params() map[string]any {
	out := map[string]any{}
	for _, slot := range s.slots() {
		for _, c := range slot.members {
			out[string(slot.slot)] = string(c.Kind())
			for name, v := range c.Params().Map() {
				out[ParamKey(slot.slot, string(c.Kind()), name)] = v
			}
		}
	}

	if s.logic != nil {
		out[string(SlotLogic)] = string(s.logic.Kind())
		for name, v := range s.logic.Params().Map() {
			out[ParamKey(SlotLogic, string(s.logic.Kind()), name)] = v
		}
	}

	return out
}

// ParamKey namespaces a parameter of a slot member.
func ParamKey(slot Slot, kind, name string) string {
	return ParamPrefix(slot, kind) + name
}

func ParamPrefix(slot Slot, kind string) string {
	return string(slot) + "_" + kind + "_"
}

func (s *Strategy) String() string {
	ids := make([]string, 0, len(s.Conditions())+1)
	for _, c := range s.Conditions() {
		ids = append(ids, c.ID())
	}

	if s.logic != nil {
		ids = append(ids, s.logic.ID())
	}

	return s.family + "[" + strings.Join(ids, ",") + "]"
}

// Masks computes the combined masks over f.
func (s *Strategy) Masks(f *frame.Frame) (logic.Masks, error) {
	if err := f.Require(s.RequiredColumns()...); err != nil {
		return logic.Masks{}, errors.Wrap(errors.ErrCodeSchemaViolation, s.family+": input does not match strategy", err)
	}

	n := f.Len()
	apply := func(conditions []condition.Condition) ([][]bool, error) {
		return condition.ApplyAll(f, conditions)
	}

	filters, err := apply(s.filters)
	if err != nil {
		return logic.Masks{}, err
	}

	entries, err := apply(s.entries)
	if err != nil {
		return logic.Masks{}, err
	}

	trends, err := apply(s.trends)
	if err != nil {
		return logic.Masks{}, err
	}

	exits, err := apply(s.exits)
	if err != nil {
		return logic.Masks{}, err
	}

	return s.combine(n, filters, entries, trends, exits), nil
}

// combine folds per-condition masks of n rows into the strategy masks.
func (s *Strategy) combine(n int, filters, entries, trends, exits [][]bool) logic.Masks {
	m := logic.Masks{
		Filter: condition.AllOf(n, filters...),
		Trend:  condition.AllOf(n, trends...),
	}

	m.Entry = condition.AllOf(n, append(entries, m.Filter, m.Trend)...)

	switch {
	case len(exits) == 0:
		m.Exit = make([]bool, n)
	case s.exitMode == ExitAllFiltered:
		m.Exit = condition.AllOf(n, append(exits, m.Filter)...)
	default:
		m.Exit = condition.AnyOf(n, exits...)
	}

	return m
}

// GenerateSignals returns a copy of f with entry_signal and exit_signal
// columns, evaluated from a flat position.
func (s *Strategy) GenerateSignals(f *frame.Frame) (*frame.Frame, error) {
	return NewSession(s).Process(f)
}
