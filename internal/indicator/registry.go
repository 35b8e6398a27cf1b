package indicator

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Set is an ordered collection of configured indicators. Indicators run in
// the order they were added and no two may produce the same column.
// A Set is not safe for concurrent mutation; build it once and share it.
type Set struct {
	byName  map[types.IndicatorType]Indicator
	ordered []Indicator
	columns map[string]types.IndicatorType
}

func NewSet() *Set {
	return &Set{
		byName:  make(map[types.IndicatorType]Indicator),
		columns: make(map[string]types.IndicatorType),
	}
}

// Add appends ind. Duplicate names and column collisions are configuration errors.
func (s *Set) Add(ind Indicator) error {
	name := ind.Name()
	if _, exists := s.byName[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "indicator %s already added", name)
	}

	for _, col := range ind.Columns() {
		if owner, taken := s.columns[col]; taken {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "column %s of %s is already produced by %s", col, name, owner)
		}
	}

	for _, col := range ind.Columns() {
		s.columns[col] = name
	}

	s.byName[name] = ind
	s.ordered = append(s.ordered, ind)

	return nil
}

func (s *Set) Get(name types.IndicatorType) (Indicator, error) {
	ind, exists := s.byName[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "indicator %s not configured", name)
	}

	return ind, nil
}

func (s *Set) Len() int {
	return len(s.ordered)
}

// Names returns the indicator names in run order.
func (s *Set) Names() []types.IndicatorType {
	out := make([]types.IndicatorType, len(s.ordered))
	for i, ind := range s.ordered {
		out[i] = ind.Name()
	}

	return out
}

// Lookback is the largest look-back of the set, at least one row.
func (s *Set) Lookback() int {
	lookback := 1
	for _, ind := range s.ordered {
		lookback = max(lookback, ind.Lookback())
	}

	return lookback
}

// Columns lists the produced columns in output order.
func (s *Set) Columns() []string {
	var cols []string
	for _, ind := range s.ordered {
		cols = append(cols, ind.Columns()...)
	}

	return cols
}

// RequiredColumns is the union of input columns, first use first.
func (s *Set) RequiredColumns() []string {
	seen := map[string]bool{}

	var cols []string
	for _, ind := range s.ordered {
		for _, c := range ind.RequiredColumns() {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}

	return cols
}

// Compute runs every indicator on f in order.
func (s *Set) Compute(f *frame.Frame) error {
	if err := f.Require(s.RequiredColumns()...); err != nil {
		return err
	}

	for _, ind := range s.ordered {
		if err := ind.Compute(f); err != nil {
			return err
		}
	}

	return nil
}

// Lookbacks maps every indicator to its declared look-back.
func (s *Set) Lookbacks() map[types.IndicatorType]int {
	out := make(map[types.IndicatorType]int, len(s.ordered))
	for _, ind := range s.ordered {
		out[ind.Name()] = ind.Lookback()
	}

	return out
}
