// Package frame provides the column-oriented, time-indexed table that flows
// through every stage of the pipeline. A Frame holds float and text columns
// of equal length keyed by a UTC timestamp index.
package frame

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Frame is not safe for concurrent mutation. Concurrent readers are fine.
type Frame struct {
	index  []time.Time
	floats map[string][]float64
	texts  map[string][]string
	order  []string
}

// New creates an empty frame over the given index. Timestamps are normalised to UTC.
func New(index []time.Time) *Frame {
	idx := make([]time.Time, len(index))
	for i, t := range index {
		idx[i] = t.UTC()
	}

	return &Frame{
		index:  idx,
		floats: make(map[string][]float64),
		texts:  make(map[string][]string),
	}
}

// FromBars builds an OHLCV frame. Bars are expected to belong to one symbol.
func FromBars(bars []types.Bar) *Frame {
	index := make([]time.Time, len(bars))
	cols := make(map[string][]float64, len(types.BarColumns))
	for _, name := range types.BarColumns {
		cols[name] = make([]float64, len(bars))
	}

	for i, bar := range bars {
		index[i] = bar.Time
		cols[types.ColumnOpen][i] = bar.Open
		cols[types.ColumnHigh][i] = bar.High
		cols[types.ColumnLow][i] = bar.Low
		cols[types.ColumnClose][i] = bar.Close
		cols[types.ColumnVolume][i] = bar.Volume
	}

	f := New(index)
	for _, name := range types.BarColumns {
		f.floats[name] = cols[name]
		f.order = append(f.order, name)
	}

	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}

	return len(f.index)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool {
	return f.Len() == 0
}

// Index returns the timestamp index. Callers must not modify it.
func (f *Frame) Index() []time.Time {
	return f.index
}

// Time returns the timestamp of row i.
func (f *Frame) Time(i int) time.Time {
	return f.index[i]
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	return slices.Clone(f.order)
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, isFloat := f.floats[name]
	_, isText := f.texts[name]

	return isFloat || isText
}

// IsFloat reports whether name is a numeric column.
func (f *Frame) IsFloat(name string) bool {
	_, ok := f.floats[name]

	return ok
}

// IsText reports whether name is a text column.
func (f *Frame) IsText(name string) bool {
	_, ok := f.texts[name]

	return ok
}

// Float returns a numeric column, or nil when it does not exist.
// Callers must not modify the returned slice.
func (f *Frame) Float(name string) []float64 {
	return f.floats[name]
}

// Text returns a text column, or nil when it does not exist.
func (f *Frame) Text(name string) []string {
	return f.texts[name]
}

// SetFloat adds or replaces a numeric column.
func (f *Frame) SetFloat(name string, values []float64) error {
	if len(values) != f.Len() {
		return errors.Newf(errors.ErrCodeInvalidInput, "column %s has %d values, frame has %d rows", name, len(values), f.Len())
	}

	if _, ok := f.texts[name]; ok {
		delete(f.texts, name)
	} else if _, ok := f.floats[name]; !ok {
		f.order = append(f.order, name)
	}

	f.floats[name] = values

	return nil
}

// SetText adds or replaces a text column.
func (f *Frame) SetText(name string, values []string) error {
	if len(values) != f.Len() {
		return errors.Newf(errors.ErrCodeInvalidInput, "column %s has %d values, frame has %d rows", name, len(values), f.Len())
	}

	if _, ok := f.floats[name]; ok {
		delete(f.floats, name)
	} else if _, ok := f.texts[name]; !ok {
		f.order = append(f.order, name)
	}

	f.texts[name] = values

	return nil
}

// FillText sets a text column to a constant value.
func (f *Frame) FillText(name, value string) {
	values := make([]string, f.Len())
	for i := range values {
		values[i] = value
	}

	_ = f.SetText(name, values)
}

// Require returns a MissingColumn error naming every absent column.
func (f *Frame) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)

		return errors.Newf(errors.ErrCodeMissingColumn, "missing columns %v", missing)
	}

	return nil
}

// Drop removes the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) {
	for _, name := range names {
		if !f.Has(name) {
			continue
		}

		delete(f.floats, name)
		delete(f.texts, name)
		f.order = slices.DeleteFunc(f.order, func(c string) bool { return c == name })
	}
}

// Rename renames columns according to mapping. A rename onto an existing
// column replaces it.
func (f *Frame) Rename(mapping map[string]string) {
	for from, to := range mapping {
		if from == to || !f.Has(from) {
			continue
		}

		f.Drop(to)

		if v, ok := f.floats[from]; ok {
			delete(f.floats, from)
			f.floats[to] = v
		}

		if v, ok := f.texts[from]; ok {
			delete(f.texts, from)
			f.texts[to] = v
		}

		for i, c := range f.order {
			if c == from {
				f.order[i] = to
			}
		}
	}
}

// Select returns a copy holding only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	if err := f.Require(names...); err != nil {
		return nil, err
	}

	out := New(f.index)
	for _, name := range names {
		if v, ok := f.floats[name]; ok {
			out.floats[name] = slices.Clone(v)
		} else {
			out.texts[name] = slices.Clone(f.texts[name])
		}

		out.order = append(out.order, name)
	}

	return out, nil
}

// Slice returns a copy of rows [start, end).
func (f *Frame) Slice(start, end int) *Frame {
	start = max(0, min(start, f.Len()))
	end = max(start, min(end, f.Len()))

	out := &Frame{
		index:  slices.Clone(f.index[start:end]),
		floats: make(map[string][]float64, len(f.floats)),
		texts:  make(map[string][]string, len(f.texts)),
		order:  slices.Clone(f.order),
	}

	for name, v := range f.floats {
		out.floats[name] = slices.Clone(v[start:end])
	}

	for name, v := range f.texts {
		out.texts[name] = slices.Clone(v[start:end])
	}

	return out
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame {
	return f.Slice(0, n)
}

// Tail returns the last n rows.
func (f *Frame) Tail(n int) *Frame {
	return f.Slice(f.Len()-n, f.Len())
}

// Between returns the rows whose timestamp lies in [start, end].
func (f *Frame) Between(start, end time.Time) *Frame {
	lo := sort.Search(f.Len(), func(i int) bool { return !f.index[i].Before(start) })
	hi := sort.Search(f.Len(), func(i int) bool { return f.index[i].After(end) })

	return f.Slice(lo, hi)
}

// Filter returns the rows where keep is true.
func (f *Frame) Filter(keep []bool) *Frame {
	rows := make([]int, 0, len(keep))
	for i, k := range keep {
		if k && i < f.Len() {
			rows = append(rows, i)
		}
	}

	return f.take(rows)
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	return f.Slice(0, f.Len())
}

func (f *Frame) take(rows []int) *Frame {
	out := &Frame{
		index:  make([]time.Time, len(rows)),
		floats: make(map[string][]float64, len(f.floats)),
		texts:  make(map[string][]string, len(f.texts)),
		order:  slices.Clone(f.order),
	}

	for j, i := range rows {
		out.index[j] = f.index[i]
	}

	for name, v := range f.floats {
		col := make([]float64, len(rows))
		for j, i := range rows {
			col[j] = v[i]
		}

		out.floats[name] = col
	}

	for name, v := range f.texts {
		col := make([]string, len(rows))
		for j, i := range rows {
			col[j] = v[i]
		}

		out.texts[name] = col
	}

	return out
}

// Concat appends frames row-wise. Columns are the union of all inputs; rows
// from a frame lacking a column are filled with NaN or the empty string.
func Concat(frames ...*Frame) (*Frame, error) {
	var (
		total int
		order []string
		seen  = map[string]bool{}
		kinds = map[string]bool{} // true for float
	)

	for _, f := range frames {
		if f == nil {
			continue
		}

		total += f.Len()

		for _, name := range f.order {
			isFloat := f.IsFloat(name)
			if known, ok := kinds[name]; ok && known != isFloat {
				return nil, errors.Newf(errors.ErrCodeInvalidInput, "column %s changes type between frames", name)
			}

			kinds[name] = isFloat
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}

	out := &Frame{
		index:  make([]time.Time, 0, total),
		floats: make(map[string][]float64),
		texts:  make(map[string][]string),
		order:  order,
	}

	for _, name := range order {
		if kinds[name] {
			out.floats[name] = make([]float64, 0, total)
		} else {
			out.texts[name] = make([]string, 0, total)
		}
	}

	for _, f := range frames {
		if f == nil {
			continue
		}

		out.index = append(out.index, f.index...)

		for _, name := range order {
			if kinds[name] {
				if v, ok := f.floats[name]; ok {
					out.floats[name] = append(out.floats[name], v...)
				} else {
					out.floats[name] = append(out.floats[name], nanSlice(f.Len())...)
				}

				continue
			}

			if v, ok := f.texts[name]; ok {
				out.texts[name] = append(out.texts[name], v...)
			} else {
				out.texts[name] = append(out.texts[name], make([]string, f.Len())...)
			}
		}
	}

	return out, nil
}

// Equal compares two frames treating NaN as equal to NaN.
func (f *Frame) Equal(other *Frame) bool {
	if f.Len() != other.Len() || !slices.Equal(f.order, other.order) {
		return false
	}

	for i := range f.index {
		if !f.index[i].Equal(other.index[i]) {
			return false
		}
	}

	for name, v := range f.floats {
		w, ok := other.floats[name]
		if !ok {
			return false
		}

		for i := range v {
			if v[i] != w[i] && !(math.IsNaN(v[i]) && math.IsNaN(w[i])) {
				return false
			}
		}
	}

	for name, v := range f.texts {
		if !slices.Equal(v, other.texts[name]) {
			return false
		}
	}

	return true
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	return nanSlice(n)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}

	return out
}

// FromColumns builds a frame from numeric columns, ordered by name.
func FromColumns(index []time.Time, columns map[string][]float64) (*Frame, error) {
	f := New(index)

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := f.SetFloat(name, columns[name]); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Daily returns n consecutive UTC midnights starting at start. Intended for
// fixtures and synthetic data.
func Daily(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.UTC().AddDate(0, 0, i)
	}

	return out
}
