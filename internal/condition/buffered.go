package condition

import (
	"math"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Buffered evaluates a condition one row at a time over a ring of its last
// Window() rows. The result for a row equals Apply on any frame ending with
// the same rows. strategy.Live drives one Buffered per condition to evaluate
// a bar feed without re-applying conditions to the whole history.
type Buffered struct {
	cond    Condition
	columns []string
	times   []time.Time
	rows    [][]float64
	next    int
	size    int
}

func NewBuffered(c Condition) *Buffered {
	w := max(1, c.Window())

	return &Buffered{
		cond:    c,
		columns: c.RequiredColumns(),
		times:   make([]time.Time, w),
		rows:    make([][]float64, w),
	}
}

func (b *Buffered) Condition() Condition {
	return b.cond
}

// Push appends a row and evaluates the condition on it. Missing columns are
// recorded as NaN.
func (b *Buffered) Push(t time.Time, row map[string]float64) (bool, error) {
	values := make([]float64, len(b.columns))
	for j, name := range b.columns {
		v, ok := row[name]
		if !ok {
			v = math.NaN()
		}

		values[j] = v
	}

	if b.size > 0 {
		last := b.times[(b.next+len(b.times)-1)%len(b.times)]
		if !t.After(last) {
			return false, errors.Newf(errors.ErrCodeInvalidInput, "row %s is not after %s", t, last)
		}
	}

	b.times[b.next] = t
	b.rows[b.next] = values
	b.next = (b.next + 1) % len(b.times)
	b.size = min(b.size+1, len(b.times))

	mask, err := b.cond.Apply(b.frame())
	if err != nil {
		return false, err
	}

	return mask[len(mask)-1], nil
}

// PushFrameRow pushes row i of f.
func (b *Buffered) PushFrameRow(f *frame.Frame, i int) (bool, error) {
	row := make(map[string]float64, len(b.columns))
	for _, name := range b.columns {
		if f.IsFloat(name) {
			row[name] = f.Float(name)[i]
		}
	}

	return b.Push(f.Time(i), row)
}

func (b *Buffered) Reset() {
	b.next, b.size = 0, 0
}

// frame materialises the buffered rows oldest first.
func (b *Buffered) frame() *frame.Frame {
	start := (b.next - b.size + len(b.times)) % len(b.times)

	index := make([]time.Time, b.size)
	cols := make([][]float64, len(b.columns))
	for j := range cols {
		cols[j] = make([]float64, b.size)
	}

	for k := 0; k < b.size; k++ {
		slot := (start + k) % len(b.times)
		index[k] = b.times[slot]
		for j := range cols {
			cols[j][k] = b.rows[slot][j]
		}
	}

	f := frame.New(index)
	for j, name := range b.columns {
		// lengths match by construction
		_ = f.SetFloat(name, cols[j])
	}

	return f
}
