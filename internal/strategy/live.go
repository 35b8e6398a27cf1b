package strategy

import (
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logic"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Live evaluates a strategy one bar at a time, as a market data feed delivers
// them. Every condition keeps a ring of its last Window() rows, so a bar costs
// the same however long the feed has run. Over the same rows Live emits the
// signals of Session.Process.
type Live struct {
	session *Session
	columns []string
	filters []*condition.Buffered
	entries []*condition.Buffered
	trends  []*condition.Buffered
	exits   []*condition.Buffered
}

func NewLive(s *Strategy) *Live {
	return &Live{
		session: NewSession(s),
		columns: s.RequiredColumns(),
		filters: buffer(s.filters),
		entries: buffer(s.entries),
		trends:  buffer(s.trends),
		exits:   buffer(s.exits),
	}
}

func buffer(conditions []condition.Condition) []*condition.Buffered {
	out := make([]*condition.Buffered, len(conditions))
	for i, c := range conditions {
		out[i] = condition.NewBuffered(c)
	}

	return out
}

func (l *Live) Reset() {
	l.session.Reset()
	for _, slot := range [][]*condition.Buffered{l.filters, l.entries, l.trends, l.exits} {
		for _, b := range slot {
			b.Reset()
		}
	}
}

func (l *Live) InPosition() bool {
	return l.session.InPosition()
}

// Prime fills the condition buffers from the tail of history without trading.
func (l *Live) Prime(history *frame.Frame) error {
	if history == nil || history.Empty() {
		return nil
	}

	if err := history.Require(l.columns...); err != nil {
		return errors.Wrap(errors.ErrCodeSchemaViolation, l.session.strategy.family+": history does not match strategy", err)
	}

	tail := history.Tail(l.session.strategy.Window() - 1)
	for i := 0; i < tail.Len(); i++ {
		if _, err := l.masks(tail.Time(i), l.row(tail, i)); err != nil {
			return err
		}
	}

	return nil
}

// Push evaluates the bar at t. row must carry every required column and t
// must be after the previous bar.
func (l *Live) Push(t time.Time, row map[string]float64) (entry, exit types.Signal, err error) {
	masks, err := l.masks(t, row)
	if err != nil {
		return types.SignalHold, types.SignalHold, err
	}

	columns := make(map[string][]float64, len(l.columns))
	for _, name := range l.columns {
		columns[name] = []float64{row[name]}
	}

	bar, err := frame.FromColumns([]time.Time{t}, columns)
	if err != nil {
		return types.SignalHold, types.SignalHold, err
	}

	entry, exit = l.session.step(0, bar, masks)

	return entry, exit, nil
}

// PushRow pushes row i of f.
func (l *Live) PushRow(f *frame.Frame, i int) (entry, exit types.Signal, err error) {
	if err := f.Require(l.columns...); err != nil {
		return types.SignalHold, types.SignalHold,
			errors.Wrap(errors.ErrCodeSchemaViolation, l.session.strategy.family+": input does not match strategy", err)
	}

	return l.Push(f.Time(i), l.row(f, i))
}

func (l *Live) row(f *frame.Frame, i int) map[string]float64 {
	row := make(map[string]float64, len(l.columns))
	for _, name := range l.columns {
		row[name] = f.Float(name)[i]
	}

	return row
}

// masks pushes the bar into every buffer and combines the one-row results.
// The first buffer rejects an out-of-order bar before any state changes.
func (l *Live) masks(t time.Time, row map[string]float64) (logic.Masks, error) {
	for _, name := range l.columns {
		if _, ok := row[name]; !ok {
			return logic.Masks{}, errors.Newf(errors.ErrCodeSchemaViolation, "%s: bar at %s lacks column %s",
				l.session.strategy.family, t.Format(time.RFC3339), name)
		}
	}

	push := func(buffers []*condition.Buffered) ([][]bool, error) {
		out := make([][]bool, len(buffers))
		for i, b := range buffers {
			ok, err := b.Push(t, row)
			if err != nil {
				return nil, err
			}

			out[i] = []bool{ok}
		}

		return out, nil
	}

	var slots [4][][]bool
	for k, buffers := range [][]*condition.Buffered{l.filters, l.entries, l.trends, l.exits} {
		masks, err := push(buffers)
		if err != nil {
			return logic.Masks{}, err
		}

		slots[k] = masks
	}

	return l.session.strategy.combine(1, slots[0], slots[1], slots[2], slots[3]), nil
}
