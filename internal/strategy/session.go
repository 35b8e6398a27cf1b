package strategy

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logic"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Session evaluates a strategy page by page. It keeps the position, the
// logic state and the last Window()-1 input rows, so splitting a series into
// pages does not change any signal.
type Session struct {
	strategy   *Strategy
	tail       *frame.Frame
	inPosition bool
	state      logic.State
}

func NewSession(s *Strategy) *Session {
	session := &Session{strategy: s}
	session.Reset()

	return session
}

func (s *Session) Reset() {
	s.tail = nil
	s.inPosition = false
	s.state = nil
	if s.strategy.logic != nil {
		s.state = s.strategy.logic.NewState()
	}
}

// Prime seeds the look-back rows from history, e.g. the bars preceding a
// test window, without trading on them.
func (s *Session) Prime(history *frame.Frame) error {
	if history == nil || history.Empty() {
		return nil
	}

	if err := history.Require(s.strategy.RequiredColumns()...); err != nil {
		return errors.Wrap(errors.ErrCodeSchemaViolation, s.strategy.family+": history does not match strategy", err)
	}

	s.tail = history.Tail(s.strategy.Window() - 1)

	return nil
}

func (s *Session) InPosition() bool {
	return s.inPosition
}

// Process returns a copy of page with the signal columns added.
func (s *Session) Process(page *frame.Frame) (*frame.Frame, error) {
	if page == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "page is nil")
	}

	if err := page.Require(s.strategy.RequiredColumns()...); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSchemaViolation, s.strategy.family+": input does not match strategy", err)
	}

	combined := page
	offset := 0
	if s.tail != nil && s.tail.Len() > 0 {
		var err error
		combined, err = frame.Concat(s.tail, page)
		if err != nil {
			return nil, err
		}

		offset = s.tail.Len()
	}

	masks, err := s.strategy.Masks(combined)
	if err != nil {
		return nil, err
	}

	entries := make([]string, page.Len())
	exits := make([]string, page.Len())
	for i := range entries {
		entry, exit := s.step(offset+i, combined, masks)
		entries[i], exits[i] = string(entry), string(exit)
	}

	out := page.Clone()
	if err := out.SetText(types.ColumnEntrySignal, entries); err != nil {
		return nil, err
	}

	if err := out.SetText(types.ColumnExitSignal, exits); err != nil {
		return nil, err
	}

	s.tail = combined.Tail(s.strategy.Window() - 1)

	return out, nil
}

// step applies the logic, if any, then the tie-break: in a position only an
// exit counts, flat only an entry counts, and the bar that closes a position
// never reopens it.
func (s *Session) step(i int, f *frame.Frame, masks logic.Masks) (types.Signal, types.Signal) {
	var entry, exit bool
	if s.strategy.logic != nil {
		entry, exit, s.state = s.strategy.logic.Step(i, f, masks, s.state)
	} else {
		entry, exit = masks.Entry[i], masks.Exit[i]
	}

	if s.inPosition {
		if exit {
			s.inPosition = false

			return types.SignalHold, types.SignalSell
		}

		return types.SignalHold, types.SignalHold
	}

	if entry {
		s.inPosition = true

		return types.SignalBuy, types.SignalHold
	}

	return types.SignalHold, types.SignalHold
}
