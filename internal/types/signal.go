package types

// Signal is the action emitted by a strategy for one bar.
type Signal string

const (
	// SignalBuy opens a long position.
	SignalBuy Signal = "BUY"
	// SignalSell closes the open position.
	SignalSell Signal = "SELL"
	// SignalHold means neither side triggered on the bar.
	SignalHold Signal = "HOLD"
	// SignalNone is used for rows that were never evaluated, such as warm-up rows.
	SignalNone Signal = "NONE"
)

// Signal column names written by strategies.
const (
	ColumnEntrySignal = "entry_signal"
	ColumnExitSignal  = "exit_signal"
)

// IsAction reports whether the signal asks the executor to trade.
func (s Signal) IsAction() bool {
	return s == SignalBuy || s == SignalSell
}
