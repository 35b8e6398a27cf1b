package types

import (
	"time"
)

// PositionSide is the direction of a position. The core engine is long only.
type PositionSide string

const (
	PositionSideLong PositionSide = "LONG"
)

// PurchaseType is the side of a single transaction.
type PurchaseType string

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

// Exit reasons recorded on trades.
const (
	ExitReasonSignal    = "signal"
	ExitReasonEndOfData = "end_of_data"
)

// Trade is a closed round trip produced by the signal executor.
type Trade struct {
	Symbol     string       `json:"symbol"`
	EntryTime  time.Time    `json:"entry_time"`
	ExitTime   time.Time    `json:"exit_time"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	Side       PositionSide `json:"side"`
	// PnL is per unit of position, i.e. exit price minus entry price for longs.
	PnL float64 `json:"pnl"`
	// Return is PnL relative to the entry price.
	Return     float64 `json:"return"`
	ExitReason string  `json:"exit_reason"`
}

// Transaction is one fill produced by the portfolio executor.
type Transaction struct {
	Timestamp time.Time    `json:"timestamp"`
	Symbol    string       `json:"symbol"`
	Side      PurchaseType `json:"side"`
	Quantity  float64      `json:"qty"`
	Price     float64      `json:"price"`
	// Fee is the transaction cost plus any broker commission.
	Fee float64 `json:"fee"`
}

// PortfolioStep is the state of the simulated account after one timestep.
type PortfolioStep struct {
	Timestamp      time.Time          `json:"timestamp"`
	PortfolioValue float64            `json:"portfolio_value"`
	Cash           float64            `json:"cash"`
	Holdings       map[string]float64 `json:"holdings"`
	Transactions   []Transaction      `json:"transactions"`
}
