package types

import "time"

// Bar is one OHLCV observation for a symbol.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Column names shared by every stage.
const (
	ColumnTimestamp = "timestamp"
	ColumnOpen      = "open"
	ColumnHigh      = "high"
	ColumnLow       = "low"
	ColumnClose     = "close"
	ColumnVolume    = "volume"
	ColumnSymbol    = "symbol"
	ColumnStrategy  = "strategy"
)

// BarColumns lists the numeric columns of a bar in on-disk order.
var BarColumns = []string{ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume}
