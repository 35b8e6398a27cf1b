// Package executor simulates trading: a single-symbol signal executor that
// turns entry and exit signals into trades, and a portfolio executor that
// rebalances a cash account toward target weights.
package executor

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// ColumnSignal is the single-column alternative to entry_signal/exit_signal.
const ColumnSignal = "signal"

type SignalConfig struct {
	Symbol string `yaml:"symbol" json:"symbol"`
	// CostBps is charged on every fill, in basis points of notional.
	CostBps float64 `yaml:"cost_bps" json:"cost_bps" default:"0" validate:"gte=0"`
	// InitialCapital scales the equity curve.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" default:"1" validate:"gt=0"`
}

// SignalResult is the outcome of walking one symbol's signals.
type SignalResult struct {
	Trades []types.Trade
	// Returns holds one strategy return per bar.
	Returns []float64
	Equity  []float64
	Index   []time.Time
	Metrics types.Metrics
}

type SignalExecutor struct {
	config    SignalConfig
	evaluator *evaluator.Evaluator
	logger    *logger.Logger
}

func NewSignalExecutor(config SignalConfig, ev *evaluator.Evaluator, log *logger.Logger) *SignalExecutor {
	if config.InitialCapital <= 0 {
		config.InitialCapital = 1
	}

	if ev == nil {
		ev = evaluator.New(evaluator.Config{})
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &SignalExecutor{config: config, evaluator: ev, logger: log}
}

// Execute walks f bar by bar, long only. A BUY opens at the bar's close when
// flat; a SELL closes at the close when in a position. A position still open
// after the last bar is closed there with reason end_of_data.
func (e *SignalExecutor) Execute(f *frame.Frame) (*SignalResult, error) {
	entries, exits, err := e.validate(f)
	if err != nil {
		return nil, err
	}

	closes := f.Float(types.ColumnClose)
	n := f.Len()
	cost := e.config.CostBps / 1e4

	result := &SignalResult{
		Trades:  []types.Trade{},
		Returns: make([]float64, n),
		Equity:  make([]float64, n),
		Index:   f.Index(),
	}

	var (
		inPosition bool
		entryIndex int
	)

	closeTrade := func(i int, reason string) {
		entry := decimal.NewFromFloat(closes[entryIndex])
		exit := decimal.NewFromFloat(closes[i])
		pnl := exit.Sub(entry)
		ret := pnl.Div(entry).Sub(decimal.NewFromFloat(2 * cost))

		result.Trades = append(result.Trades, types.Trade{
			Symbol:     e.config.Symbol,
			EntryTime:  f.Time(entryIndex),
			ExitTime:   f.Time(i),
			EntryPrice: closes[entryIndex],
			ExitPrice:  closes[i],
			Side:       types.PositionSideLong,
			PnL:        pnl.InexactFloat64(),
			Return:     ret.InexactFloat64(),
			ExitReason: reason,
		})
		result.Returns[i] -= cost
		inPosition = false
	}

	for i := 0; i < n; i++ {
		if inPosition && i > 0 {
			result.Returns[i] = closes[i]/closes[i-1] - 1
		}

		switch {
		case inPosition && exits[i] == types.SignalSell:
			closeTrade(i, types.ExitReasonSignal)
		case !inPosition && entries[i] == types.SignalBuy:
			inPosition = true
			entryIndex = i
			result.Returns[i] -= cost
		}
	}

	if inPosition {
		closeTrade(n-1, types.ExitReasonEndOfData)
	}

	equity := e.config.InitialCapital
	for i, r := range result.Returns {
		equity *= 1 + r
		result.Equity[i] = equity
	}

	result.Metrics, err = e.evaluator.Signal(result.Trades, result.Returns)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Executed signals",
		zap.String("symbol", e.config.Symbol),
		zap.Int("bars", n),
		zap.Int("trades", len(result.Trades)),
	)

	return result, nil
}

func (e *SignalExecutor) validate(f *frame.Frame) (entries, exits []types.Signal, err error) {
	if f == nil {
		return nil, nil, errors.New(errors.ErrCodeInvalidInput, "signal frame is nil")
	}

	if err := f.ValidateIndex(); err != nil {
		return nil, nil, err
	}

	if !f.IsFloat(types.ColumnClose) {
		return nil, nil, errors.Newf(errors.ErrCodeInvalidInput, "signal frame needs a numeric %s column", types.ColumnClose)
	}

	if err := f.ValidateNumeric(types.ColumnClose); err != nil {
		return nil, nil, err
	}

	for i, v := range f.Float(types.ColumnClose) {
		if v <= 0 {
			return nil, nil, errors.Newf(errors.ErrCodeInvalidInput, "close must be positive, got %v at row %d", v, i)
		}
	}

	switch {
	case f.IsText(types.ColumnEntrySignal) && f.IsText(types.ColumnExitSignal):
		return toSignals(f.Text(types.ColumnEntrySignal)), toSignals(f.Text(types.ColumnExitSignal)), nil
	case f.IsText(ColumnSignal):
		single := toSignals(f.Text(ColumnSignal))
		return single, single, nil
	default:
		return nil, nil, errors.Newf(errors.ErrCodeInvalidInput, "signal frame needs %s and %s text columns or a %s column",
			types.ColumnEntrySignal, types.ColumnExitSignal, ColumnSignal)
	}
}

func toSignals(values []string) []types.Signal {
	out := make([]types.Signal, len(values))
	for i, v := range values {
		out[i] = types.Signal(v)
	}

	return out
}
