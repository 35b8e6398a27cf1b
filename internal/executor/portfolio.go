package executor

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type PortfolioConfig struct {
	InitialCash        float64 `yaml:"initial_cash" json:"initial_cash" default:"100000" validate:"gt=0"`
	TransactionCostBps float64 `yaml:"transaction_cost_bps" json:"transaction_cost_bps" default:"0" validate:"gte=0"`
	SlippageBps        float64 `yaml:"slippage_bps" json:"slippage_bps" default:"0" validate:"gte=0,lt=10000"`
	// MinLot is the trading unit. Zero allows fractional quantities.
	MinLot float64 `yaml:"min_lot" json:"min_lot" default:"1" validate:"gte=0"`
	// Leverage caps gross exposure at Leverage times NAV. Cash may go
	// negative only when Leverage is above 1.
	Leverage float64 `yaml:"leverage" json:"leverage" default:"1" validate:"gte=1"`
	Broker   Broker  `yaml:"broker" json:"broker" default:"zero_commission" validate:"oneof=interactive_broker zero_commission"`
}

// PortfolioResult is the simulated path of the account.
type PortfolioResult struct {
	Steps        []types.PortfolioStep
	Transactions []types.Transaction
	Index        []time.Time
	Values       []float64
	Returns      []float64
	Metrics      types.Metrics
}

// Series adapts the result for the portfolio evaluator.
func (r *PortfolioResult) Series() evaluator.PortfolioSeries {
	return evaluator.PortfolioSeries{
		Index:        r.Index,
		Values:       r.Values,
		Returns:      r.Returns,
		Transactions: len(r.Transactions),
	}
}

// Frame returns portfolio_values and portfolio_returns on the price index.
func (r *PortfolioResult) Frame() *frame.Frame {
	f := frame.New(r.Index)
	_ = f.SetFloat(evaluator.ColumnPortfolioValues, r.Values)
	_ = f.SetFloat(evaluator.ColumnPortfolioReturns, r.Returns)

	return f
}

type PortfolioExecutor struct {
	config     PortfolioConfig
	commission CommissionFee
	evaluator  *evaluator.Evaluator
	logger     *logger.Logger
}

func NewPortfolioExecutor(config PortfolioConfig, ev *evaluator.Evaluator, log *logger.Logger) (*PortfolioExecutor, error) {
	if config.InitialCash <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "initial cash must be positive, got %v", config.InitialCash)
	}

	if config.TransactionCostBps < 0 || config.SlippageBps < 0 || config.SlippageBps >= 1e4 || config.MinLot < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "costs, slippage and min lot must be non-negative and slippage below 10000 bps")
	}

	if config.Leverage == 0 {
		config.Leverage = 1
	}

	if config.Leverage < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "leverage must be at least 1, got %v", config.Leverage)
	}

	if ev == nil {
		ev = evaluator.New(evaluator.Config{})
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &PortfolioExecutor{
		config:     config,
		commission: CommissionFor(config.Broker),
		evaluator:  ev,
		logger:     log,
	}, nil
}

// Execute rebalances toward weights at every row. prices and weights share
// the same index and asset columns. Target holdings are floored to MinLot,
// sells are filled before buys and buys are trimmed to the cash available.
func (e *PortfolioExecutor) Execute(prices, weights *frame.Frame) (*PortfolioResult, error) {
	assets, err := e.validate(prices, weights)
	if err != nil {
		return nil, err
	}

	n := prices.Len()
	costRate := e.config.TransactionCostBps / 1e4
	slip := e.config.SlippageBps / 1e4
	leverage := decimal.NewFromFloat(e.config.Leverage)

	cash := decimal.NewFromFloat(e.config.InitialCash)
	holdings := make(map[string]float64, len(assets))
	for _, a := range assets {
		holdings[a] = 0
	}

	result := &PortfolioResult{
		Steps:        make([]types.PortfolioStep, 0, n),
		Transactions: []types.Transaction{},
		Index:        prices.Index(),
		Values:       make([]float64, n),
		Returns:      make([]float64, n),
	}

	valueAt := func(i int) decimal.Decimal {
		v := cash
		for _, a := range assets {
			v = v.Add(decimal.NewFromFloat(holdings[a]).Mul(decimal.NewFromFloat(prices.Float(a)[i])))
		}

		return v
	}

	previous := decimal.NewFromFloat(e.config.InitialCash)
	for i := 0; i < n; i++ {
		ts := prices.Time(i)
		nav := valueAt(i)
		budget := nav.Mul(leverage)
		// cash may not fall below this floor
		cashFloor := nav.Sub(budget)

		targets := make(map[string]float64, len(assets))
		for _, a := range assets {
			notional := budget.Mul(decimal.NewFromFloat(weights.Float(a)[i]))
			targets[a] = FloorToLot(notional.Div(decimal.NewFromFloat(prices.Float(a)[i])).InexactFloat64(), e.config.MinLot)
		}

		var fills []types.Transaction

		for _, a := range assets {
			qty := holdings[a] - targets[a]
			if qty <= 0 {
				continue
			}

			price := prices.Float(a)[i] * (1 - slip)
			notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
			fee := notional.Mul(decimal.NewFromFloat(costRate)).Add(decimal.NewFromFloat(e.commission.Calculate(qty)))

			cash = cash.Add(notional).Sub(fee)
			holdings[a] = targets[a]
			fills = append(fills, types.Transaction{
				Timestamp: ts, Symbol: a, Side: types.PurchaseTypeSell,
				Quantity: qty, Price: price, Fee: fee.InexactFloat64(),
			})
		}

		for _, a := range assets {
			want := targets[a] - holdings[a]
			if want <= 0 {
				continue
			}

			price := prices.Float(a)[i] * (1 + slip)
			available := cash.Sub(cashFloor).InexactFloat64()
			qty := math.Min(want, FloorToLot(MaxQuantity(available, price, costRate, e.commission), e.config.MinLot))
			qty = e.fit(qty, price, costRate, available)
			if qty <= 0 {
				e.logger.Debug("Skipping buy without buying power",
					zap.String("symbol", a), zap.Time("timestamp", ts), zap.Float64("wanted", want))

				continue
			}

			notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
			fee := notional.Mul(decimal.NewFromFloat(costRate)).Add(decimal.NewFromFloat(e.commission.Calculate(qty)))

			cash = cash.Sub(notional).Sub(fee)
			holdings[a] += qty
			fills = append(fills, types.Transaction{
				Timestamp: ts, Symbol: a, Side: types.PurchaseTypeBuy,
				Quantity: qty, Price: price, Fee: fee.InexactFloat64(),
			})
		}

		value := valueAt(i)
		result.Values[i] = value.InexactFloat64()
		if !previous.IsZero() {
			result.Returns[i] = value.Div(previous).Sub(decimal.NewFromInt(1)).InexactFloat64()
		}

		previous = value

		result.Transactions = append(result.Transactions, fills...)
		result.Steps = append(result.Steps, types.PortfolioStep{
			Timestamp:      ts,
			PortfolioValue: result.Values[i],
			Cash:           cash.InexactFloat64(),
			Holdings:       maps.Clone(holdings),
			Transactions:   fills,
		})
	}

	result.Metrics, err = e.evaluator.Portfolio(result.Series())
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Executed portfolio",
		zap.Strings("assets", assets),
		zap.Int("steps", n),
		zap.Int("transactions", len(result.Transactions)),
		zap.Float64("final_value", result.Values[n-1]),
	)

	return result, nil
}

// fit steps qty down one lot at a time until the fill is affordable.
func (e *PortfolioExecutor) fit(qty, price, costRate, available float64) float64 {
	lot := e.config.MinLot
	for qty > 0 {
		total := qty*price*(1+costRate) + e.commission.Calculate(qty)
		if total <= available+1e-9 {
			return qty
		}

		if lot <= 0 {
			return MaxQuantity(available, price, costRate, e.commission)
		}

		qty -= lot
	}

	return 0
}

func (e *PortfolioExecutor) validate(prices, weights *frame.Frame) ([]string, error) {
	if prices == nil || weights == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "prices and weights are required")
	}

	assets := prices.Columns()
	if len(assets) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "prices have no asset columns")
	}

	if err := prices.ValidateNumeric(assets...); err != nil {
		return nil, err
	}

	if err := weights.ValidateNumeric(assets...); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, "weights do not match prices", err)
	}

	if len(weights.Columns()) != len(assets) {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "weights have %d columns, prices have %d",
			len(weights.Columns()), len(assets))
	}

	if !slices.EqualFunc(prices.Index(), weights.Index(), time.Time.Equal) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "weights index differs from prices index")
	}

	for _, a := range assets {
		for i, p := range prices.Float(a) {
			if p <= 0 {
				return nil, errors.Newf(errors.ErrCodeInvalidInput, "price of %s must be positive, got %v at row %d", a, p, i)
			}
		}

		for i, w := range weights.Float(a) {
			if w < 0 {
				return nil, errors.Newf(errors.ErrCodeInvalidInput, "weight of %s is negative at row %d", a, i)
			}
		}
	}

	return assets, nil
}
