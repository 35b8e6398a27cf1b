package executor

import "math"

// CommissionFee is a broker commission charged per fill.
type CommissionFee interface {
	// Calculate returns the commission in quote currency for a fill of quantity units.
	Calculate(quantity float64) float64
}

type Broker string

const (
	BrokerInteractiveBroker Broker = "interactive_broker"
	BrokerZero              Broker = "zero_commission"
)

var AllBrokers = []any{
	BrokerInteractiveBroker,
	BrokerZero,
}

// CommissionFor returns the fee model of a broker. Unknown brokers charge nothing.
func CommissionFor(broker Broker) CommissionFee {
	switch broker {
	case BrokerInteractiveBroker:
		return &PerShareCommission{PerShare: 0.005, Minimum: 1.0}
	default:
		return ZeroCommission{}
	}
}

// PerShareCommission charges a fixed amount per unit with a floor per fill.
type PerShareCommission struct {
	PerShare float64
	Minimum  float64
}

func (c *PerShareCommission) Calculate(quantity float64) float64 {
	return math.Max(c.PerShare*math.Abs(quantity), c.Minimum)
}

type ZeroCommission struct{}

func (ZeroCommission) Calculate(float64) float64 {
	return 0
}

// MaxQuantity is the largest quantity whose notional plus fees fits in
// budget, priced at price per unit and charged costRate of notional on top
// of the commission.
func MaxQuantity(budget, price, costRate float64, fee CommissionFee) float64 {
	if price <= 0 || budget <= 0 {
		return 0
	}

	qty := budget / (price * (1 + costRate))

	// converges within a few rounds for any sub-linear commission
	for i := 0; i < 10; i++ {
		total := qty*price*(1+costRate) + fee.Calculate(qty)
		if total <= budget {
			break
		}

		qty *= budget / total
	}

	return qty
}

// FloorToLot rounds quantity down to a whole multiple of lot. A lot of zero
// or less leaves the quantity fractional.
func FloorToLot(quantity, lot float64) float64 {
	if lot <= 0 {
		return math.Max(quantity, 0)
	}

	// tolerate representation error such as 600/12 landing just below 50
	lots := math.Floor(quantity/lot + 1e-9)
	if lots <= 0 {
		return 0
	}

	return lots * lot
}
