package broker

import (
	"fmt"
	"math"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker fills every order in full at the requested price moved
// against the trader by the slippage rate, and charges commission as a
// fraction of the filled notional.
type SimulatorBroker struct {
	slippageRate   float64
	commissionRate float64
}

// NewSimulatorBroker creates a SimulatorBroker with the given rates,
// e.g. 0.001 for 0.1%.
func NewSimulatorBroker(slippageRate, commissionRate float64) *SimulatorBroker {
	return &SimulatorBroker{
		slippageRate:   slippageRate,
		commissionRate: commissionRate,
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder applies slippage, then commission on the slipped notional.
// Orders with a non-positive quantity or price are rejected.
func (b *SimulatorBroker) SubmitOrder(order domain.Order) (domain.Fill, error) {
	if order.Qty <= 0 {
		return domain.Fill{}, fmt.Errorf("order %s %s: quantity must be positive, got %d", order.Side, order.Symbol, order.Qty)
	}
	if !(order.Price > 0) || math.IsInf(order.Price, 0) {
		return domain.Fill{}, fmt.Errorf("order %s %s: invalid price %v", order.Side, order.Symbol, order.Price)
	}

	price := b.Slip(order.Price, order.Side)
	fill := domain.Fill{Order: order, Price: price}
	fill.Commission = b.commissionRate * fill.Notional()
	return fill, nil
}

// Slip moves price up for buys and down for sells.
func (b *SimulatorBroker) Slip(price float64, side domain.OrderSide) float64 {
	if side == domain.OrderSideBuy {
		return price * (1 + b.slippageRate)
	}
	return price * (1 - b.slippageRate)
}
