// Package domain holds the core value types shared by the strategy, engine,
// store, and API packages: price bars, signals, orders, positions, and
// trades.
package domain

import (
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Market identifies the exchange group a symbol trades on. It is used as a
// path segment by the bar store.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is one timestamped OHLCV observation for an instrument. Bars are
// immutable once ingested.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"date"`
	Open      float64   `json:"open_price"`
	High      float64   `json:"high_price"`
	Low       float64   `json:"low_price"`
	Close     float64   `json:"close_price"`
	Volume    int64     `json:"volume"`
}

// ---------------------------------------------------------------------------
// Signals and positions
// ---------------------------------------------------------------------------

// Signal is a strategy's per-bar trading decision.
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

// String implements fmt.Stringer.
func (s Signal) String() string {
	switch s {
	case SignalSell:
		return "sell"
	case SignalBuy:
		return "buy"
	default:
		return "hold"
	}
}

// PositionState is the per-instrument state of the backtest state machine.
// Only the long side is modelled; there is no short state.
type PositionState string

const (
	PositionFlat PositionState = "flat"
	PositionLong PositionState = "long"
)

// ---------------------------------------------------------------------------
// Orders and trades
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order or trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is an instruction to buy or sell a whole number of units at a
// requested price. Orders are executed immediately and not retained.
type Order struct {
	Symbol    string
	Qty       int64
	Side      OrderSide
	Price     float64
	Timestamp time.Time
}

// Fill is the outcome of executing an Order: the slippage-adjusted price and
// the commission charged.
type Fill struct {
	Order      Order
	Price      float64
	Commission float64
}

// Notional returns fill price times quantity.
func (f Fill) Notional() float64 {
	return f.Price * float64(f.Qty())
}

// Qty returns the filled quantity.
func (f Fill) Qty() int64 { return f.Order.Qty }

// Trade is a position opened by an executed Order. It is open while ExitTime
// is nil and becomes closed exactly once via Close.
type Trade struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Qty        int64      `json:"quantity"`
	Side       OrderSide  `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_date"`
	ExitPrice  *float64   `json:"exit_price"`
	ExitTime   *time.Time `json:"exit_date"`
	PnL        *float64   `json:"pnl"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`
}

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
)

// IsOpen reports whether the trade has not been closed yet.
func (t *Trade) IsOpen() bool {
	return t.ExitTime == nil
}

// Close sets the exit fields and realizes P&L. Closing an already closed
// trade is a no-op and returns false.
func (t *Trade) Close(price float64, ts time.Time, reason ExitReason) bool {
	if !t.IsOpen() {
		return false
	}
	pnl := (price - t.EntryPrice) * float64(t.Qty)
	if t.Side == OrderSideSell {
		pnl = -pnl
	}
	t.ExitPrice = &price
	t.ExitTime = &ts
	t.PnL = &pnl
	t.ExitReason = reason
	return true
}

// RealizedPnL returns the realized P&L, or zero for an open trade.
func (t *Trade) RealizedPnL() float64 {
	if t.PnL == nil {
		return 0
	}
	return *t.PnL
}
