// Package broker defines the Broker interface used by the backtest engine to
// turn orders into fills, and the in-memory simulator that implements it.
package broker

import (
	"strategylab/internal/domain"
)

// Broker executes orders. Execution is immediate and all-or-nothing.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// SubmitOrder executes order and returns the resulting fill.
	SubmitOrder(order domain.Order) (domain.Fill, error)
}
