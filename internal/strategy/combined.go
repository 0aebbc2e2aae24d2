package strategy

import (
	"fmt"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*Combined)(nil)

// Combined pairs an exit strategy with an entry strategy. An exit signal
// always wins over an entry signal on the same bar.
type Combined struct {
	exit  Strategy
	entry Strategy
}

// NewCombined composes exit and entry. Both must be non-nil.
func NewCombined(exit, entry Strategy) (*Combined, error) {
	if exit == nil || entry == nil {
		return nil, &domain.ConfigError{Field: "strategy", Reason: "combined strategy needs both exit and entry"}
	}
	return &Combined{exit: exit, entry: entry}, nil
}

// Name joins both component names.
func (c *Combined) Name() string {
	return fmt.Sprintf("[%s] | [%s]", c.exit.Name(), c.entry.Name())
}

// Update forwards bars to both components.
func (c *Combined) Update(bars []domain.Bar) {
	c.exit.Update(bars)
	c.entry.Update(bars)
}

// Next returns sell if the exit strategy sells, buy if the entry strategy
// buys, and hold otherwise.
func (c *Combined) Next() domain.Signal {
	exit := c.exit.Next()
	entry := c.entry.Next()
	switch {
	case exit == domain.SignalSell:
		return domain.SignalSell
	case entry == domain.SignalBuy:
		return domain.SignalBuy
	default:
		return domain.SignalHold
	}
}
