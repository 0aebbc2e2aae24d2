package engine

import (
	"math"

	"strategylab/internal/domain"
)

// RiskManager decides forced exits and position sizes.
type RiskManager struct {
	stopLossPct   float64
	takeProfitPct float64
	positionSize  float64
}

// NewRiskManager creates a RiskManager with the specified thresholds.
//
//   - stopLossPct: adverse move from entry, as a fraction of the entry
//     price, beyond which an open trade is closed (e.g. 0.10 for 10%).
//   - takeProfitPct: favorable move beyond which an open trade is closed.
//     Use +Inf to disable.
//   - positionSize: fraction of capital committed to each new position.
func NewRiskManager(stopLossPct, takeProfitPct, positionSize float64) *RiskManager {
	return &RiskManager{
		stopLossPct:   stopLossPct,
		takeProfitPct: takeProfitPct,
		positionSize:  positionSize,
	}
}

// CheckExit reports whether the open trade t must be force-closed at price.
// Both thresholds are strict: a move of exactly the threshold does not
// trigger.
func (rm *RiskManager) CheckExit(t *domain.Trade, price float64) (domain.ExitReason, bool) {
	if !t.IsOpen() || t.EntryPrice == 0 {
		return "", false
	}
	move := (price - t.EntryPrice) / t.EntryPrice
	if t.Side == domain.OrderSideSell {
		move = -move
	}
	switch {
	case -move > rm.stopLossPct:
		return domain.ExitStopLoss, true
	case move > rm.takeProfitPct:
		return domain.ExitTakeProfit, true
	}
	return "", false
}

// PositionSize returns floor(capital·positionSize / price), or 0 when price
// is not a usable positive number.
func (rm *RiskManager) PositionSize(capital, price float64) int64 {
	if !(price > 0) || math.IsInf(price, 1) {
		return 0
	}
	qty := math.Floor(capital * rm.positionSize / price)
	if !(qty > 0) {
		return 0
	}
	return int64(qty)
}
