// Package metrics summarizes a finished backtest into performance figures.
package metrics

import (
	"math"

	"golang.org/x/exp/constraints"

	"strategylab/internal/domain"
	"strategylab/internal/indicator"
)

// TradingDays annualizes the per-bar Sharpe ratio.
const TradingDays = 252

// Summary holds the performance figures of one run. Ratios are fractions.
type Summary struct {
	TotalReturn       float64 `json:"total_return"`
	TotalTrades       int     `json:"total_trades"`
	WinRate           float64 `json:"win_rate"`
	AvgReturnPerTrade float64 `json:"avg_return_per_trade"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	ProfitFactor      float64 `json:"profit_factor"`
}

// Summarize computes the Summary of a run from its closed trades and its
// equity and drawdown curves. It returns nil when no trade was closed.
func Summarize(trades []domain.Trade, equity, drawdown []float64, initialCapital float64) *Summary {
	if len(trades) == 0 {
		return nil
	}

	pnl := make([]float64, len(trades))
	for i := range trades {
		pnl[i] = trades[i].RealizedPnL()
	}

	final := initialCapital
	if n := len(equity); n > 0 {
		final = equity[n-1]
	}

	return &Summary{
		TotalReturn:       (final - initialCapital) / initialCapital,
		TotalTrades:       len(trades),
		WinRate:           float64(count(pnl, positive)) / float64(len(trades)),
		AvgReturnPerTrade: indicator.Mean(pnl),
		MaxDrawdown:       maxOf(drawdown),
		SharpeRatio:       Sharpe(equity),
		ProfitFactor:      ProfitFactor(pnl),
	}
}

// Sharpe returns √252 · mean / std of the bar-over-bar percentage changes of
// equity. It is 0 with fewer than two equity points or zero variance.
func Sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	std := indicator.StdDev(returns)
	if !(std > 0) || math.IsInf(std, 0) {
		return 0
	}
	return math.Sqrt(TradingDays) * indicator.Mean(returns) / std
}

// ProfitFactor returns gross profit over gross loss, or 0 when nothing lost.
func ProfitFactor(pnl []float64) float64 {
	losses := math.Abs(sumFunc(pnl, negative))
	if losses == 0 {
		return 0
	}
	return sumFunc(pnl, positive) / losses
}

func positive(x float64) bool { return x > 0 }
func negative(x float64) bool { return x < 0 }

func sumFunc[S ~[]E, E constraints.Integer | constraints.Float](s S, pred func(E) bool) E {
	var sum E
	for _, e := range s {
		if pred(e) {
			sum += e
		}
	}
	return sum
}

func count[S ~[]E, E constraints.Integer | constraints.Float](s S, pred func(E) bool) int {
	var n int
	for _, e := range s {
		if pred(e) {
			n++
		}
	}
	return n
}

func maxOf[S ~[]E, E constraints.Integer | constraints.Float](s S) E {
	var m E
	for i, e := range s {
		if i == 0 || e > m {
			m = e
		}
	}
	return m
}
