package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"strategylab/internal/domain"
)

// Config holds the account and execution parameters of a single backtest
// run. Rates and percentages are fractions: 0.001 is 0.1%.
type Config struct {
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate"`
	SlippageRate   float64 `yaml:"slippage_rate" json:"slippage_rate"`
	PositionSize   float64 `yaml:"position_size" json:"position_size"`
	StopLossPct    float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct  float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
}

// DefaultConfig returns 100k capital, 0.1% commission and slippage, 10% of
// capital per position, a 100% stop loss and no take profit.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		CommissionRate: 0.001,
		SlippageRate:   0.001,
		PositionSize:   0.1,
		StopLossPct:    1.0,
		TakeProfitPct:  math.Inf(1),
	}
}

// Validate reports the first invalid field as a *domain.ConfigError.
func (c Config) Validate() error {
	switch {
	case !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 1):
		return invalid("initial_capital", "must be positive and finite, got %v", c.InitialCapital)
	case !(c.PositionSize > 0) || math.IsInf(c.PositionSize, 1):
		return invalid("position_size", "must be positive and finite, got %v", c.PositionSize)
	case !(c.CommissionRate >= 0) || c.CommissionRate >= 1:
		return invalid("commission_rate", "must be in [0, 1), got %v", c.CommissionRate)
	case !(c.SlippageRate >= 0) || c.SlippageRate >= 1:
		return invalid("slippage_rate", "must be in [0, 1), got %v", c.SlippageRate)
	case !(c.StopLossPct >= 0):
		return invalid("stop_loss_pct", "must not be negative, got %v", c.StopLossPct)
	case !(c.TakeProfitPct >= 0):
		return invalid("take_profit_pct", "must not be negative, got %v", c.TakeProfitPct)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MarshalJSON encodes an infinite take profit as null, since JSON has no
// infinity. Decoding onto DefaultConfig() keeps the infinite default when the
// field is null or absent.
func (c Config) MarshalJSON() ([]byte, error) {
	type plain Config
	out := struct {
		plain
		TakeProfitPct *float64 `json:"take_profit_pct"`
	}{plain: plain(c)}
	if !math.IsInf(c.TakeProfitPct, 1) {
		out.TakeProfitPct = &c.TakeProfitPct
	}
	return json.Marshal(out)
}
