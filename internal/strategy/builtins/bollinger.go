// Package builtins provides built-in strategy implementations that ship with
// strategylab.
package builtins

import (
	"fmt"
	"math"

	"strategylab/internal/domain"
	"strategylab/internal/expr"
	"strategylab/internal/indicator"
	"strategylab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Bollinger)(nil)

// Default band parameters.
const (
	DefaultWindow = 20
	DefaultWidth  = 2.0
)

// Bollinger is a mean-reversion band strategy. It sells when the close is
// strictly above mean + width·std and buys when it is strictly below
// mean − width·std, both over the trailing window.
type Bollinger struct {
	window int
	width  float64

	n     int
	close float64
	bands indicator.Bands
}

// NewBollinger creates a Bollinger strategy. The window must be positive
// and the width non-negative.
func NewBollinger(window int, width float64) (*Bollinger, error) {
	if window <= 0 {
		return nil, &domain.ConfigError{Field: "window", Reason: fmt.Sprintf("must be positive, got %d", window)}
	}
	if width < 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return nil, &domain.ConfigError{Field: "width", Reason: fmt.Sprintf("must be finite and not negative, got %g", width)}
	}
	return &Bollinger{window: window, width: width}, nil
}

// Name returns "bollinger(window,width)".
func (s *Bollinger) Name() string {
	return fmt.Sprintf("bollinger(%d,%g)", s.window, s.width)
}

// Update recomputes the bands over the close prices in bars.
func (s *Bollinger) Update(bars []domain.Bar) {
	closes := expr.Closes(bars)
	s.n = len(closes)
	s.bands = indicator.BollingerBands(closes, s.window, s.width)
	if s.n > 0 {
		s.close = closes[s.n-1]
	}
}

// Next compares the latest close against the latest bands. It holds while
// fewer than window bars have been seen.
func (s *Bollinger) Next() domain.Signal {
	if s.n < s.window {
		return domain.SignalHold
	}
	i := s.n - 1
	switch {
	case s.close > s.bands.Upper[i]:
		return domain.SignalSell
	case s.close < s.bands.Lower[i]:
		return domain.SignalBuy
	default:
		return domain.SignalHold
	}
}

// Bands returns the bands computed by the last Update.
func (s *Bollinger) Bands() indicator.Bands {
	return s.bands
}

// Register adds the built-in strategies to r.
func Register(r *strategy.Registry) {
	r.Register("bollinger", func(p strategy.Params) (strategy.Strategy, error) {
		window, err := p.Int("window", DefaultWindow)
		if err != nil {
			return nil, err
		}
		width, err := p.Float("width", DefaultWidth)
		if err != nil {
			return nil, err
		}
		return NewBollinger(window, width)
	})
}

// Registry returns a new Registry holding every built-in strategy.
func Registry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
