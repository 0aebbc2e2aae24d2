package expr

import (
	"fmt"
	"strings"

	"strategylab/internal/domain"
	"strategylab/internal/indicator"
)

// StatKind selects the rolling statistic a Variable computes.
type StatKind string

const (
	StatHigh StatKind = "high" // running max of high
	StatLow  StatKind = "low"  // running min of low
	StatStd  StatKind = "std"  // rolling sample std of close
	StatMean StatKind = "mvg"  // rolling mean of close
)

// ParseStatKind accepts the canonical kind names plus a few common aliases.
func ParseStatKind(s string) (StatKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "max":
		return StatHigh, nil
	case "low", "min":
		return StatLow, nil
	case "std", "stddev":
		return StatStd, nil
	case "mvg", "mean", "sma":
		return StatMean, nil
	}
	return "", compileErr(UnknownVariableKind, -1, "unknown variable kind %q", s)
}

func (k StatKind) valid() bool {
	switch k {
	case StatHigh, StatLow, StatStd, StatMean:
		return true
	}
	return false
}

// Variable is a rolling-window statistic over the trailing Window bars.
type Variable struct {
	Window int
	Kind   StatKind
}

// NewVariable validates the window and kind.
func NewVariable(window int, kind StatKind) (Variable, error) {
	if window <= 0 {
		return Variable{}, &domain.ConfigError{Field: "window", Reason: fmt.Sprintf("must be positive, got %d", window)}
	}
	if !kind.valid() {
		return Variable{}, &domain.ConfigError{Field: "kind", Reason: fmt.Sprintf("unknown statistic %q", kind)}
	}
	return Variable{Window: window, Kind: kind}, nil
}

// MustVariable is like NewVariable but panics on invalid input. It is meant
// for fixed, known-good parameters.
func MustVariable(window int, kind StatKind) Variable {
	v, err := NewVariable(window, kind)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the variable as kind(window), e.g. "high(20)".
func (v Variable) String() string {
	return fmt.Sprintf("%s(%d)", v.Kind, v.Window)
}

// Evaluate returns the statistic aligned to bars, NaN for the first
// Window-1 positions.
func (v Variable) Evaluate(bars []domain.Bar) []float64 {
	switch v.Kind {
	case StatHigh:
		return indicator.RollingMax(column(bars, func(b domain.Bar) float64 { return b.High }), v.Window)
	case StatLow:
		return indicator.RollingMin(column(bars, func(b domain.Bar) float64 { return b.Low }), v.Window)
	case StatStd:
		return indicator.RollingStd(Closes(bars), v.Window)
	case StatMean:
		return indicator.SMA(Closes(bars), v.Window)
	}
	return nanSeries(len(bars))
}

// Closes extracts the close price column.
func Closes(bars []domain.Bar) []float64 {
	return column(bars, func(b domain.Bar) float64 { return b.Close })
}

func column(bars []domain.Bar, f func(domain.Bar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = f(b)
	}
	return out
}
