// Package strategy defines the Strategy interface for signal generators and
// provides a Registry of named strategy factories.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"strategylab/internal/domain"
)

// Strategy turns a window of bars into a per-bar signal.
//
// The engine calls Update with the bars visible up to and including the
// current bar, then reads Next. Implementations must not look at anything
// beyond the slice they were given.
type Strategy interface {
	// Name returns a short identifier for logs and results.
	Name() string

	// Update recomputes cached indicators from bars.
	Update(bars []domain.Bar)

	// Next returns the signal for the most recent bar passed to Update.
	Next() domain.Signal
}

// Params carries numeric parameters for a registered strategy factory.
type Params map[string]float64

// Get returns p[key], or def when the key is absent.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns p[key] as an int, or def when the key is absent. A value that
// is not a finite whole number within int range is a ConfigError.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v < math.MinInt || v >= math.MaxInt {
		return 0, &domain.ConfigError{Field: key, Reason: fmt.Sprintf("must be a whole number, got %g", v)}
	}
	return int(v), nil
}

// Float returns p[key], or def when the key is absent. NaN and ±Inf are a
// ConfigError.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.ConfigError{Field: key, Reason: fmt.Sprintf("must be finite, got %g", v)}
	}
	return v, nil
}

// Factory builds a fresh Strategy instance. Each backtest run gets its own
// instance so runs never share indicator caches.
type Factory func(p Params) (Strategy, error)

// Registry holds named strategy factories for lookup and enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy with the given parameters.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, &domain.ConfigError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}
	return f(p)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
