// Package sweep runs many independent backtests over the same bar feed in
// parallel, one engine and one strategy instance per run.
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/strategy"
)

// Candidate is one point of a sweep. New must return a fresh strategy on
// every call.
type Candidate struct {
	Label  string
	Params strategy.Params
	New    func() (engine.Strategy, error)
}

// Outcome is the result of one Candidate.
type Outcome struct {
	Index  int              `json:"index"`
	Label  string           `json:"label"`
	Params strategy.Params  `json:"params,omitempty"`
	Report *backtest.Report `json:"report"`
}

// Run executes every candidate over bars with at most limit runs in flight
// (GOMAXPROCS when limit <= 0). Outcomes are returned in candidate order.
// The first failing candidate cancels the rest.
func Run(ctx context.Context, cfg engine.Config, bars []domain.Bar, candidates []Candidate, limit int) ([]Outcome, error) {
	out := make([]Outcome, len(candidates))
	err := Stream(ctx, cfg, bars, candidates, limit, func(o Outcome) error {
		out[o.Index] = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream is Run that hands each Outcome to emit as soon as its run finishes,
// in completion order. emit is never called concurrently; an error from it
// cancels the remaining runs.
func Stream(ctx context.Context, cfg engine.Config, bars []domain.Bar, candidates []Candidate, limit int, emit func(Outcome) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, c := range candidates {
		g.Go(func() error {
			s, err := c.New()
			if err != nil {
				return fmt.Errorf("%s: %w", c.Label, err)
			}
			rep, err := backtest.RunBars(ctx, cfg, s, bars)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Label, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if err := ctx.Err(); err != nil {
				return err
			}
			return emit(Outcome{Index: i, Label: c.Label, Params: c.Params, Report: rep})
		})
	}
	return g.Wait()
}

// Grid expands axes into the cartesian product of parameter sets for the
// named registry strategy. Axis names are visited in sorted order, so the
// candidate order is deterministic.
func Grid(reg *strategy.Registry, name string, axes map[string][]float64) ([]Candidate, error) {
	factory, ok := reg.Get(name)
	if !ok {
		return nil, &domain.ConfigError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}

	keys := make([]string, 0, len(axes))
	for k, vals := range axes {
		if len(vals) == 0 {
			return nil, &domain.ConfigError{Field: k, Reason: "sweep axis has no values"}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := []strategy.Params{{}}
	for _, k := range keys {
		next := make([]strategy.Params, 0, len(points)*len(axes[k]))
		for _, p := range points {
			for _, v := range axes[k] {
				q := make(strategy.Params, len(p)+1)
				for pk, pv := range p {
					q[pk] = pv
				}
				q[k] = v
				next = append(next, q)
			}
		}
		points = next
	}

	candidates := make([]Candidate, len(points))
	for i, p := range points {
		candidates[i] = Candidate{
			Label:  label(name, keys, p),
			Params: p,
			New:    func() (engine.Strategy, error) { return factory(p) },
		}
	}
	return candidates, nil
}

func label(name string, keys []string, p strategy.Params) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'g', -1, 64)
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

// Best returns the outcome with the highest total return among those that
// closed at least one trade.
func Best(outcomes []Outcome) (Outcome, bool) {
	var (
		best  Outcome
		found bool
	)
	for _, o := range outcomes {
		if o.Report == nil || o.Report.Metrics == nil {
			continue
		}
		if !found || o.Report.Metrics.TotalReturn > best.Report.Metrics.TotalReturn {
			best, found = o, true
		}
	}
	return best, found
}
