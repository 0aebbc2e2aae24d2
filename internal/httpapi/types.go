// Package httpapi exposes bar data, backtests, saved strategies and run
// history over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/engine"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

// BacktestRequest is the body of POST /api/backtest. Either Strategy or
// StrategyName (a saved strategy) must be given. Dates are YYYY-MM-DD and
// inclusive; Config fields that are absent keep their defaults.
type BacktestRequest struct {
	Strategy     *strategy.Spec `json:"strategy,omitempty"`
	StrategyName string         `json:"strategy_name,omitempty"`
	Symbols      []string       `json:"symbols"`
	Market       string         `json:"market,omitempty"`
	Start        string         `json:"start"`
	End          string         `json:"end"`
	Config       engine.Config  `json:"config"`
}

// Resolve returns the strategy spec to run, loading a saved one from
// strategies when StrategyName is set, and the backtest.Request.
func (r *BacktestRequest) Resolve(ctx context.Context, strategies store.StrategyStore) (*strategy.Spec, backtest.Request, error) {
	spec := r.Strategy
	switch {
	case spec != nil && r.StrategyName != "":
		return nil, backtest.Request{}, &RequestError{Msg: "give either strategy or strategy_name, not both"}
	case spec == nil && r.StrategyName == "":
		return nil, backtest.Request{}, &RequestError{Msg: "strategy or strategy_name is required"}
	case spec == nil:
		rec, err := strategies.GetStrategy(ctx, r.StrategyName)
		if err != nil {
			return nil, backtest.Request{}, err
		}
		spec = &strategy.Spec{}
		if err := json.Unmarshal(rec.Spec, spec); err != nil {
			return nil, backtest.Request{}, fmt.Errorf("decoding saved strategy %q: %w", r.StrategyName, err)
		}
	}
	req, err := r.toRequest()
	if err != nil {
		return nil, backtest.Request{}, err
	}
	return spec, req, nil
}

func (r *BacktestRequest) toRequest() (backtest.Request, error) {
	start, err := ParseDate("start", r.Start, time.Time{})
	if err != nil {
		return backtest.Request{}, err
	}
	end, err := ParseDate("end", r.End, time.Now().UTC())
	if err != nil {
		return backtest.Request{}, err
	}
	return backtest.Request{
		Symbols: r.Symbols,
		Market:  r.Market,
		Start:   start,
		End:     end,
		Config:  r.Config,
	}, nil
}

// ErrorResponse is the body of every non-2xx response. Kind is set for
// classified request errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// RequestError is a malformed request that is not a strategy or config
// error.
type RequestError struct{ Msg string }

func (e *RequestError) Error() string { return e.Msg }

// ParseDate parses a YYYY-MM-DD field, returning def for "".
func ParseDate(field, s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, &RequestError{Msg: fmt.Sprintf("%s: want YYYY-MM-DD, got %q", field, s)}
	}
	return t, nil
}
