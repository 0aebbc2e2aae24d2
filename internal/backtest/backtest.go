// Package backtest loads bars from a BarStore, runs a strategy through the
// engine, summarizes the result, and optionally records the run.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/metrics"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

// Request selects the bars and account parameters of a run.
type Request struct {
	Symbols []string      `json:"symbols"`
	Market  string        `json:"market,omitempty"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Config  engine.Config `json:"config"`
}

// Report is a finished run: the engine result plus its metrics. Metrics is
// nil when no trade was closed.
type Report struct {
	RunID string `json:"run_id"`
	*engine.Result
	Metrics *metrics.Summary `json:"metrics"`
}

// Backtester replays stored bar data through strategies.
type Backtester struct {
	bars     store.BarStore
	runs     store.RunStore
	registry *strategy.Registry
	log      *slog.Logger
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithRunStore records every finished run in rs.
func WithRunStore(rs store.RunStore) Option {
	return func(bt *Backtester) { bt.runs = rs }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(bt *Backtester) { bt.log = l }
}

// NewBacktester creates a Backtester that reads bars from barStore and
// resolves builtin strategies in registry.
func NewBacktester(barStore store.BarStore, registry *strategy.Registry, opts ...Option) *Backtester {
	bt := &Backtester{
		bars:     barStore,
		registry: registry,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(bt)
	}
	return bt
}

// Registry returns the registry used to resolve builtin strategies.
func (bt *Backtester) Registry() *strategy.Registry {
	return bt.registry
}

// LoadBars reads every requested symbol and merges them into one
// timestamp-ordered feed.
func (bt *Backtester) LoadBars(ctx context.Context, req Request) ([]domain.Bar, error) {
	if len(req.Symbols) == 0 {
		return nil, &domain.ConfigError{Field: "symbols", Reason: "at least one symbol is required"}
	}
	if req.End.Before(req.Start) {
		return nil, &domain.ConfigError{Field: "end", Reason: "must not be before start"}
	}
	market := req.Market
	if market == "" {
		market = string(domain.MarketUS)
	}

	feeds := make([][]domain.Bar, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		bars, err := bt.bars.ReadBars(ctx, sym, market, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", sym, err)
		}
		feeds = append(feeds, bars)
	}
	return store.MergeFeeds(feeds...), nil
}

// Run compiles spec, loads the requested bars and runs a fresh strategy
// over them. Compile and configuration errors are returned before any bar
// is read.
func (bt *Backtester) Run(ctx context.Context, spec *strategy.Spec, req Request) (*Report, error) {
	s, err := spec.Build(bt.registry)
	if err != nil {
		return nil, err
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	bars, err := bt.LoadBars(ctx, req)
	if err != nil {
		return nil, err
	}

	rep, err := RunBars(ctx, req.Config, s, bars, engine.WithLogger(bt.log))
	if err != nil {
		return nil, err
	}

	bt.log.Info("backtest complete",
		"run_id", rep.RunID,
		"strategy", rep.Strategy,
		"symbols", strings.Join(req.Symbols, ","),
		"bars", len(bars),
		"trades", len(rep.Trades),
	)

	if bt.runs != nil {
		rec := &store.RunRecord{
			ID:          rep.RunID,
			Strategy:    rep.Strategy,
			Symbols:     req.Symbols,
			Start:       req.Start,
			End:         req.End,
			Config:      req.Config,
			Metrics:     rep.Metrics,
			FinalEquity: rep.FinalEquity,
			Trades:      append(append([]domain.Trade{}, rep.Trades...), rep.OpenTrades...),
		}
		if err := bt.runs.SaveRun(ctx, rec); err != nil {
			return nil, fmt.Errorf("saving run %s: %w", rep.RunID, err)
		}
	}
	return rep, nil
}

// RunBars runs s over an in-memory feed with a fresh engine.
func RunBars(ctx context.Context, cfg engine.Config, s engine.Strategy, bars []domain.Bar, opts ...engine.Option) (*Report, error) {
	e, err := engine.New(cfg, s, opts...)
	if err != nil {
		return nil, err
	}
	res, err := e.Run(ctx, bars)
	if err != nil {
		return nil, err
	}
	return &Report{
		RunID:   uuid.NewString(),
		Result:  res,
		Metrics: metrics.Summarize(res.Trades, res.Equity, res.Drawdown, cfg.InitialCapital),
	}, nil
}
