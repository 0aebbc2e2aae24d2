// Package engine runs a strategy over a pre-loaded bar feed, coordinating
// signal generation, risk exits, order execution, and equity tracking.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"strategylab/internal/broker"
	"strategylab/internal/domain"
)

// Strategy is the signal source driven by the engine. It is satisfied by
// every strategy in internal/strategy.
type Strategy interface {
	Name() string
	Update(bars []domain.Bar)
	Next() domain.Signal
}

// ErrAlreadyRun is returned when Run is called twice on the same Engine.
var ErrAlreadyRun = errors.New("engine: already run")

// Result is the outcome of a backtest run.
type Result struct {
	Strategy       string                          `json:"strategy"`
	InitialCapital float64                         `json:"initial_capital"`
	Trades         []domain.Trade                  `json:"trades"`
	OpenTrades     []domain.Trade                  `json:"open_trades,omitempty"`
	Positions      map[string]domain.PositionState `json:"positions"`
	Equity         []float64                       `json:"equity_curve"`
	Drawdown       []float64                       `json:"drawdown_curve"`
	Cash           float64                         `json:"cash"`
	FinalEquity    float64                         `json:"final_equity"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithBroker replaces the default SimulatorBroker built from the config.
func WithBroker(b broker.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine owns all state of one backtest run: cash, per-instrument positions,
// the trade log and the equity and drawdown curves. An Engine is used for a
// single Run; concurrent runs each need their own Engine and Strategy.
type Engine struct {
	cfg      Config
	strategy Strategy
	broker   broker.Broker
	risk     *RiskManager
	log      *slog.Logger

	cash      float64
	peak      float64
	positions map[string]domain.PositionState
	open      map[string]*domain.Trade
	history   map[string][]domain.Bar
	lastClose map[string]float64
	trades    []domain.Trade
	equity    []float64
	drawdown  []float64
	ran       bool
}

// New validates cfg and creates an Engine for strategy s.
func New(cfg Config, s Strategy, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &domain.ConfigError{Field: "strategy", Reason: "must not be nil"}
	}
	e := &Engine{
		cfg:       cfg,
		strategy:  s,
		broker:    broker.NewSimulatorBroker(cfg.SlippageRate, cfg.CommissionRate),
		risk:      NewRiskManager(cfg.StopLossPct, cfg.TakeProfitPct, cfg.PositionSize),
		log:       slog.Default(),
		cash:      cfg.InitialCapital,
		positions: make(map[string]domain.PositionState),
		open:      make(map[string]*domain.Trade),
		history:   make(map[string][]domain.Bar),
		lastClose: make(map[string]float64),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With("component", "engine", "strategy", s.Name())
	return e, nil
}

// Run processes bars in order. bars must be sorted by timestamp; bars of
// several instruments may be interleaved. Each bar is fully processed before
// the next one is looked at, and the strategy only ever sees history up to
// and including the current bar.
func (e *Engine) Run(ctx context.Context, bars []domain.Bar) (*Result, error) {
	if e.ran {
		return nil, ErrAlreadyRun
	}
	e.ran = true

	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Before(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("bar %d (%s %s) is earlier than bar %d", i,
				bars[i].Symbol, bars[i].Timestamp.Format("2006-01-02"), i-1)
		}
	}
	for _, b := range bars {
		e.positions[b.Symbol] = domain.PositionFlat
	}

	e.log.Info("backtest starting", "bars", len(bars), "instruments", len(e.positions))

	for i := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.step(bars[i]); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
	}

	res := e.result()
	e.log.Info("backtest finished",
		"trades", len(res.Trades),
		"open", len(res.OpenTrades),
		"final_equity", res.FinalEquity,
	)
	return res, nil
}

func (e *Engine) step(bar domain.Bar) error {
	sym := bar.Symbol
	e.history[sym] = append(e.history[sym], bar)
	e.lastClose[sym] = bar.Close

	e.strategy.Update(e.history[sym])
	signal := e.strategy.Next()

	for _, s := range e.openSymbols() {
		t := e.open[s]
		reason, hit := e.risk.CheckExit(t, e.lastClose[s])
		if !hit {
			continue
		}
		if err := e.exit(s, e.lastClose[s], bar, reason); err != nil {
			return err
		}
	}

	switch {
	case signal == domain.SignalBuy && e.positions[sym] == domain.PositionFlat:
		qty := e.risk.PositionSize(e.cfg.InitialCapital, bar.Close)
		if qty > 0 {
			if err := e.enter(bar, qty); err != nil {
				return err
			}
		}
	case signal == domain.SignalSell && e.positions[sym] == domain.PositionLong:
		if err := e.exit(sym, bar.Close, bar, domain.ExitSignal); err != nil {
			return err
		}
	}

	e.markToMarket()
	return nil
}

func (e *Engine) enter(bar domain.Bar, qty int64) error {
	fill, err := e.broker.SubmitOrder(domain.Order{
		Symbol:    bar.Symbol,
		Qty:       qty,
		Side:      domain.OrderSideBuy,
		Price:     bar.Close,
		Timestamp: bar.Timestamp,
	})
	if err != nil {
		return err
	}
	e.cash -= fill.Notional() + fill.Commission

	t := &domain.Trade{
		ID:         uuid.NewString(),
		Symbol:     bar.Symbol,
		Qty:        qty,
		Side:       domain.OrderSideBuy,
		EntryPrice: bar.Close,
		EntryTime:  bar.Timestamp,
	}
	e.open[bar.Symbol] = t
	e.positions[bar.Symbol] = domain.PositionLong

	e.log.Debug("entered",
		"symbol", bar.Symbol,
		"qty", qty,
		"price", bar.Close,
		"fill", fill.Price,
		"commission", fill.Commission,
	)
	return nil
}

// exit sells the open position in sym at price and closes its trade. bar
// supplies the timestamp.
func (e *Engine) exit(sym string, price float64, bar domain.Bar, reason domain.ExitReason) error {
	t := e.open[sym]
	fill, err := e.broker.SubmitOrder(domain.Order{
		Symbol:    sym,
		Qty:       t.Qty,
		Side:      domain.OrderSideSell,
		Price:     price,
		Timestamp: bar.Timestamp,
	})
	if err != nil {
		return err
	}
	e.cash += fill.Notional() - fill.Commission

	t.Close(price, bar.Timestamp, reason)
	e.trades = append(e.trades, *t)
	delete(e.open, sym)
	e.positions[sym] = domain.PositionFlat

	e.log.Debug("exited",
		"symbol", sym,
		"reason", reason,
		"price", price,
		"fill", fill.Price,
		"pnl", t.RealizedPnL(),
	)
	return nil
}

func (e *Engine) markToMarket() {
	equity := e.cash
	for s, t := range e.open {
		equity += float64(t.Qty) * e.lastClose[s]
	}
	if len(e.equity) == 0 || equity > e.peak {
		e.peak = equity
	}
	dd := 0.0
	if e.peak > equity {
		dd = (e.peak - equity) / e.peak
	}
	e.equity = append(e.equity, equity)
	e.drawdown = append(e.drawdown, dd)
}

func (e *Engine) openSymbols() []string {
	if len(e.open) == 0 {
		return nil
	}
	syms := make([]string, 0, len(e.open))
	for s := range e.open {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

func (e *Engine) result() *Result {
	res := &Result{
		Strategy:       e.strategy.Name(),
		InitialCapital: e.cfg.InitialCapital,
		Trades:         e.trades,
		Positions:      e.positions,
		Equity:         e.equity,
		Drawdown:       e.drawdown,
		Cash:           e.cash,
		FinalEquity:    e.cfg.InitialCapital,
	}
	if res.Trades == nil {
		res.Trades = []domain.Trade{}
	}
	if res.Equity == nil {
		res.Equity = []float64{}
		res.Drawdown = []float64{}
	}
	if n := len(e.equity); n > 0 {
		res.FinalEquity = e.equity[n-1]
	}
	for _, s := range e.openSymbols() {
		res.OpenTrades = append(res.OpenTrades, *e.open[s])
	}
	return res
}
