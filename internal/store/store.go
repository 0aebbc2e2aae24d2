// Package store defines storage interfaces for price bars, saved strategy
// specifications and backtest runs, with Parquet and SQLite implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/metrics"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within
	// [start, end], ordered by timestamp.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// StrategyRecord is a named, saved strategy specification. Spec holds the
// JSON document accepted by the strategy package.
type StrategyRecord struct {
	Name      string          `json:"name"`
	Spec      json.RawMessage `json:"spec"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StrategyStore persists strategy specifications by name.
type StrategyStore interface {
	// SaveStrategy inserts or replaces the specification stored under name.
	SaveStrategy(ctx context.Context, name string, spec json.RawMessage) error

	// GetStrategy returns the named specification or ErrNotFound.
	GetStrategy(ctx context.Context, name string) (*StrategyRecord, error)

	// ListStrategies returns all saved specifications ordered by name.
	ListStrategies(ctx context.Context) ([]StrategyRecord, error)

	// DeleteStrategy removes the named specification.
	DeleteStrategy(ctx context.Context, name string) error
}

// RunRecord is a finished backtest together with its trades.
type RunRecord struct {
	ID          string           `json:"id"`
	Strategy    string           `json:"strategy"`
	Symbols     []string         `json:"symbols"`
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	CreatedAt   time.Time        `json:"created_at"`
	Config      engine.Config    `json:"config"`
	Metrics     *metrics.Summary `json:"metrics"`
	FinalEquity float64          `json:"final_equity"`
	Trades      []domain.Trade   `json:"trades,omitempty"`
}

// RunStore persists backtest runs.
type RunStore interface {
	// SaveRun inserts a run and all of its trades atomically.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun returns the run without its trades, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// ListTrades returns the trades of a run in the order they were closed.
	ListTrades(ctx context.Context, runID string) ([]domain.Trade, error)
}
