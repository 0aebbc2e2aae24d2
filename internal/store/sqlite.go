package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/metrics"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ StrategyStore = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements StrategyStore and RunStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS strategies (
		name       TEXT PRIMARY KEY,
		spec_json  TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		strategy     TEXT NOT NULL,
		symbols      TEXT NOT NULL,
		start_ms     INTEGER NOT NULL,
		end_ms       INTEGER NOT NULL,
		created_at   INTEGER NOT NULL,
		config_json  TEXT NOT NULL,
		metrics_json TEXT,
		final_equity REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id          TEXT PRIMARY KEY,
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		quantity    INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		entry_ms    INTEGER NOT NULL,
		exit_price  REAL,
		exit_ms     INTEGER,
		pnl         REAL,
		exit_reason TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS trades_run_seq ON trades(run_id, seq)`,
	`CREATE INDEX IF NOT EXISTS runs_created ON runs(created_at)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps PRAGMAs and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// StrategyStore implementation
// ---------------------------------------------------------------------------

// SaveStrategy inserts or replaces a strategy specification.
func (s *SQLiteStore) SaveStrategy(ctx context.Context, name string, spec json.RawMessage) error {
	if name == "" {
		return &domain.ConfigError{Field: "name", Reason: "must not be empty"}
	}
	if !json.Valid(spec) {
		return &domain.ConfigError{Field: "spec", Reason: "not valid JSON"}
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (name, spec_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET spec_json = excluded.spec_json, updated_at = excluded.updated_at`,
		name, string(spec), now, now)
	return err
}

// GetStrategy retrieves a strategy specification by name.
func (s *SQLiteStore) GetStrategy(ctx context.Context, name string) (*StrategyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, spec_json, created_at, updated_at FROM strategies WHERE name = ?`, name)
	rec, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("strategy %q: %w", name, ErrNotFound)
	}
	return rec, err
}

// ListStrategies returns all saved specifications ordered by name.
func (s *SQLiteStore) ListStrategies(ctx context.Context) ([]StrategyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, spec_json, created_at, updated_at FROM strategies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StrategyRecord
	for rows.Next() {
		rec, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteStrategy removes a strategy specification. Deleting a missing name
// returns ErrNotFound.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("strategy %q: %w", name, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStrategy(sc scanner) (*StrategyRecord, error) {
	var (
		rec              StrategyRecord
		spec             string
		created, updated int64
	)
	if err := sc.Scan(&rec.Name, &spec, &created, &updated); err != nil {
		return nil, err
	}
	rec.Spec = json.RawMessage(spec)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return &rec, nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts the run and its trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		return &domain.ConfigError{Field: "id", Reason: "run id must not be empty"}
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	var met sql.NullString
	if run.Metrics != nil {
		b, err := json.Marshal(run.Metrics)
		if err != nil {
			return fmt.Errorf("encoding metrics: %w", err)
		}
		met = sql.NullString{String: string(b), Valid: true}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, symbols, start_ms, end_ms, created_at, config_json, metrics_json, final_equity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, strings.Join(run.Symbols, ","),
		run.Start.UnixMilli(), run.End.UnixMilli(), run.CreatedAt.UnixMilli(),
		string(cfg), met, run.FinalEquity,
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (id, run_id, seq, symbol, side, quantity, entry_price, entry_ms, exit_price, exit_ms, pnl, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range run.Trades {
		var (
			exitPrice, pnl sql.NullFloat64
			exitMs         sql.NullInt64
			reason         sql.NullString
		)
		if t.ExitPrice != nil {
			exitPrice = sql.NullFloat64{Float64: *t.ExitPrice, Valid: true}
		}
		if t.ExitTime != nil {
			exitMs = sql.NullInt64{Int64: t.ExitTime.UnixMilli(), Valid: true}
		}
		if t.PnL != nil {
			pnl = sql.NullFloat64{Float64: *t.PnL, Valid: true}
		}
		if t.ExitReason != "" {
			reason = sql.NullString{String: string(t.ExitReason), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			t.ID, run.ID, i, t.Symbol, string(t.Side), t.Qty, t.EntryPrice, t.EntryTime.UnixMilli(),
			exitPrice, exitMs, pnl, reason,
		); err != nil {
			return fmt.Errorf("inserting trade %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, strategy, symbols, start_ms, end_ms, created_at, config_json, metrics_json, final_equity`

// GetRun retrieves a run by ID. Trades are not loaded; use ListTrades.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		run                    RunRecord
		symbols, cfg           string
		met                    sql.NullString
		startMs, endMs, create int64
	)
	if err := sc.Scan(&run.ID, &run.Strategy, &symbols, &startMs, &endMs, &create, &cfg, &met, &run.FinalEquity); err != nil {
		return nil, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.Start = time.UnixMilli(startMs).UTC()
	run.End = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(create).UTC()

	run.Config = engine.DefaultConfig()
	if err := json.Unmarshal([]byte(cfg), &run.Config); err != nil {
		return nil, fmt.Errorf("decoding config of run %s: %w", run.ID, err)
	}
	if met.Valid {
		run.Metrics = &metrics.Summary{}
		if err := json.Unmarshal([]byte(met.String), run.Metrics); err != nil {
			return nil, fmt.Errorf("decoding metrics of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// ListTrades returns the trades of a run in the order they were saved.
// A missing run returns ErrNotFound.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, entry_price, entry_ms, exit_price, exit_ms, pnl, exit_reason
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []domain.Trade{}
	for rows.Next() {
		var (
			t              domain.Trade
			side           string
			entryMs        int64
			exitPrice, pnl sql.NullFloat64
			exitMs         sql.NullInt64
			reason         sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Qty, &t.EntryPrice, &entryMs, &exitPrice, &exitMs, &pnl, &reason); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		if exitPrice.Valid {
			v := exitPrice.Float64
			t.ExitPrice = &v
		}
		if exitMs.Valid {
			ts := time.UnixMilli(exitMs.Int64).UTC()
			t.ExitTime = &ts
		}
		if pnl.Valid {
			v := pnl.Float64
			t.PnL = &v
		}
		if reason.Valid {
			t.ExitReason = domain.ExitReason(reason.String)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
