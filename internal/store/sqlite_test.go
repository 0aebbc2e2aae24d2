package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/metrics"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return s
}

func TestSQLiteStoreOpen(t *testing.T) {
	s := openSQLite(t)
	if err := s.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func TestSQLiteStoreStrategies(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	spec := json.RawMessage(`{"builtin":{"name":"bollinger"}}`)
	if err := s.SaveStrategy(ctx, "bands", spec); err != nil {
		t.Fatalf("SaveStrategy: %v", err)
	}
	updated := json.RawMessage(`{"builtin":{"name":"bollinger","params":{"window":10}}}`)
	if err := s.SaveStrategy(ctx, "bands", updated); err != nil {
		t.Fatalf("SaveStrategy (update): %v", err)
	}
	if err := s.SaveStrategy(ctx, "alpha", spec); err != nil {
		t.Fatalf("SaveStrategy: %v", err)
	}

	got, err := s.GetStrategy(ctx, "bands")
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if string(got.Spec) != string(updated) {
		t.Errorf("spec = %s, want %s", got.Spec, updated)
	}

	list, err := s.ListStrategies(ctx)
	if err != nil {
		t.Fatalf("ListStrategies: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "bands" {
		t.Errorf("ListStrategies = %+v", list)
	}

	if err := s.DeleteStrategy(ctx, "alpha"); err != nil {
		t.Fatalf("DeleteStrategy: %v", err)
	}
	if _, err := s.GetStrategy(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStrategy after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteStrategy(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteStrategy err = %v, want ErrNotFound", err)
	}
	if err := s.SaveStrategy(ctx, "bad", json.RawMessage(`{`)); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("SaveStrategy(invalid json) err = %v, want ErrInvalidConfig", err)
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	entry := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	closedTrade := domain.Trade{ID: "t1", Symbol: "AAPL", Qty: 10, Side: domain.OrderSideBuy, EntryPrice: 100, EntryTime: entry}
	closedTrade.Close(110, entry.AddDate(0, 0, 5), domain.ExitSignal)
	openTrade := domain.Trade{ID: "t2", Symbol: "AAPL", Qty: 5, Side: domain.OrderSideBuy, EntryPrice: 105, EntryTime: entry.AddDate(0, 0, 7)}

	run := &RunRecord{
		ID:          "run-1",
		Strategy:    "bollinger(20,2)",
		Symbols:     []string{"AAPL", "MSFT"},
		Start:       entry,
		End:         entry.AddDate(0, 1, 0),
		Config:      engine.DefaultConfig(),
		Metrics:     &metrics.Summary{TotalTrades: 1, WinRate: 1, TotalReturn: 0.001},
		FinalEquity: 100100,
		Trades:      []domain.Trade{closedTrade, openTrade},
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != run.Strategy || len(got.Symbols) != 2 || got.Symbols[1] != "MSFT" {
		t.Errorf("GetRun = %+v", got)
	}
	if !math.IsInf(got.Config.TakeProfitPct, 1) {
		t.Errorf("take profit = %v, want +Inf after round trip", got.Config.TakeProfitPct)
	}
	if got.Metrics == nil || got.Metrics.TotalTrades != 1 {
		t.Errorf("metrics = %+v", got.Metrics)
	}
	if !got.Start.Equal(run.Start) {
		t.Errorf("start = %v, want %v", got.Start, run.Start)
	}

	trades, err := s.ListTrades(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("ListTrades returned %d trades, want 2", len(trades))
	}
	if trades[0].ID != "t1" || trades[0].RealizedPnL() != 100 || trades[0].ExitReason != domain.ExitSignal {
		t.Errorf("closed trade = %+v", trades[0])
	}
	if !trades[1].IsOpen() || trades[1].PnL != nil {
		t.Errorf("open trade = %+v, want open", trades[1])
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := s.ListTrades(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListTrades(missing) err = %v, want ErrNotFound", err)
	}
	if err := s.SaveRun(ctx, run); err == nil {
		t.Error("saving a duplicate run id succeeded")
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := &RunRecord{ID: id, Strategy: "s", CreatedAt: base.Add(time.Duration(i) * time.Hour), Config: engine.DefaultConfig()}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("ListRuns(2) = %v", runs)
	}
	if runs[0].Metrics != nil {
		t.Errorf("metrics = %+v, want nil", runs[0].Metrics)
	}

	all, err := s.ListRuns(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Errorf("ListRuns(0) = %d runs, %v", len(all), err)
	}
}
