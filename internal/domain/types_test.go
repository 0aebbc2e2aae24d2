package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 || bar.Volume != 0 {
		t.Error("expected zero OHLCV values for zero-value Bar")
	}

	// Verify enum constants are defined correctly.
	if OrderSideBuy != "buy" || OrderSideSell != "sell" {
		t.Error("OrderSide constants have unexpected values")
	}
	if MarketUS != "us" || MarketCN != "cn" {
		t.Error("Market constants have unexpected values")
	}
	if SignalSell != -1 || SignalHold != 0 || SignalBuy != 1 {
		t.Error("Signal constants have unexpected values")
	}
}

func TestSignalString(t *testing.T) {
	cases := map[Signal]string{SignalSell: "sell", SignalHold: "hold", SignalBuy: "buy"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Signal(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestTradeClose(t *testing.T) {
	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	exit := entry.AddDate(0, 0, 5)

	tr := &Trade{Symbol: "AAPL", Qty: 10, Side: OrderSideBuy, EntryPrice: 100, EntryTime: entry}
	if !tr.IsOpen() {
		t.Fatal("new trade should be open")
	}
	if got := tr.RealizedPnL(); got != 0 {
		t.Errorf("open trade RealizedPnL = %v, want 0", got)
	}

	if !tr.Close(110, exit, ExitSignal) {
		t.Fatal("Close returned false on open trade")
	}
	if tr.IsOpen() {
		t.Error("trade still open after Close")
	}
	if got := tr.RealizedPnL(); got != 100 {
		t.Errorf("RealizedPnL = %v, want 100", got)
	}

	// Second close is ignored.
	if tr.Close(50, exit.AddDate(0, 0, 1), ExitStopLoss) {
		t.Error("second Close returned true")
	}
	if *tr.ExitPrice != 110 || tr.ExitReason != ExitSignal {
		t.Errorf("closed trade mutated: exit=%v reason=%q", *tr.ExitPrice, tr.ExitReason)
	}
}

func TestTradeCloseSellSide(t *testing.T) {
	tr := &Trade{Qty: 2, Side: OrderSideSell, EntryPrice: 50}
	tr.Close(40, time.Now(), ExitSignal)
	if got := tr.RealizedPnL(); got != 20 {
		t.Errorf("sell-side RealizedPnL = %v, want 20", got)
	}
}
