package strategy

import (
	"testing"

	"strategylab/internal/domain"
)

func TestCombinedPriority(t *testing.T) {
	sell, hold, buy := domain.SignalSell, domain.SignalHold, domain.SignalBuy

	tests := []struct {
		name        string
		exit, entry domain.Signal
		want        domain.Signal
	}{
		{"exit wins over entry", sell, buy, sell},
		{"exit alone", sell, hold, sell},
		{"entry alone", hold, buy, buy},
		{"nothing", hold, hold, hold},
		// A buy from the exit side or a sell from the entry side is ignored.
		{"exit side buy ignored", buy, hold, hold},
		{"entry side sell ignored", hold, sell, hold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit := &stubStrategy{name: "exit", signals: []domain.Signal{tt.exit}}
			entry := &stubStrategy{name: "entry", signals: []domain.Signal{tt.entry}}
			c, err := NewCombined(exit, entry)
			if err != nil {
				t.Fatalf("NewCombined: %v", err)
			}

			c.Update(closeBars(1, 2, 3))
			if got := c.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
			if exit.calls != 1 || entry.calls != 1 {
				t.Errorf("Update calls = exit %d, entry %d; want 1 each", exit.calls, entry.calls)
			}
			if exit.seen[0] != 3 || entry.seen[0] != 3 {
				t.Errorf("components saw %v and %v bars, want 3", exit.seen, entry.seen)
			}
		})
	}
}

func TestNewCombinedRequiresBoth(t *testing.T) {
	if _, err := NewCombined(nil, &stubStrategy{}); err == nil {
		t.Error("NewCombined(nil, entry) returned nil error")
	}
	if _, err := NewCombined(&stubStrategy{}, nil); err == nil {
		t.Error("NewCombined(exit, nil) returned nil error")
	}
}

func TestCombinedName(t *testing.T) {
	c, _ := NewCombined(&stubStrategy{name: "x"}, &stubStrategy{name: "e"})
	if got := c.Name(); got != "[x] | [e]" {
		t.Errorf("Name() = %q", got)
	}
}
