// Package gather defines the ingestion processes that populate the bar
// store from external market-data providers.
package gather

import (
	"context"
	"time"

	"strategylab/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// BarSource fetches daily bars for a batch of symbols.
type BarSource interface {
	FetchDailyBars(ctx context.Context, symbols []string, r DateRange) ([]domain.Bar, error)
}

// Calendar reports the most recent trading day whose session has finished.
type Calendar interface {
	LatestFinishedTradingDay(ctx context.Context) (time.Time, error)
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Batches splits symbols into consecutive chunks of at most size.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		out = append(out, symbols[i:min(i+size, len(symbols))])
	}
	return out
}
