package us

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
	"strategylab/internal/gather"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

type fixedCalendar struct{ day time.Time }

func (c fixedCalendar) LatestFinishedTradingDay(context.Context) (time.Time, error) {
	return c.day, nil
}

// fakeSource returns one bar per requested symbol per day, except for
// symbols listed in missing.
type fakeSource struct {
	mu      sync.Mutex
	missing map[string]bool
	err     error
	calls   int
}

func (f *fakeSource) FetchDailyBars(_ context.Context, symbols []string, r gather.DateRange) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var bars []domain.Bar
	for _, sym := range symbols {
		if f.missing[sym] {
			continue
		}
		for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
			bars = append(bars, domain.Bar{
				Symbol: sym, Timestamp: d,
				Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000,
			})
		}
	}
	return bars, nil
}

var (
	gatherStart = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	gatherEnd   = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
)

func newTestGatherer(t *testing.T, src gather.BarSource, dir string, symbols []string) (*DailyBarGatherer, *store.ParquetStore) {
	t.Helper()
	bs := store.NewParquetStore(dir)
	g := NewDailyBarGatherer(src, fixedCalendar{day: gatherEnd}, bs, dir, symbols, DailyBarOptions{
		StartDate:  gatherStart.Format(time.DateOnly),
		BatchSize:  2,
		MaxWorkers: 2,
		Retries:    2,
	})
	g.backoff = 0
	return g, bs
}

func TestDailyBarGathererName(t *testing.T) {
	g, _ := newTestGatherer(t, &fakeSource{}, t.TempDir(), []string{"AAPL"})
	assert.Equal(t, "us-daily", g.Name())
}

func TestDailyBarGathererWritesBars(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{missing: map[string]bool{"ZZZZ": true}}
	g, bs := newTestGatherer(t, src, dir, []string{"msft", "AAPL", "ZZZZ"})

	require.NoError(t, g.Run(context.Background()))

	ctx := context.Background()
	for _, sym := range []string{"AAPL", "MSFT"} {
		bars, err := bs.ReadBars(ctx, sym, "us", gatherStart, gatherEnd)
		require.NoError(t, err, sym)
		assert.Len(t, bars, 3, sym)
	}
	syms, err := bs.ListSymbols(ctx, "us")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)

	prog, err := loadProgress(dir + "/us/daily")
	require.NoError(t, err)
	assert.True(t, prog.NoData("ZZZZ"))
	assert.Equal(t, "2025-03-05", prog.LastCompleted())
}

func TestDailyBarGathererCompletedRunIsNoop(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	g, _ := newTestGatherer(t, src, dir, []string{"AAPL", "MSFT", "IBM"})

	require.NoError(t, g.Run(context.Background()))
	calls := src.calls
	require.NoError(t, g.Run(context.Background()))
	assert.Equal(t, calls, src.calls, "second run should not fetch")
}

func TestDailyBarGathererSourceFailure(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{err: errors.New("upstream 503")}
	g, _ := newTestGatherer(t, src, dir, []string{"AAPL"})

	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, src.calls, "one call per retry attempt")

	prog, err := loadProgress(dir + "/us/daily")
	require.NoError(t, err)
	assert.Empty(t, prog.LastCompleted())
}

func TestDailyBarGathererBadStartDate(t *testing.T) {
	g, _ := newTestGatherer(t, &fakeSource{}, t.TempDir(), []string{"AAPL"})
	g.opts.StartDate = "03/03/2025"
	assert.Error(t, g.Run(context.Background()))

	g.opts.StartDate = "2025-04-01"
	assert.Error(t, g.Run(context.Background()), "start after end date")
}

func TestLatestFinished(t *testing.T) {
	cal, err := util.NewTradingCalendar(domain.MarketUS)
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	ny := cal.Location()
	dates := []string{"2025-07-02", "2025-07-03", "2025-07-07"}

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"after cutoff", time.Date(2025, 7, 7, 21, 0, 0, 0, ny), "2025-07-07"},
		{"before cutoff", time.Date(2025, 7, 7, 15, 0, 0, 0, ny), "2025-07-03"},
		{"holiday skipped", time.Date(2025, 7, 5, 12, 0, 0, 0, ny), "2025-07-03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := latestFinished(cal, dates, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err = latestFinished(cal, nil, time.Now())
	assert.Error(t, err)
}
