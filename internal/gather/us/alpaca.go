package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"strategylab/internal/domain"
	"strategylab/internal/gather"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*DailyBarGatherer)(nil)
var _ gather.BarSource = (*AlpacaSource)(nil)
var _ gather.Calendar = (*AlpacaCalendar)(nil)

// ---------------------------------------------------------------------------
// AlpacaSource: daily bars from the Alpaca market-data API.
// ---------------------------------------------------------------------------

// AlpacaSource fetches split- and dividend-adjusted daily bars through the
// Alpaca market-data API.
type AlpacaSource struct {
	client *marketdata.Client
	feed   string
	loc    *time.Location
}

// NewAlpacaSource creates an AlpacaSource. feed is "iex" or "sip"; empty
// means "iex".
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string) (*AlpacaSource, error) {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}
	cal, err := util.NewTradingCalendar(domain.MarketUS)
	if err != nil {
		return nil, err
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		feed:   feed,
		loc:    cal.Location(),
	}, nil
}

// FetchDailyBars fetches daily bars for multiple symbols in a single API
// call. Bar timestamps are normalised to UTC midnight of the ET trading date.
func (a *AlpacaSource) FetchDailyBars(ctx context.Context, symbols []string, r gather.DateRange) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	multiBars, err := a.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      r.Start,
		End:        r.End.Add(24*time.Hour - time.Minute),
		Adjustment: marketdata.All,
		Feed:       marketdata.Feed(a.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			d := ab.Timestamp.In(a.loc)
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
			})
		}
	}
	return bars, nil
}

// ---------------------------------------------------------------------------
// DailyBarGatherer: daily OHLCV bars for a watch list into the bar store.
// ---------------------------------------------------------------------------

// DailyBarOptions tunes a DailyBarGatherer.
type DailyBarOptions struct {
	StartDate       string // YYYY-MM-DD
	BatchSize       int    // symbols per API call
	MaxWorkers      int    // concurrent batches
	RateLimitPerMin int    // API calls per minute, <= 0 for unlimited
	Retries         int    // attempts per batch
}

// DailyBarGatherer gathers daily bars for a list of US symbols and writes
// them to a BarStore under the "us" market.
type DailyBarGatherer struct {
	source   gather.BarSource
	calendar gather.Calendar
	store    store.BarStore
	dataDir  string
	symbols  []string
	opts     DailyBarOptions
	limiter  *util.RateLimiter
	backoff  time.Duration
	log      *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer. Progress files are kept
// under <dataDir>/us/daily.
func NewDailyBarGatherer(source gather.BarSource, cal gather.Calendar, s store.BarStore, dataDir string, symbols []string, opts DailyBarOptions) *DailyBarGatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}
	return &DailyBarGatherer{
		source:   source,
		calendar: cal,
		store:    s,
		dataDir:  dataDir,
		symbols:  NormalizeSymbols(symbols),
		opts:     opts,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		backoff:  time.Second,
		log:      slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars from the start date through the latest finished
// trading day and merges them into the store. A run that already completed
// for that day is a no-op.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse(time.DateOnly, g.opts.StartDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.opts.StartDate, err)
	}

	endDate, err := g.calendar.LatestFinishedTradingDay(ctx)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	if endDate.Before(start) {
		return fmt.Errorf("start date %s is after the latest trading day %s", g.opts.StartDate, endDate.Format(time.DateOnly))
	}
	endStr := endDate.Format(time.DateOnly)

	prog, err := loadProgress(filepath.Join(g.dataDir, string(domain.MarketUS), "daily"))
	if err != nil {
		return fmt.Errorf("loading progress: %w", err)
	}
	last := prog.LastCompleted()
	if last == endStr {
		g.log.Info("already completed", "endDate", endStr)
		return nil
	}
	if last != "" {
		if err := prog.Reset(); err != nil {
			return fmt.Errorf("resetting progress: %w", err)
		}
	}

	var remaining []string
	for _, sym := range g.symbols {
		if !prog.NoData(sym) {
			remaining = append(remaining, sym)
		}
	}
	batches := gather.Batches(remaining, g.opts.BatchSize)
	r := gather.DateRange{Start: start, End: endDate}

	g.log.Info("starting us-daily",
		"endDate", endStr,
		"symbols", len(remaining),
		"batches", len(batches),
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalBars atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.opts.MaxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				n, err := g.gatherBatch(ctx, prog, batches[idx], r)
				label := fmt.Sprintf("%d/%d", idx+1, len(batches))
				if err != nil {
					failed.Add(1)
					g.log.Error("batch failed", "batch", label, "err", err)
					continue
				}
				totalBars.Add(int64(n))
				g.log.Info("batch done", "batch", label, "bars", n,
					"elapsed", time.Since(runStart).Round(time.Second))
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}

	if err := prog.MarkCompleted(endStr); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}
	g.log.Info("complete",
		"bars", totalBars.Load(),
		"noData", len(prog.noDataSymbols()),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// gatherBatch fetches, stores and records one batch, returning the number of
// bars written.
func (g *DailyBarGatherer) gatherBatch(ctx context.Context, prog *progress, batch []string, r gather.DateRange) (int, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.opts.Retries, g.backoff, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = g.source.FetchDailyBars(ctx, batch, r)
		return err
	})
	if err != nil {
		return 0, err
	}

	hit := make(map[string]struct{})
	for _, b := range bars {
		hit[b.Symbol] = struct{}{}
	}
	var empty []string
	for _, sym := range batch {
		if _, ok := hit[sym]; !ok {
			empty = append(empty, sym)
		}
	}

	if len(bars) > 0 {
		if err := g.store.WriteBars(ctx, string(domain.MarketUS), bars); err != nil {
			return 0, fmt.Errorf("writing bars: %w", err)
		}
	}
	if len(empty) > 0 {
		if err := prog.MarkNoData(empty); err != nil {
			return len(bars), errors.Join(errors.New("recording empty symbols"), err)
		}
	}
	return len(bars), nil
}
