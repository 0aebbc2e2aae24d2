package us

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"strategylab/internal/domain"
	"strategylab/internal/util"
)

// AlpacaCalendar answers LatestFinishedTradingDay from the Alpaca trading
// calendar, so exchange holidays are honoured.
type AlpacaCalendar struct {
	client *alpaca.Client
	cal    *util.TradingCalendar
	now    func() time.Time
}

// NewAlpacaCalendar creates an AlpacaCalendar using the trading API at
// baseURL.
func NewAlpacaCalendar(apiKey, apiSecret, baseURL string) (*AlpacaCalendar, error) {
	cal, err := util.NewTradingCalendar(domain.MarketUS)
	if err != nil {
		return nil, err
	}
	return &AlpacaCalendar{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		cal: cal,
		now: time.Now,
	}, nil
}

// LatestFinishedTradingDay returns the most recent trading day whose market
// session has ended (after 20:05 ET, once extended-hours data has settled).
func (c *AlpacaCalendar) LatestFinishedTradingDay(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	now := c.now().In(c.cal.Location())

	days, err := c.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Date
	}
	return latestFinished(c.cal, dates, now)
}

// latestFinished picks the last date in dates (YYYY-MM-DD, ascending) whose
// session is over at now.
func latestFinished(cal *util.TradingCalendar, dates []string, now time.Time) (time.Time, error) {
	if len(dates) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}
	for i := len(dates) - 1; i >= 0; i-- {
		day, err := time.ParseInLocation(time.DateOnly, dates[i], cal.Location())
		if err != nil {
			continue
		}
		if cal.SessionFinished(day, now) {
			return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
