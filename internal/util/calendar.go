package util

import (
	"context"
	"fmt"
	"time"

	"strategylab/internal/domain"
)

// TradingCalendar is a weekday-only market calendar: sessions run Monday to
// Friday and a session counts as finished after the market's daily cutoff.
// Exchange holidays are not modelled.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
	cutoff time.Duration // offset from local midnight
	now    func() time.Time
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) (*TradingCalendar, error) {
	var (
		zone   string
		cutoff time.Duration
	)
	switch market {
	case domain.MarketUS:
		// Extended-hours data settles shortly after 20:00 ET.
		zone, cutoff = "America/New_York", 20*time.Hour+5*time.Minute
	case domain.MarketCN:
		zone, cutoff = "Asia/Shanghai", 15*time.Hour+30*time.Minute
	default:
		return nil, fmt.Errorf("unknown market %q", market)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("loading %s timezone: %w", zone, err)
	}
	return &TradingCalendar{market: market, loc: loc, cutoff: cutoff, now: time.Now}, nil
}

// Location returns the market's time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// IsTradingDay reports whether t falls on a weekday in the market's zone.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.In(tc.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// SessionFinished reports whether the session on the market-local date of
// day has ended at now.
func (tc *TradingCalendar) SessionFinished(day, now time.Time) bool {
	d := day.In(tc.loc)
	end := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, tc.loc).Add(tc.cutoff)
	return now.After(end)
}

// LatestFinishedTradingDay returns the most recent weekday whose session has
// finished, as a UTC midnight date.
func (tc *TradingCalendar) LatestFinishedTradingDay(_ context.Context) (time.Time, error) {
	now := tc.now().In(tc.loc)
	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, -i)
		if tc.IsTradingDay(day) && tc.SessionFinished(day, now) {
			return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("no finished trading day in the last week")
}
