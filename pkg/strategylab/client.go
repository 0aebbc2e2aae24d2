// Package strategylab is a Go client for the strategylab-server HTTP API.
package strategylab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/httpapi"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("strategylab: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("strategylab: %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the strategylab-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new strategylab API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetBars retrieves stored daily bars for a symbol. Zero times leave the
// bound open.
func (c *Client) GetBars(ctx context.Context, symbol, market string, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{"symbol": {symbol}}
	if market != "" {
		q.Set("market", market)
	}
	if !start.IsZero() {
		q.Set("from", start.Format(time.DateOnly))
	}
	if !end.IsZero() {
		q.Set("to", end.Format(time.DateOnly))
	}
	var bars []domain.Bar
	err := c.do(ctx, http.MethodGet, "/api/financial-data?"+q.Encode(), nil, &bars)
	return bars, err
}

// Backtest runs a backtest on the server.
func (c *Client) Backtest(ctx context.Context, req httpapi.BacktestRequest) (*backtest.Report, error) {
	var rep backtest.Report
	if err := c.do(ctx, http.MethodPost, "/api/backtest", req, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ListRuns returns the most recent runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	var runs []store.RunRecord
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/runs?limit=%d", limit), nil, &runs)
	return runs, err
}

// GetTrades returns the trades recorded for a run.
func (c *Client) GetTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := c.do(ctx, http.MethodGet, "/api/trades/"+url.PathEscape(runID), nil, &trades)
	return trades, err
}

// SaveStrategy stores spec under name.
func (c *Client) SaveStrategy(ctx context.Context, name string, spec *strategy.Spec) error {
	return c.do(ctx, http.MethodPut, "/api/strategies/"+url.PathEscape(name), spec, nil)
}

// DeleteStrategy removes a saved strategy.
func (c *Client) DeleteStrategy(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/strategies/"+url.PathEscape(name), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e httpapi.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error, Kind: e.Kind}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
