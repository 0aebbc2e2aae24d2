package api

import (
	"context"
	"encoding/json"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/test/bufconn"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/httpapi"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/strategy/builtins"
	"strategylab/internal/sweep"
)

const thresholdStrategy = `{
  "name": "threshold",
  "enter_long": {
    "left_operand": [{"type": "variable", "window": 1, "kind": "mvg"}],
    "condition": "<",
    "right_operand": [{"type": "constant", "value": 95}]
  },
  "exit_long": {
    "left_operand": [{"type": "variable", "window": 1, "kind": "mvg"}],
    "condition": ">",
    "right_operand": [{"type": "constant", "value": 105}]
  }
}`

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// newTestClient serves a Service over an in-memory listener backed by a
// Parquet store holding five AAPL closes.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	bars := store.NewParquetStore(dir)
	var feed []domain.Bar
	for i, c := range []float64{100, 94, 100, 106, 100} {
		feed = append(feed, domain.Bar{
			Symbol: "AAPL", Timestamp: day0.AddDate(0, 0, i),
			Open: c, High: c, Low: c, Close: c, Volume: 1000,
		})
	}
	require.NoError(t, bars.WriteBars(context.Background(), "us", feed))

	bt := backtest.NewBacktester(bars, builtins.Registry())
	gs := grpc.NewServer()
	NewService(bt, nil, nil).RegisterGRPC(gs)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func accountConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.InitialCapital = 10000
	cfg.PositionSize = 1
	return cfg
}

func TestBacktestRPC(t *testing.T) {
	c := newTestClient(t)

	var spec strategy.Spec
	require.NoError(t, json.Unmarshal([]byte(thresholdStrategy), &spec))
	rep, err := c.Backtest(context.Background(), &httpapi.BacktestRequest{
		Strategy: &spec,
		Symbols:  []string{"AAPL"},
		Start:    "2024-01-01",
		End:      "2024-01-31",
		Config:   accountConfig(),
	})
	require.NoError(t, err)
	require.NotNil(t, rep.Result)
	assert.NotEmpty(t, rep.RunID)
	require.Len(t, rep.Trades, 1)
	assert.EqualValues(t, 106, rep.Trades[0].Qty)
	require.NotNil(t, rep.Metrics)
}

func TestBacktestRPCErrors(t *testing.T) {
	c := newTestClient(t)

	var bad strategy.Spec
	require.NoError(t, json.Unmarshal([]byte(`{
	  "enter_long": {"left_operand": [{"type": "variable", "window": 3, "kind": "median"}],
	    "condition": ">", "right_operand": [{"type": "constant", "value": 0}]},
	  "exit_long": {"left_operand": [{"type": "constant", "value": 1}],
	    "condition": "<", "right_operand": [{"type": "constant", "value": 0}]}}`), &bad))
	var good strategy.Spec
	require.NoError(t, json.Unmarshal([]byte(thresholdStrategy), &good))
	zeroSize := accountConfig()
	zeroSize.PositionSize = 0

	tests := []struct {
		name string
		req  *httpapi.BacktestRequest
		code codes.Code
		kind string
	}{
		{
			name: "compile error",
			req:  &httpapi.BacktestRequest{Strategy: &bad, Symbols: []string{"AAPL"}, Config: accountConfig()},
			code: codes.InvalidArgument,
			kind: "UnknownVariableKind",
		},
		{
			name: "config error",
			req:  &httpapi.BacktestRequest{Strategy: &good, Symbols: []string{"AAPL"}, Config: zeroSize},
			code: codes.InvalidArgument,
			kind: "ConfigurationError",
		},
		{
			name: "bad date",
			req:  &httpapi.BacktestRequest{Strategy: &good, Symbols: []string{"AAPL"}, Start: "01/02/2024", Config: accountConfig()},
			code: codes.InvalidArgument,
		},
		{
			name: "no strategy",
			req:  &httpapi.BacktestRequest{Symbols: []string{"AAPL"}, Config: accountConfig()},
			code: codes.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Backtest(context.Background(), tt.req)
			var re *RPCError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.code, re.Code)
			assert.Equal(t, tt.kind, re.Kind)
		})
	}
}

func TestSweepRPCStreamsEveryPoint(t *testing.T) {
	c := newTestClient(t)

	var got []sweep.Outcome
	err := c.Sweep(context.Background(), &SweepRequest{
		Strategy: "bollinger",
		Axes:     map[string][]float64{"window": {2, 3}, "width": {1, 2}},
		Symbols:  []string{"AAPL"},
		Start:    "2024-01-01",
		End:      "2024-01-31",
		Config:   accountConfig(),
		Workers:  2,
	}, func(o sweep.Outcome) error {
		got = append(got, o)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	sort.Slice(got, func(i, j int) bool { return got[i].Index < got[j].Index })
	for i, o := range got {
		assert.Equal(t, i, o.Index)
		require.NotNil(t, o.Report)
		require.NotNil(t, o.Report.Result)
	}
	assert.Equal(t, "bollinger(width=1,window=2)", got[0].Label)
	assert.Equal(t, 3.0, got[3].Params["window"])
}

func TestSweepRPCErrors(t *testing.T) {
	c := newTestClient(t)

	tests := []struct {
		name string
		req  *SweepRequest
		code codes.Code
		kind string
	}{
		{
			name: "fractional window",
			req: &SweepRequest{Strategy: "bollinger", Axes: map[string][]float64{"window": {2.5}},
				Symbols: []string{"AAPL"}, Config: accountConfig()},
			code: codes.InvalidArgument,
			kind: "ConfigurationError",
		},
		{
			name: "unknown strategy",
			req:  &SweepRequest{Strategy: "nope", Symbols: []string{"AAPL"}, Config: accountConfig()},
			code: codes.InvalidArgument,
			kind: "ConfigurationError",
		},
		{
			name: "no symbols",
			req:  &SweepRequest{Strategy: "bollinger", Config: accountConfig()},
			code: codes.InvalidArgument,
			kind: "ConfigurationError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Sweep(context.Background(), tt.req, func(sweep.Outcome) error { return nil })
			var re *RPCError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.code, re.Code)
			assert.Equal(t, tt.kind, re.Kind)
		})
	}
}

func TestBacktestRPCSavedStrategyNotFound(t *testing.T) {
	dir := t.TempDir()
	db, err := store.NewSQLiteStore(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bt := backtest.NewBacktester(store.NewParquetStore(dir), builtins.Registry())
	gs := grpc.NewServer()
	NewService(bt, db, nil).RegisterGRPC(gs)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.Backtest(context.Background(), &httpapi.BacktestRequest{
		StrategyName: "missing", Symbols: []string{"AAPL"}, Config: accountConfig(),
	})
	var re *RPCError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, codes.NotFound, re.Code)
}
