package sweep

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/strategy/builtins"
)

func wave(n int) []domain.Bar {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/4) + float64(i%3)
		bars[i] = domain.Bar{Symbol: "WAVE", Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func TestGrid(t *testing.T) {
	cands, err := Grid(builtins.Registry(), "bollinger", map[string][]float64{
		"window": {10, 20},
		"width":  {1, 1.5, 2},
	})
	require.NoError(t, err)
	require.Len(t, cands, 6)
	assert.Equal(t, "bollinger(width=1,window=10)", cands[0].Label)
	assert.Equal(t, "bollinger(width=2,window=20)", cands[5].Label)

	s, err := cands[3].New()
	require.NoError(t, err)
	assert.Equal(t, "bollinger(20,1.5)", s.Name())

	_, err = Grid(builtins.Registry(), "missing", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = Grid(builtins.Registry(), "bollinger", map[string][]float64{"window": {}})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRunMatchesSequential(t *testing.T) {
	bars := wave(200)
	cands, err := Grid(builtins.Registry(), "bollinger", map[string][]float64{
		"window": {5, 10, 20},
		"width":  {0.5, 1, 2},
	})
	require.NoError(t, err)

	parallel, err := Run(context.Background(), engine.DefaultConfig(), bars, cands, 4)
	require.NoError(t, err)
	require.Len(t, parallel, len(cands))

	for i, c := range cands {
		s, err := c.New()
		require.NoError(t, err)
		e, err := engine.New(engine.DefaultConfig(), s)
		require.NoError(t, err)
		seq, err := e.Run(context.Background(), bars)
		require.NoError(t, err)

		assert.Equal(t, c.Label, parallel[i].Label)
		assert.Equal(t, seq.FinalEquity, parallel[i].Report.FinalEquity, c.Label)
		assert.Equal(t, len(seq.Trades), len(parallel[i].Report.Trades), c.Label)
	}

	best, ok := Best(parallel)
	if ok {
		for _, o := range parallel {
			if o.Report.Metrics != nil {
				assert.LessOrEqual(t, o.Report.Metrics.TotalReturn, best.Report.Metrics.TotalReturn)
			}
		}
	}
}

func TestRunStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	cands := []Candidate{
		{Label: "bad", New: func() (engine.Strategy, error) { return nil, boom }},
	}
	_, err := Run(context.Background(), engine.DefaultConfig(), wave(10), cands, 1)
	assert.ErrorIs(t, err, boom)

	cfg := engine.DefaultConfig()
	cfg.InitialCapital = -1
	_, err = Run(context.Background(), cfg, wave(10), nil, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestStreamEmitsEveryOutcome(t *testing.T) {
	cands, err := Grid(builtins.Registry(), "bollinger", map[string][]float64{"window": {5, 10, 15, 20}})
	require.NoError(t, err)

	seen := make(map[int]string)
	err = Stream(context.Background(), engine.DefaultConfig(), wave(100), cands, 2, func(o Outcome) error {
		seen[o.Index] = o.Label
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, len(cands))
	for i, c := range cands {
		assert.Equal(t, c.Label, seen[i])
	}

	stop := errors.New("client gone")
	err = Stream(context.Background(), engine.DefaultConfig(), wave(100), cands, 1, func(Outcome) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestGridRejectsFractionalWindow(t *testing.T) {
	cands, err := Grid(builtins.Registry(), "bollinger", map[string][]float64{"window": {2.5}})
	require.NoError(t, err)
	_, err = cands[0].New()
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = Run(context.Background(), engine.DefaultConfig(), wave(10), cands, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
