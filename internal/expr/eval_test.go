package expr

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

// testBars builds daily bars from parallel high/low/close slices.
func testBars(highs, lows, closes []float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      closes[i],
			High:      highs[i],
			Low:       lows[i],
			Close:     closes[i],
		}
	}
	return bars
}

func closesOnly(closes ...float64) []domain.Bar {
	return testBars(closes, closes, closes)
}

func TestVariableRollingMean(t *testing.T) {
	bars := closesOnly(10, 12, 11, 13, 14)
	got := MustVariable(3, StatMean).Evaluate(bars)

	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 11.0, got[2], 1e-12)
}

func TestVariableShorterThanWindow(t *testing.T) {
	bars := closesOnly(10, 12)
	for _, kind := range []StatKind{StatHigh, StatLow, StatStd, StatMean} {
		got := MustVariable(3, kind).Evaluate(bars)
		require.Len(t, got, 2)
		for i, v := range got {
			assert.Truef(t, math.IsNaN(v), "%s index %d = %v, want NaN", kind, i, v)
		}
	}
}

func TestNewVariableValidation(t *testing.T) {
	_, err := NewVariable(0, StatMean)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewVariable(5, "median")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	v, err := NewVariable(5, StatStd)
	require.NoError(t, err)
	assert.Equal(t, "std(5)", v.String())
}

func TestParseStatKind(t *testing.T) {
	k, err := ParseStatKind("MVG")
	require.NoError(t, err)
	assert.Equal(t, StatMean, k)

	_, err = ParseStatKind("median")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, UnknownVariableKind, kind)
}

func TestEvaluateMidpointOfHighLow(t *testing.T) {
	highs := []float64{100, 102, 98, 103, 105, 101, 99, 104, 102, 106}
	lows := []float64{95, 97, 93, 98, 99, 96, 94, 99, 97, 101}
	bars := testBars(highs, lows, highs)

	high2 := MustVariable(2, StatHigh)
	low2 := MustVariable(2, StatLow)

	// (2-day high + 2-day low) / 2
	e := MustCompile(mustTokens(t, OpLeftGroup, high2, OpAdd, low2, OpRightGroup, OpDivide, 2.0))
	got := e.Evaluate(bars)

	require.Len(t, got, len(bars))
	assert.True(t, math.IsNaN(got[0]))
	assert.InDelta(t, (102.0+95.0)/2, got[1], 1e-12)
	assert.InDelta(t, (102.0+93.0)/2, got[2], 1e-12)
	assert.InDelta(t, (106.0+97.0)/2, got[9], 1e-12)
}

func TestEvaluateWeightedBlend(t *testing.T) {
	highs := []float64{100, 102, 98}
	lows := []float64{95, 97, 93}
	bars := testBars(highs, lows, highs)

	// 0.7 * 2-day high + 0.3 * 2-day low
	e := MustCompile(mustTokens(t,
		OpLeftGroup, MustVariable(2, StatHigh), OpMultiply, 0.7, OpRightGroup,
		OpAdd,
		OpLeftGroup, MustVariable(2, StatLow), OpMultiply, 0.3, OpRightGroup,
	))
	got := e.Evaluate(bars)
	assert.InDelta(t, 0.7*102+0.3*93, got[2], 1e-9)
}

func TestEvaluateDivisionByZeroIsNaN(t *testing.T) {
	bars := closesOnly(5, 5, 5, 5)

	// std of a constant series is 0.
	e := MustCompile(mustTokens(t, 1.0, OpDivide, MustVariable(2, StatStd)))
	got := e.Evaluate(bars)
	for i, v := range got {
		assert.Truef(t, math.IsNaN(v), "index %d = %v, want NaN", i, v)
	}

	// NaN propagates through later operations.
	e = MustCompile(mustTokens(t, OpLeftGroup, 1.0, OpDivide, 0.0, OpRightGroup, OpAdd, 3.0))
	assert.True(t, math.IsNaN(e.Last(bars)))
}

func TestEvaluateConstantAlignedToBars(t *testing.T) {
	e := MustCompile(mustTokens(t, 7.5))
	assert.Equal(t, []float64{7.5, 7.5, 7.5}, e.Evaluate(closesOnly(1, 2, 3)))
	assert.Empty(t, e.Evaluate(nil))
	assert.True(t, math.IsNaN(e.Last(nil)))
}

func TestEvaluateGrowingWindows(t *testing.T) {
	bars := closesOnly(10, 12, 11, 13, 14)
	e := MustCompile(mustTokens(t, MustVariable(3, StatMean), OpSubtract, 1.0))

	// The value at bar i depends only on bars[:i+1].
	full := e.Evaluate(bars)
	for i := range bars {
		prefix := e.Evaluate(bars[:i+1])
		require.Len(t, prefix, i+1)
		if math.IsNaN(full[i]) {
			assert.True(t, math.IsNaN(prefix[i]))
			continue
		}
		assert.Equal(t, full[i], prefix[i])
	}
}

func TestFormatNil(t *testing.T) {
	assert.Equal(t, "<nil>", Format(nil))
}
