package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/jwtly10/trixplateau/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWMA_LinearWeights(t *testing.T) {
	w := NewWMA(3)
	w.Update(1)
	w.Update(2)
	assert.False(t, w.Ready())
	assert.True(t, math.IsNaN(w.Value()))

	w.Update(3)
	require.True(t, w.Ready())
	// (1*1 + 2*2 + 3*3) / 6
	assert.InDelta(t, 14.0/6.0, w.Value(), 1e-12)

	w.Update(6)
	// (1*2 + 2*3 + 3*6) / 6
	assert.InDelta(t, 26.0/6.0, w.Value(), 1e-12)
}

func TestEMA_SeededWithFirstPrice(t *testing.T) {
	e := NewEMA(3) // alpha = 0.5
	e.Update(10)
	assert.Equal(t, 10.0, e.Value())
	e.Update(20)
	assert.Equal(t, 15.0, e.Value())
	e.Update(5)
	assert.Equal(t, 10.0, e.Value())
}

func TestTRIX_MatchesTripleSmoothing(t *testing.T) {
	prices := []float64{100, 101, 103, 102, 104, 108, 107, 105, 109, 111}
	period := 3

	e1 := EMASeries(prices, period)
	e2 := EMASeries(e1, period)
	e3 := EMASeries(e2, period)

	got := TRIXSeries(prices, period)
	assert.True(t, math.IsNaN(got[0]), "first bar has nothing to change against")
	for i := 1; i < len(prices); i++ {
		want := (e3[i]/e3[i-1] - 1) * 100
		assert.InDelta(t, want, got[i], 1e-12, "bar %d", i)
	}
}

func TestSMASeries(t *testing.T) {
	got := SMASeries([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDeltaSlice(t, []float64{2, 3, 4}, got[2:], 1e-12)
}

func TestATR_SimpleAverageOfTrueRange(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		{Timestamp: ts, High: 11, Low: 9, Close: 10},                   // TR 2 (high - low)
		{Timestamp: ts.AddDate(0, 0, 1), High: 14, Low: 12, Close: 13}, // TR max(2, 4, 2) = 4
		{Timestamp: ts.AddDate(0, 0, 2), High: 13, Low: 8, Close: 9},   // TR max(5, 0, 5) = 5
	}
	got := ATRSeries(bars, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDelta(t, 3.0, got[1], 1e-12)
	assert.InDelta(t, 4.5, got[2], 1e-12)
}

func TestStreamingAndBatchAgree(t *testing.T) {
	prices := []float64{5, 6, 7, 6, 5, 6, 8, 9, 10, 9}
	w := NewWMA(4)
	batch := WMASeries(prices, 4)
	for i, p := range prices {
		w.Update(p)
		if w.Ready() {
			assert.Equal(t, w.Value(), batch[i])
		}
	}
	assert.True(t, IndicatorsReady(w))
	assert.False(t, IndicatorsReady(w, NewEMA(3)))
}
