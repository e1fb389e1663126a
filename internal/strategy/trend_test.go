package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func TestTrendPersistence(t *testing.T) {
	f := NewTrendFilter(DefaultParams().Trend)

	assert.False(t, f.Evaluate(2, 1, 1, 100, t0).Persistent)
	assert.False(t, f.Evaluate(-2, 1, 1, 100, t0.Add(29*time.Minute)).Persistent)
	assert.True(t, f.Evaluate(2, 1, 1, 100, t0.Add(31*time.Minute)).Persistent)

	assert.False(t, f.Evaluate(1, 1, 1, 100, t0.Add(32*time.Minute)).Persistent)
	assert.False(t, f.Evaluate(2, 1, 1, 100, t0.Add(33*time.Minute)).Persistent)
}

func TestTrendVelocityAndMomentum(t *testing.T) {
	f := NewTrendFilter(DefaultParams().Trend)

	var sig TrendSignal
	for i := 0; i < 10; i++ {
		sig = f.Evaluate(0, 1, 1, 100+5*float64(i), t0)
	}
	assert.True(t, sig.HighVelocity)
	assert.True(t, sig.StrongMomentum)
	assert.True(t, sig.Detected())
}

func TestTrendQuietMarket(t *testing.T) {
	f := NewTrendFilter(DefaultParams().Trend)

	var sig TrendSignal
	for i := 0; i < 30; i++ {
		sig = f.Evaluate(0.2, 100.25, 100, 100.125, t0.Add(time.Duration(i)*time.Second))
	}
	assert.False(t, sig.Detected())
	assert.Equal(t, 0.0, sig.ADX)
}

func TestTrendADX(t *testing.T) {
	f := NewTrendFilter(DefaultParams().Trend)

	var sig TrendSignal
	for i := 0; i < 14; i++ {
		sig = f.Evaluate(0, 100+float64(i), 99+float64(i), 100, t0)
		assert.Equal(t, 0.0, sig.ADX, "observation %d", i)
	}
	sig = f.Evaluate(0, 114, 113, 100, t0)
	assert.InDelta(t, 100, sig.ADX, 1e-6)
	assert.True(t, sig.ADXTrending)
}

func TestTrendDivergence(t *testing.T) {
	f := NewTrendFilter(DefaultParams().Trend)

	// Ten flat prices fill the history, then price and |z| climb together.
	for i := 0; i < 9; i++ {
		f.Evaluate(0, 1, 1, 100, t0)
	}
	var sig TrendSignal
	for i := 0; i < 5; i++ {
		sig = f.Evaluate(3+float64(i), 1, 1, 100+0.5*float64(i), t0)
	}
	assert.True(t, sig.Divergence)
}
