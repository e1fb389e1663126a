package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZScorerFirstObservation(t *testing.T) {
	z := NewZScorer(DefaultParams())

	got := z.Update(4)

	assert.InDelta(t, 4/math.Sqrt(8), got, 1e-12)
	assert.Equal(t, 8.0, z.Variance())
	assert.Equal(t, 1, z.Observations())
}

func TestZScorerVarianceFloor(t *testing.T) {
	z := NewZScorer(DefaultParams())
	assert.InDelta(t, 0.5, z.Update(1), 1e-12)

	blended := NewZScorer(DefaultParams())
	assert.InDelta(t, 2.5/math.Sqrt(4.5), blended.Update(2.5), 1e-12)
}

func TestZScorerBiasCorrection(t *testing.T) {
	p := DefaultParams()
	z := NewZScorer(p)
	z.Update(100)
	got := z.Update(100)

	// var = 0.9*200 + 0.1*0 = 180, corrected by (1-0.9^2)/0.1 = 1.9
	assert.InDelta(t, 100/math.Sqrt(180/1.9), got, 1e-9)
}

func TestZScorerReset(t *testing.T) {
	z := NewZScorer(DefaultParams())
	z.Update(10)
	z.Reset()

	assert.Equal(t, 0, z.Observations())
	assert.Equal(t, 16.0, z.Variance())
}

func TestSmoothVarianceFloorIsContinuous(t *testing.T) {
	assert.Equal(t, 4.0, smoothVarianceFloor(1, 4))
	assert.Equal(t, 4.0, smoothVarianceFloor(4, 4))
	assert.InDelta(t, 6.0, smoothVarianceFloor(5.999999999, 4), 1e-6)
	assert.Equal(t, 6.0, smoothVarianceFloor(6, 4))
	assert.Equal(t, 10.0, smoothVarianceFloor(10, 4))
}
