package strategy

import (
	"math"
	"time"

	"vwaprelay/internal/md"
)

const (
	priceHistory     = 20
	zHistory         = 10
	velocityLookback = 5
	divergenceZTrend = 0.5
	divergenceZLevel = 2.5
)

// TrendSignal lists which trend detectors fired on one observation.
type TrendSignal struct {
	ADX            float64
	ADXTrending    bool
	Persistent     bool
	HighVelocity   bool
	StrongMomentum bool
	Divergence     bool
}

func (s TrendSignal) Detected() bool {
	return s.ADXTrending || s.Persistent || s.HighVelocity || s.StrongMomentum || s.Divergence
}

// TrendFilter flags conditions in which fading a VWAP deviation is unsafe.
type TrendFilter struct {
	p TrendParams

	highs  *md.RingBuffer
	lows   *md.RingBuffer
	dx     *md.RingBuffer
	prices *md.RingBuffer
	zs     *md.RingBuffer

	above      bool
	aboveSince time.Time
}

func NewTrendFilter(p TrendParams) *TrendFilter {
	return &TrendFilter{
		p:      p,
		highs:  md.NewRingBuffer(p.ADXPeriod + 1),
		lows:   md.NewRingBuffer(p.ADXPeriod + 1),
		dx:     md.NewRingBuffer(p.ADXPeriod),
		prices: md.NewRingBuffer(priceHistory),
		zs:     md.NewRingBuffer(zHistory),
	}
}

func (f *TrendFilter) Reset() {
	f.highs.Reset()
	f.lows.Reset()
	f.dx.Reset()
	f.prices.Reset()
	f.zs.Reset()
	f.above = false
	f.aboveSince = time.Time{}
}

// Evaluate records one observation and reports the detectors' state.
func (f *TrendFilter) Evaluate(z, high, low, price float64, ts time.Time) TrendSignal {
	var sig TrendSignal
	momentum := f.momentum(price)
	sig.StrongMomentum = math.Abs(momentum) > f.p.MomentumThreshold
	sig.ADX = f.adx(high, low)
	sig.ADXTrending = sig.ADX > f.p.ADXThreshold
	sig.Persistent = f.persistent(z, ts)
	sig.HighVelocity = f.highVelocity()
	sig.Divergence = f.divergence(z)
	return sig
}

// momentum is a weighted rate of change in percent over 2 and 5 steps.
func (f *TrendFilter) momentum(price float64) float64 {
	f.prices.Add(price)
	if f.prices.Len() < 5 {
		return 0
	}
	short := pctChange(f.prices, 2, price)
	medium := 0.0
	if f.prices.Len() >= 6 {
		medium = pctChange(f.prices, 5, price)
	}
	return 0.7*short + 0.3*medium
}

func pctChange(buf *md.RingBuffer, back int, price float64) float64 {
	ref, err := buf.Back(back)
	if err != nil || ref == 0 {
		return 0
	}
	return (price - ref) / ref * 100
}

// adx is a simplified Wilder ADX over highs and lows, using the previous
// high and low in place of the previous close.
func (f *TrendFilter) adx(high, low float64) float64 {
	f.highs.Add(high)
	f.lows.Add(low)
	if !f.highs.Full() {
		return 0
	}
	highs, lows := f.highs.Values(), f.lows.Values()
	period := float64(f.p.ADXPeriod)

	var tr, dmPlus, dmMinus float64
	for i := 1; i < len(highs); i++ {
		tr += math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-highs[i-1]), math.Abs(lows[i]-lows[i-1])))
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			dmPlus += up
		}
		if down > up && down > 0 {
			dmMinus += down
		}
	}
	atr := tr / period
	if atr == 0 {
		return 0
	}
	diPlus := dmPlus / period / atr * 100
	diMinus := dmMinus / period / atr * 100
	f.dx.Add(math.Abs(diPlus-diMinus) / (diPlus + diMinus + 1e-10) * 100)

	adx, _ := f.dx.Mean(f.dx.Len())
	return adx
}

func (f *TrendFilter) persistent(z float64, ts time.Time) bool {
	if math.Abs(z) <= f.p.PersistenceZ {
		f.above = false
		f.aboveSince = time.Time{}
		return false
	}
	if !f.above {
		f.above = true
		f.aboveSince = ts
		return false
	}
	if ts.IsZero() || f.aboveSince.IsZero() {
		return false
	}
	return ts.Sub(f.aboveSince) > f.p.PersistenceWindow
}

// highVelocity compares the mean absolute step of the last few prices, in
// price units, to the threshold.
func (f *TrendFilter) highVelocity() bool {
	if f.prices.Len() < 10 {
		return false
	}
	prices := f.prices.Values()
	sum := 0.0
	for i := len(prices) - velocityLookback; i < len(prices); i++ {
		sum += math.Abs(prices[i] - prices[i-1])
	}
	return sum/velocityLookback > f.p.VelocityThreshold
}

// divergence fires when price and |z| both move strongly over the last five
// observations while z is already extreme.
func (f *TrendFilter) divergence(z float64) bool {
	if f.prices.Len() < 10 {
		return false
	}
	f.zs.Add(math.Abs(z))
	if f.zs.Len() < 5 {
		return false
	}
	priceNow, _ := f.prices.Back(0)
	priceThen, _ := f.prices.Back(4)
	zNow, _ := f.zs.Back(0)
	zThen, _ := f.zs.Back(4)
	return math.Abs(priceNow-priceThen) > f.p.DivergenceThreshold &&
		math.Abs(zNow-zThen) > divergenceZTrend &&
		math.Abs(z) > divergenceZLevel
}
