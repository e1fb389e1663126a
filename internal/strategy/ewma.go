package strategy

import "math"

// ZScorer tracks an exponentially weighted mean and variance of the
// price-to-VWAP deviation and scores each new deviation against them.
type ZScorer struct {
	alpha           float64
	initialVariance float64
	minVariance     float64
	biasObs         int

	observations int
	emaDeviation float64
	emaVariance  float64
}

func NewZScorer(p Params) *ZScorer {
	z := &ZScorer{
		alpha:           p.Alpha,
		initialVariance: p.InitialVariance,
		minVariance:     p.MinVariance,
		biasObs:         p.BiasCorrectionObs,
	}
	z.Reset()
	return z
}

func (z *ZScorer) Reset() {
	z.observations = 0
	z.emaDeviation = 0
	z.emaVariance = z.initialVariance
}

// Update folds deviation into the averages and returns its z-score.
func (z *ZScorer) Update(deviation float64) float64 {
	z.observations++
	a := z.alpha
	if z.observations == 1 {
		z.emaDeviation = deviation
		z.emaVariance = math.Abs(deviation) * 2
	} else {
		prev := z.emaDeviation
		z.emaDeviation = (1-a)*z.emaDeviation + a*deviation
		diff := deviation - prev
		z.emaVariance = (1-a)*z.emaVariance + a*diff*diff
	}

	variance := z.emaVariance
	if z.observations < z.biasObs {
		variance /= (1 - math.Pow(1-a, float64(z.observations))) / a
	}
	return deviation / math.Sqrt(smoothVarianceFloor(variance, z.minVariance))
}

func (z *ZScorer) Observations() int {
	return z.observations
}

// Variance is the uncorrected EWMA variance.
func (z *ZScorer) Variance() float64 {
	return z.emaVariance
}

// smoothVarianceFloor clamps variance to floor and blends quadratically
// between floor and 1.5*floor.
func smoothVarianceFloor(variance, floor float64) float64 {
	switch {
	case variance <= floor:
		return floor
	case variance < floor*1.5:
		blend := (variance - floor) / (floor * 0.5)
		return floor + (variance-floor)*blend
	default:
		return variance
	}
}
