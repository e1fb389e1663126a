// Package vwap keeps the session volume-weighted average price.
package vwap

import "math"

// Accumulator holds the sums of all closed bars in the current session.
// The in-progress bar is never stored; callers pass it to Recompute on
// every tick.
type Accumulator struct {
	committedPV  float64
	committedVol float64
	current      float64
}

// Sums is the persisted form of an Accumulator.
type Sums struct {
	PriceVolume float64 `json:"price_volume"`
	Volume      float64 `json:"volume"`
}

func New() *Accumulator {
	return &Accumulator{}
}

// TypicalPrice is (high+low+close)/3.
func TypicalPrice(high, low, close float64) float64 {
	return (high + low + close) / 3
}

// OnBarBoundary folds a closed bar into the committed sums. Call it once per
// bar, when the first tick of the following bar arrives.
func (a *Accumulator) OnBarBoundary(high, low, close, volume float64) {
	vol := floorVolume(volume)
	a.committedPV += TypicalPrice(high, low, close) * vol
	a.committedVol += vol
}

// Recompute returns the session VWAP including the in-progress bar. It does
// not touch the committed sums.
func (a *Accumulator) Recompute(high, low, close, volume float64) float64 {
	vol := floorVolume(volume)
	pv := a.committedPV + TypicalPrice(high, low, close)*vol
	total := a.committedVol + vol
	if total <= 0 {
		return 0
	}
	v := pv / total
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Update is Recompute plus remembering the result as Current.
func (a *Accumulator) Update(high, low, close, volume float64) float64 {
	a.current = a.Recompute(high, low, close, volume)
	return a.current
}

// Current is the value computed by the last Update.
func (a *Accumulator) Current() float64 {
	return a.current
}

func (a *Accumulator) ResetSession() {
	a.committedPV = 0
	a.committedVol = 0
	a.current = 0
}

func (a *Accumulator) Sums() Sums {
	return Sums{PriceVolume: a.committedPV, Volume: a.committedVol}
}

func (a *Accumulator) Restore(s Sums) {
	a.committedPV = s.PriceVolume
	a.committedVol = floorVolume(s.Volume)
	a.current = 0
}

func floorVolume(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
