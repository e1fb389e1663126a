package market

import "github.com/shopspring/decimal"

// Instrument carries the price granularity of the traded symbol.
type Instrument struct {
	Symbol   string
	TickSize decimal.Decimal
}

func NewInstrument(symbol string, tickSize float64) Instrument {
	return Instrument{Symbol: symbol, TickSize: decimal.NewFromFloat(tickSize)}
}

// RoundToTick snaps price to the nearest tick, halves away from zero.
// A non-positive tick size leaves the price unchanged.
func (i Instrument) RoundToTick(price float64) float64 {
	if !i.TickSize.IsPositive() {
		return price
	}
	steps := decimal.NewFromFloat(price).Div(i.TickSize).Round(0)
	rounded, _ := steps.Mul(i.TickSize).Float64()
	return rounded
}

// Mid is the tick-rounded midpoint of bid and ask.
func (i Instrument) Mid(bid, ask float64) float64 {
	mid := decimal.NewFromFloat(bid).Add(decimal.NewFromFloat(ask)).Div(decimal.NewFromInt(2))
	f, _ := mid.Float64()
	return i.RoundToTick(f)
}
