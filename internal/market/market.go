// Package market holds the feed-neutral market data types shared by the
// feed adapter, the engine and the decision pipeline.
package market

import "time"

type TickKind string

const (
	TickTrade TickKind = "trade"
	TickBid   TickKind = "bid"
	TickAsk   TickKind = "ask"
)

type Tick struct {
	Kind   TickKind
	Symbol string
	Price  float64
	Size   int64
	Time   time.Time
}

// Bar is an OHLCV update for the bar starting at Start. The same bar may be
// delivered several times while it is still forming.
type Bar struct {
	Symbol string
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	// FirstOfSession is set by feeds that know the session calendar.
	FirstOfSession bool
}

// Book is the best bid and ask seen so far.
type Book struct {
	Bid     float64
	BidSize int64
	Ask     float64
	AskSize int64
}

// Apply updates the book from a bid or ask tick. Trade ticks are ignored.
func (b *Book) Apply(t Tick) {
	switch t.Kind {
	case TickBid:
		b.Bid = t.Price
		b.BidSize = t.Size
	case TickAsk:
		b.Ask = t.Price
		b.AskSize = t.Size
	}
}

// Ready reports whether both sides have been quoted.
func (b Book) Ready() bool {
	return b.Bid > 0 && b.Ask > 0
}
