// Package strategy contains the decision logic served by the reference
// decision service.
package strategy

import "time"

type Action string

const (
	Hold    Action = "hold"
	Place   Action = "place"
	Flatten Action = "flatten"
)

// MarketSnapshot is what the service learns from one decision request.
type MarketSnapshot struct {
	Timestamp   time.Time
	Last        float64
	Bid         float64
	Ask         float64
	VWAP        float64
	PositionQty int
	// TickSize overrides the configured tick size when positive.
	TickSize float64
}

type TradeIntent struct {
	Action     Action
	Side       string
	OrderType  string
	Qty        int
	LimitPrice float64
	Reason     string
}

// Strategy decides for a single symbol. Implementations keep per-symbol
// state and are not safe for concurrent use.
type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
	ResetSession()
	Observations() int
}

func hold(reason string) TradeIntent {
	return TradeIntent{Action: Hold, Reason: reason}
}
