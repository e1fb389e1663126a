package decision

import (
	"time"

	"vwaprelay/internal/wire"
)

// TimestampLayout is the request timestamp format: UTC with a fixed seven
// digit fraction.
const TimestampLayout = "2006-01-02T15:04:05.0000000Z07:00"

// Snapshot is the market state sent with one decision request. It is built
// on the engine goroutine and never modified afterwards.
type Snapshot struct {
	Symbol      string    `json:"symbol"`
	Timestamp   time.Time `json:"timestamp"`
	LastPrice   float64   `json:"last_price"`
	LastSize    int64     `json:"last_size"`
	BidPrice    float64   `json:"bid_price"`
	AskPrice    float64   `json:"ask_price"`
	PositionQty int       `json:"position_qty"`
	SessionDate string    `json:"session_date"`
	VWAP        float64   `json:"vwap"`
}

// Encode renders the request body. Field order is part of the contract.
func (s Snapshot) Encode() []byte {
	return wire.NewEncoder().
		String("symbolName", s.Symbol).
		String("timestampIso", s.Timestamp.UTC().Format(TimestampLayout)).
		Float("lastPrice", s.LastPrice).
		Int("lastSize", s.LastSize).
		Float("bidPrice", s.BidPrice).
		Float("askPrice", s.AskPrice).
		Int("positionQty", int64(s.PositionQty)).
		String("sessionDate", s.SessionDate).
		Float("vwap", s.VWAP).
		Bytes()
}

type Action string

const (
	ActionFlatten Action = "flatten"
	ActionPlace   Action = "place"
	ActionUnknown Action = "unknown"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderMarket = "market"
	OrderLimit  = "limit"
)

// Response is a decoded decision. Side and OrderType are kept verbatim so
// the sizing policy can reject values it does not understand.
type Response struct {
	Action     Action  `json:"action"`
	RawAction  string  `json:"raw_action,omitempty"`
	Side       string  `json:"side,omitempty"`
	OrderType  string  `json:"order_type,omitempty"`
	Quantity   int     `json:"quantity,omitempty"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

// DecodeResponse never fails; missing or malformed fields decode to zero
// values and an unrecognised action decodes to ActionUnknown.
func DecodeResponse(body []byte) Response {
	raw := wire.ScanString(body, "action")
	resp := Response{Action: ActionUnknown, RawAction: raw}
	switch Action(raw) {
	case ActionFlatten:
		resp.Action = ActionFlatten
	case ActionPlace:
		resp.Action = ActionPlace
		resp.Side = wire.ScanString(body, "side")
		resp.OrderType = wire.ScanString(body, "orderType")
		resp.Quantity = int(wire.ScanInt(body, "quantity"))
		resp.LimitPrice = wire.ScanFloat(body, "limitPrice")
	}
	return resp
}
