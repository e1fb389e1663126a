// Package decider is a reference implementation of the decision service the
// relay talks to.
package decider

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vwaprelay/internal/market"
	"vwaprelay/internal/strategy"
)

// Request mirrors the relay's snapshot body.
type Request struct {
	SymbolName   string   `json:"symbolName" validate:"required"`
	TimestampISO string   `json:"timestampIso" validate:"required"`
	LastPrice    float64  `json:"lastPrice" validate:"gte=0"`
	LastSize     int64    `json:"lastSize" validate:"gte=0"`
	BidPrice     float64  `json:"bidPrice" validate:"gte=0"`
	AskPrice     float64  `json:"askPrice" validate:"gte=0"`
	PositionQty  int      `json:"positionQty"`
	SessionDate  string   `json:"sessionDate" validate:"required"`
	VWAP         float64  `json:"vwap" validate:"gte=0"`
	TickSize     *float64 `json:"tickSize,omitempty" validate:"omitempty,gt=0"`
}

// Response fields other than Action are omitted when empty.
type Response struct {
	Action     string  `json:"action"`
	Side       string  `json:"side,omitempty"`
	OrderType  string  `json:"orderType,omitempty"`
	Quantity   int     `json:"quantity,omitempty"`
	LimitPrice float64 `json:"limitPrice,omitempty"`
}

type StrategyFactory func(symbol string) (strategy.Strategy, error)

type symbolState struct {
	strategy    strategy.Strategy
	sessionDate string
	positionQty int
}

// Service keeps one strategy per symbol. Decide is safe for concurrent use;
// requests for the same symbol are serialized.
type Service struct {
	mu      sync.Mutex
	symbols map[string]*symbolState
	factory StrategyFactory
	windows []market.TimeWindow
	loc     *time.Location
	log     zerolog.Logger
}

func NewService(factory StrategyFactory, windows []market.TimeWindow, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		symbols: make(map[string]*symbolState),
		factory: factory,
		windows: windows,
		loc:     loc,
		log:     log.With().Str("component", "decider").Logger(),
	}
}

func (s *Service) Decide(req Request) (Response, error) {
	ts, err := time.Parse(time.RFC3339Nano, req.TimestampISO)
	if err != nil {
		return Response{}, fmt.Errorf("timestampIso: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.state(req.SymbolName)
	if err != nil {
		return Response{}, err
	}
	s.maybeResetSession(st, req.SymbolName, req.SessionDate)

	if s.restricted(ts) {
		if req.PositionQty != 0 {
			s.log.Info().Str("symbol", req.SymbolName).Int("position", req.PositionQty).Time("ts", ts).Msg("restricted hours, flattening")
			return Response{Action: string(strategy.Flatten)}, nil
		}
		s.log.Debug().Str("symbol", req.SymbolName).Time("ts", ts).Msg("restricted hours, entries blocked")
		return Response{Action: string(strategy.Hold)}, nil
	}

	if st.positionQty != req.PositionQty && st.strategy.Observations() > 0 {
		s.log.Warn().Str("symbol", req.SymbolName).Int("service", st.positionQty).Int("reported", req.PositionQty).Msg("position mismatch, using reported")
	}
	st.positionQty = req.PositionQty

	snap := strategy.MarketSnapshot{
		Timestamp:   ts,
		Last:        req.LastPrice,
		Bid:         req.BidPrice,
		Ask:         req.AskPrice,
		VWAP:        req.VWAP,
		PositionQty: req.PositionQty,
	}
	if req.TickSize != nil {
		snap.TickSize = *req.TickSize
	}
	intent := st.strategy.Decide(snap)
	return toResponse(intent), nil
}

func (s *Service) state(symbol string) (*symbolState, error) {
	if st, ok := s.symbols[symbol]; ok {
		return st, nil
	}
	strat, err := s.factory(symbol)
	if err != nil {
		return nil, fmt.Errorf("create strategy for %s: %w", symbol, err)
	}
	st := &symbolState{strategy: strat}
	s.symbols[symbol] = st
	return st, nil
}

func (s *Service) maybeResetSession(st *symbolState, symbol, sessionDate string) {
	if st.sessionDate != "" && st.sessionDate != sessionDate {
		if !validSessionProgression(st.sessionDate, sessionDate) {
			s.log.Warn().Str("symbol", symbol).Str("from", st.sessionDate).Str("to", sessionDate).Msg("suspicious session date change")
		}
		s.log.Info().Str("symbol", symbol).Str("from", st.sessionDate).Str("to", sessionDate).Int("observations", st.strategy.Observations()).Msg("session reset")
		st.strategy.ResetSession()
	}
	st.sessionDate = sessionDate
}

func (s *Service) restricted(ts time.Time) bool {
	for _, w := range s.windows {
		if w.Contains(ts, s.loc) {
			return true
		}
	}
	return false
}

// validSessionProgression accepts YYYY-MM-DD dates whose years differ by at
// most one.
func validSessionProgression(from, to string) bool {
	if len(from) != len(market.SessionDateLayout) || len(to) != len(market.SessionDateLayout) {
		return false
	}
	fy, err1 := strconv.Atoi(from[:4])
	ty, err2 := strconv.Atoi(to[:4])
	if err1 != nil || err2 != nil {
		return true
	}
	d := ty - fy
	return d >= -1 && d <= 1
}

func toResponse(in strategy.TradeIntent) Response {
	switch in.Action {
	case strategy.Place:
		return Response{
			Action:     string(in.Action),
			Side:       in.Side,
			OrderType:  in.OrderType,
			Quantity:   in.Qty,
			LimitPrice: in.LimitPrice,
		}
	case strategy.Flatten:
		return Response{Action: string(in.Action)}
	default:
		return Response{Action: string(strategy.Hold)}
	}
}
