package strategy

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"vwaprelay/internal/market"
)

// VWAPReversion fades large deviations of the last price from session VWAP.
// Entries are sized one contract at a time: the first when flat, a second
// when already holding one contract in the signal direction.
type VWAPReversion struct {
	p     Params
	loc   *time.Location
	z     *ZScorer
	trend *TrendFilter
	log   zerolog.Logger

	scalingSent bool
}

func NewVWAPReversion(p Params, log zerolog.Logger) (*VWAPReversion, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, err
	}
	return &VWAPReversion{
		p:     p,
		loc:   loc,
		z:     NewZScorer(p),
		trend: NewTrendFilter(p.Trend),
		log:   log.With().Str("component", "vwap_reversion").Logger(),
	}, nil
}

func (v *VWAPReversion) ResetSession() {
	v.z.Reset()
	v.trend.Reset()
	v.scalingSent = false
}

func (v *VWAPReversion) Observations() int {
	return v.z.Observations()
}

func (v *VWAPReversion) Decide(s MarketSnapshot) TradeIntent {
	deviation := s.Last - s.VWAP
	z := v.z.Update(deviation)
	spread := s.Ask - s.Bid
	mid := 0.5 * (s.Bid + s.Ask)
	ny := v.inNYSession(s.Timestamp)

	var trend TrendSignal
	if v.p.Trend.Enabled && ny {
		trend = v.trend.Evaluate(z, s.Ask, s.Bid, mid, s.Timestamp)
	}

	v.log.Debug().
		Float64("vwap", s.VWAP).
		Float64("deviation", deviation).
		Float64("z", z).
		Float64("spread", spread).
		Float64("mid", mid).
		Bool("trend", trend.Detected()).
		Msg("observation")

	if abs(s.PositionQty) != 1 {
		v.scalingSent = false
	}

	intent := v.decide(z, s, spread, ny, trend.Detected())
	if intent.Action == Place && intent.Reason == reasonScaling {
		v.scalingSent = true
	}
	return intent
}

const (
	reasonEntry   = "entry"
	reasonScaling = "scaling_entry"
)

func (v *VWAPReversion) decide(z float64, s MarketSnapshot, spread float64, ny, trending bool) TradeIntent {
	th := v.p.Overnight
	if ny {
		th = v.p.NY
	}
	tick := v.p.TickSize
	if s.TickSize > 0 {
		tick = s.TickSize
	}
	pos := s.PositionQty
	absZ := math.Abs(z)

	if v.z.Observations() < v.p.WarmupObservations {
		return hold("warmup")
	}
	if trending {
		if absZ < th.Exit && pos != 0 {
			return TradeIntent{Action: Flatten, Reason: "trend_exit"}
		}
		return hold("trend_filter")
	}
	if math.Sqrt(math.Max(v.z.Variance(), v.p.MinVariance)) < v.p.MinStdTicks*tick {
		return hold("low_variance")
	}
	if spread > v.p.MaxSpreadTicks*tick {
		return hold("wide_spread")
	}
	if absZ < th.Exit && pos != 0 {
		return TradeIntent{Action: Flatten, Reason: "exit"}
	}

	scaling := abs(pos) == 1 && absZ >= th.SecondEntry
	if scaling && v.scalingSent {
		return hold("duplicate_scaling")
	}
	if v.entryQuantity(z, pos, th) == 0 {
		return hold("no_signal")
	}

	var side string
	switch {
	case z < -th.Entry:
		side = "buy"
	case z > th.Entry:
		side = "sell"
	default:
		return hold("no_signal")
	}

	intent := TradeIntent{Action: Place, Side: side, Qty: v.p.DefaultQuantity, Reason: reasonEntry}
	if scaling {
		intent.OrderType = "market"
		intent.Reason = reasonScaling
		return intent
	}
	intent.OrderType = "limit"
	intent.LimitPrice = market.NewInstrument("", tick).Mid(s.Bid, s.Ask)
	return intent
}

// entryQuantity is 1 for a first entry from flat or a second entry that adds
// to a one-lot in the signal direction, 0 otherwise.
func (v *VWAPReversion) entryQuantity(z float64, pos int, th Thresholds) int {
	absZ := math.Abs(z)
	matches := (z > 0 && pos <= 0) || (z < 0 && pos >= 0)
	switch {
	case absZ >= th.Entry && pos == 0:
		return 1
	case absZ >= th.SecondEntry && matches && abs(pos) == 1:
		return 1
	default:
		return 0
	}
}

func (v *VWAPReversion) inNYSession(ts time.Time) bool {
	if ts.IsZero() {
		return true
	}
	return v.p.NYSession.Contains(ts, v.loc)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
