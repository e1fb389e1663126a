package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chicago(t *testing.T, h, m int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return time.Date(2024, 3, 4, h, m, 0, 0, loc)
}

func newTestStrategy(t *testing.T, mutate func(*Params)) *VWAPReversion {
	t.Helper()
	p := DefaultParams()
	p.WarmupObservations = 0
	p.Trend.Enabled = false
	if mutate != nil {
		mutate(&p)
	}
	s, err := NewVWAPReversion(p, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func overnight(t *testing.T, last float64, pos int) MarketSnapshot {
	return MarketSnapshot{
		Timestamp:   chicago(t, 22, 0),
		Last:        last,
		VWAP:        5000,
		Bid:         5000,
		Ask:         5000.25,
		PositionQty: pos,
	}
}

func TestVWAPReversionWarmup(t *testing.T) {
	s := newTestStrategy(t, func(p *Params) { p.WarmupObservations = 300 })

	intent := s.Decide(overnight(t, 5100, 0))
	assert.Equal(t, Hold, intent.Action)
	assert.Equal(t, "warmup", intent.Reason)
	assert.Equal(t, 1, s.Observations())
}

func TestVWAPReversionShortEntryOvernight(t *testing.T) {
	s := newTestStrategy(t, nil)

	intent := s.Decide(overnight(t, 5100, 0))

	assert.Equal(t, TradeIntent{
		Action:     Place,
		Side:       "sell",
		OrderType:  "limit",
		Qty:        1,
		LimitPrice: 5000.25,
		Reason:     reasonEntry,
	}, intent)
}

func TestVWAPReversionLongEntry(t *testing.T) {
	s := newTestStrategy(t, nil)

	intent := s.Decide(overnight(t, 4900, 0))

	assert.Equal(t, Place, intent.Action)
	assert.Equal(t, "buy", intent.Side)
}

func TestVWAPReversionNYThresholdsAreStricter(t *testing.T) {
	s := newTestStrategy(t, nil)
	snap := overnight(t, 5100, 0)
	snap.Timestamp = chicago(t, 10, 0)

	intent := s.Decide(snap)
	assert.Equal(t, Hold, intent.Action)
	assert.Equal(t, "no_signal", intent.Reason)
}

func TestVWAPReversionExitNearVWAP(t *testing.T) {
	s := newTestStrategy(t, nil)
	s.Decide(overnight(t, 5100, 0))

	intent := s.Decide(overnight(t, 5000, -1))
	assert.Equal(t, Flatten, intent.Action)
}

func TestVWAPReversionWideSpread(t *testing.T) {
	s := newTestStrategy(t, nil)
	snap := overnight(t, 5100, 0)
	snap.Ask = 5001

	assert.Equal(t, "wide_spread", s.Decide(snap).Reason)
}

func TestVWAPReversionScalingOnce(t *testing.T) {
	s := newTestStrategy(t, nil)

	first := s.Decide(overnight(t, 6000, -1))
	assert.Equal(t, TradeIntent{Action: Place, Side: "sell", OrderType: "market", Qty: 1, Reason: reasonScaling}, first)

	second := s.Decide(overnight(t, 6000, -1))
	assert.Equal(t, "duplicate_scaling", second.Reason)

	// Position moved to two lots, so the guard is cleared.
	assert.Equal(t, Hold, s.Decide(overnight(t, 6000, -2)).Action)
	assert.Equal(t, Place, s.Decide(overnight(t, 6000, -1)).Action)
}

func TestVWAPReversionNoScalingAgainstPosition(t *testing.T) {
	s := newTestStrategy(t, nil)

	intent := s.Decide(overnight(t, 6000, 1))
	assert.Equal(t, Hold, intent.Action)
}

func TestVWAPReversionTickSizeOverride(t *testing.T) {
	s := newTestStrategy(t, func(p *Params) { p.MaxSpreadTicks = 5 })
	snap := overnight(t, 5100, 0)
	snap.TickSize = 0.01
	snap.Bid, snap.Ask = 5000.10, 5000.12

	intent := s.Decide(snap)
	assert.Equal(t, Place, intent.Action)
	assert.Equal(t, 5000.11, intent.LimitPrice)
}

func TestVWAPReversionTrendFilterOnlyAllowsExit(t *testing.T) {
	s := newTestStrategy(t, func(p *Params) { p.Trend.Enabled = true })
	snap := overnight(t, 5000, 0)
	snap.Timestamp = chicago(t, 10, 0)

	// Fast rally inside the NY session trips the velocity detector.
	var intent TradeIntent
	for i := 0; i < 10; i++ {
		snap.Last = 5000 + 10*float64(i)
		snap.Bid = 5000 + 10*float64(i)
		snap.Ask = snap.Bid + 0.25
		snap.VWAP = snap.Last
		intent = s.Decide(snap)
	}
	assert.Equal(t, "trend_filter", intent.Reason)

	snap.PositionQty = 1
	snap.Bid += 10
	snap.Ask += 10
	snap.Last = snap.Bid
	snap.VWAP = snap.Last
	assert.Equal(t, Flatten, s.Decide(snap).Action)
}

func TestVWAPReversionResetSession(t *testing.T) {
	s := newTestStrategy(t, nil)
	s.Decide(overnight(t, 5100, 0))
	s.ResetSession()

	assert.Equal(t, 0, s.Observations())
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	p.Alpha = 0
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.NYSession.Start = "7am"
	assert.Error(t, p.Validate())
}
