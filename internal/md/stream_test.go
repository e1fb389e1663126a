package md

import (
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/stretchr/testify/assert"

	"vwaprelay/internal/market"
)

func TestQuoteTicks(t *testing.T) {
	ts := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	bid, ask := QuoteTicks(stream.Quote{Symbol: "AAPL", BidPrice: 99.9, BidSize: 3, AskPrice: 100.1, AskSize: 5, Timestamp: ts})

	assert.Equal(t, market.Tick{Kind: market.TickBid, Symbol: "AAPL", Price: 99.9, Size: 3, Time: ts}, *bid)
	assert.Equal(t, market.Tick{Kind: market.TickAsk, Symbol: "AAPL", Price: 100.1, Size: 5, Time: ts}, *ask)
}

func TestTradeTickAndBar(t *testing.T) {
	ts := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

	tick := TradeTick(stream.Trade{Symbol: "AAPL", Price: 100, Size: 7, Timestamp: ts})
	assert.Equal(t, market.TickTrade, tick.Kind)
	assert.Equal(t, int64(7), tick.Size)

	bar := StreamBar(stream.Bar{Symbol: "AAPL", Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 40, Timestamp: ts})
	assert.Equal(t, market.Bar{Symbol: "AAPL", Start: ts, Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 40}, *bar)
}

func TestParseFeed(t *testing.T) {
	assert.EqualValues(t, "sip", parseFeed("sip"))
	assert.EqualValues(t, "test", parseFeed("test"))
	assert.EqualValues(t, "iex", parseFeed("bogus"))
}
