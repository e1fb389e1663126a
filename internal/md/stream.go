package md

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/rs/zerolog"

	"vwaprelay/internal/market"
)

// Event is one market data update. Exactly one of Tick or Bar is set.
type Event struct {
	Tick *market.Tick
	Bar  *market.Bar
}

type StreamOptions struct {
	APIKey    string
	APISecret string
	Feed      string
	Symbol    string
}

// StartStream subscribes to trades, quotes and bars for one symbol and
// forwards them to out until ctx is done. A quote becomes a bid tick and an
// ask tick.
func StartStream(ctx context.Context, opts StreamOptions, out chan<- Event, log zerolog.Logger) error {
	log = log.With().Str("component", "md").Str("symbol", opts.Symbol).Logger()
	client := stream.NewStocksClient(
		parseFeed(opts.Feed),
		stream.WithCredentials(opts.APIKey, opts.APISecret),
	)

	// Connect must be called before subscribing in this SDK version.
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect market data stream: %w", err)
	}
	log.Debug().Str("feed", opts.Feed).Msg("connected to stream")

	emit := func(ev Event) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	if err := client.SubscribeToTrades(func(tr stream.Trade) {
		emit(Event{Tick: TradeTick(tr)})
	}, opts.Symbol); err != nil {
		return fmt.Errorf("subscribe to trades: %w", err)
	}
	if err := client.SubscribeToQuotes(func(q stream.Quote) {
		bid, ask := QuoteTicks(q)
		emit(Event{Tick: bid})
		emit(Event{Tick: ask})
	}, opts.Symbol); err != nil {
		return fmt.Errorf("subscribe to quotes: %w", err)
	}
	if err := client.SubscribeToBars(func(b stream.Bar) {
		log.Debug().Time("start", b.Timestamp).Float64("close", b.Close).Msg("received bar")
		emit(Event{Bar: StreamBar(b)})
	}, opts.Symbol); err != nil {
		return fmt.Errorf("subscribe to bars: %w", err)
	}
	log.Info().Msg("subscribed to trades, quotes and bars")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Terminated():
		if err != nil {
			return fmt.Errorf("market data stream terminated: %w", err)
		}
		return ctx.Err()
	}
}

func TradeTick(tr stream.Trade) *market.Tick {
	return &market.Tick{
		Kind:   market.TickTrade,
		Symbol: tr.Symbol,
		Price:  tr.Price,
		Size:   int64(tr.Size),
		Time:   tr.Timestamp,
	}
}

func QuoteTicks(q stream.Quote) (bid, ask *market.Tick) {
	bid = &market.Tick{Kind: market.TickBid, Symbol: q.Symbol, Price: q.BidPrice, Size: int64(q.BidSize), Time: q.Timestamp}
	ask = &market.Tick{Kind: market.TickAsk, Symbol: q.Symbol, Price: q.AskPrice, Size: int64(q.AskSize), Time: q.Timestamp}
	return bid, ask
}

func StreamBar(b stream.Bar) *market.Bar {
	return &market.Bar{
		Symbol: b.Symbol,
		Start:  b.Timestamp,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: float64(b.Volume),
	}
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	case "test":
		return marketdata.Feed("test")
	default:
		return marketdata.IEX
	}
}
