package md

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	MinReconnectDelay = time.Second
	MaxReconnectDelay = time.Minute
)

// RunStream keeps StartStream subscribed until ctx is done. A dropped stream
// is resubscribed after a delay that doubles up to MaxReconnectDelay and
// resets once a connection has stayed up for that long.
func RunStream(ctx context.Context, opts StreamOptions, out chan<- Event, log zerolog.Logger) error {
	start := func(ctx context.Context) error {
		return StartStream(ctx, opts, out, log)
	}
	return reconnect(ctx, start, MinReconnectDelay, MaxReconnectDelay, log)
}

func reconnect(ctx context.Context, start func(context.Context) error, minDelay, maxDelay time.Duration, log zerolog.Logger) error {
	delay := minDelay
	for attempt := 1; ; attempt++ {
		began := time.Now()
		err := start(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(began) >= maxDelay {
			delay = minDelay
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("market data stream stopped, reconnecting")
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, maxDelay)
	}
}

// sleepCtx waits for delay and returns early with ctx's error.
func sleepCtx(ctx context.Context, delay time.Duration) error {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
