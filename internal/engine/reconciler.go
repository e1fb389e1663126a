package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vwaprelay/internal/broker"
)

// ReconcileLoop polls the executor for the position and hands it to the
// engine through out. It never touches engine state itself.
func ReconcileLoop(ctx context.Context, executor broker.Executor, symbol string, interval time.Duration, out chan<- int, log zerolog.Logger) {
	log = log.With().Str("component", "reconciler").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qty, err := executor.Position(ctx, symbol)
			if err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("reconcile position failed")
				continue
			}
			select {
			case out <- qty:
			case <-ctx.Done():
				return
			}
		}
	}
}
