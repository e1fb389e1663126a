package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vwaprelay/internal/config"
	"vwaprelay/internal/decider"
	"vwaprelay/internal/logging"
	"vwaprelay/internal/strategy"
)

func main() {
	cfg, err := config.LoadDecider(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("load timezone")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := decider.NewService(func(symbol string) (strategy.Strategy, error) {
		s, err := strategy.NewVWAPReversion(cfg.Strategy, log.With().Str("symbol", symbol).Logger())
		if err != nil {
			return nil, err
		}
		return s, nil
	}, cfg.RestrictedWindows, loc, log)
	e := decider.NewServer(decider.NewHandler(svc, reg, log), reg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Addr).Int("windows", len(cfg.RestrictedWindows)).Bool("trend_filter", cfg.Strategy.Trend.Enabled).Msg("decider listening")
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("decider stopped")
}
