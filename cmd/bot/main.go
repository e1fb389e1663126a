package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vwaprelay/internal/broker"
	"vwaprelay/internal/config"
	"vwaprelay/internal/decision"
	"vwaprelay/internal/engine"
	"vwaprelay/internal/logging"
	"vwaprelay/internal/md"
	"vwaprelay/internal/metrics"
	"vwaprelay/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("relay stopped")
		os.Exit(1)
	}
	log.Info().Msg("relay shutdown complete")
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, reg, log)
	}

	runID := generateRunID()
	var sink engine.Sink
	if len(cfg.KafkaBrokers) > 0 {
		sink = engine.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	}
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID, sink, log)
	if err != nil {
		return fmt.Errorf("decision logger: %w", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close decision logger")
		}
	}()

	var checkpoints state.Checkpointer = state.NewFileCheckpointer(cfg.CheckpointPath)
	if cfg.CheckpointBackend == config.BackendRedis {
		cli := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = cli.Close() }()
		checkpoints = state.NewRedisCheckpointer(cli, "vwaprelay:checkpoint:"+cfg.Symbol, 7*24*time.Hour)
	}

	var executor broker.Executor
	var paper *broker.PaperExecutor
	if cfg.Mode == config.ModePaper {
		executor = broker.NewAlpaca(broker.AlpacaOptions{
			APIKey:        cfg.APIKey,
			APISecret:     cfg.APISecret,
			BaseURL:       cfg.PaperBaseURL,
			TimeInForce:   cfg.TimeInForce,
			ExtendedHours: cfg.ExtendedHours,
		}, log)
	} else {
		paper = broker.NewPaper(log)
		executor = paper
	}

	gate := decision.NewGate(decision.MinRequestGap, time.Now)
	client := decision.NewClient(cfg.ServiceURL, cfg.HTTPTimeout)
	pipeline := decision.NewPipeline(gate, client, log, rec)

	eng, err := engine.New(cfg, pipeline, executor, decisions, checkpoints, rec, log)
	if err != nil {
		return err
	}
	if err := eng.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("checkpoint restore failed")
	}
	if paper != nil {
		paper.SetPosition(cfg.Symbol, eng.Position())
	}

	events := make(chan md.Event, 256)
	go md.RunStream(ctx, md.StreamOptions{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Feed:      cfg.Feed,
		Symbol:    cfg.Symbol,
	}, events, log)

	var positions chan int
	if cfg.Mode == config.ModePaper {
		positions = make(chan int)
		go engine.ReconcileLoop(ctx, executor, cfg.Symbol, cfg.ReconcileInterval, positions, log)
	}

	log.Info().
		Str("run_id", runID).
		Str("mode", string(cfg.Mode)).
		Str("symbol", cfg.Symbol).
		Str("feed", cfg.Feed).
		Str("service_url", client.URL()).
		Int("max_position", cfg.MaxPosition).
		Msg("starting relay")

	if err := eng.Run(ctx, events, positions); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
