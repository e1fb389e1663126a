// Package engine owns the trading state of one symbol. Market events,
// decision results and reconciled positions are all applied on the goroutine
// running Engine.Run.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"vwaprelay/internal/broker"
	"vwaprelay/internal/config"
	"vwaprelay/internal/decision"
	"vwaprelay/internal/market"
	"vwaprelay/internal/md"
	"vwaprelay/internal/metrics"
	"vwaprelay/internal/risk"
	"vwaprelay/internal/state"
	"vwaprelay/internal/vwap"
)

const checkpointTimeout = 5 * time.Second

type Engine struct {
	cfg         config.Config
	clock       market.SessionClock
	pipeline    *decision.Pipeline
	policy      risk.Policy
	executor    broker.Executor
	decisions   *DecisionLogger
	checkpoints state.Checkpointer
	metrics     *metrics.Recorder
	log         zerolog.Logger
	now         func() time.Time

	acc         *vwap.Accumulator
	book        market.Book
	bar         *market.Bar
	sessionDate string
	position    int
	lastTrade   time.Time
}

// New builds an engine. decisions and checkpoints may be nil.
func New(cfg config.Config, pipeline *decision.Pipeline, executor broker.Executor, decisions *DecisionLogger, checkpoints state.Checkpointer, rec *metrics.Recorder, log zerolog.Logger) (*Engine, error) {
	clock, err := market.NewSessionClock(cfg.SessionTimezone, cfg.SessionRollover)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("component", "engine").Str("symbol", cfg.Symbol).Logger()
	return &Engine{
		cfg:      cfg,
		clock:    clock,
		pipeline: pipeline,
		policy: risk.Policy{
			MaxPosition: cfg.MaxPosition,
			KillSwitch:  cfg.KillSwitch,
			Rounder:     market.NewInstrument(cfg.Symbol, cfg.TickSize),
			Log:         log,
		},
		executor:    executor,
		decisions:   decisions,
		checkpoints: checkpoints,
		metrics:     rec,
		log:         log,
		now:         time.Now,
		acc:         vwap.New(),
	}, nil
}

// Position is the engine's signed position. Only read it while Run is not
// executing.
func (e *Engine) Position() int {
	return e.position
}

// Restore resumes VWAP and position from the checkpoint when it belongs to
// the current session.
func (e *Engine) Restore(ctx context.Context) error {
	if e.checkpoints == nil {
		return nil
	}
	cp, err := e.checkpoints.Load(ctx)
	if errors.Is(err, state.ErrNoCheckpoint) {
		return nil
	}
	if err != nil {
		return err
	}
	today := e.clock.SessionDate(e.now())
	if !cp.Resumable(e.cfg.Symbol, today) {
		e.log.Info().Str("checkpoint_session", cp.SessionDate).Str("session", today).Msg("stale checkpoint ignored")
		return nil
	}
	e.acc.Restore(cp.VWAP)
	e.sessionDate = cp.SessionDate
	e.bar = cp.CurrentBar
	e.position = cp.PositionQty
	e.lastTrade = cp.LastTradeTime
	if e.bar != nil {
		e.acc.Update(e.bar.High, e.bar.Low, e.bar.Close, e.bar.Volume)
	}
	e.log.Info().Str("session", cp.SessionDate).Int("position", cp.PositionQty).Float64("vwap", e.acc.Current()).Msg("checkpoint restored")
	return nil
}

// Run processes events until ctx is done or events is closed. After events
// closes, an outstanding decision is still applied before Run returns.
// positions may be nil.
func (e *Engine) Run(ctx context.Context, events <-chan md.Event, positions <-chan int) error {
	defer e.saveCheckpoint()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if !e.pipeline.InFlight() {
					return nil
				}
				events = nil
				continue
			}
			switch {
			case ev.Bar != nil:
				e.OnBar(*ev.Bar)
			case ev.Tick != nil:
				e.OnTick(ctx, *ev.Tick)
			}

		case res := <-e.pipeline.Results():
			e.OnResult(ctx, res)
			if events == nil {
				return nil
			}

		case qty := <-positions:
			e.reconcile(qty)
		}
	}
}

// OnBar applies a bar update. A bar with a new start time closes the
// in-progress bar.
func (e *Engine) OnBar(b market.Bar) {
	e.rollSession(b.Start, b.FirstOfSession)

	if e.bar != nil && !e.bar.Start.Equal(b.Start) {
		e.acc.OnBarBoundary(e.bar.High, e.bar.Low, e.bar.Close, e.bar.Volume)
	}
	e.bar = &b

	v := e.acc.Update(b.High, b.Low, b.Close, b.Volume)
	if e.cfg.ShowVWAP {
		e.metrics.VWAP(e.cfg.Symbol, v)
		e.log.Debug().Time("bar", b.Start).Float64("close", b.Close).Float64("vwap", v).Msg("bar")
	}
}

// OnTick updates the book and, for a qualifying trade, tries to start a
// decision request.
func (e *Engine) OnTick(ctx context.Context, t market.Tick) {
	e.metrics.Tick(string(t.Kind))
	if t.Kind != market.TickTrade {
		e.book.Apply(t)
		return
	}
	e.lastTrade = t.Time
	if e.rollSession(t.Time, false) || e.bar == nil || !e.book.Ready() {
		return
	}

	snap := decision.Snapshot{
		Symbol:      e.cfg.Symbol,
		Timestamp:   t.Time,
		LastPrice:   t.Price,
		LastSize:    t.Size,
		BidPrice:    e.book.Bid,
		AskPrice:    e.book.Ask,
		PositionQty: e.position,
		SessionDate: e.sessionDate,
		VWAP:        e.acc.Update(e.bar.High, e.bar.Low, e.bar.Close, e.bar.Volume),
	}
	e.pipeline.TryDispatch(ctx, snap)
}

// OnResult applies a completed round-trip and reopens the gate.
func (e *Engine) OnResult(ctx context.Context, res decision.Result) {
	defer e.pipeline.Complete()

	rec := Decision{
		Timestamp: e.now().UTC(),
		Symbol:    e.cfg.Symbol,
		Snapshot:  res.Snapshot,
		LatencyMs: res.Latency.Milliseconds(),
		Response:  res.Response,
	}
	if e.decisions != nil {
		rec.RunID = e.decisions.RunID()
	}
	defer func() {
		rec.PositionQty = e.position
		if e.decisions != nil {
			e.decisions.Append(ctx, rec)
		}
	}()

	if res.Err != nil {
		rec.ErrorKind = decision.Classify(res.Err)
		rec.Error = res.Err.Error()
		rec.Reason = risk.ReasonDecisionFailed
		rec.Result = ResultRequestFailed
		e.metrics.PolicyOutcome(risk.ReasonDecisionFailed)
		return
	}

	e.metrics.Decision(string(res.Response.Action))
	out := e.policy.Evaluate(res.Response, e.position, e.book.Bid, e.book.Ask)
	e.metrics.PolicyOutcome(out.Reason)
	rec.Reason = out.Reason
	rec.Projected = out.Projected
	if !out.Accepted {
		rec.Result = ResultRejected
		return
	}
	in := out.Instruction
	rec.Instruction = in.String()

	ref, err := e.executor.Execute(ctx, e.cfg.Symbol, in, e.position)
	if err != nil {
		rec.Result = ResultOrderFailed
		rec.Error = err.Error()
		e.metrics.Order(string(in.Kind), string(in.Type), ResultOrderFailed)
		e.log.Error().Err(err).Str("instruction", rec.Instruction).Msg("order failed")
		return
	}
	e.metrics.Order(string(in.Kind), string(in.Type), ResultOrderSubmitted)
	e.position += in.Delta(e.position)
	e.metrics.Position(e.cfg.Symbol, e.position)
	rec.Result = ResultOrderSubmitted
	rec.OrderID = ref.ID
	e.log.Info().Str("instruction", rec.Instruction).Str("order_id", ref.ID).Int("position", e.position).Msg("order submitted")
}

func (e *Engine) reconcile(qty int) {
	if qty != e.position {
		e.log.Warn().Int("local", e.position).Int("broker", qty).Msg("position drift corrected")
	}
	e.position = qty
	e.metrics.Position(e.cfg.Symbol, qty)
}

// rollSession resets the VWAP when ts falls in a new session. It reports
// whether a reset happened.
func (e *Engine) rollSession(ts time.Time, first bool) bool {
	date := e.clock.SessionDate(ts)
	if date == e.sessionDate && !first {
		return false
	}
	prev := e.sessionDate
	e.sessionDate = date
	if prev == "" && e.bar == nil {
		return false
	}
	// The first bar of a session may be redelivered while still forming.
	if first && date == prev && (e.bar == nil || e.bar.Start.Equal(ts)) {
		return false
	}
	e.acc.ResetSession()
	e.bar = nil
	e.metrics.SessionReset()
	e.log.Info().Str("from", prev).Str("to", date).Msg("session reset")
	return true
}

func (e *Engine) saveCheckpoint() {
	if e.checkpoints == nil || e.sessionDate == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()
	cp := state.Checkpoint{
		Symbol:        e.cfg.Symbol,
		SessionDate:   e.sessionDate,
		VWAP:          e.acc.Sums(),
		CurrentBar:    e.bar,
		PositionQty:   e.position,
		LastTradeTime: e.lastTrade,
		SavedAt:       e.now().UTC(),
	}
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		e.log.Error().Err(err).Msg("save checkpoint failed")
		return
	}
	e.log.Info().Str("session", cp.SessionDate).Int("position", cp.PositionQty).Msg("checkpoint saved")
}
