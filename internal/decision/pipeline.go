package decision

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vwaprelay/internal/metrics"
)

// Result is the outcome of one round-trip, delivered back to the goroutine
// that owns trading state.
type Result struct {
	Snapshot Snapshot
	Response Response
	Err      error
	Started  time.Time
	Latency  time.Duration
}

// Pipeline runs decision requests off the caller's goroutine. Exactly one
// Result is delivered per successful TryDispatch, and the owner must call
// Complete after handling it to reopen the gate.
type Pipeline struct {
	gate      *Gate
	requester Requester
	results   chan Result
	now       func() time.Time
	log       zerolog.Logger
	metrics   *metrics.Recorder
}

func NewPipeline(gate *Gate, requester Requester, log zerolog.Logger, rec *metrics.Recorder) *Pipeline {
	return &Pipeline{
		gate:      gate,
		requester: requester,
		// At most one request is outstanding, so one slot means the worker
		// never blocks on delivery.
		results: make(chan Result, 1),
		now:     time.Now,
		log:     log.With().Str("component", "decision").Logger(),
		metrics: rec,
	}
}

// TryDispatch starts a request for snap unless the gate refuses. It never
// blocks on network I/O.
func (p *Pipeline) TryDispatch(ctx context.Context, snap Snapshot) bool {
	if err := p.gate.TryAcquire(); err != nil {
		p.metrics.GateRefused(err.Error())
		return false
	}
	p.metrics.Dispatched()
	go p.run(ctx, snap)
	return true
}

// Results yields completed round-trips.
func (p *Pipeline) Results() <-chan Result {
	return p.results
}

// Complete returns the gate to idle.
func (p *Pipeline) Complete() {
	p.gate.Release()
}

func (p *Pipeline) InFlight() bool {
	return p.gate.InFlight()
}

func (p *Pipeline) run(ctx context.Context, snap Snapshot) {
	res := Result{Snapshot: snap, Started: p.now()}
	defer func() {
		if r := recover(); r != nil {
			res.Response = Response{Action: ActionUnknown}
			res.Err = &PanicError{Value: r}
		}
		res.Latency = p.now().Sub(res.Started)
		p.observe(res)
		p.results <- res
	}()

	res.Response, res.Err = p.requester.Decide(ctx, snap)
}

func (p *Pipeline) observe(res Result) {
	kind := Classify(res.Err)
	p.metrics.RoundTrip(res.Latency, kind)
	if res.Err == nil {
		p.log.Debug().
			Str("action", string(res.Response.Action)).
			Dur("latency", res.Latency).
			Msg("decision received")
		return
	}
	p.log.Error().
		Err(res.Err).
		Str("kind", kind).
		Str("symbol", res.Snapshot.Symbol).
		Dur("latency", res.Latency).
		Msg("decision request failed")
}
