package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vwaprelay/internal/broker"
	"vwaprelay/internal/config"
	"vwaprelay/internal/decision"
	"vwaprelay/internal/market"
	"vwaprelay/internal/md"
	"vwaprelay/internal/metrics"
	"vwaprelay/internal/state"
)

var session = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		Symbol:          "AAPL",
		MaxPosition:     5,
		TickSize:        0.01,
		SessionTimezone: "America/New_York",
		ShowVWAP:        true,
	}
}

type harness struct {
	engine      *Engine
	pipeline    *decision.Pipeline
	journalPath string
	checkpoints *state.FileCheckpointer
	registry    *prometheus.Registry
}

func newHarness(t *testing.T, requester decision.Requester) harness {
	t.Helper()
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	pipeline := decision.NewPipeline(decision.NewGate(decision.MinRequestGap, time.Now), requester, zerolog.Nop(), rec)
	journalPath := filepath.Join(dir, "decisions.ndjson")
	journal, err := NewDecisionLogger(journalPath, "run-1", nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	checkpoints := state.NewFileCheckpointer(filepath.Join(dir, "checkpoint.json"))

	eng, err := New(testConfig(), pipeline, broker.NewPaper(zerolog.Nop()), journal, checkpoints, rec, zerolog.Nop())
	require.NoError(t, err)
	eng.now = func() time.Time { return session.Add(time.Minute) }
	return harness{engine: eng, pipeline: pipeline, journalPath: journalPath, checkpoints: checkpoints, registry: reg}
}

func quoteAndBar() []md.Event {
	return []md.Event{
		{Tick: &market.Tick{Kind: market.TickBid, Symbol: "AAPL", Price: 99.9, Size: 1, Time: session}},
		{Tick: &market.Tick{Kind: market.TickAsk, Symbol: "AAPL", Price: 100.1, Size: 1, Time: session}},
		{Bar: &market.Bar{Symbol: "AAPL", Start: session, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}},
	}
}

func trade(price float64, size int64, at time.Time) md.Event {
	return md.Event{Tick: &market.Tick{Kind: market.TickTrade, Symbol: "AAPL", Price: price, Size: size, Time: at}}
}

func feed(events ...md.Event) <-chan md.Event {
	ch := make(chan md.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func readJournal(t *testing.T, path string) []Decision {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out []Decision
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d Decision
		require.NoError(t, json.Unmarshal(sc.Bytes(), &d))
		out = append(out, d)
	}
	require.NoError(t, sc.Err())
	return out
}

func counterValue(reg *prometheus.Registry, name, label, value string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestEngineEndToEnd(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"action":"place","side":"buy","orderType":"market","quantity":2}`)
	}))
	defer srv.Close()

	h := newHarness(t, decision.NewClient(srv.URL, time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := append(quoteAndBar(), trade(100.05, 3, session.Add(5*time.Second)))
	require.NoError(t, h.engine.Run(ctx, feed(events...), nil))

	assert.Equal(t,
		`{"symbolName":"AAPL","timestampIso":"2024-03-04T14:30:05.0000000Z","lastPrice":100.05,"lastSize":3,"bidPrice":99.9,"askPrice":100.1,"positionQty":0,"sessionDate":"2024-03-04","vwap":100}`,
		<-bodies)
	assert.Equal(t, 2, h.engine.Position())
	assert.False(t, h.pipeline.InFlight())

	records := readJournal(t, h.journalPath)
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "enter long 2, market", records[0].Instruction)
	assert.Equal(t, ResultOrderSubmitted, records[0].Result)
	assert.Equal(t, 2, records[0].PositionQty)

	cp, err := h.checkpoints.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", cp.SessionDate)
	assert.Equal(t, 2, cp.PositionQty)
	require.NotNil(t, cp.CurrentBar)
	assert.Equal(t, 10.0, cp.CurrentBar.Volume)
	assert.Zero(t, cp.VWAP.Volume)
}

func TestEngineDropsTicksWhileInFlight(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = io.WriteString(w, `{"action":"flatten"}`)
	}))
	defer srv.Close()

	h := newHarness(t, decision.NewClient(srv.URL, 5*time.Second))
	events := append(quoteAndBar(),
		trade(100, 1, session.Add(time.Second)),
		trade(100.01, 1, session.Add(2*time.Second)),
	)

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(context.Background(), feed(events...), nil) }()

	require.Eventually(t, func() bool {
		return counterValue(h.registry, "vwaprelay_gate_refusals_total", "reason", decision.ErrInFlight.Error()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.False(t, h.pipeline.InFlight())

	records := readJournal(t, h.journalPath)
	require.Len(t, records, 1)
	assert.Equal(t, "flat_nothing_to_exit", records[0].Reason)
	assert.Equal(t, ResultRejected, records[0].Result)
}

func TestEngineFailedRequestIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHarness(t, decision.NewClient(srv.URL, time.Second))
	events := append(quoteAndBar(), trade(100, 1, session.Add(time.Second)))
	require.NoError(t, h.engine.Run(context.Background(), feed(events...), nil))

	assert.Zero(t, h.engine.Position())
	assert.False(t, h.pipeline.InFlight())
	records := readJournal(t, h.journalPath)
	require.Len(t, records, 1)
	assert.Equal(t, ResultRequestFailed, records[0].Result)
	assert.Equal(t, "protocol", records[0].ErrorKind)
	assert.Equal(t, "decision_failed", records[0].Reason)
}

type countingRequester struct {
	calls atomic.Int32
}

func (c *countingRequester) Decide(context.Context, decision.Snapshot) (decision.Response, error) {
	c.calls.Add(1)
	return decision.Response{Action: decision.ActionUnknown}, nil
}

func TestEngineTradeBeforeQuoteOrBarDoesNotDispatch(t *testing.T) {
	req := &countingRequester{}
	h := newHarness(t, req)
	ctx := context.Background()

	h.engine.OnTick(ctx, *trade(100, 1, session).Tick)
	h.engine.OnBar(market.Bar{Symbol: "AAPL", Start: session, High: 101, Low: 99, Close: 100, Volume: 10})
	h.engine.OnTick(ctx, *trade(100, 1, session.Add(time.Second)).Tick)
	h.engine.OnTick(ctx, market.Tick{Kind: market.TickBid, Price: 99.9, Time: session})
	h.engine.OnTick(ctx, *trade(100, 1, session.Add(2*time.Second)).Tick)

	assert.False(t, h.pipeline.InFlight())
	assert.Zero(t, req.calls.Load())
}

func TestEngineBarBoundaryAndSessionReset(t *testing.T) {
	h := newHarness(t, &countingRequester{})
	e := h.engine

	e.OnBar(market.Bar{Start: session, High: 101, Low: 99, Close: 100, Volume: 10})
	assert.InDelta(t, 100.0, e.acc.Current(), 1e-9)

	next := session.Add(time.Minute)
	e.OnBar(market.Bar{Start: next, High: 103, Low: 101, Close: 102, Volume: 10})
	assert.InDelta(t, 101.0, e.acc.Current(), 1e-9)

	// Redelivery of the forming bar must not fold it twice.
	e.OnBar(market.Bar{Start: next, High: 103, Low: 101, Close: 102, Volume: 20})
	assert.InDelta(t, (100.0*10+102.0*20)/30, e.acc.Current(), 1e-9)
	assert.InDelta(t, 10.0, e.acc.Sums().Volume, 1e-9)

	tomorrow := session.Add(24 * time.Hour)
	e.OnBar(market.Bar{Start: tomorrow, High: 51, Low: 49, Close: 50, Volume: 5})
	assert.Equal(t, "2024-03-05", e.sessionDate)
	assert.InDelta(t, 50.0, e.acc.Current(), 1e-9)
	assert.Zero(t, e.acc.Sums().Volume)
	assert.Equal(t, 1.0, counterValue(h.registry, "vwaprelay_session_resets_total", "", ""))
}

func TestEngineFirstOfSessionFlagResets(t *testing.T) {
	h := newHarness(t, &countingRequester{})
	e := h.engine

	e.OnBar(market.Bar{Start: session, High: 101, Low: 99, Close: 100, Volume: 10})
	e.OnBar(market.Bar{Start: session.Add(time.Minute), High: 101, Low: 99, Close: 100, Volume: 10})
	require.InDelta(t, 10.0, e.acc.Sums().Volume, 1e-9)

	first := market.Bar{Start: session.Add(2 * time.Minute), High: 61, Low: 59, Close: 60, Volume: 4, FirstOfSession: true}
	e.OnBar(first)
	assert.Zero(t, e.acc.Sums().Volume)
	assert.InDelta(t, 60.0, e.acc.Current(), 1e-9)

	first.Volume = 8
	e.OnBar(first)
	assert.Zero(t, e.acc.Sums().Volume)
	assert.InDelta(t, 60.0, e.acc.Current(), 1e-9)
}

func TestEngineReconcileOverridesLocalPosition(t *testing.T) {
	h := newHarness(t, &countingRequester{})
	h.engine.position = 2

	h.engine.reconcile(-1)
	assert.Equal(t, -1, h.engine.Position())
}

func TestEngineRestoreCheckpoint(t *testing.T) {
	h := newHarness(t, &countingRequester{})
	bar := &market.Bar{Symbol: "AAPL", Start: session, High: 103, Low: 101, Close: 102, Volume: 10}
	require.NoError(t, h.checkpoints.Save(context.Background(), state.Checkpoint{
		Symbol:      "AAPL",
		SessionDate: "2024-03-04",
		CurrentBar:  bar,
		PositionQty: 3,
	}))

	require.NoError(t, h.engine.Restore(context.Background()))
	assert.Equal(t, 3, h.engine.Position())
	assert.Equal(t, "2024-03-04", h.engine.sessionDate)
	assert.InDelta(t, 102.0, h.engine.acc.Current(), 1e-9)
}

func TestEngineIgnoresStaleCheckpoint(t *testing.T) {
	h := newHarness(t, &countingRequester{})
	require.NoError(t, h.checkpoints.Save(context.Background(), state.Checkpoint{
		Symbol:      "AAPL",
		SessionDate: "2024-03-01",
		PositionQty: 3,
	}))

	require.NoError(t, h.engine.Restore(context.Background()))
	assert.Zero(t, h.engine.Position())
	assert.Empty(t, h.engine.sessionDate)
}
