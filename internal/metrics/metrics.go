// Package metrics exposes relay counters through Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Recorder methods are safe on a nil receiver so components can run without
// metrics in tests.
type Recorder struct {
	ticks         *prometheus.CounterVec
	dispatches    prometheus.Counter
	gateRefusals  *prometheus.CounterVec
	roundTrip     prometheus.Histogram
	failures      *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	policy        *prometheus.CounterVec
	orders        *prometheus.CounterVec
	sessionResets prometheus.Counter
	vwap          *prometheus.GaugeVec
	position      *prometheus.GaugeVec
}

// New registers the relay metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vwaprelay_ticks_total",
			Help: "Market ticks processed, by kind",
		}, []string{"kind"}),
		dispatches: f.NewCounter(prometheus.CounterOpts{
			Name: "vwaprelay_decision_requests_total",
			Help: "Decision requests dispatched",
		}),
		gateRefusals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vwaprelay_gate_refusals_total",
			Help: "Qualifying ticks dropped by the request gate, by reason",
		}, []string{"reason"}),
		roundTrip: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vwaprelay_decision_round_trip_seconds",
			Help:    "Decision request round-trip time",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vwaprelay_decision_failures_total",
			Help: "Failed decision round-trips, by kind",
		}, []string{"kind"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vwaprelay_decisions_total",
			Help: "Decoded decisions, by action",
		}, []string{"action"}),
		policy: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vwaprelay_policy_outcomes_total",
			Help: "Order sizing outcomes, by reason",
		}, []string{"reason"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vwaprelay_orders_total",
			Help: "Order instructions handed to the executor",
		}, []string{"kind", "type", "result"}),
		sessionResets: f.NewCounter(prometheus.CounterOpts{
			Name: "vwaprelay_session_resets_total",
			Help: "VWAP session resets",
		}),
		vwap: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vwaprelay_vwap",
			Help: "Current session VWAP",
		}, []string{"symbol"}),
		position: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vwaprelay_position_qty",
			Help: "Signed position quantity known to the engine",
		}, []string{"symbol"}),
	}
}

func (r *Recorder) Tick(kind string) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(kind).Inc()
}

func (r *Recorder) Dispatched() {
	if r == nil {
		return
	}
	r.dispatches.Inc()
}

func (r *Recorder) GateRefused(reason string) {
	if r == nil {
		return
	}
	r.gateRefusals.WithLabelValues(reason).Inc()
}

// RoundTrip records latency and, when failureKind is non-empty, a failure.
func (r *Recorder) RoundTrip(latency time.Duration, failureKind string) {
	if r == nil {
		return
	}
	r.roundTrip.Observe(latency.Seconds())
	if failureKind != "" {
		r.failures.WithLabelValues(failureKind).Inc()
	}
}

func (r *Recorder) Decision(action string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(action).Inc()
}

func (r *Recorder) PolicyOutcome(reason string) {
	if r == nil {
		return
	}
	r.policy.WithLabelValues(reason).Inc()
}

func (r *Recorder) Order(kind, orderType, result string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(kind, orderType, result).Inc()
}

func (r *Recorder) SessionReset() {
	if r == nil {
		return
	}
	r.sessionResets.Inc()
}

func (r *Recorder) VWAP(symbol string, v float64) {
	if r == nil {
		return
	}
	r.vwap.WithLabelValues(symbol).Set(v)
}

func (r *Recorder) Position(symbol string, qty int) {
	if r == nil {
		return
	}
	r.position.WithLabelValues(symbol).Set(float64(qty))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
