package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vwaprelay/internal/decision"
)

// Decision is one journal record per completed round-trip.
type Decision struct {
	RunID       string            `json:"run_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Symbol      string            `json:"symbol"`
	Snapshot    decision.Snapshot `json:"snapshot"`
	LatencyMs   int64             `json:"latency_ms"`
	Response    decision.Response `json:"response"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	Reason      string            `json:"reason"`
	Instruction string            `json:"instruction,omitempty"`
	Projected   int               `json:"projected"`
	Result      string            `json:"result"`
	OrderID     string            `json:"order_id,omitempty"`
	PositionQty int               `json:"position_qty"`
}

const (
	ResultRequestFailed  = "request_failed"
	ResultRejected       = "rejected"
	ResultOrderFailed    = "order_failed"
	ResultOrderSubmitted = "order_submitted"
)

// Sink mirrors journal records somewhere other than the local file.
type Sink interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

// DecisionLogger appends records as NDJSON and forwards them to an optional
// sink. Failures are logged and never reach the caller.
type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	sink   Sink
	log    zerolog.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path, runID string, sink Sink, log zerolog.Logger) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
		sink:   sink,
		log:    log.With().Str("component", "journal").Logger(),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(ctx context.Context, rec Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := json.Marshal(rec)
	if err != nil {
		d.log.Error().Err(err).Msg("marshal decision")
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.log.Error().Err(err).Msg("write decision")
	} else if err := d.writer.Flush(); err != nil {
		d.log.Error().Err(err).Msg("flush decision journal")
	}
	if d.sink != nil {
		if err := d.sink.Publish(ctx, rec.Symbol, payload); err != nil {
			d.log.Warn().Err(err).Msg("publish decision")
		}
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			d.log.Warn().Err(err).Msg("close decision sink")
		}
	}
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
