package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	keys     []string
	payloads [][]byte
	err      error
	closed   bool
}

func (f *fakeSink) Publish(_ context.Context, key string, payload []byte) error {
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestDecisionLoggerAppendsAndPublishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	sink := &fakeSink{}
	logger, err := NewDecisionLogger(path, "run-7", sink, zerolog.Nop())
	require.NoError(t, err)

	logger.Append(context.Background(), Decision{RunID: logger.RunID(), Symbol: "AAPL", Result: ResultRejected, Reason: "invalid_side"})
	logger.Append(context.Background(), Decision{RunID: logger.RunID(), Symbol: "AAPL", Result: ResultOrderSubmitted, Instruction: "exit long"})
	require.NoError(t, logger.Close())

	records := readJournal(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "run-7", records[0].RunID)
	assert.Equal(t, "invalid_side", records[0].Reason)
	assert.Equal(t, "exit long", records[1].Instruction)

	assert.Equal(t, []string{"AAPL", "AAPL"}, sink.keys)
	var published Decision
	require.NoError(t, json.Unmarshal(sink.payloads[1], &published))
	assert.Equal(t, ResultOrderSubmitted, published.Result)
	assert.True(t, sink.closed)
}

func TestDecisionLoggerSinkErrorDoesNotBlockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	logger, err := NewDecisionLogger(path, "run-8", &fakeSink{err: errors.New("broker down")}, zerolog.Nop())
	require.NoError(t, err)

	logger.Append(context.Background(), Decision{Symbol: "AAPL", Result: ResultRequestFailed})
	require.NoError(t, logger.Close())

	assert.Len(t, readJournal(t, path), 1)
}

func TestKafkaSinkConfiguration(t *testing.T) {
	sink := NewKafkaSink([]string{"127.0.0.1:9092"}, "vwaprelay.decisions", zerolog.Nop())

	assert.Equal(t, "vwaprelay.decisions", sink.writer.Topic)
	assert.True(t, sink.writer.Async)
	assert.NoError(t, sink.Close())
}
