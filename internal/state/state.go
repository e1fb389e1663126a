// Package state persists the relay's session state across restarts.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vwaprelay/internal/market"
	"vwaprelay/internal/vwap"
)

var ErrNoCheckpoint = errors.New("no checkpoint")

// Checkpoint is everything needed to resume VWAP and position tracking
// within the same session.
type Checkpoint struct {
	Symbol        string      `json:"symbol"`
	SessionDate   string      `json:"session_date"`
	VWAP          vwap.Sums   `json:"vwap"`
	CurrentBar    *market.Bar `json:"current_bar,omitempty"`
	PositionQty   int         `json:"position_qty"`
	LastTradeTime time.Time   `json:"last_trade_time"`
	SavedAt       time.Time   `json:"saved_at"`
}

// Resumable reports whether the checkpoint belongs to symbol's sessionDate.
func (c Checkpoint) Resumable(symbol, sessionDate string) bool {
	return c.Symbol == symbol && c.SessionDate != "" && c.SessionDate == sessionDate
}

type Checkpointer interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context) (Checkpoint, error)
}

// FileCheckpointer stores the checkpoint as indented JSON.
type FileCheckpointer struct {
	path string
}

func NewFileCheckpointer(path string) *FileCheckpointer {
	return &FileCheckpointer{path: path}
}

func (f *FileCheckpointer) Save(_ context.Context, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, data, 0o644)
}

func (f *FileCheckpointer) Load(_ context.Context) (Checkpoint, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", f.path, err)
	}
	return cp, nil
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
