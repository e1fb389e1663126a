package decision

import (
	"errors"
	"sync"
	"time"
)

// MinRequestGap is the shortest allowed interval between two dispatches.
const MinRequestGap = 100 * time.Millisecond

var (
	ErrInFlight = errors.New("request_in_flight")
	ErrTooSoon  = errors.New("min_gap_not_elapsed")
)

// Gate admits at most one outstanding request and spaces request starts by
// at least minGap.
type Gate struct {
	mu            sync.Mutex
	minGap        time.Duration
	now           func() time.Time
	inFlight      bool
	lastRequestAt time.Time
}

func NewGate(minGap time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{minGap: minGap, now: now}
}

// TryAcquire checks and claims the gate in one step. On success the gate is
// in flight until Release.
func (g *Gate) TryAcquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return ErrInFlight
	}
	now := g.now()
	if !g.lastRequestAt.IsZero() && now.Sub(g.lastRequestAt) < g.minGap {
		return ErrTooSoon
	}
	g.inFlight = true
	g.lastRequestAt = now
	return nil
}

func (g *Gate) Release() {
	g.mu.Lock()
	g.inFlight = false
	g.mu.Unlock()
}

func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *Gate) LastRequestAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRequestAt
}
