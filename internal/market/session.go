package market

import (
	"fmt"
	"time"
)

const SessionDateLayout = "2006-01-02"

// SessionClock maps timestamps to trading session dates. The date advances
// at Rollover local time, so with a 17:00 rollover an evening tick belongs to
// the next calendar day's session.
type SessionClock struct {
	loc      *time.Location
	rollover time.Duration
}

func NewSessionClock(tz string, rollover time.Duration) (SessionClock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return SessionClock{}, fmt.Errorf("load session timezone %q: %w", tz, err)
	}
	if rollover < 0 || rollover >= 24*time.Hour {
		return SessionClock{}, fmt.Errorf("session rollover must be within a day, got %s", rollover)
	}
	return SessionClock{loc: loc, rollover: rollover}, nil
}

// UTCSessionClock starts sessions at UTC midnight.
func UTCSessionClock() SessionClock {
	return SessionClock{loc: time.UTC}
}

func (c SessionClock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// SessionStart returns the local time at which the session containing t
// began.
func (c SessionClock) SessionStart(t time.Time) time.Time {
	local := t.In(c.Location())
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.Location()).Add(c.rollover)
	if local.Before(start) {
		start = time.Date(y, m, d-1, 0, 0, 0, 0, c.Location()).Add(c.rollover)
	}
	return start
}

// SessionDate formats the session containing t as YYYY-MM-DD.
func (c SessionClock) SessionDate(t time.Time) string {
	start := c.SessionStart(t)
	if c.rollover == 0 {
		return start.Format(SessionDateLayout)
	}
	y, m, d := start.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.Location()).Format(SessionDateLayout)
}

func (c SessionClock) SameSession(a, b time.Time) bool {
	return c.SessionDate(a) == c.SessionDate(b)
}
