package market

import (
	"fmt"
	"time"
)

// TimeWindow is a daily wall-clock interval such as "07:25"-"07:45".
// Both ends are inclusive; a window whose end is before its start wraps
// past midnight.
type TimeWindow struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

func (w TimeWindow) Validate() error {
	if _, err := parseClock(w.Start); err != nil {
		return err
	}
	_, err := parseClock(w.End)
	return err
}

// Contains reports whether t, viewed in loc, falls inside the window.
// Malformed windows contain nothing.
func (w TimeWindow) Contains(t time.Time, loc *time.Location) bool {
	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	if end < start {
		return tod >= start || tod <= end
	}
	return tod >= start && tod <= end
}

func (w TimeWindow) String() string {
	return w.Start + "-" + w.End
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
