// Package timewindow holds the interval and timezone helpers shared by availability checks
// and reminder planning.
package timewindow

import (
	"strings"
	"time"
)

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start time.Time, durationMinutes int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether the two intervals share an instant. Containment, partial-start and
// partial-end overlaps all satisfy this one test; touching endpoints do not.
func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// OverlapsAny reports whether i overlaps any of the busy intervals.
func (i Interval) OverlapsAny(busy []Interval) bool {
	for _, b := range busy {
		if i.Overlaps(b) {
			return true
		}
	}
	return false
}

// Around returns [center-tolerance, center+tolerance].
func Around(center time.Time, tolerance time.Duration) Interval {
	return Interval{Start: center.Add(-tolerance), End: center.Add(tolerance)}
}

// ContainsInclusive reports Start <= t <= End.
func (i Interval) ContainsInclusive(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// LoadLocation resolves an IANA zone name, falling back to UTC for blank or unknown names.
func LoadLocation(name string) (*time.Location, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// DayBounds returns local midnight to next local midnight for the day containing t in loc.
// The result spans 23 or 25 hours across DST transitions.
func DayBounds(t time.Time, loc *time.Location) Interval {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}
