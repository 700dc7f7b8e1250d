// Package calendar answers whether a slot falls inside the business's opening hours.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

// Clock is a time of day as an offset from local midnight.
type Clock time.Duration

func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return Clock(24 * time.Hour), nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", raw)
	}
	return Clock(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

func (c Clock) String() string {
	d := time.Duration(c)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func clockOf(t time.Time) Clock {
	return Clock(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond()))
}

// Hours is one day's opening window, inclusive at both ends.
type Hours struct {
	Open  Clock
	Close Clock
}

func (h Hours) contains(c Clock) bool {
	return c >= h.Open && c <= h.Close
}

type Config struct {
	Location   *time.Location
	Weekly     map[time.Weekday]Hours
	ClosedDays []time.Weekday
}

// Calendar is read-only after construction and safe for concurrent use.
type Calendar struct {
	loc    *time.Location
	weekly map[time.Weekday]Hours
	closed map[time.Weekday]bool
}

func New(cfg Config) (*Calendar, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{
		loc:    loc,
		weekly: make(map[time.Weekday]Hours, len(cfg.Weekly)),
		closed: make(map[time.Weekday]bool, len(cfg.ClosedDays)),
	}
	for day, h := range cfg.Weekly {
		if h.Close <= h.Open {
			return nil, fmt.Errorf("%s: close %s must be after open %s", day, h.Close, h.Open)
		}
		c.weekly[day] = h
	}
	for _, day := range cfg.ClosedDays {
		c.closed[day] = true
	}
	return c, nil
}

// Location is the business timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// HoursFor returns the opening hours for a weekday; false on non-working days.
func (c *Calendar) HoursFor(day time.Weekday) (Hours, bool) {
	if c.closed[day] {
		return Hours{}, false
	}
	h, ok := c.weekly[day]
	return h, ok
}

// IsWithinBusinessHours reports whether [instant, instant+duration] sits inside one day's
// opening hours in loc. Both endpoints are inclusive, so a slot ending exactly at closing
// time is admissible. Slots that cross local midnight are rejected.
func (c *Calendar) IsWithinBusinessHours(instant time.Time, durationMinutes int, loc *time.Location) bool {
	if durationMinutes <= 0 {
		return false
	}
	if loc == nil {
		loc = c.loc
	}
	start := instant.In(loc)
	hours, ok := c.HoursFor(start.Weekday())
	if !ok {
		return false
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	endClock := clockOf(end)
	if !sameDay(start, end) {
		// Only a close of 24:00 admits a slot ending exactly at the next midnight.
		if endClock != 0 || hours.Close != Clock(24*time.Hour) || !sameDay(start, end.Add(-time.Nanosecond)) {
			return false
		}
		endClock = Clock(24 * time.Hour)
	}
	return hours.contains(clockOf(start)) && hours.contains(endClock)
}

// OpenWindow returns the absolute opening interval on the local day containing t.
func (c *Calendar) OpenWindow(t time.Time) (timewindow.Interval, bool) {
	day := timewindow.DayBounds(t, c.loc)
	hours, ok := c.HoursFor(day.Start.Weekday())
	if !ok {
		return timewindow.Interval{}, false
	}
	return timewindow.Interval{
		Start: atClock(day.Start, hours.Open),
		End:   atClock(day.Start, hours.Close),
	}, true
}

func atClock(midnight time.Time, c Clock) time.Time {
	d := time.Duration(c)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(),
		int(d/time.Hour), int(d%time.Hour/time.Minute), 0, 0, midnight.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
