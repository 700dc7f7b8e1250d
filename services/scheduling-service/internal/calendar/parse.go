package calendar

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func ParseWeekday(raw string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", raw)
	}
	return d, nil
}

func ParseWeekdays(raw []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(raw))
	for _, r := range raw {
		d, err := ParseWeekday(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseHours parses "09:00-17:00".
func ParseHours(raw string) (Hours, error) {
	open, closeAt, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return Hours{}, fmt.Errorf("invalid hours %q (want HH:MM-HH:MM)", raw)
	}
	o, err := ParseClock(open)
	if err != nil {
		return Hours{}, err
	}
	c, err := ParseClock(closeAt)
	if err != nil {
		return Hours{}, err
	}
	return Hours{Open: o, Close: c}, nil
}

// UniformWeek applies the same hours to all seven days, then layers per-day overrides
// written as "mon=09:00-17:00,sat=10:00-14:00".
func UniformWeek(def Hours, overrides string) (map[time.Weekday]Hours, error) {
	week := make(map[time.Weekday]Hours, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		week[d] = def
	}
	for _, entry := range strings.Split(overrides, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hours, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid business hours entry %q", entry)
		}
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		h, err := ParseHours(hours)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		week[day] = h
	}
	return week, nil
}
