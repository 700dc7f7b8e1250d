package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

// FreeSlots lists bookable slots of the given length on the local business day containing day,
// stepping from opening time. Slots starting before now are skipped.
func (c *Checker) FreeSlots(ctx context.Context, day time.Time, durationMinutes, stepMinutes int, now time.Time) ([]timewindow.Interval, error) {
	window, ok := c.calendar.OpenWindow(day)
	if !ok {
		return nil, nil
	}

	blocks, err := c.blocked.ActiveIntervalsFor(ctx, window.Start, c.calendar.Location())
	if err != nil {
		return nil, err
	}
	appts, err := c.appts.FindOverlapping(ctx, window.Start, window.End, "")
	if err != nil {
		return nil, fmt.Errorf("load day appointments: %w", err)
	}

	busy := make([]timewindow.Interval, 0, len(blocks)+len(appts))
	for _, b := range blocks {
		busy = append(busy, timewindow.Interval{Start: b.Start, End: b.End})
	}
	for _, a := range appts {
		if a.Status.BlocksTime() {
			busy = append(busy, timewindow.Interval{Start: a.StartTime, End: a.EndTime()})
		}
	}

	var slots []timewindow.Interval
	for _, start := range candidateStarts(window, time.Duration(durationMinutes)*time.Minute, time.Duration(stepMinutes)*time.Minute, busy, now) {
		if c.calendar.IsWithinBusinessHours(start, durationMinutes, c.calendar.Location()) {
			slots = append(slots, timewindow.New(start, durationMinutes))
		}
	}
	return slots, nil
}

// candidateStarts returns slot starts within window where a booking of length duration fits
// and overlaps none of busy.
func candidateStarts(window timewindow.Interval, duration, step time.Duration, busy []timewindow.Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 || !window.Valid() {
		return nil
	}
	var starts []time.Time
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !(timewindow.Interval{Start: t, End: t.Add(duration)}).OverlapsAny(busy) {
			starts = append(starts, t)
		}
	}
	return starts
}
