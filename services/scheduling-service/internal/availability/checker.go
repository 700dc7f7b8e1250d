// Package availability decides whether a candidate slot can be booked.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonOutsideBusinessHours Reason = "outside_business_hours"
	ReasonBlocked              Reason = "blocked"
	ReasonConflict             Reason = "conflict"
)

// Decision is a domain answer, not an error: a rejected slot has nothing to retry.
type Decision struct {
	Available bool
	Reason    Reason
}

func available() Decision { return Decision{Available: true} }

func rejected(r Reason) Decision { return Decision{Reason: r} }

type AppointmentRepository interface {
	// FindOverlapping returns non-cancelled appointments overlapping [start, end), skipping excludeID.
	FindOverlapping(ctx context.Context, start, end time.Time, excludeID string) ([]model.Appointment, error)
}

type Checker struct {
	calendar *calendar.Calendar
	blocked  *BlockedIndex
	appts    AppointmentRepository
}

func NewChecker(cal *calendar.Calendar, blocked *BlockedIndex, appts AppointmentRepository) *Checker {
	return &Checker{calendar: cal, blocked: blocked, appts: appts}
}

// IsAvailable runs the cheap checks first: business hours, then blackouts, then existing
// appointments. excludeID is the appointment being rescheduled, so it never conflicts with itself.
// It must be re-run on every change to start time or duration.
func (c *Checker) IsAvailable(ctx context.Context, start time.Time, durationMinutes int, excludeID string) (Decision, error) {
	if !c.calendar.IsWithinBusinessHours(start, durationMinutes, c.calendar.Location()) {
		return rejected(ReasonOutsideBusinessHours), nil
	}

	slot := timewindow.New(start, durationMinutes)
	blocked, err := c.blocked.Overlaps(ctx, slot.Start, slot.End)
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		return rejected(ReasonBlocked), nil
	}

	conflicts, err := c.conflicting(ctx, slot, excludeID)
	if err != nil {
		return Decision{}, err
	}
	if len(conflicts) > 0 {
		return rejected(ReasonConflict), nil
	}
	return available(), nil
}

func (c *Checker) conflicting(ctx context.Context, slot timewindow.Interval, excludeID string) ([]model.Appointment, error) {
	rows, err := c.appts.FindOverlapping(ctx, slot.Start, slot.End, excludeID)
	if err != nil {
		return nil, fmt.Errorf("load overlapping appointments: %w", err)
	}
	var out []model.Appointment
	for _, a := range rows {
		if a.ID == excludeID && excludeID != "" {
			continue
		}
		if !a.Status.BlocksTime() {
			continue
		}
		if slot.Overlaps(timewindow.Interval{Start: a.StartTime, End: a.EndTime()}) {
			out = append(out, a)
		}
	}
	return out, nil
}
