// Package reminders decides which reminder deliveries are due at a given instant.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

const DefaultTolerance = 30 * time.Minute

type AppointmentRepository interface {
	// FindConfirmedInWindow returns confirmed appointments starting within [start, end].
	FindConfirmedInWindow(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
}

type PolicyResolver interface {
	Resolve(ctx context.Context, clientID string) policy.Resolved
}

type SentLookup interface {
	SentKeys(ctx context.Context, appointmentIDs []string) (map[model.LedgerKey]struct{}, error)
}

type Planner struct {
	appts     AppointmentRepository
	policies  PolicyResolver
	sent      SentLookup
	tolerance time.Duration
	logger    *slog.Logger
}

func NewPlanner(appts AppointmentRepository, policies PolicyResolver, sent SentLookup, tolerance time.Duration, logger *slog.Logger) *Planner {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Planner{appts: appts, policies: policies, sent: sent, tolerance: tolerance, logger: logger}
}

// DueWindow is the start-time window an appointment must fall in for offset o to be due at now.
func (p *Planner) DueWindow(now time.Time, o model.OffsetType) timewindow.Interval {
	return timewindow.Around(now.Add(o.Lead()), p.tolerance)
}

// CollectDue returns one task per (appointment, offset, channel) that is due at now and has
// no successful delivery on record. It is read only; exclusivity is the ledger's job.
func (p *Planner) CollectDue(ctx context.Context, now time.Time) ([]model.ReminderTask, error) {
	type candidate struct {
		appt   model.Appointment
		offset model.OffsetType
	}
	var candidates []candidate
	ids := map[string]bool{}

	for _, o := range model.OffsetTypes {
		window := p.DueWindow(now, o)
		appts, err := p.appts.FindConfirmedInWindow(ctx, window.Start, window.End)
		if err != nil {
			return nil, fmt.Errorf("find appointments due for %s reminder: %w", o, err)
		}
		for _, a := range appts {
			if a.Status != model.StatusConfirmed || !window.ContainsInclusive(a.StartTime) {
				continue
			}
			candidates = append(candidates, candidate{appt: a, offset: o})
			ids[a.ID] = true
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	sort.Strings(idList)
	sent, err := p.sent.SentKeys(ctx, idList)
	if err != nil {
		return nil, fmt.Errorf("load sent reminders: %w", err)
	}

	resolved := map[string]policy.Resolved{}
	var tasks []model.ReminderTask
	for _, c := range candidates {
		pol, ok := resolved[c.appt.ClientID]
		if !ok {
			pol = p.policies.Resolve(ctx, c.appt.ClientID)
			resolved[c.appt.ClientID] = pol
		}
		if !pol.OffsetEnabled(c.offset) {
			continue
		}
		for _, ch := range pol.Channels {
			task := model.ReminderTask{
				Appointment: c.appt,
				Client:      pol.Client,
				Offset:      c.offset,
				Channel:     ch,
				Recipient:   ch.Recipient(pol.Client),
				Location:    pol.Location,
			}
			if _, done := sent[task.Key()]; done {
				continue
			}
			tasks = append(tasks, task)
		}
	}

	p.logger.Debug("reminder plan", "candidates", len(candidates), "tasks", len(tasks), "now", now.UTC())
	return tasks, nil
}
