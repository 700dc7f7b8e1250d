// Package policy resolves a client's effective reminder preferences.
package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

type Repository interface {
	// Get returns nil, nil when the client has no stored policy.
	Get(ctx context.Context, clientID string) (*model.ReminderPolicy, error)
}

type ClientRepository interface {
	Get(ctx context.Context, clientID string) (model.Client, error)
}

// Resolved is the effective policy for one client. Channels only contains channels the
// client has contact details for.
type Resolved struct {
	Client    model.Client
	Offsets   map[model.OffsetType]bool
	Channels  []model.Channel
	Location  *time.Location
	Defaulted bool
}

func (r Resolved) OffsetEnabled(o model.OffsetType) bool {
	return r.Offsets[o]
}

type Resolver struct {
	policies Repository
	clients  ClientRepository
	fallback *time.Location
	logger   *slog.Logger
}

// NewResolver uses fallbackLoc (the business timezone) for clients without a valid timezone.
func NewResolver(policies Repository, clients ClientRepository, fallbackLoc *time.Location, logger *slog.Logger) *Resolver {
	if fallbackLoc == nil {
		fallbackLoc = time.UTC
	}
	return &Resolver{policies: policies, clients: clients, fallback: fallbackLoc, logger: logger}
}

// Resolve never fails: lookup errors and missing rows degrade to defaults, because a missing
// preference row must not cancel a reminder. Only an explicit NotificationsDisabled flag
// yields zero channels for a reachable client.
func (r *Resolver) Resolve(ctx context.Context, clientID string) Resolved {
	client, err := r.clients.Get(ctx, clientID)
	if err != nil {
		r.logger.Warn("client lookup failed; reminders cannot be addressed", "client_id", clientID, "err", err)
		client = model.Client{ID: clientID}
	}

	stored, err := r.policies.Get(ctx, clientID)
	if err != nil {
		r.logger.Warn("reminder policy lookup failed; using defaults", "client_id", clientID, "err", err)
		stored = nil
	}

	if stored == nil {
		def := model.DefaultReminderPolicy(clientID)
		res := r.build(client, def)
		res.Defaulted = true
		return res
	}
	if stored.NotificationsDisabled {
		return Resolved{
			Client:   client,
			Offsets:  map[model.OffsetType]bool{},
			Location: r.location(stored.Timezone),
		}
	}
	return r.build(client, *stored)
}

func (r *Resolver) build(client model.Client, p model.ReminderPolicy) Resolved {
	offsets := make(map[model.OffsetType]bool, len(model.OffsetTypes))
	for _, o := range model.OffsetTypes {
		if p.OffsetEnabled(o) {
			offsets[o] = true
		}
	}

	channels := reachable(client, p.Channels)
	if len(channels) == 0 {
		if c, ok := DefaultChannel(client); ok {
			channels = []model.Channel{c}
		} else {
			r.logger.Warn("client has no contact details; no reminder channel available", "client_id", client.ID)
		}
	}

	return Resolved{
		Client:   client,
		Offsets:  offsets,
		Channels: channels,
		Location: r.location(p.Timezone),
	}
}

func (r *Resolver) location(name string) *time.Location {
	if loc, ok := timewindow.LoadLocation(name); ok {
		return loc
	}
	return r.fallback
}

// DefaultChannel is email when the client has an address, otherwise SMS when it has a phone.
func DefaultChannel(client model.Client) (model.Channel, bool) {
	if model.ChannelEmail.Recipient(client) != "" {
		return model.ChannelEmail, true
	}
	if model.ChannelSMS.Recipient(client) != "" {
		return model.ChannelSMS, true
	}
	return "", false
}

func reachable(client model.Client, enabled []model.Channel) []model.Channel {
	seen := make(map[model.Channel]bool, len(enabled))
	var out []model.Channel
	for _, c := range enabled {
		if seen[c] || c.Recipient(client) == "" {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
