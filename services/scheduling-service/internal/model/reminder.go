package model

import (
	"fmt"
	"strings"
	"time"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Channels is the canonical iteration order.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}

func ParseChannel(raw string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(raw))); c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel %q", raw)
	}
}

// Recipient picks the contact field a channel delivers to; empty when the client has none.
func (c Channel) Recipient(client Client) string {
	switch c {
	case ChannelEmail:
		return strings.TrimSpace(client.Email)
	case ChannelSMS, ChannelWhatsApp:
		return strings.TrimSpace(client.Phone)
	default:
		return ""
	}
}

type OffsetType string

const (
	Offset24h OffsetType = "24h"
	Offset2h  OffsetType = "2h"
)

// OffsetTypes is the set of reminder lead times every sweep evaluates.
var OffsetTypes = []OffsetType{Offset24h, Offset2h}

func ParseOffsetType(raw string) (OffsetType, error) {
	switch o := OffsetType(strings.ToLower(strings.TrimSpace(raw))); o {
	case Offset24h, Offset2h:
		return o, nil
	default:
		return "", fmt.Errorf("unknown reminder offset %q", raw)
	}
}

func (o OffsetType) Lead() time.Duration {
	switch o {
	case Offset24h:
		return 24 * time.Hour
	case Offset2h:
		return 2 * time.Hour
	default:
		return 0
	}
}

// ReminderPolicy is a client's stored reminder preferences.
type ReminderPolicy struct {
	ClientID              string
	Remind24h             bool
	Remind2h              bool
	Channels              []Channel
	Timezone              string
	NotificationsDisabled bool
	UpdatedAt             time.Time
}

func (p ReminderPolicy) OffsetEnabled(o OffsetType) bool {
	switch o {
	case Offset24h:
		return p.Remind24h
	case Offset2h:
		return p.Remind2h
	default:
		return false
	}
}

// DefaultReminderPolicy is what a freshly created client gets.
func DefaultReminderPolicy(clientID string) ReminderPolicy {
	return ReminderPolicy{
		ClientID:  clientID,
		Remind24h: true,
		Remind2h:  true,
		Timezone:  "UTC",
	}
}

// LedgerKey identifies one reminder delivery: at most one successful send exists per key.
type LedgerKey struct {
	AppointmentID string
	Offset        OffsetType
	Channel       Channel
}

func (k LedgerKey) String() string {
	return k.AppointmentID + "|" + string(k.Offset) + "|" + string(k.Channel)
}

// ReminderTask is one (appointment, offset, channel) delivery the planner found due.
type ReminderTask struct {
	Appointment Appointment
	Client      Client
	Offset      OffsetType
	Channel     Channel
	Recipient   string
	Location    *time.Location
}

func (t ReminderTask) Key() LedgerKey {
	return LedgerKey{AppointmentID: t.Appointment.ID, Offset: t.Offset, Channel: t.Channel}
}
