package outbox

import (
	"encoding/json"
	"fmt"
)

// Topics. The Kafka topic name equals the event type.
const (
	EventAppointmentBooked        = "booking.appointment.booked.v1"
	EventAppointmentRescheduled   = "booking.appointment.rescheduled.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventNotificationSent         = "notification.sent.v1"
	EventNotificationFailed       = "notification.failed.v1"
)

const (
	AggregateAppointment = "appointment"
	AggregateReminder    = "reminder_delivery"
)

// Event is the envelope written to outbox_events in the same transaction as the state change it announces.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
