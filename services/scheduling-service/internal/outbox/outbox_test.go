package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
)

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent(AggregateAppointment, "appt-1", EventAppointmentBooked, map[string]any{"status": "confirmed"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(evt.Payload, &got); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if got["status"] != "confirmed" || evt.AggregateID != "appt-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if _, err := NewEvent(AggregateAppointment, "appt-1", EventAppointmentBooked, make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestMessageUsesEventTypeAsTopic(t *testing.T) {
	msg := Message(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   EventNotificationSent,
		Payload:     []byte(`{}`),
	})
	if msg.Topic != EventNotificationSent || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != EventNotificationSent {
		t.Fatalf("unexpected headers: %+v", meta)
	}
}
