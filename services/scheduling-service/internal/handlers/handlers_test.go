package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

type fakeScheduler struct {
	decision  availability.Decision
	bookErr   error
	booked    booking.BookRequest
	slots     []timewindow.Interval
	slotDay   time.Time
	statusErr error
	blocked   []model.BlockedInterval
	policy    model.ReminderPolicy
}

func (f *fakeScheduler) Check(context.Context, time.Time, int, string) (availability.Decision, error) {
	return f.decision, nil
}

func (f *fakeScheduler) Slots(_ context.Context, day time.Time, _, _ int, _ time.Time) ([]timewindow.Interval, error) {
	f.slotDay = day
	return f.slots, nil
}

func (f *fakeScheduler) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	switch id {
	case "11111111-1111-1111-1111-111111111111":
		return model.Appointment{ID: id, ClientID: "c1", ServiceName: "cut", StartTime: time.Date(2024, 3, 20, 14, 0, 0, 0, time.UTC), DurationMinutes: 30, Status: model.StatusConfirmed}, nil
	case "not-a-uuid":
		return model.Appointment{}, fmt.Errorf("get appointment: %w %q", storage.ErrInvalidID, id)
	}
	return model.Appointment{}, fmt.Errorf("get appointment: %w", storage.ErrNotFound)
}

func (f *fakeScheduler) Book(_ context.Context, req booking.BookRequest) (model.Appointment, error) {
	f.booked = req
	if f.bookErr != nil {
		return model.Appointment{}, f.bookErr
	}
	return model.Appointment{ID: "appt-1", ClientID: req.ClientID, ServiceName: req.ServiceName, StartTime: req.Start, DurationMinutes: req.DurationMinutes, Status: model.StatusConfirmed}, nil
}

func (f *fakeScheduler) Reschedule(_ context.Context, id string, start time.Time, d int) (model.Appointment, error) {
	return model.Appointment{ID: id, StartTime: start, DurationMinutes: d, Status: model.StatusConfirmed}, nil
}

func (f *fakeScheduler) SetStatus(_ context.Context, id string, to model.Status) (model.Appointment, error) {
	if f.statusErr != nil {
		return model.Appointment{}, f.statusErr
	}
	return model.Appointment{ID: id, Status: to}, nil
}

func (f *fakeScheduler) CreateBlocked(_ context.Context, b model.BlockedInterval) (model.BlockedInterval, error) {
	if err := b.Validate(); err != nil {
		return model.BlockedInterval{}, err
	}
	b.ID, b.Active = "blk-1", true
	return b, nil
}

func (f *fakeScheduler) DeactivateBlocked(_ context.Context, id string) error {
	if id != "blk-1" {
		return fmt.Errorf("deactivate: %w", storage.ErrNotFound)
	}
	return nil
}

func (f *fakeScheduler) ListBlocked(context.Context, time.Time, int) ([]model.BlockedInterval, error) {
	return f.blocked, nil
}

func (f *fakeScheduler) GetPolicy(_ context.Context, clientID string) (model.ReminderPolicy, error) {
	return model.DefaultReminderPolicy(clientID), nil
}

func (f *fakeScheduler) SavePolicy(_ context.Context, p model.ReminderPolicy) (model.ReminderPolicy, error) {
	f.policy = p
	return p, nil
}

func newServer(f *fakeScheduler) *http.ServeMux {
	h := New(f, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestCheckReportsReason(t *testing.T) {
	mux := newServer(&fakeScheduler{decision: availability.Decision{Reason: availability.ReasonConflict}})
	rec, out := do(t, mux, http.MethodPost, "/v1/availability/check", `{"start_time":"2024-03-20T10:30:00Z","duration_minutes":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if out["available"] != false || out["reason"] != "conflict" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestBookMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		reason string
	}{
		{"unavailable", fmt.Errorf("book: %w", &booking.UnavailableError{Reason: availability.ReasonOutsideBusinessHours}), http.StatusUnprocessableEntity, "outside_business_hours"},
		{"race", fmt.Errorf("book: %w", booking.ErrConflict), http.StatusConflict, "conflict"},
		{"client", fmt.Errorf("book: %w", booking.ErrUnknownClient), http.StatusUnprocessableEntity, "unknown_client"},
		{"invalid", fmt.Errorf("book: %w", booking.ErrInvalidRequest), http.StatusBadRequest, ""},
		{"infra", errors.New("connection reset"), http.StatusInternalServerError, ""},
	}
	body := `{"client_id":"c1","service_name":"Haircut","start_time":"2024-03-20T16:45:00Z","duration_minutes":30}`
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, out := do(t, newServer(&fakeScheduler{bookErr: tc.err}), http.MethodPost, "/v1/appointments", body)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if tc.reason != "" && out["reason"] != tc.reason {
				t.Fatalf("expected reason %q, got %v", tc.reason, out)
			}
		})
	}
}

func TestBookCreates(t *testing.T) {
	f := &fakeScheduler{}
	rec, out := do(t, newServer(f), http.MethodPost, "/v1/appointments",
		`{"client_id":"c1","service_name":"Haircut","start_time":"2024-03-20T11:00:00Z","duration_minutes":30,"status":"pending"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if out["end_time"] != "2024-03-20T11:30:00Z" {
		t.Fatalf("unexpected end_time: %v", out)
	}
	if f.booked.Status != model.StatusPending || f.booked.DurationMinutes != 30 {
		t.Fatalf("request not forwarded: %+v", f.booked)
	}
}

func TestBookRejectsBadInput(t *testing.T) {
	mux := newServer(&fakeScheduler{})
	for _, body := range []string{
		`{"client_id":"c1","start_time":"tomorrow","duration_minutes":30}`,
		`{"client_id":"c1","start_time":"2024-03-20T11:00:00Z","status":"maybe"}`,
		`{"unexpected":true}`,
	} {
		if rec, _ := do(t, mux, http.MethodPost, "/v1/appointments", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	if rec, _ := do(t, mux, http.MethodGet, "/v1/appointments", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSlotsParsesDayInBusinessZone(t *testing.T) {
	start := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	f := &fakeScheduler{slots: []timewindow.Interval{timewindow.New(start, 30)}}
	rec, out := do(t, newServer(f), http.MethodGet, "/v1/availability/slots?date=2024-03-20&duration_minutes=30", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !f.slotDay.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day: %s", f.slotDay)
	}
	slots, _ := out["slots"].([]any)
	if len(slots) != 1 {
		t.Fatalf("expected one slot, got %v", out)
	}

	if rec, _ := do(t, newServer(f), http.MethodGet, "/v1/availability/slots?date=20-03-2024&duration_minutes=30", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestStatusTransitionConflict(t *testing.T) {
	f := &fakeScheduler{statusErr: fmt.Errorf("x: %w", booking.ErrInvalidTransition)}
	rec, out := do(t, newServer(f), http.MethodPost, "/v1/appointments/status", `{"appointment_id":"appt-1","status":"completed"}`)
	if rec.Code != http.StatusConflict || out["reason"] != "invalid_transition" {
		t.Fatalf("expected 409 invalid_transition, got %d %v", rec.Code, out)
	}
}

func TestBlockedIntervalLifecycle(t *testing.T) {
	mux := newServer(&fakeScheduler{})
	rec, out := do(t, mux, http.MethodPost, "/v1/blocked-intervals", `{"start_time":"2024-03-20T12:00:00Z","end_time":"2024-03-20T16:00:00Z","reason":"staff training"}`)
	if rec.Code != http.StatusCreated || out["id"] != "blk-1" {
		t.Fatalf("create: %d %v", rec.Code, out)
	}
	rec, _ = do(t, mux, http.MethodPost, "/v1/blocked-intervals", `{"start_time":"2024-03-20T16:00:00Z","end_time":"2024-03-20T12:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted interval: expected 400, got %d", rec.Code)
	}
	if rec, _ := do(t, mux, http.MethodPost, "/v1/blocked-intervals/deactivate", `{"id":"blk-1"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: expected 204, got %d", rec.Code)
	}
	if rec, _ := do(t, mux, http.MethodPost, "/v1/blocked-intervals/deactivate", `{"id":"missing"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("deactivate missing: expected 404, got %d", rec.Code)
	}
}

func TestReminderPolicyRoundTrip(t *testing.T) {
	f := &fakeScheduler{}
	mux := newServer(f)
	rec, out := do(t, mux, http.MethodGet, "/v1/reminder-policies?client_id=c1", "")
	if rec.Code != http.StatusOK || out["remind_24h"] != true {
		t.Fatalf("get: %d %v", rec.Code, out)
	}
	rec, _ = do(t, mux, http.MethodPut, "/v1/reminder-policies", `{"client_id":"c1","remind_24h":true,"channels":["sms","whatsapp"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: %d %s", rec.Code, rec.Body)
	}
	if len(f.policy.Channels) != 2 || f.policy.Timezone != "UTC" {
		t.Fatalf("unexpected saved policy: %+v", f.policy)
	}
	if rec, _ := do(t, mux, http.MethodPut, "/v1/reminder-policies", `{"client_id":"c1","channels":["fax"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown channel: expected 400, got %d", rec.Code)
	}
}

func TestGetAppointment(t *testing.T) {
	mux := newServer(&fakeScheduler{})
	rec, out := do(t, mux, http.MethodGet, "/v1/appointments?appointment_id=11111111-1111-1111-1111-111111111111", "")
	if rec.Code != http.StatusOK || out["client_id"] != "c1" || out["status"] != "confirmed" {
		t.Fatalf("get: %d %v", rec.Code, out)
	}
	rec, _ = do(t, mux, http.MethodGet, "/v1/appointments?appointment_id=22222222-2222-2222-2222-222222222222", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", rec.Code)
	}
	rec, out = do(t, mux, http.MethodGet, "/v1/appointments?appointment_id=not-a-uuid", "")
	if rec.Code != http.StatusBadRequest || out["reason"] != "invalid_id" {
		t.Fatalf("malformed id: expected 400 invalid_id, got %d %v", rec.Code, out)
	}
	if rec, _ := do(t, mux, http.MethodGet, "/v1/appointments", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400, got %d", rec.Code)
	}
	if rec, _ := do(t, mux, http.MethodDelete, "/v1/appointments", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete: expected 405, got %d", rec.Code)
	}
}
