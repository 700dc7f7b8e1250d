package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

// Scheduler is the booking surface the HTTP layer needs; *booking.Service implements it.
type Scheduler interface {
	Check(ctx context.Context, start time.Time, durationMinutes int, excludeID string) (availability.Decision, error)
	Slots(ctx context.Context, day time.Time, durationMinutes, stepMinutes int, now time.Time) ([]timewindow.Interval, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	Book(ctx context.Context, req booking.BookRequest) (model.Appointment, error)
	Reschedule(ctx context.Context, id string, start time.Time, durationMinutes int) (model.Appointment, error)
	SetStatus(ctx context.Context, id string, to model.Status) (model.Appointment, error)
	CreateBlocked(ctx context.Context, b model.BlockedInterval) (model.BlockedInterval, error)
	DeactivateBlocked(ctx context.Context, id string) error
	ListBlocked(ctx context.Context, from time.Time, limit int) ([]model.BlockedInterval, error)
	GetPolicy(ctx context.Context, clientID string) (model.ReminderPolicy, error)
	SavePolicy(ctx context.Context, p model.ReminderPolicy) (model.ReminderPolicy, error)
}

type Handler struct {
	svc      Scheduler
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func New(svc Scheduler, businessLoc *time.Location, logger *slog.Logger) *Handler {
	if businessLoc == nil {
		businessLoc = time.UTC
	}
	return &Handler{svc: svc, location: businessLoc, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/availability/check", h.Check)
	mux.HandleFunc("/v1/availability/slots", h.Slots)
	mux.HandleFunc("/v1/appointments", h.Appointments)
	mux.HandleFunc("/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/v1/appointments/status", h.SetStatus)
	mux.HandleFunc("/v1/blocked-intervals", h.BlockedIntervals)
	mux.HandleFunc("/v1/blocked-intervals/deactivate", h.DeactivateBlocked)
	mux.HandleFunc("/v1/reminder-policies", h.ReminderPolicy)
}

type appointmentResponse struct {
	AppointmentID   string `json:"appointment_id"`
	ClientID        string `json:"client_id"`
	ServiceName     string `json:"service_name"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:   a.ID,
		ClientID:        a.ClientID,
		ServiceName:     a.ServiceName,
		StartTime:       a.StartTime.UTC().Format(time.RFC3339),
		EndTime:         a.EndTime().UTC().Format(time.RFC3339),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Notes:           a.Notes,
	}
}

type checkRequest struct {
	StartTime            string `json:"start_time"`
	DurationMinutes      int    `json:"duration_minutes"`
	ExcludeAppointmentID string `json:"exclude_appointment_id"`
}

type checkResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req checkRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid start_time", "")
		return
	}
	decision, err := h.svc.Check(r.Context(), start, req.DurationMinutes, strings.TrimSpace(req.ExcludeAppointmentID))
	if err != nil {
		h.fail(w, "availability check", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Available: decision.Available, Reason: string(decision.Reason)})
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	day, err := time.ParseInLocation("2006-01-02", q.Get("date"), h.location)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", "")
		return
	}
	duration, err := strconv.Atoi(q.Get("duration_minutes"))
	if err != nil || duration <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "duration_minutes must be a positive integer", "")
		return
	}
	step := duration
	if raw := q.Get("step_minutes"); raw != "" {
		step, err = strconv.Atoi(raw)
		if err != nil || step <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "step_minutes must be a positive integer", "")
			return
		}
	}

	slots, err := h.svc.Slots(r.Context(), day, duration, step, h.now())
	if err != nil {
		h.fail(w, "list slots", err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: s.Start.UTC().Format(time.RFC3339), EndTime: s.End.UTC().Format(time.RFC3339)})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"date": q.Get("date"), "slots": items})
}

type bookRequest struct {
	ClientID        string `json:"client_id"`
	ServiceName     string `json:"service_name"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
	Status          string `json:"status"`
}

// Appointments serves GET ?appointment_id= reads and POST bookings.
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		h.Book(w, r)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required", "")
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.fail(w, "get appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req bookRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid start_time", "")
		return
	}
	var status model.Status
	if strings.TrimSpace(req.Status) != "" {
		if status, err = model.ParseStatus(req.Status); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		ClientID:        req.ClientID,
		ServiceName:     req.ServiceName,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Status:          status,
	})
	if err != nil {
		h.fail(w, "book appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	AppointmentID   string `json:"appointment_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required", "")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid start_time", "")
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), strings.TrimSpace(req.AppointmentID), start, req.DurationMinutes)
	if err != nil {
		h.fail(w, "reschedule appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	to, err := model.ParseStatus(req.Status)
	if err != nil || strings.TrimSpace(req.AppointmentID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id and a valid status are required", "")
		return
	}
	appt, err := h.svc.SetStatus(r.Context(), strings.TrimSpace(req.AppointmentID), to)
	if err != nil {
		h.fail(w, "update appointment status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// fail maps domain errors onto HTTP statuses; anything unrecognised is a logged 500.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var unavailable *booking.UnavailableError
	switch {
	case errors.As(err, &unavailable):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "requested time is not available", string(unavailable.Reason))
	case errors.Is(err, booking.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "slot was booked concurrently", string(availability.ReasonConflict))
	case errors.Is(err, booking.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, err.Error(), "invalid_transition")
	case errors.Is(err, booking.ErrUnknownClient):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "unknown client", "unknown_client")
	case errors.Is(err, booking.ErrInvalidRequest), errors.Is(err, model.ErrInvalidInterval):
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, storage.ErrInvalidID):
		httpx.WriteError(w, http.StatusBadRequest, "malformed id", "invalid_id")
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found", "")
	default:
		h.logger.Error(op+" failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	return false
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body", "")
		return false
	}
	return true
}
