// Package booking applies appointment and blackout changes transactionally, re-checking
// availability inside the write transaction and announcing changes through the outbox.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

var (
	// ErrConflict is a concurrent booking caught by the storage exclusion constraint.
	ErrConflict          = errors.New("slot already booked")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownClient     = errors.New("unknown client")
	ErrInvalidRequest    = errors.New("invalid request")
)

// UnavailableError carries the availability checker's rejection reason.
type UnavailableError struct {
	Reason availability.Reason
}

func (e *UnavailableError) Error() string {
	return "slot unavailable: " + string(e.Reason)
}

type BookRequest struct {
	ClientID        string
	ServiceName     string
	Start           time.Time
	DurationMinutes int
	Notes           string
	Status          model.Status
}

type Service struct {
	pool     *db.Pool
	calendar *calendar.Calendar
	appts    *storage.AppointmentRepository
	blocked  *storage.BlockedIntervalRepository
	policies *storage.ReminderPolicyRepository
	outbox   *outbox.Repository
	checker  *availability.Checker
	logger   *slog.Logger
}

func NewService(pool *db.Pool, cal *calendar.Calendar, outboxRepo *outbox.Repository, logger *slog.Logger) *Service {
	appts := storage.NewAppointmentRepository(pool)
	blocked := storage.NewBlockedIntervalRepository(pool)
	return &Service{
		pool:     pool,
		calendar: cal,
		appts:    appts,
		blocked:  blocked,
		policies: storage.NewReminderPolicyRepository(pool),
		outbox:   outboxRepo,
		checker:  availability.NewChecker(cal, availability.NewBlockedIndex(blocked), appts),
		logger:   logger,
	}
}

// checkerFor binds a checker to tx so the check sees the transaction's snapshot.
func (s *Service) checkerFor(tx pgx.Tx) (*availability.Checker, *storage.AppointmentRepository) {
	appts := s.appts.WithTx(tx)
	blocked := availability.NewBlockedIndex(s.blocked.WithTx(tx))
	return availability.NewChecker(s.calendar, blocked, appts), appts
}

func (s *Service) Check(ctx context.Context, start time.Time, durationMinutes int, excludeID string) (availability.Decision, error) {
	if durationMinutes <= 0 {
		return availability.Decision{}, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	return s.checker.IsAvailable(ctx, start, durationMinutes, excludeID)
}

func (s *Service) Slots(ctx context.Context, day time.Time, durationMinutes, stepMinutes int, now time.Time) ([]timewindow.Interval, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if stepMinutes <= 0 {
		stepMinutes = durationMinutes
	}
	return s.checker.FreeSlots(ctx, day, durationMinutes, stepMinutes, now)
}

func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	if req.ClientID == "" || req.ServiceName == "" || req.DurationMinutes <= 0 {
		return model.Appointment{}, fmt.Errorf("%w: client_id, service_name and a positive duration are required", ErrInvalidRequest)
	}
	if req.Status == "" {
		req.Status = model.StatusConfirmed
	}
	if req.Status != model.StatusPending && req.Status != model.StatusConfirmed {
		return model.Appointment{}, fmt.Errorf("%w: new appointments must be pending or confirmed", ErrInvalidRequest)
	}

	appt := model.Appointment{
		ClientID:        req.ClientID,
		ServiceName:     req.ServiceName,
		StartTime:       req.Start.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          req.Status,
		Notes:           strings.TrimSpace(req.Notes),
	}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		checker, appts := s.checkerFor(tx)
		if err := requireAvailable(ctx, checker, appt.StartTime, appt.DurationMinutes, ""); err != nil {
			return err
		}
		if err := appts.Insert(ctx, &appt); err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.EventAppointmentBooked, appt, nil)
	})
	if err != nil {
		return model.Appointment{}, classify("book appointment", err)
	}
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "client_id", appt.ClientID, "start", appt.StartTime)
	return appt, nil
}

// Reschedule moves an active appointment, re-running the availability check against
// everything except itself.
func (s *Service) Reschedule(ctx context.Context, id string, start time.Time, durationMinutes int) (model.Appointment, error) {
	var updated model.Appointment
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		checker, appts := s.checkerFor(tx)
		current, err := appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != model.StatusPending && current.Status != model.StatusConfirmed {
			return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, current.Status)
		}
		if durationMinutes <= 0 {
			durationMinutes = current.DurationMinutes
		}
		start = start.UTC()
		if err := requireAvailable(ctx, checker, start, durationMinutes, id); err != nil {
			return err
		}
		updated, err = appts.UpdateSchedule(ctx, id, start, durationMinutes)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.EventAppointmentRescheduled, updated, map[string]any{
			"previous_start_time": current.StartTime.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return model.Appointment{}, classify("reschedule appointment", err)
	}
	s.logger.Info("appointment rescheduled", "appointment_id", id, "start", updated.StartTime)
	return updated, nil
}

func (s *Service) SetStatus(ctx context.Context, id string, to model.Status) (model.Appointment, error) {
	var updated model.Appointment
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		appts := s.appts.WithTx(tx)
		current, err := appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		updated, err = appts.UpdateStatus(ctx, id, to)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.EventAppointmentStatusChanged, updated, map[string]any{
			"previous_status": string(current.Status),
		})
	})
	if err != nil {
		return model.Appointment{}, classify("update appointment status", err)
	}
	s.logger.Info("appointment status changed", "appointment_id", id, "status", to)
	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.appts.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) CreateBlocked(ctx context.Context, b model.BlockedInterval) (model.BlockedInterval, error) {
	b.Start, b.End = b.Start.UTC(), b.End.UTC()
	if err := s.blocked.Create(ctx, &b); err != nil {
		return model.BlockedInterval{}, err
	}
	s.logger.Info("blocked interval created", "blocked_id", b.ID, "start", b.Start, "end", b.End)
	return b, nil
}

func (s *Service) DeactivateBlocked(ctx context.Context, id string) error {
	return s.blocked.Deactivate(ctx, id)
}

func (s *Service) ListBlocked(ctx context.Context, from time.Time, limit int) ([]model.BlockedInterval, error) {
	return s.blocked.ListActive(ctx, from, limit)
}

func (s *Service) GetPolicy(ctx context.Context, clientID string) (model.ReminderPolicy, error) {
	p, err := s.policies.Get(ctx, clientID)
	if err != nil {
		return model.ReminderPolicy{}, err
	}
	if p == nil {
		return model.DefaultReminderPolicy(clientID), nil
	}
	return *p, nil
}

func (s *Service) SavePolicy(ctx context.Context, p model.ReminderPolicy) (model.ReminderPolicy, error) {
	if strings.TrimSpace(p.ClientID) == "" {
		return model.ReminderPolicy{}, fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	}
	if _, ok := timewindow.LoadLocation(p.Timezone); !ok {
		return model.ReminderPolicy{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidRequest, p.Timezone)
	}
	saved, err := s.policies.Save(ctx, p)
	if err != nil {
		return model.ReminderPolicy{}, classify("save reminder policy", err)
	}
	return saved, nil
}

func requireAvailable(ctx context.Context, checker *availability.Checker, start time.Time, durationMinutes int, excludeID string) error {
	decision, err := checker.IsAvailable(ctx, start, durationMinutes, excludeID)
	if err != nil {
		return err
	}
	if !decision.Available {
		return &UnavailableError{Reason: decision.Reason}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment, extra map[string]any) error {
	payload := map[string]any{
		"appointment_id":   appt.ID,
		"client_id":        appt.ClientID,
		"service_name":     appt.ServiceName,
		"start_time":       appt.StartTime.UTC().Format(time.RFC3339),
		"duration_minutes": appt.DurationMinutes,
		"status":           string(appt.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := outbox.NewEvent(outbox.AggregateAppointment, appt.ID, eventType, payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, evt)
}

func classify(op string, err error) error {
	switch {
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", op, ErrUnknownClient)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
