package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

const appointmentColumns = `id::text, client_id::text, service_name, start_time, duration_minutes, status, COALESCE(notes, ''), created_at, updated_at`

type AppointmentRepository struct {
	q db.Querier
}

func NewAppointmentRepository(q db.Querier) *AppointmentRepository {
	return &AppointmentRepository{q: q}
}

// WithTx returns a copy bound to tx.
func (r *AppointmentRepository) WithTx(tx pgx.Tx) *AppointmentRepository {
	return &AppointmentRepository{q: tx}
}

// FindOverlapping returns non-cancelled appointments overlapping [start, end), excluding excludeID.
func (r *AppointmentRepository) FindOverlapping(ctx context.Context, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'cancelled'
			AND start_time < $2
			AND end_time > $1
			AND ($3 = '' OR id::text <> $3)
		ORDER BY start_time
	`, start, end, excludeID)
	if err != nil {
		return nil, notFound("find overlapping appointments", err)
	}
	return collectAppointments(rows)
}

// FindConfirmedInWindow returns confirmed appointments whose start lies in [start, end].
func (r *AppointmentRepository) FindConfirmedInWindow(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
			AND start_time >= $1
			AND start_time <= $2
		ORDER BY start_time
	`, start, end)
	if err != nil {
		return nil, notFound("find due appointments", err)
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate locks the row for the rest of the transaction.
func (r *AppointmentRepository) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *AppointmentRepository) get(ctx context.Context, id, suffix string) (model.Appointment, error) {
	if err := checkID("get appointment", id); err != nil {
		return model.Appointment{}, err
	}
	row := r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`+suffix, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, notFound("get appointment", err)
	}
	return appt, nil
}

// Insert stores appt and fills in its generated id and timestamps.
func (r *AppointmentRepository) Insert(ctx context.Context, appt *model.Appointment) error {
	if err := checkID("insert appointment", appt.ClientID); err != nil {
		return err
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments (client_id, service_name, start_time, end_time, duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id::text, created_at, updated_at
	`, appt.ClientID, appt.ServiceName, appt.StartTime, appt.EndTime(), appt.DurationMinutes, string(appt.Status), appt.Notes).
		Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return notFound("insert appointment", err)
	}
	return nil
}

func (r *AppointmentRepository) UpdateSchedule(ctx context.Context, id string, start time.Time, durationMinutes int) (model.Appointment, error) {
	if err := checkID("reschedule appointment", id); err != nil {
		return model.Appointment{}, err
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2, end_time = $3, duration_minutes = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, start, end, durationMinutes)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, notFound("reschedule appointment", err)
	}
	return appt, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, error) {
	if err := checkID("update appointment status", id); err != nil {
		return model.Appointment{}, err
	}
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status))
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, notFound("update appointment status", err)
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	if err := row.Scan(
		&appt.ID,
		&appt.ClientID,
		&appt.ServiceName,
		&appt.StartTime,
		&appt.DurationMinutes,
		&status,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return model.Appointment{}, err
	}
	s, err := model.ParseStatus(status)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = s
	appt.StartTime = appt.StartTime.UTC()
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}
