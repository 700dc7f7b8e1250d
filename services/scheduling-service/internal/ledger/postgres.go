package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/outbox"
)

// Postgres keeps the ledger in reminder_deliveries with one row per key and an
// append-only reminder_delivery_attempts history. Outcomes also enqueue a
// notification event through the outbox.
type Postgres struct {
	pool     *db.Pool
	outbox   *outbox.Repository
	claimTTL time.Duration
}

func NewPostgres(pool *db.Pool, outboxRepo *outbox.Repository, claimTTL time.Duration) *Postgres {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Postgres{pool: pool, outbox: outboxRepo, claimTTL: claimTTL}
}

// TryClaim inserts a claimed row, or takes over a failed or stale claimed row. The
// conditional upsert is a single statement, so concurrent callers serialize on the row lock
// and only one of them sees a returned row.
func (p *Postgres) TryClaim(ctx context.Context, key model.LedgerKey) (bool, error) {
	var attempts int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO reminder_deliveries (appointment_id, offset_type, channel, status, attempts, claimed_at, updated_at)
		VALUES ($1, $2, $3, 'claimed', 1, now(), now())
		ON CONFLICT (appointment_id, offset_type, channel) DO UPDATE
		SET status = 'claimed',
		    attempts = reminder_deliveries.attempts + 1,
		    claimed_at = now(),
		    updated_at = now()
		WHERE reminder_deliveries.status = 'failed'
		   OR (reminder_deliveries.status = 'claimed'
		       AND reminder_deliveries.claimed_at < now() - ($4::bigint * interval '1 millisecond'))
		RETURNING attempts
	`, key.AppointmentID, string(key.Offset), string(key.Channel), p.claimTTL.Milliseconds()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return true, nil
}

// RecordOutcome never downgrades a sent row.
func (p *Postgres) RecordOutcome(ctx context.Context, key model.LedgerKey, outcome Outcome) error {
	status := outcome.Status()
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		var attempts int
		err := tx.QueryRow(ctx, `
			UPDATE reminder_deliveries
			SET status = CASE WHEN status = 'sent' THEN status ELSE $4 END,
			    last_error = CASE WHEN status = 'sent' THEN last_error ELSE NULLIF($5, '') END,
			    provider_id = CASE WHEN status = 'sent' THEN provider_id ELSE NULLIF($6, '') END,
			    sent_at = CASE WHEN status <> 'sent' AND $4 = 'sent' THEN now() ELSE sent_at END,
			    updated_at = now()
			WHERE appointment_id = $1 AND offset_type = $2 AND channel = $3
			RETURNING attempts
		`, key.AppointmentID, string(key.Offset), string(key.Channel), string(status), outcome.Error, outcome.ProviderID).Scan(&attempts)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("no claim for %s", key)
		}
		if err != nil {
			return err
		}

		traceparent, tracestate := otelx.TraceContextStrings(ctx)
		if _, err := tx.Exec(ctx, `
			INSERT INTO reminder_delivery_attempts (appointment_id, offset_type, channel, attempt, status, recipient, provider_id, error, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		`, key.AppointmentID, string(key.Offset), string(key.Channel), attempts, string(status), outcome.Recipient, outcome.ProviderID, outcome.Error, traceparent, tracestate); err != nil {
			return err
		}

		eventType := outbox.EventNotificationSent
		if !outcome.Success {
			eventType = outbox.EventNotificationFailed
		}
		evt, err := outbox.NewEvent(outbox.AggregateReminder, key.String(), eventType, outcomePayload(key, attempts, outcome, time.Now()))
		if err != nil {
			return err
		}
		return p.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) SentKeys(ctx context.Context, appointmentIDs []string) (map[model.LedgerKey]struct{}, error) {
	out := map[model.LedgerKey]struct{}{}
	if len(appointmentIDs) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT appointment_id::text, offset_type, channel
		FROM reminder_deliveries
		WHERE appointment_id = ANY($1::uuid[]) AND status = 'sent'
	`, appointmentIDs)
	if err != nil {
		return nil, fmt.Errorf("sent keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, offset, channel string
		if err := rows.Scan(&id, &offset, &channel); err != nil {
			return nil, err
		}
		o, err := model.ParseOffsetType(offset)
		if err != nil {
			return nil, err
		}
		c, err := model.ParseChannel(channel)
		if err != nil {
			return nil, err
		}
		out[model.LedgerKey{AppointmentID: id, Offset: o, Channel: c}] = struct{}{}
	}
	return out, rows.Err()
}
