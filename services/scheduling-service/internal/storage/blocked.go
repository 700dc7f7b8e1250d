package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

const blockedColumns = `id::text, start_time, end_time, COALESCE(reason, ''), active, created_at`

type BlockedIntervalRepository struct {
	q db.Querier
}

func NewBlockedIntervalRepository(q db.Querier) *BlockedIntervalRepository {
	return &BlockedIntervalRepository{q: q}
}

func (r *BlockedIntervalRepository) WithTx(tx pgx.Tx) *BlockedIntervalRepository {
	return &BlockedIntervalRepository{q: tx}
}

// FindActiveOverlapping uses the same half-open predicate as the availability checker.
func (r *BlockedIntervalRepository) FindActiveOverlapping(ctx context.Context, start, end time.Time) ([]model.BlockedInterval, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+blockedColumns+`
		FROM blocked_intervals
		WHERE active AND start_time < $2 AND end_time > $1
		ORDER BY start_time
	`, start, end)
	if err != nil {
		return nil, notFound("find blocked intervals", err)
	}
	return collectBlocked(rows)
}

// ListActive returns active intervals ending after from, oldest first.
func (r *BlockedIntervalRepository) ListActive(ctx context.Context, from time.Time, limit int) ([]model.BlockedInterval, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+blockedColumns+`
		FROM blocked_intervals
		WHERE active AND end_time > $1
		ORDER BY start_time
		LIMIT $2
	`, from, limit)
	if err != nil {
		return nil, notFound("list blocked intervals", err)
	}
	return collectBlocked(rows)
}

func (r *BlockedIntervalRepository) Create(ctx context.Context, b *model.BlockedInterval) error {
	if err := b.Validate(); err != nil {
		return err
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO blocked_intervals (start_time, end_time, reason, active)
		VALUES ($1, $2, NULLIF($3, ''), true)
		RETURNING id::text, created_at
	`, b.Start, b.End, b.Reason).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return notFound("create blocked interval", err)
	}
	b.Active = true
	return nil
}

func (r *BlockedIntervalRepository) Deactivate(ctx context.Context, id string) error {
	if err := checkID("deactivate blocked interval", id); err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `UPDATE blocked_intervals SET active = false WHERE id = $1 AND active`, id)
	if err != nil {
		return notFound("deactivate blocked interval", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("deactivate blocked interval", pgx.ErrNoRows)
	}
	return nil
}

func collectBlocked(rows pgx.Rows) ([]model.BlockedInterval, error) {
	defer rows.Close()
	var out []model.BlockedInterval
	for rows.Next() {
		var b model.BlockedInterval
		if err := rows.Scan(&b.ID, &b.Start, &b.End, &b.Reason, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
