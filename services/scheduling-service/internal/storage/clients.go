package storage

import (
	"context"

	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

type ClientRepository struct {
	q db.Querier
}

func NewClientRepository(q db.Querier) *ClientRepository {
	return &ClientRepository{q: q}
}

func (r *ClientRepository) Get(ctx context.Context, id string) (model.Client, error) {
	if err := checkID("get client", id); err != nil {
		return model.Client{}, err
	}
	var c model.Client
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if err != nil {
		return model.Client{}, notFound("get client", err)
	}
	return c, nil
}

// Upsert mirrors a client owned by another service.
func (r *ClientRepository) Upsert(ctx context.Context, c model.Client) error {
	if err := checkID("upsert client", c.ID); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO clients (id, name, email, phone)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone, updated_at = now()
	`, c.ID, c.Name, c.Email, c.Phone)
	return notFound("upsert client", err)
}
