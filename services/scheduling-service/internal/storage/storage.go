// Package storage holds the pgx repositories for the scheduling service.
package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is an id that is not a UUID; no row can match it.
	ErrInvalidID = errors.New("invalid id")
)

func checkID(op, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s: %w %q", op, ErrInvalidID, id)
	}
	return nil
}

// notFound maps pgx.ErrNoRows onto ErrNotFound, malformed input onto ErrInvalidID, and wraps
// everything else with op.
func notFound(op string, err error) error {
	if err == nil {
		return nil
	}
	if db.IsNotFound(err) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if db.IsInvalidText(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidID, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
