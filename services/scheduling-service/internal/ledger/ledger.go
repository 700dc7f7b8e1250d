// Package ledger records which reminder deliveries have been attempted and which succeeded,
// so that a reminder is sent at most once per (appointment, offset, channel) regardless of
// how many sweeps observe it.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

type EntryStatus string

const (
	StatusClaimed EntryStatus = "claimed"
	StatusSent    EntryStatus = "sent"
	StatusFailed  EntryStatus = "failed"
)

// DefaultClaimTTL bounds how long a claim without an outcome blocks other claimers.
const DefaultClaimTTL = 10 * time.Minute

var ErrUnknownBackend = errors.New("unknown ledger backend")

// Outcome is the result of one send attempt.
type Outcome struct {
	Success    bool
	Error      string
	ProviderID string
	Recipient  string
}

func (o Outcome) Status() EntryStatus {
	if o.Success {
		return StatusSent
	}
	return StatusFailed
}

// Store is implemented by the Postgres, Redis and in-memory ledgers.
//
// TryClaim returns true for exactly one caller per key until that caller records an outcome.
// After a failed outcome the key can be claimed again; after a successful one never again.
// A claim that never records an outcome stops blocking once the claim TTL has passed.
type Store interface {
	TryClaim(ctx context.Context, key model.LedgerKey) (bool, error)
	RecordOutcome(ctx context.Context, key model.LedgerKey, outcome Outcome) error
	SentKeys(ctx context.Context, appointmentIDs []string) (map[model.LedgerKey]struct{}, error)
}

func outcomePayload(key model.LedgerKey, attempt int, outcome Outcome, at time.Time) map[string]any {
	payload := map[string]any{
		"appointment_id": key.AppointmentID,
		"offset_type":    string(key.Offset),
		"channel":        string(key.Channel),
		"status":         string(outcome.Status()),
		"recipient":      outcome.Recipient,
		"at":             at.UTC().Format(time.RFC3339),
	}
	if attempt > 0 {
		payload["attempt"] = attempt
	}
	if outcome.ProviderID != "" {
		payload["provider_id"] = outcome.ProviderID
	}
	if outcome.Error != "" {
		payload["error"] = outcome.Error
	}
	return payload
}
