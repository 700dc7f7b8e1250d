package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

type memoryEntry struct {
	status    EntryStatus
	attempts  int
	claimedAt time.Time
	lastError string
}

// Attempt is one recorded outcome in the memory ledger's history.
type Attempt struct {
	Key     model.LedgerKey
	Attempt int
	Outcome Outcome
	At      time.Time
}

// Memory is a process-local Store for single-replica deployments and tests.
type Memory struct {
	mu       sync.Mutex
	entries  map[model.LedgerKey]*memoryEntry
	history  []Attempt
	claimTTL time.Duration
	now      func() time.Time
}

func NewMemory(claimTTL time.Duration) *Memory {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Memory{
		entries:  map[model.LedgerKey]*memoryEntry{},
		claimTTL: claimTTL,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for claim expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *Memory) TryClaim(_ context.Context, key model.LedgerKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok {
		m.entries[key] = &memoryEntry{status: StatusClaimed, attempts: 1, claimedAt: now}
		return true, nil
	}
	switch e.status {
	case StatusSent:
		return false, nil
	case StatusClaimed:
		if now.Sub(e.claimedAt) < m.claimTTL {
			return false, nil
		}
	}
	e.status = StatusClaimed
	e.attempts++
	e.claimedAt = now
	return true, nil
}

func (m *Memory) RecordOutcome(_ context.Context, key model.LedgerKey, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{attempts: 1}
		m.entries[key] = e
	}
	if e.status != StatusSent {
		e.status = outcome.Status()
		e.lastError = outcome.Error
	}
	m.history = append(m.history, Attempt{Key: key, Attempt: e.attempts, Outcome: outcome, At: m.now()})
	return nil
}

func (m *Memory) SentKeys(_ context.Context, appointmentIDs []string) (map[model.LedgerKey]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(appointmentIDs))
	for _, id := range appointmentIDs {
		wanted[id] = true
	}
	out := map[model.LedgerKey]struct{}{}
	for k, e := range m.entries {
		if e.status == StatusSent && wanted[k.AppointmentID] {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

// Status reports the current state of key; ok is false when it was never claimed.
func (m *Memory) Status(key model.LedgerKey) (status EntryStatus, attempts int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", 0, false
	}
	return e.status, e.attempts, true
}

// History returns a copy of every recorded outcome in order.
func (m *Memory) History() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attempt(nil), m.history...)
}
