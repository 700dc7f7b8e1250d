package settings

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/ledger"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/slotkeeper")
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SweepInterval != 5*time.Minute || s.SweepWorkers != 8 || s.ReminderTolerance != 30*time.Minute {
		t.Fatalf("unexpected sweep defaults: %+v", s)
	}
	if s.LedgerBackend != LedgerPostgres {
		t.Fatalf("expected postgres ledger, got %s", s.LedgerBackend)
	}

	cal, err := calendar.New(s.Calendar)
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	if _, open := cal.HoursFor(time.Sunday); open {
		t.Fatal("sunday should be closed by default")
	}
	h, open := cal.HoursFor(time.Saturday)
	if !open || h.Open.String() != "09:00" || h.Close.String() != "17:00" {
		t.Fatalf("unexpected saturday hours: %+v", h)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/slotkeeper")
	t.Setenv("BUSINESS_HOURS", "sat=10:00-14:00")
	t.Setenv("BUSINESS_CLOSED_DAYS", "sun,mon")
	t.Setenv("SWEEP_WORKERS", "2")
	t.Setenv("LEDGER_BACKEND", "memory")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cal, _ := calendar.New(s.Calendar)
	if h, _ := cal.HoursFor(time.Saturday); h.Close.String() != "14:00" {
		t.Fatalf("saturday override not applied: %+v", h)
	}
	if _, open := cal.HoursFor(time.Monday); open {
		t.Fatal("monday should be closed")
	}
	if s.SweepWorkers != 2 || s.LedgerBackend != LedgerMemory {
		t.Fatalf("unexpected overrides: %+v", s)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/slotkeeper")

	t.Setenv("LEDGER_BACKEND", "etcd")
	if _, err := Load(); !errors.Is(err, ledger.ErrUnknownBackend) {
		t.Fatalf("expected unknown backend, got %v", err)
	}
	t.Setenv("LEDGER_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("redis ledger without REDIS_URL should fail")
	}
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("BUSINESS_OPEN", "9am")
	if _, err := Load(); err == nil {
		t.Fatal("expected BUSINESS_OPEN error")
	}
	t.Setenv("BUSINESS_OPEN", "")
	t.Setenv("BUSINESS_TIMEZONE", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Fatal("expected timezone error")
	}
	t.Setenv("BUSINESS_TIMEZONE", "")

	t.Setenv("SWEEP_ENABLED", "maybe")
	if _, err := Load(); err == nil {
		t.Fatal("malformed SWEEP_ENABLED should fail")
	}
	t.Setenv("SWEEP_ENABLED", "")

	t.Setenv("LEDGER_CLAIM_TTL", "5s")
	t.Setenv("SWEEP_TASK_TIMEOUT", "60s")
	if _, err := Load(); err == nil {
		t.Fatal("claim ttl shorter than the task timeout should fail")
	}
	t.Setenv("LEDGER_CLAIM_TTL", "60s")
	if _, err := Load(); err == nil {
		t.Fatal("claim ttl equal to the task timeout should fail")
	}
	t.Setenv("LEDGER_CLAIM_TTL", "2m")
	if _, err := Load(); err != nil {
		t.Fatalf("claim ttl above the task timeout should load: %v", err)
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected DATABASE_URL error")
	}
}
