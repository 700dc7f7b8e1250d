package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

var key = model.LedgerKey{AppointmentID: "appt-1", Offset: model.Offset24h, Channel: model.ChannelEmail}

func TestMemoryClaimIsExclusive(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.TryClaim(ctx, key)
			if err != nil {
				t.Errorf("TryClaim: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one claim, got %d", wins.Load())
	}
}

func TestMemorySentIsPermanent(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	if ok, _ := m.TryClaim(ctx, key); !ok {
		t.Fatal("first claim should win")
	}
	if err := m.RecordOutcome(ctx, key, Outcome{Success: true, ProviderID: "msg-1"}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if ok, _ := m.TryClaim(ctx, key); ok {
		t.Fatal("sent key must not be claimable")
	}
	if err := m.RecordOutcome(ctx, key, Outcome{Error: "late failure"}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if status, _, _ := m.Status(key); status != StatusSent {
		t.Fatalf("failure must not downgrade sent, got %s", status)
	}

	sent, err := m.SentKeys(ctx, []string{"appt-1", "appt-2"})
	if err != nil {
		t.Fatalf("SentKeys: %v", err)
	}
	if _, ok := sent[key]; !ok || len(sent) != 1 {
		t.Fatalf("unexpected sent keys: %v", sent)
	}
}

func TestMemoryFailureAllowsRetry(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	_, _ = m.TryClaim(ctx, key)
	_ = m.RecordOutcome(ctx, key, Outcome{Error: "smtp timeout"})

	ok, err := m.TryClaim(ctx, key)
	if err != nil || !ok {
		t.Fatalf("failed entry should be claimable again (ok=%v err=%v)", ok, err)
	}
	_ = m.RecordOutcome(ctx, key, Outcome{Success: true})

	status, attempts, _ := m.Status(key)
	if status != StatusSent || attempts != 2 {
		t.Fatalf("expected sent after 2 attempts, got %s/%d", status, attempts)
	}
	if h := m.History(); len(h) != 2 || h[0].Outcome.Success || !h[1].Outcome.Success {
		t.Fatalf("unexpected history: %+v", h)
	}
}

func TestMemoryStaleClaimIsRecovered(t *testing.T) {
	now := time.Date(2024, 3, 19, 10, 0, 0, 0, time.UTC)
	m := NewMemory(10 * time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = m.TryClaim(ctx, key)
	now = now.Add(5 * time.Minute)
	if ok, _ := m.TryClaim(ctx, key); ok {
		t.Fatal("fresh claim must block")
	}
	now = now.Add(6 * time.Minute)
	if ok, _ := m.TryClaim(ctx, key); !ok {
		t.Fatal("stale claim should be taken over")
	}
}

func TestOutcomePayload(t *testing.T) {
	at := time.Date(2024, 3, 19, 10, 0, 0, 0, time.UTC)
	p := outcomePayload(key, 2, Outcome{Error: "boom", Recipient: "ana@example.com"}, at)
	if p["status"] != "failed" || p["error"] != "boom" || p["attempt"] != 2 {
		t.Fatalf("unexpected payload: %v", p)
	}
	if _, ok := p["provider_id"]; ok {
		t.Fatal("empty provider id should be omitted")
	}
}

func TestSentMemberRoundTrip(t *testing.T) {
	got, err := parseSentMember("appt-1", sentMember(key))
	if err != nil || got != key {
		t.Fatalf("got %v (%v)", got, err)
	}
	if _, err := parseSentMember("appt-1", "24h|pigeon"); err == nil {
		t.Fatal("expected unknown channel error")
	}
	if _, err := parseSentMember("appt-1", "garbage"); err == nil {
		t.Fatal("expected malformed error")
	}
}

func TestRedisKeyLayout(t *testing.T) {
	r := NewRedis(nil, "", 0)
	if got := r.entryKey(key); got != "ledger:entry:appt-1|24h|email" {
		t.Fatalf("entry key %q", got)
	}
	if got := r.sentKey("appt-1"); got != "ledger:sent:appt-1" {
		t.Fatalf("sent key %q", got)
	}
	if r.claimTTL != DefaultClaimTTL {
		t.Fatalf("expected default claim ttl, got %s", r.claimTTL)
	}
}
