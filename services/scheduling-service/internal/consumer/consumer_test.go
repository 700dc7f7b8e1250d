package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case r.drained <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	reader := &fakeReader{
		msgs:    []kafka.Message{{Offset: 1, Value: []byte("a")}, {Offset: 2, Value: []byte("b")}},
		drained: make(chan struct{}, 1),
	}
	calls := map[string]int{}
	var mu sync.Mutex
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls[string(msg.Value)]++
		if string(msg.Value) == "a" && calls["a"] < 2 {
			return errors.New("transient")
		}
		if string(msg.Value) == "b" {
			return errors.New("permanent")
		}
		return nil
	}
	c := NewWithReader(reader, discard(), Config{Attempts: 3, Backoff: time.Millisecond}, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if calls["a"] != 2 || calls["b"] != 3 {
		t.Fatalf("unexpected handler calls: %v", calls)
	}
	if len(reader.committed) != 2 || !reader.closed {
		t.Fatalf("expected both offsets committed and reader closed: %+v", reader)
	}
}

func TestParseClientCreated(t *testing.T) {
	evt, err := ParseClientCreated([]byte(`{"client_id":" 5f1c9a3e-8d2b-4c61-9a7e-0b3d2f4e6a10 ","name":"Ana","email":"ana@example.com","timezone":"Not/AZone"}`))
	if err != nil {
		t.Fatalf("ParseClientCreated: %v", err)
	}
	if evt.ClientID != "5f1c9a3e-8d2b-4c61-9a7e-0b3d2f4e6a10" || evt.Timezone != "" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if _, err := ParseClientCreated([]byte(`{"name":"x"}`)); !errors.Is(err, errInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	if _, err := ParseClientCreated([]byte(`{"client_id":"c-1"}`)); !errors.Is(err, errInvalidPayload) {
		t.Fatalf("non-uuid client_id: expected invalid payload, got %v", err)
	}
	if _, err := ParseClientCreated([]byte(`not json`)); !errors.Is(err, errInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}
