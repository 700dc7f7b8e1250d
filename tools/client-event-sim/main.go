// client-event-sim publishes a client.created.v1 event so a local scheduling-service
// picks up a client and seeds its default reminder policy.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

const topic = "client.created.v1"

func main() {
	var (
		brokers  = flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma separated kafka brokers")
		clientID = flag.String("client-id", getenv("CLIENT_ID", ""), "client uuid (generated when empty)")
		name     = flag.String("name", getenv("CLIENT_NAME", "Test Client"), "client display name")
		email    = flag.String("email", getenv("CLIENT_EMAIL", ""), "client email")
		phone    = flag.String("phone", getenv("CLIENT_PHONE", ""), "client phone in E.164")
		tz       = flag.String("timezone", getenv("CLIENT_TIMEZONE", ""), "IANA timezone for reminders")
	)
	flag.Parse()

	addrs := kafkax.SplitBrokers(*brokers)
	if len(addrs) == 0 {
		fatal("KAFKA_BROKERS is required")
	}
	if strings.TrimSpace(*email) == "" && strings.TrimSpace(*phone) == "" {
		fatal("at least one of --email or --phone is required")
	}
	if *clientID == "" {
		*clientID = uuid.NewString()
	}

	payload, err := json.Marshal(map[string]any{
		"client_id": *clientID,
		"name":      *name,
		"email":     *email,
		"phone":     *phone,
		"timezone":  *tz,
	})
	if err != nil {
		fatal(err.Error())
	}

	meta := kafkax.EventMeta{EventID: uuid.NewString(), EventType: topic}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(*clientID),
		Value:   payload,
		Headers: meta.Headers(),
	}); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("published event_id=%s client_id=%s\n", meta.EventID, *clientID)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
