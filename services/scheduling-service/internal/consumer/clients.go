package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
	"github.com/segmentio/kafka-go"
)

const TopicClientCreated = "client.created.v1"

var errInvalidPayload = errors.New("invalid client.created payload")

type ClientCreated struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Timezone string `json:"timezone"`
}

func ParseClientCreated(raw []byte) (ClientCreated, error) {
	var evt ClientCreated
	if err := json.Unmarshal(raw, &evt); err != nil {
		return ClientCreated{}, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	evt.ClientID = strings.TrimSpace(evt.ClientID)
	if evt.ClientID == "" {
		return ClientCreated{}, fmt.Errorf("%w: missing client_id", errInvalidPayload)
	}
	if _, err := uuid.Parse(evt.ClientID); err != nil {
		return ClientCreated{}, fmt.Errorf("%w: client_id %q is not a uuid", errInvalidPayload, evt.ClientID)
	}
	if evt.Timezone != "" {
		if _, ok := timewindow.LoadLocation(evt.Timezone); !ok {
			evt.Timezone = ""
		}
	}
	return evt, nil
}

// ClientCreatedHandler mirrors the client and seeds its default reminder policy. The inbox
// row and both writes share one transaction, so a redelivered event is a no-op.
func ClientCreatedHandler(pool *db.Pool, inboxRepo *inbox.Repository, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		evt, err := ParseClientCreated(msg.Value)
		if err != nil {
			logger.Error("skipping malformed event", "err", err, "topic", msg.Topic)
			return nil
		}
		meta := kafkax.ExtractEventMeta(msg)

		return pool.InTx(ctx, func(tx pgx.Tx) error {
			fresh, err := inboxRepo.Record(ctx, tx, meta.EventID, meta.EventType)
			if err != nil {
				return err
			}
			if !fresh {
				logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
				return nil
			}
			client := model.Client{ID: evt.ClientID, Name: evt.Name, Email: evt.Email, Phone: evt.Phone}
			if err := storage.NewClientRepository(tx).Upsert(ctx, client); err != nil {
				return err
			}
			if err := storage.NewReminderPolicyRepository(tx).UpsertDefault(ctx, evt.ClientID, evt.Timezone); err != nil {
				return err
			}
			logger.Info("default reminder policy created", "client_id", evt.ClientID)
			return nil
		})
	}
}
