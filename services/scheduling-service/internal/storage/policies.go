package storage

import (
	"context"

	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

type ReminderPolicyRepository struct {
	q db.Querier
}

func NewReminderPolicyRepository(q db.Querier) *ReminderPolicyRepository {
	return &ReminderPolicyRepository{q: q}
}

// Get returns nil, nil when the client has no stored policy.
func (r *ReminderPolicyRepository) Get(ctx context.Context, clientID string) (*model.ReminderPolicy, error) {
	if err := checkID("get reminder policy", clientID); err != nil {
		return nil, err
	}
	var p model.ReminderPolicy
	var channels []string
	err := r.q.QueryRow(ctx, `
		SELECT client_id::text, remind_24h, remind_2h, channels, timezone, notifications_disabled, updated_at
		FROM reminder_policies
		WHERE client_id = $1
	`, clientID).Scan(&p.ClientID, &p.Remind24h, &p.Remind2h, &channels, &p.Timezone, &p.NotificationsDisabled, &p.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, notFound("get reminder policy", err)
	}
	for _, raw := range channels {
		c, err := model.ParseChannel(raw)
		if err != nil {
			return nil, err
		}
		p.Channels = append(p.Channels, c)
	}
	return &p, nil
}

// UpsertDefault creates the default policy; an existing policy is left untouched.
func (r *ReminderPolicyRepository) UpsertDefault(ctx context.Context, clientID, timezone string) error {
	if err := checkID("create default reminder policy", clientID); err != nil {
		return err
	}
	def := model.DefaultReminderPolicy(clientID)
	if timezone != "" {
		def.Timezone = timezone
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO reminder_policies (client_id, remind_24h, remind_2h, channels, timezone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO NOTHING
	`, def.ClientID, def.Remind24h, def.Remind2h, channelStrings(def.Channels), def.Timezone)
	return notFound("create default reminder policy", err)
}

func (r *ReminderPolicyRepository) Save(ctx context.Context, p model.ReminderPolicy) (model.ReminderPolicy, error) {
	if err := checkID("save reminder policy", p.ClientID); err != nil {
		return model.ReminderPolicy{}, err
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO reminder_policies (client_id, remind_24h, remind_2h, channels, timezone, notifications_disabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id) DO UPDATE
		SET remind_24h = EXCLUDED.remind_24h,
			remind_2h = EXCLUDED.remind_2h,
			channels = EXCLUDED.channels,
			timezone = EXCLUDED.timezone,
			notifications_disabled = EXCLUDED.notifications_disabled,
			updated_at = now()
		RETURNING updated_at
	`, p.ClientID, p.Remind24h, p.Remind2h, channelStrings(p.Channels), p.Timezone, p.NotificationsDisabled).Scan(&p.UpdatedAt)
	if err != nil {
		return model.ReminderPolicy{}, notFound("save reminder policy", err)
	}
	return p, nil
}

func channelStrings(cs []model.Channel) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}
