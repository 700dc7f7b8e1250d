package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// Redis keeps each key in a hash. Claims and outcomes are Lua scripts so the
// check-and-set is atomic on the server.
type Redis struct {
	rdb      redis.Cmdable
	prefix   string
	claimTTL time.Duration
	now      func() time.Time
}

// KEYS[1] entry hash. ARGV[1] claim ttl (ms). Claim age is measured on the Redis server
// clock so replicas with skewed clocks agree on when a claim goes stale.
var claimScript = redis.NewScript(`
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local status = redis.call("HGET", KEYS[1], "status")
if status == "sent" then
  return 0
end
if status == "claimed" then
  local claimedAt = tonumber(redis.call("HGET", KEYS[1], "claimed_at") or "0")
  if now - claimedAt < tonumber(ARGV[1]) then
    return 0
  end
end
redis.call("HSET", KEYS[1], "status", "claimed", "claimed_at", string.format("%d", now))
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

// KEYS[1] entry hash, KEYS[2] attempt list, KEYS[3] per-appointment sent set.
// ARGV[1] status, ARGV[2] error, ARGV[3] provider id, ARGV[4] now (ms), ARGV[5] attempt json, ARGV[6] sent member.
var outcomeScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
local attempts = tonumber(redis.call("HGET", KEYS[1], "attempts") or "0")
if status ~= "sent" then
  redis.call("HSET", KEYS[1], "status", ARGV[1], "last_error", ARGV[2], "provider_id", ARGV[3], "updated_at", ARGV[4])
  if ARGV[1] == "sent" then
    redis.call("SADD", KEYS[3], ARGV[6])
  end
end
redis.call("RPUSH", KEYS[2], ARGV[5])
return attempts
`)

func NewRedis(rdb redis.Cmdable, prefix string, claimTTL time.Duration) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ledger"
	}
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Redis{rdb: rdb, prefix: prefix, claimTTL: claimTTL, now: time.Now}
}

func (r *Redis) entryKey(key model.LedgerKey) string {
	return r.prefix + ":entry:" + key.String()
}

func (r *Redis) attemptsKey(key model.LedgerKey) string {
	return r.prefix + ":attempts:" + key.String()
}

func (r *Redis) sentKey(appointmentID string) string {
	return r.prefix + ":sent:" + appointmentID
}

func sentMember(key model.LedgerKey) string {
	return string(key.Offset) + "|" + string(key.Channel)
}

func parseSentMember(appointmentID, member string) (model.LedgerKey, error) {
	offset, channel, ok := strings.Cut(member, "|")
	if !ok {
		return model.LedgerKey{}, fmt.Errorf("malformed sent member %q", member)
	}
	o, err := model.ParseOffsetType(offset)
	if err != nil {
		return model.LedgerKey{}, err
	}
	c, err := model.ParseChannel(channel)
	if err != nil {
		return model.LedgerKey{}, err
	}
	return model.LedgerKey{AppointmentID: appointmentID, Offset: o, Channel: c}, nil
}

func (r *Redis) TryClaim(ctx context.Context, key model.LedgerKey) (bool, error) {
	n, err := claimScript.Run(ctx, r.rdb, []string{r.entryKey(key)}, r.claimTTL.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) RecordOutcome(ctx context.Context, key model.LedgerKey, outcome Outcome) error {
	now := r.now()
	// Attempt numbers live in the entry hash.
	entry, err := json.Marshal(outcomePayload(key, 0, outcome, now))
	if err != nil {
		return err
	}
	keys := []string{r.entryKey(key), r.attemptsKey(key), r.sentKey(key.AppointmentID)}
	if err := outcomeScript.Run(ctx, r.rdb, keys,
		string(outcome.Status()), outcome.Error, outcome.ProviderID, now.UnixMilli(), string(entry), sentMember(key),
	).Err(); err != nil {
		return fmt.Errorf("record outcome %s: %w", key, err)
	}
	return nil
}

func (r *Redis) SentKeys(ctx context.Context, appointmentIDs []string) (map[model.LedgerKey]struct{}, error) {
	out := map[model.LedgerKey]struct{}{}
	if len(appointmentIDs) == 0 {
		return out, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(appointmentIDs))
	for i, id := range appointmentIDs {
		cmds[i] = pipe.SMembers(ctx, r.sentKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("sent keys: %w", err)
	}

	for i, cmd := range cmds {
		members, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("sent keys: %w", err)
		}
		for _, m := range members {
			k, err := parseSentMember(appointmentIDs[i], m)
			if err != nil {
				return nil, err
			}
			out[k] = struct{}{}
		}
	}
	return out, nil
}
