package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/balungpisah/gotong-royong-core/internal/realtime"
)

// RedisRelay fans a single process's realtime.Bus.Publish calls out to
// every other server instance over Redis Pub/Sub, so a chat subscriber
// connected to one instance still receives messages sent through
// another. Adapted from internal/infra.GoRedisAdapter's
// Publish/Subscribe wrapper (the teacher's only Redis pub/sub surface),
// narrowed to exactly the two operations chat's cross-process fan-out
// needs.
type RedisRelay struct {
	rdb     *redis.Client
	bus     *realtime.Bus
	prefix  string
	log     *slog.Logger
	localID string // distinguishes this process's own publishes from echoes
}

func NewRedisRelay(rdb *redis.Client, bus *realtime.Bus, prefix, localID string, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{rdb: rdb, bus: bus, prefix: prefix, log: log, localID: localID}
}

type relayEnvelope struct {
	OriginID string  `json:"origin_id"`
	Message  Message `json:"message"`
}

func (r *RedisRelay) channel(threadID string) string {
	return fmt.Sprintf("%s:realtime:chat:%s", r.prefix, threadID)
}

// PublishAcrossProcesses pushes a local send onto the Redis channel for
// threadID, so every subscribed instance's Bus also delivers it. The
// caller still calls Bus.Publish locally first for same-process
// subscribers; this covers the cross-process leg only.
func (r *RedisRelay) PublishAcrossProcesses(ctx context.Context, threadID string, msg Message) error {
	payload, err := json.Marshal(relayEnvelope{OriginID: r.localID, Message: msg})
	if err != nil {
		return fmt.Errorf("chat relay encode: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel(threadID), payload).Err(); err != nil {
		return fmt.Errorf("chat relay publish: %w", err)
	}
	return nil
}

// SubscribeThread relays messages received over Redis for threadID
// into the local Bus, skipping envelopes this same process originated
// (it already delivered those locally). Returns an unsubscribe
// function.
func (r *RedisRelay) SubscribeThread(ctx context.Context, threadID string) (func(), error) {
	sub := r.rdb.Subscribe(ctx, r.channel(threadID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("chat relay subscribe %s: %w", threadID, err)
	}

	ch := sub.Channel()
	go func() {
		for raw := range ch {
			var env relayEnvelope
			if err := json.Unmarshal([]byte(raw.Payload), &env); err != nil {
				r.log.Warn("chat relay decode failed", "thread_id", threadID, "error", err)
				continue
			}
			if env.OriginID == r.localID {
				continue
			}
			r.bus.Publish(threadID, "chat", BusMessage{env.Message})
		}
	}()

	return func() { sub.Close() }, nil
}
