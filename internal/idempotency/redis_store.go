package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against go-redis v9, grounded on
// internal/infra/redis_adapter.go's GoRedisAdapter wrapper shape. The
// put-if-absent contract of §4.1/§6.2 is satisfied directly by Redis's
// SET key value NX PX, a single atomic command.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing *redis.Client. keyPrefix becomes the
// literal prefix described in §6.7 ("{prefix}:{entity_type}:{entity_id}:{request_id}").
func NewRedisStore(rdb *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: keyPrefix}
}

func (s *RedisStore) redisKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, key.EntityType, key.EntityID, key.RequestID)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Record, error) {
	raw, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("idempotency redis decode: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key Key, rec Record, ttl time.Duration) (PutResult, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return PutResult{}, fmt.Errorf("idempotency redis encode: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.redisKey(key), payload, ttl).Result()
	if err != nil {
		return PutResult{}, fmt.Errorf("idempotency redis setnx: %w", err)
	}
	if ok {
		return PutResult{Stored: true}, nil
	}

	// NX attempt lost the race (or a record already exists) — §4.1
	// requires following a failed NX with a Get to return the
	// existing record.
	existing, err := s.Get(ctx, key)
	if err != nil {
		return PutResult{}, err
	}
	return PutResult{Stored: false, Existing: existing}, nil
}

func (s *RedisStore) Update(ctx context.Context, key Key, rec Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency redis encode: %w", err)
	}
	if err := s.rdb.Set(ctx, s.redisKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency redis set: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
