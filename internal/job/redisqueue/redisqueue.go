// Package redisqueue is the durable, cross-process implementation of
// job.Queue: delayed is a Redis ZSET scored by run_at_ms, ready is a
// Redis list, and processing is a Redis hash keyed by job id — grounded
// on internal/infra/redis_adapter.go's go-redis wiring, extended with
// the ZADD/ZRANGEBYSCORE/RPUSH/BLPOP/HSET/HDEL calls memqueue has no
// need for.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/balungpisah/gotong-royong-core/internal/job"
)

// Queue is a Redis-backed job.Queue, usable from multiple processes
// sharing the same Redis instance (e.g. cmd/server enqueuing, cmd/worker
// dequeuing).
type Queue struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func New(rdb *redis.Client, prefix string) *Queue {
	return &Queue{rdb: rdb, prefix: prefix, now: time.Now}
}

func (q *Queue) readyKey() string      { return q.prefix + ":ready" }
func (q *Queue) delayedKey() string    { return q.prefix + ":delayed" }
func (q *Queue) processingKey() string { return q.prefix + ":processing" }

func (q *Queue) Enqueue(ctx context.Context, env job.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if env.RunAtMs <= q.now().UnixMilli() {
		return q.rdb.RPush(ctx, q.readyKey(), payload).Err()
	}
	return q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(env.RunAtMs),
		Member: payload,
	}).Err()
}

// PromoteDue moves up to limit due entries from the delayed ZSET to the
// ready list. Each member is popped individually rather than via a Lua
// script: when two promoters race on the same member, only the one whose
// ZRem removes it pushes it to the ready list; the loser's ZRem returns
// 0 and it skips the RPush, so a member is moved at most once.
func (q *Queue) PromoteDue(ctx context.Context, nowMs int64, limit int) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", nowMs),
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore delayed: %w", err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem delayed: %w", err)
		}
		if removed == 0 {
			continue // another promoter already claimed it
		}
		if err := q.rdb.RPush(ctx, q.readyKey(), member).Err(); err != nil {
			return promoted, fmt.Errorf("rpush ready: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

func (q *Queue) Dequeue(ctx context.Context, timeoutMs int64) (*job.Envelope, error) {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	result, err := q.rdb.BLPop(ctx, timeout, q.readyKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("blpop ready: %w", err)
	}
	// BLPop returns [key, value]; result[1] is the payload.
	var env job.Envelope
	if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := q.rdb.HSet(ctx, q.processingKey(), env.JobID, result[1]).Err(); err != nil {
		return nil, fmt.Errorf("hset processing: %w", err)
	}
	return &env, nil
}

func (q *Queue) Ack(ctx context.Context, jobID string) error {
	return q.rdb.HDel(ctx, q.processingKey(), jobID).Err()
}

// RequeueProcessing moves everything in the processing hash back to the
// ready list, run by the worker at boot to recover jobs orphaned by a
// crash mid-dispatch.
func (q *Queue) RequeueProcessing(ctx context.Context, limit int) (int, error) {
	entries, err := q.rdb.HGetAll(ctx, q.processingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("hgetall processing: %w", err)
	}

	moved := 0
	for jobID, payload := range entries {
		if moved >= limit {
			break
		}
		if err := q.rdb.RPush(ctx, q.readyKey(), payload).Err(); err != nil {
			return moved, fmt.Errorf("rpush ready: %w", err)
		}
		if err := q.rdb.HDel(ctx, q.processingKey(), jobID).Err(); err != nil {
			return moved, fmt.Errorf("hdel processing: %w", err)
		}
		moved++
	}
	return moved, nil
}

var _ job.Queue = (*Queue)(nil)
