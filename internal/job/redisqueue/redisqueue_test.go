package redisqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/job"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "test-jobs")
}

func TestRedisQueueEnqueueReadyVsDelayed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := q.now().UnixMilli()

	require.NoError(t, q.Enqueue(ctx, job.Envelope{JobID: "ready-1", RunAtMs: now - 1000}))
	require.NoError(t, q.Enqueue(ctx, job.Envelope{JobID: "delayed-1", RunAtMs: now + 1_000_000}))

	env, err := q.Dequeue(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, env)
	require.Equal(t, "ready-1", env.JobID)

	empty, err := q.Dequeue(ctx, 50)
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestRedisQueuePromoteDueMovesOnlyDueEntries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := q.now().UnixMilli()

	require.NoError(t, q.Enqueue(ctx, job.Envelope{JobID: "past", RunAtMs: now - 5000}))
	require.NoError(t, q.Enqueue(ctx, job.Envelope{JobID: "future", RunAtMs: now + 5_000_000}))

	n, err := q.PromoteDue(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	env, err := q.Dequeue(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, "past", env.JobID)

	none, err := q.Dequeue(ctx, 30)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestRedisQueueAckAndRequeueProcessing(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := q.now().UnixMilli()

	require.NoError(t, q.Enqueue(ctx, job.Envelope{JobID: "j1", RunAtMs: now - 1}))
	env, err := q.Dequeue(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, "j1", env.JobID)

	n, err := q.RequeueProcessing(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	again, err := q.Dequeue(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, "j1", again.JobID)

	require.NoError(t, q.Ack(ctx, "j1"))
	n2, err := q.RequeueProcessing(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, n2)
}

func TestRedisQueueDequeueUnblocksOnLateEnqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = q.Enqueue(context.Background(), job.Envelope{JobID: "late", RunAtMs: q.now().UnixMilli() - 1})
	}()

	env, err := q.Dequeue(ctx, 500)
	require.NoError(t, err)
	require.NotNil(t, env)
	require.Equal(t, "late", env.JobID)
}
