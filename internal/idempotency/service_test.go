package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS1_IdempotentEchoReplay(t *testing.T) {
	svc := NewService(NewMemoryStore(), DefaultConfig(), nil, nil)
	ctx := context.Background()
	key := Key{EntityType: "echo", EntityID: "e1", RequestID: "r1"}

	begin1, err := svc.Begin(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Started, begin1.Outcome)

	require.NoError(t, svc.Complete(ctx, key, Response{StatusCode: 200, Body: []byte(`{"message":"hi"}`)}))

	begin2, err := svc.Begin(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Replay, begin2.Outcome)
	require.NotNil(t, begin2.Response)
	assert.Equal(t, 200, begin2.Response.StatusCode)
	assert.Equal(t, `{"message":"hi"}`, string(begin2.Response.Body))
}

func TestInvariant1_InProgressThenExpiry(t *testing.T) {
	store := NewMemoryStore()
	fakeNow := time.Now()
	store.now = func() time.Time { return fakeNow }

	cfg := Config{InProgressTTL: 60 * time.Second, CompletedTTL: 24 * time.Hour}
	svc := NewService(store, cfg, nil, nil)
	ctx := context.Background()
	key := Key{EntityType: "order", EntityID: "o1", RequestID: "r1"}

	begin1, err := svc.Begin(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Started, begin1.Outcome)

	begin2, err := svc.Begin(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, InProgress, begin2.Outcome)

	fakeNow = fakeNow.Add(61 * time.Second)
	begin3, err := svc.Begin(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Started, begin3.Outcome, "in-progress TTL elapsed without completion must unblock a retry")
}

func TestCompleteWithoutBodyIsFatalOnReplay(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, DefaultConfig(), nil, nil)
	ctx := context.Background()
	key := Key{EntityType: "order", EntityID: "o2", RequestID: "r1"}

	require.NoError(t, store.Update(ctx, key, Record{State: StateCompleted, Response: nil}, time.Hour))

	_, err := svc.Begin(ctx, key)
	assert.Error(t, err)
}
