package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListMessagesAfterLexicographicTiebreak(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	// Two messages with the same created_at_ms must still sort by message_id.
	_, err := repo.CreateMessage(ctx, Message{ThreadID: "t1", MessageID: "b", CreatedAtMs: 100, RequestID: "r-b"})
	require.NoError(t, err)
	_, err = repo.CreateMessage(ctx, Message{ThreadID: "t1", MessageID: "a", CreatedAtMs: 100, RequestID: "r-a"})
	require.NoError(t, err)

	sinceID := "a"
	sinceTs := int64(100)
	after, err := repo.ListMessagesAfter(ctx, "t1", &sinceTs, &sinceID, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, "b", after[0].MessageID)
}

func TestCreateMessageConflictsOnDuplicateRequestID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.CreateMessage(ctx, Message{ThreadID: "t1", MessageID: "m1", RequestID: "r1"})
	require.NoError(t, err)

	_, err = repo.CreateMessage(ctx, Message{ThreadID: "t1", MessageID: "m2", RequestID: "r1"})
	require.Error(t, err)
}

func TestListMessagesAfterNilCursorReturnsAll(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_, _ = repo.CreateMessage(ctx, Message{ThreadID: "t1", MessageID: "m1", CreatedAtMs: 1, RequestID: "r1"})
	_, _ = repo.CreateMessage(ctx, Message{ThreadID: "t1", MessageID: "m2", CreatedAtMs: 2, RequestID: "r2"})

	all, err := repo.ListMessagesAfter(ctx, "t1", nil, nil, 50)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
