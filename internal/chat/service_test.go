package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/metrics"
	"github.com/balungpisah/gotong-royong-core/internal/realtime"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository, *realtime.Bus) {
	t.Helper()
	repo := NewMemoryRepository()
	bus := realtime.New(256, metrics.NewForTest())
	return NewService(repo, bus, nil, metrics.NewForTest()), repo, bus
}

func seedMember(t *testing.T, repo *MemoryRepository, threadID, userID string) {
	t.Helper()
	_, err := repo.UpsertMember(context.Background(), Member{
		ThreadID: threadID, UserID: userID, Role: MemberUser, JoinedAtMs: 1,
	})
	require.NoError(t, err)
}

func TestSendMessageRequestIDReplayReturnsSameMessage(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	seedMember(t, repo, "t1", "u1")

	cmd := SendMessageCommand{ThreadID: "t1", AuthorID: "u1", Body: "hello", RequestID: "req-1", NowMs: 100}
	first, err := svc.SendMessage(ctx, cmd)
	require.NoError(t, err)

	second, err := svc.SendMessage(ctx, cmd)
	require.NoError(t, err)
	require.Equal(t, first.MessageID, second.MessageID)

	all, err := repo.ListMessagesAfter(ctx, "t1", nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 1, "replay must not create a second message")
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.SendMessage(context.Background(), SendMessageCommand{
		ThreadID: "t1", AuthorID: "stranger", Body: "hi", RequestID: "r1", NowMs: 100,
	})
	require.Error(t, err)
}

func TestSendMessageRejectsMutedMember(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	muteUntil := int64(5000)
	_, err := repo.UpsertMember(ctx, Member{ThreadID: "t1", UserID: "u1", Role: MemberUser, JoinedAtMs: 1, MuteUntilMs: &muteUntil})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendMessageCommand{ThreadID: "t1", AuthorID: "u1", Body: "hi", RequestID: "r1", NowMs: 100})
	require.ErrorContains(t, err, "muted")

	_, err = svc.SendMessage(ctx, SendMessageCommand{ThreadID: "t1", AuthorID: "u1", Body: "hi", RequestID: "r2", NowMs: 6000})
	require.NoError(t, err)
}

func TestS5GapRecoveryAfterBurst(t *testing.T) {
	svc, repo, bus := newTestService(t)
	ctx := context.Background()
	seedMember(t, repo, "t1", "m1")
	seedMember(t, repo, "t1", "m2")

	sub := bus.Subscribe("t1", "chat")
	defer sub.Close()

	for i, body := range []string{"m1", "m2", "m3"} {
		_, err := svc.SendMessage(ctx, SendMessageCommand{
			ThreadID: "t1", AuthorID: "m2", Body: body, RequestID: "req-" + body, NowMs: int64(100 + i),
		})
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		sig := <-sub.C()
		require.Equal(t, realtime.SignalMessage, sig.Kind)
	}

	lastCreatedAtMs := int64(102)
	m3, err := repo.GetMessageByRequestID(ctx, "t1", "req-m3")
	require.NoError(t, err)
	lastMessageID := m3.MessageID

	// Send a burst of 257 messages, more than the subscriber's 256-slot
	// channel holds, without draining it. The bus-level Lagged signal is
	// asserted in internal/realtime's tests; here we assert the
	// repository-side gap-recovery path a transport takes after Lagged:
	// every burst message is listed after the m3 cursor.
	for i := 0; i < 257; i++ {
		_, err := svc.SendMessage(ctx, SendMessageCommand{
			ThreadID: "t1", AuthorID: "m2", Body: "burst", RequestID: fmt.Sprintf("burst-%d", i), NowMs: int64(200 + i),
		})
		require.NoError(t, err)
	}

	missed, err := repo.ListMessagesAfter(ctx, "t1", &lastCreatedAtMs, &lastMessageID, 260)
	require.NoError(t, err)
	require.True(t, len(missed) >= 257, "expected all burst messages recoverable after the cursor")
}

func TestCatchupValidatesCursorPair(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedMember(t, repo, "t1", "u1")
	sinceMsg := "m1"

	_, err := svc.Catchup(context.Background(), "t1", "u1", Catchup{SinceMessageID: &sinceMsg}, 100)
	require.ErrorContains(t, err, "since_created_at_ms")
}
