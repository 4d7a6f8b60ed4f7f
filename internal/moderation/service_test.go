package moderation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

type recordingScheduler struct {
	calls []string
}

func (r *recordingScheduler) ScheduleAt(_ context.Context, runAtMs int64, jobType string, payload map[string]string, requestID string) error {
	r.calls = append(r.calls, requestID)
	return nil
}

func int64p(v int64) *int64 { return &v }

// TestS4StaleAutoReleaseNoOp implements scenario S4 literally.
func TestS4StaleAutoReleaseNoOp(t *testing.T) {
	repo := NewMemoryRepository()
	sched := &recordingScheduler{}
	svc := NewService(repo, sched, nil, nil)
	ctx := context.Background()

	mod := actor.Identity{UserID: "mod-1"}
	admin := actor.Identity{UserID: "system", Username: "system"}

	v1, err := svc.WriteDecision(ctx, WriteDecisionCommand{
		Actor: mod, TokenRole: actor.RoleModerator, ContentID: "content-1", AuthorID: "author-1",
		Action: ActionHoldForReview, Confidence: 0.6, HoldExpiresAtMs: int64p(1_000_300_000),
		AutoReleaseIfNoAction: true, RequestID: "req-v1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, v1.Status)
	require.Len(t, sched.calls, 1)
	require.Equal(t, AutoReleaseRequestID("content-1", "req-v1"), sched.calls[0])

	v2, err := svc.WriteDecision(ctx, WriteDecisionCommand{
		Actor: mod, TokenRole: actor.RoleModerator, ContentID: "content-1",
		Action: ActionHoldForReview, Confidence: 0.6, HoldExpiresAtMs: int64p(1_007_200_000),
		AutoReleaseIfNoAction: true, RequestID: "req-v2",
	})
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, v2.Status)
	require.Equal(t, "req-v2", v2.RequestID)

	result, err := svc.AutoRelease(ctx, AutoReleaseCommand{
		Actor: admin, TokenRole: actor.RoleSystem, ContentID: "content-1",
		HoldDecisionRequestID: "req-v1", RequestID: "timer:content-1:1000300000",
		RequestTSMs: 1_007_200_000,
	})
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, result.Status)
	require.Equal(t, "req-v2", result.RequestID)

	last := result.Decisions[len(result.Decisions)-1]
	require.Equal(t, "auto_release_stale_request", last.ReasonCode)
}

func TestAutoReleaseFiresWhenCurrent(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	mod := actor.Identity{UserID: "mod-1"}
	admin := actor.Identity{UserID: "system"}

	decided, err := svc.WriteDecision(ctx, WriteDecisionCommand{
		Actor: mod, TokenRole: actor.RoleModerator, ContentID: "content-2", AuthorID: "author-2",
		Action: ActionHoldForReview, Confidence: 0.5, HoldExpiresAtMs: int64p(500),
		AutoReleaseIfNoAction: true, RequestID: "req-1",
	})
	require.NoError(t, err)

	released, err := svc.AutoRelease(ctx, AutoReleaseCommand{
		Actor: admin, TokenRole: actor.RoleAdmin, ContentID: decided.ContentID,
		HoldDecisionRequestID: "req-1", RequestID: "timer:content-2:500",
		RequestTSMs: 500,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPublished, released.Status)
	last := released.Decisions[len(released.Decisions)-1]
	require.Equal(t, "auto_release", last.ReasonCode)
	require.Equal(t, ActionPublishNow, last.Action)
}

func TestAutoReleaseRejectsBeforeHoldExpires(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	mod := actor.Identity{UserID: "mod-1"}
	admin := actor.Identity{UserID: "system"}

	decided, err := svc.WriteDecision(ctx, WriteDecisionCommand{
		Actor: mod, TokenRole: actor.RoleModerator, ContentID: "content-3", AuthorID: "author-3",
		Action: ActionHoldForReview, Confidence: 0.5, HoldExpiresAtMs: int64p(1_000_000),
		AutoReleaseIfNoAction: true, RequestID: "req-1",
	})
	require.NoError(t, err)

	_, err = svc.AutoRelease(ctx, AutoReleaseCommand{
		Actor: admin, TokenRole: actor.RoleAdmin, ContentID: decided.ContentID,
		HoldDecisionRequestID: "req-1", RequestID: "timer:content-3:1000000",
		RequestTSMs: 999_999,
	})
	require.Error(t, err)
	require.Equal(t, corerr.CodeValidation, corerr.CodeOf(err))
}

func TestWriteDecisionRequiresModerationRole(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.WriteDecision(ctx, WriteDecisionCommand{
		Actor: actor.Identity{UserID: "u1"}, TokenRole: actor.RoleUser, ContentID: "content-3",
		Action: ActionPublishNow, RequestID: "req-1",
	})
	require.Error(t, err)
	require.Equal(t, corerr.CodeForbidden, corerr.CodeOf(err))
}
