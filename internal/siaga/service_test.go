package siaga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

func newTestService() (*Service, actor.Identity) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	return svc, actor.Identity{UserID: "author-1", Username: "sari"}
}

// TestS3SiagaLifecycle implements scenario S3 literally.
func TestS3SiagaLifecycle(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{
		Actor:         author,
		TokenRole:     actor.RoleUser,
		ScopeID:       "rw-05",
		EmergencyType: "flood",
		Severity:      4,
		Location:      "RW 05",
		Title:         "Banjir di RW 05",
		RequestID:     "req-1",
	})
	require.NoError(t, err)
	require.Equal(t, StateDraft, draft.State)

	active, err := svc.Activate(ctx, ActivateCommand{Actor: author, TokenRole: actor.RoleUser, SiagaID: draft.SiagaID, RequestID: "req-2"})
	require.NoError(t, err)
	require.Equal(t, StateActive, active.State)

	responderA := actor.Identity{UserID: "responder-a"}
	joined, err := svc.JoinOrUpdateResponder(ctx, JoinResponderCommand{
		Actor: responderA, TokenRole: actor.RoleUser, SiagaID: draft.SiagaID, Status: ResponderComing, RequestID: "req-3",
	})
	require.NoError(t, err)
	require.Len(t, joined.Responders, 1)

	sameStatus, err := svc.JoinOrUpdateResponder(ctx, JoinResponderCommand{
		Actor: responderA, TokenRole: actor.RoleUser, SiagaID: draft.SiagaID, Status: ResponderComing, RequestID: "req-4",
	})
	require.NoError(t, err)
	require.Equal(t, joined.UpdatedAtMs, sameStatus.UpdatedAtMs)
	require.Len(t, sameStatus.Responders, 1)

	closed, err := svc.Close(ctx, CloseCommand{
		Actor: author, TokenRole: actor.RoleUser, SiagaID: draft.SiagaID,
		Reason: "resolved", Summary: "Semua aman", RequestID: "req-5",
	})
	require.NoError(t, err)
	require.Equal(t, StateResolved, closed.State)
	require.NotNil(t, closed.Closure)
	require.Equal(t, 1, closed.Closure.TotalResponders)
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{
		Actor: author, TokenRole: actor.RoleUser, ScopeID: "rw-09", Title: "Kebakaran", Severity: 3, RequestID: "req-1",
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, CancelCommand{Actor: author, TokenRole: actor.RoleUser, SiagaID: draft.SiagaID, Reason: "false alarm", RequestID: "req-2"})
	require.NoError(t, err)
	require.Equal(t, StateCancelled, cancelled.State)

	_, err = svc.Activate(ctx, ActivateCommand{Actor: author, TokenRole: actor.RoleUser, SiagaID: draft.SiagaID, RequestID: "req-3"})
	require.Error(t, err)
	require.Equal(t, corerr.CodeConflict, corerr.CodeOf(err))
}

func TestResponderAnonymizationPredicate(t *testing.T) {
	r := Responder{UserID: "u-2", JoinedAtMs: 1_000_000}
	require.True(t, r.VisibleTo("author-1", "author-1", 1_000_000))
	require.True(t, r.VisibleTo("u-2", "author-1", 1_000_000))

	withinWindow := 1_000_000 + 6*24*60*60*1000
	require.True(t, r.VisibleTo("stranger", "author-1", int64(withinWindow)))

	pastWindow := 1_000_000 + 8*24*60*60*1000
	require.False(t, r.VisibleTo("stranger", "author-1", int64(pastWindow)))
}

func TestOnlyAuthorOrAdminCanActivate(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{
		Actor: author, TokenRole: actor.RoleUser, ScopeID: "rw-11", Title: "Gempa", Severity: 5, RequestID: "req-1",
	})
	require.NoError(t, err)

	stranger := actor.Identity{UserID: "stranger"}
	_, err = svc.Activate(ctx, ActivateCommand{Actor: stranger, TokenRole: actor.RoleUser, SiagaID: draft.SiagaID, RequestID: "req-2"})
	require.Error(t, err)
	require.Equal(t, corerr.CodeForbidden, corerr.CodeOf(err))

	admin := actor.Identity{UserID: "admin-1"}
	active, err := svc.Activate(ctx, ActivateCommand{Actor: admin, TokenRole: actor.RoleAdmin, SiagaID: draft.SiagaID, RequestID: "req-3"})
	require.NoError(t, err)
	require.Equal(t, StateActive, active.State)
}
