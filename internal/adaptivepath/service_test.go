package adaptivepath

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
	return svc, actor.Identity{UserID: "user-1", Username: "budi"}
}

func strp(s string) *string { return &s }

func TestCreatePlanThenReplay(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()

	in := CreatePlanInput{
		EntityID: "proj-1",
		Title:    "Launch plan",
		Branches: []Branch{{BranchID: "b1", Title: "Phase one"}},
	}

	cmd := CreatePlanCommand{Actor: owner, TokenRole: actor.RoleUser, RequestID: "req-1", Input: in}
	first, err := svc.CreatePlan(ctx, cmd)
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Version)

	second, err := svc.CreatePlan(ctx, cmd)
	require.NoError(t, err)
	require.Equal(t, first.PlanID, second.PlanID)
}

func TestUpdatePlanRequiresPrivilegedEditor(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanCommand{
		Actor:     owner,
		TokenRole: actor.RoleUser,
		RequestID: "req-1",
		Input: CreatePlanInput{
			EntityID: "proj-2",
			Title:    "Original",
			Branches: []Branch{{BranchID: "b1", Title: "one"}},
		},
	})
	require.NoError(t, err)

	stranger := actor.Identity{UserID: "user-999"}
	_, err = svc.UpdatePlan(ctx, UpdatePlanCommand{
		Actor:           stranger,
		TokenRole:       actor.RoleUser,
		PlanID:          plan.PlanID,
		ExpectedVersion: plan.Version,
		RequestID:       "req-2",
		Patch:           PlanPatch{Title: strp("Hijacked")},
	})
	require.Error(t, err)
	require.Equal(t, corerr.CodeForbidden, corerr.CodeOf(err))

	mod := actor.Identity{UserID: "mod-1"}
	updated, err := svc.UpdatePlan(ctx, UpdatePlanCommand{
		Actor:           mod,
		TokenRole:       actor.RoleModerator,
		PlanID:          plan.PlanID,
		ExpectedVersion: plan.Version,
		RequestID:       "req-3",
		Patch:           PlanPatch{Title: strp("Moderator edit")},
	})
	require.NoError(t, err)
	require.Equal(t, "Moderator edit", updated.Title)
	require.Equal(t, uint64(2), updated.Version)
}

// TestInvariant4And5LockThenSuggestionBlocked implements scenario S2:
// a direct update locks branch title; a subsequent accepted suggestion
// touching the same field must leave it unchanged.
func TestInvariant4And5LockThenSuggestionBlocked(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanCommand{
		Actor:     owner,
		TokenRole: actor.RoleUser,
		RequestID: "req-1",
		Input: CreatePlanInput{
			EntityID: "proj-3",
			Title:    "Root",
			Branches: []Branch{{BranchID: "b1", Title: "Draft branch"}},
		},
	})
	require.NoError(t, err)

	locked, err := svc.UpdatePlan(ctx, UpdatePlanCommand{
		Actor:           owner,
		TokenRole:       actor.RoleUser,
		PlanID:          plan.PlanID,
		ExpectedVersion: plan.Version,
		RequestID:       "req-2",
		Patch: PlanPatch{Branches: []BranchPatch{
			{BranchID: "b1", Title: strp("Editorially locked title")},
		}},
	})
	require.NoError(t, err)
	require.True(t, locked.Branches[0].LockedFields["title"])

	sug, err := svc.ProposeSuggestion(ctx, ProposeSuggestionCommand{
		Actor:       actor.Identity{UserID: "bot"},
		TokenRole:   actor.RoleUser,
		PlanID:      plan.PlanID,
		BaseVersion: locked.Version,
		Proposal: PlanPatch{Branches: []BranchPatch{
			{BranchID: "b1", Title: strp("AI suggested title")},
		}},
		RequestID: "req-3",
	})
	require.NoError(t, err)

	after, err := svc.AcceptSuggestion(ctx, AcceptSuggestionCommand{
		Actor:        owner,
		TokenRole:    actor.RoleUser,
		SuggestionID: sug.SuggestionID,
		RequestID:    "req-4",
	})
	require.NoError(t, err)
	require.Equal(t, "Editorially locked title", after.Branches[0].Title)
	require.Equal(t, uint64(3), after.Version)
}

func TestRejectSuggestionLeavesPlanUntouched(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanCommand{
		Actor:     owner,
		TokenRole: actor.RoleUser,
		RequestID: "req-1",
		Input: CreatePlanInput{
			EntityID: "proj-4",
			Title:    "Root",
			Branches: []Branch{{BranchID: "b1", Title: "one"}},
		},
	})
	require.NoError(t, err)

	sug, err := svc.ProposeSuggestion(ctx, ProposeSuggestionCommand{
		Actor:       actor.Identity{UserID: "bot"},
		TokenRole:   actor.RoleUser,
		PlanID:      plan.PlanID,
		BaseVersion: plan.Version,
		Proposal:    PlanPatch{Title: strp("Unwanted")},
		RequestID:   "req-2",
	})
	require.NoError(t, err)

	rejected, err := svc.RejectSuggestion(ctx, RejectSuggestionCommand{
		Actor:        owner,
		TokenRole:    actor.RoleUser,
		SuggestionID: sug.SuggestionID,
		Reason:       "not relevant",
		RequestID:    "req-3",
	})
	require.NoError(t, err)
	require.Equal(t, SuggestionRejected, rejected.Status)

	current, err := svc.repo.GetPlan(ctx, plan.PlanID)
	require.NoError(t, err)
	require.Equal(t, "Root", current.Title)
	require.Equal(t, uint64(1), current.Version)
}

func TestUpdatePlanVersionConflict(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanCommand{
		Actor:     owner,
		TokenRole: actor.RoleUser,
		RequestID: "req-1",
		Input: CreatePlanInput{
			EntityID: "proj-5",
			Title:    "Root",
		},
	})
	require.NoError(t, err)

	_, err = svc.UpdatePlan(ctx, UpdatePlanCommand{
		Actor:           owner,
		TokenRole:       actor.RoleUser,
		PlanID:          plan.PlanID,
		ExpectedVersion: plan.Version + 5,
		RequestID:       "req-stale",
		Patch:           PlanPatch{Title: strp("x")},
	})
	require.Error(t, err)
	require.Equal(t, corerr.CodeConflict, corerr.CodeOf(err))
}
