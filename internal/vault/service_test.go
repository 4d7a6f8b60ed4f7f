package vault

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
	return svc, actor.Identity{UserID: "author-1", Username: "wawan"}
}

func strp(s string) *string { return &s }

func TestVaultSealPublishLifecycle(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{Actor: author, TokenRole: actor.RoleUser, Payload: strp("rahasia"), RequestID: "req-1"})
	require.NoError(t, err)
	require.Equal(t, StateDraft, draft.State)

	sealed, err := svc.Seal(ctx, SealCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, SealedHash: "abc123", RequestID: "req-2"})
	require.NoError(t, err)
	require.Equal(t, StateSealed, sealed.State)
	require.NotNil(t, sealed.SealedAtMs)

	_, err = svc.UpdateDraft(ctx, UpdateDraftCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, Payload: strp("x"), RequestID: "req-3"})
	require.Error(t, err)
	require.ErrorIs(t, err, errDraftOnly)

	published, err := svc.Publish(ctx, PublishCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, RequestID: "req-4"})
	require.NoError(t, err)
	require.Equal(t, StatePublished, published.State)
	require.Equal(t, "abc123", *published.SealedHash)
}

func TestVaultRevokeClearsPayloadPreservesHash(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{Actor: author, TokenRole: actor.RoleUser, Payload: strp("rahasia"), RequestID: "req-1"})
	require.NoError(t, err)

	_, err = svc.AddTrustee(ctx, AddTrusteeCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, TrusteeUserID: "trustee-1", RequestID: "req-2"})
	require.NoError(t, err)

	sealed, err := svc.Seal(ctx, SealCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, SealedHash: "hash-1", RequestID: "req-3"})
	require.NoError(t, err)

	trustee := actor.Identity{UserID: "trustee-1"}
	revoked, err := svc.Revoke(ctx, RevokeCommand{Actor: trustee, TokenRole: actor.RoleUser, VaultEntryID: sealed.VaultEntryID, RequestID: "req-4"})
	require.NoError(t, err)
	require.Equal(t, StateRevoked, revoked.State)
	require.Nil(t, revoked.Payload)
	require.Equal(t, "hash-1", *revoked.SealedHash)
}

func TestVaultDeleteDraftRemovesEntry(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{Actor: author, TokenRole: actor.RoleUser, Title: "surat wasiat", RequestID: "req-1"})
	require.NoError(t, err)
	require.Equal(t, "surat wasiat", draft.Title)

	err = svc.DeleteDraft(ctx, DeleteDraftCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, RequestID: "req-2"})
	require.NoError(t, err)

	_, err = svc.UpdateDraft(ctx, UpdateDraftCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, Payload: strp("x"), RequestID: "req-3"})
	require.Error(t, err)
	require.Equal(t, corerr.CodeNotFound, corerr.CodeOf(err))
}

func TestVaultDeleteDraftRejectsOnceSealed(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{Actor: author, TokenRole: actor.RoleUser, RequestID: "req-1"})
	require.NoError(t, err)
	sealed, err := svc.Seal(ctx, SealCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, SealedHash: "h", RequestID: "req-2"})
	require.NoError(t, err)

	err = svc.DeleteDraft(ctx, DeleteDraftCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: sealed.VaultEntryID, RequestID: "req-3"})
	require.Error(t, err)
	require.ErrorIs(t, err, errDraftOnly)
}

func TestVaultOnlyAuthorCanExpire(t *testing.T) {
	svc, author := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftCommand{Actor: author, TokenRole: actor.RoleUser, RequestID: "req-1"})
	require.NoError(t, err)
	sealed, err := svc.Seal(ctx, SealCommand{Actor: author, TokenRole: actor.RoleUser, VaultEntryID: draft.VaultEntryID, SealedHash: "h", RequestID: "req-2"})
	require.NoError(t, err)

	trustee := actor.Identity{UserID: "trustee-1"}
	_, err = svc.Expire(ctx, ExpireCommand{Actor: trustee, TokenRole: actor.RoleUser, VaultEntryID: sealed.VaultEntryID, RequestID: "req-3"})
	require.Error(t, err)
	require.Equal(t, corerr.CodeForbidden, corerr.CodeOf(err))
}
