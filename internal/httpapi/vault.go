package httpapi

import (
	"net/http"

	"github.com/balungpisah/gotong-royong-core/internal/vault"
)

type createVaultDraftRequest struct {
	Title   string  `json:"title"`
	Payload *string `json:"payload"`
}

// CreateVaultDraft handles POST /v1/vault/entries.
func CreateVaultDraft(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req createVaultDraftRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.CreateDraft(r.Context(), vault.CreateDraftCommand{
			Actor:         actorID,
			TokenRole:     role,
			Title:         req.Title,
			Payload:       req.Payload,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

type updateVaultDraftRequest struct {
	Title          *string  `json:"title"`
	Payload        *string  `json:"payload"`
	AttachmentRefs []string `json:"attachment_refs"`
}

// UpdateVaultDraft handles PATCH /v1/vault/entries/{entryId}.
func UpdateVaultDraft(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req updateVaultDraftRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.UpdateDraft(r.Context(), vault.UpdateDraftCommand{
			Actor:          actorID,
			TokenRole:      role,
			VaultEntryID:   pathVar(r, "entryId"),
			Title:          req.Title,
			Payload:        req.Payload,
			AttachmentRefs: req.AttachmentRefs,
			RequestID:      requestID,
			CorrelationID:  correlationID,
			RequestTSMs:    nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

type trusteeRequest struct {
	TrusteeUserID string `json:"trustee_user_id"`
}

// AddVaultTrustee handles POST /v1/vault/entries/{entryId}/trustees.
func AddVaultTrustee(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req trusteeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.AddTrustee(r.Context(), vault.AddTrusteeCommand{
			Actor:         actorID,
			TokenRole:     role,
			VaultEntryID:  pathVar(r, "entryId"),
			TrusteeUserID: req.TrusteeUserID,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// RemoveVaultTrustee handles DELETE /v1/vault/entries/{entryId}/trustees/{trusteeId}.
func RemoveVaultTrustee(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.RemoveTrustee(r.Context(), vault.RemoveTrusteeCommand{
			Actor:         actorID,
			TokenRole:     role,
			VaultEntryID:  pathVar(r, "entryId"),
			TrusteeUserID: pathVar(r, "trusteeId"),
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// DeleteVaultDraft handles DELETE /v1/vault/entries/{entryId}.
func DeleteVaultDraft(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		err = svc.DeleteDraft(r.Context(), vault.DeleteDraftCommand{
			Actor:         actorID,
			TokenRole:     role,
			VaultEntryID:  pathVar(r, "entryId"),
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sealVaultRequest struct {
	SealedHash      string  `json:"sealed_hash"`
	EncryptionKeyID *string `json:"encryption_key_id"`
}

// SealVaultEntry handles POST /v1/vault/entries/{entryId}/seal.
func SealVaultEntry(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req sealVaultRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.Seal(r.Context(), vault.SealCommand{
			Actor:           actorID,
			TokenRole:       role,
			VaultEntryID:    pathVar(r, "entryId"),
			SealedHash:      req.SealedHash,
			EncryptionKeyID: req.EncryptionKeyID,
			RequestID:       requestID,
			CorrelationID:   correlationID,
			RequestTSMs:     nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// PublishVaultEntry handles POST /v1/vault/entries/{entryId}/publish.
func PublishVaultEntry(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.Publish(r.Context(), vault.PublishCommand{
			Actor:         actorID,
			TokenRole:     role,
			VaultEntryID:  pathVar(r, "entryId"),
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// ExpireVaultEntry handles POST /v1/vault/entries/{entryId}/expire.
func ExpireVaultEntry(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.Expire(r.Context(), vault.ExpireCommand{
			Actor:         actorID,
			TokenRole:     role,
			VaultEntryID:  pathVar(r, "entryId"),
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// RevokeVaultEntry handles POST /v1/vault/entries/{entryId}/revoke.
func RevokeVaultEntry(svc *vault.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		e, err := svc.Revoke(r.Context(), vault.RevokeCommand{
			Actor:         actorID,
			TokenRole:     role,
			VaultEntryID:  pathVar(r, "entryId"),
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}
