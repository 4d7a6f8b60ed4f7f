package httpapi

import (
	"net/http"

	"github.com/balungpisah/gotong-royong-core/internal/moderation"
)

type writeDecisionRequest struct {
	AuthorID              string            `json:"author_id"`
	ContentKind           string            `json:"content_kind"`
	Action                moderation.Action `json:"action"`
	Confidence            float64           `json:"confidence"`
	HoldExpiresAtMs       *int64            `json:"hold_expires_at_ms"`
	AutoReleaseIfNoAction bool              `json:"auto_release_if_no_action"`
}

// WriteModerationDecision handles POST /v1/moderation/content/{contentId}/decisions.
func WriteModerationDecision(svc *moderation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req writeDecisionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		content, err := svc.WriteDecision(r.Context(), moderation.WriteDecisionCommand{
			Actor:                 actorID,
			TokenRole:             role,
			ContentID:             pathVar(r, "contentId"),
			AuthorID:              req.AuthorID,
			ContentKind:           req.ContentKind,
			Action:                req.Action,
			Confidence:            req.Confidence,
			HoldExpiresAtMs:       req.HoldExpiresAtMs,
			AutoReleaseIfNoAction: req.AutoReleaseIfNoAction,
			RequestID:             requestID,
			CorrelationID:         correlationID,
			RequestTSMs:           nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, content)
	}
}
