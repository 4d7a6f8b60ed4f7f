package httpapi

import (
	"net/http"

	"github.com/balungpisah/gotong-royong-core/internal/siaga"
)

type createSiagaDraftRequest struct {
	ScopeID       string `json:"scope_id"`
	EmergencyType string `json:"emergency_type"`
	Severity      int    `json:"severity"`
	Location      string `json:"location"`
	Title         string   `json:"title"`
	Text          string   `json:"text"`
	Tags          []string `json:"tags"`
}

// CreateSiagaDraft handles POST /v1/siaga/broadcasts.
func CreateSiagaDraft(svc *siaga.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req createSiagaDraftRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		b, err := svc.CreateDraft(r.Context(), siaga.CreateDraftCommand{
			Actor:         actorID,
			TokenRole:     role,
			ScopeID:       req.ScopeID,
			EmergencyType: req.EmergencyType,
			Severity:      req.Severity,
			Location:      req.Location,
			Title:         req.Title,
			Text:          req.Text,
			Tags:          req.Tags,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// ActivateSiaga handles POST /v1/siaga/broadcasts/{siagaId}/activate.
func ActivateSiaga(svc *siaga.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		b, err := svc.Activate(r.Context(), siaga.ActivateCommand{
			Actor:         actorID,
			TokenRole:     role,
			SiagaID:       pathVar(r, "siagaId"),
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

type updateSiagaRequest struct {
	Title    *string `json:"title"`
	Text     *string `json:"text"`
	Location *string `json:"location"`
	Severity *int    `json:"severity"`
}

// UpdateSiaga handles PATCH /v1/siaga/broadcasts/{siagaId}.
func UpdateSiaga(svc *siaga.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req updateSiagaRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		b, err := svc.Update(r.Context(), siaga.UpdateCommand{
			Actor:         actorID,
			TokenRole:     role,
			SiagaID:       pathVar(r, "siagaId"),
			Title:         req.Title,
			Text:          req.Text,
			Location:      req.Location,
			Severity:      req.Severity,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

type joinResponderRequest struct {
	Status siaga.ResponderStatus `json:"status"`
}

// JoinSiagaResponder handles PUT /v1/siaga/broadcasts/{siagaId}/responders/me.
func JoinSiagaResponder(svc *siaga.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req joinResponderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		b, err := svc.JoinOrUpdateResponder(r.Context(), siaga.JoinResponderCommand{
			Actor:         actorID,
			TokenRole:     role,
			SiagaID:       pathVar(r, "siagaId"),
			Status:        req.Status,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

type closeSiagaRequest struct {
	Reason  string `json:"reason"`
	Summary string `json:"summary"`
}

// CloseSiaga handles POST /v1/siaga/broadcasts/{siagaId}/close.
func CloseSiaga(svc *siaga.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req closeSiagaRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		b, err := svc.Close(r.Context(), siaga.CloseCommand{
			Actor:         actorID,
			TokenRole:     role,
			SiagaID:       pathVar(r, "siagaId"),
			Reason:        req.Reason,
			Summary:       req.Summary,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

type cancelSiagaRequest struct {
	Reason string `json:"reason"`
}

// CancelSiaga handles POST /v1/siaga/broadcasts/{siagaId}/cancel.
func CancelSiaga(svc *siaga.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req cancelSiagaRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		b, err := svc.Cancel(r.Context(), siaga.CancelCommand{
			Actor:         actorID,
			TokenRole:     role,
			SiagaID:       pathVar(r, "siagaId"),
			Reason:        req.Reason,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}
