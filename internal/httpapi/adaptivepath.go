package httpapi

import (
	"net/http"

	"github.com/balungpisah/gotong-royong-core/internal/adaptivepath"
)

type createPlanRequest struct {
	EntityID string                  `json:"entity_id"`
	Title    string                  `json:"title"`
	Summary  string                  `json:"summary"`
	Hints    []string                `json:"hints"`
	Branches []adaptivepath.Branch   `json:"branches"`
}

// CreatePlan handles POST /v1/adaptive-path/plans.
func CreatePlan(svc *adaptivepath.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req createPlanRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		plan, err := svc.CreatePlan(r.Context(), adaptivepath.CreatePlanCommand{
			Actor:         actorID,
			TokenRole:     role,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
			Input: adaptivepath.CreatePlanInput{
				EntityID: req.EntityID,
				Title:    req.Title,
				Summary:  req.Summary,
				Hints:    req.Hints,
				Branches: req.Branches,
			},
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

type updatePlanRequest struct {
	ExpectedVersion uint64                  `json:"expected_version"`
	Patch           adaptivepath.PlanPatch  `json:"patch"`
}

// UpdatePlan handles PATCH /v1/adaptive-path/plans/{planId}.
func UpdatePlan(svc *adaptivepath.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req updatePlanRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		plan, err := svc.UpdatePlan(r.Context(), adaptivepath.UpdatePlanCommand{
			Actor:           actorID,
			TokenRole:       role,
			PlanID:          pathVar(r, "planId"),
			ExpectedVersion: req.ExpectedVersion,
			RequestID:       requestID,
			CorrelationID:   correlationID,
			RequestTSMs:     nowMs(),
			Patch:           req.Patch,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

type proposeSuggestionRequest struct {
	BaseVersion   uint64                 `json:"base_version"`
	Proposal      adaptivepath.PlanPatch `json:"proposal"`
	Rationale     string                 `json:"rationale"`
	ModelID       string                 `json:"model_id"`
	PromptVersion string                 `json:"prompt_version"`
}

// ProposeSuggestion handles POST /v1/adaptive-path/plans/{planId}/suggestions.
func ProposeSuggestion(svc *adaptivepath.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req proposeSuggestionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		suggestion, err := svc.ProposeSuggestion(r.Context(), adaptivepath.ProposeSuggestionCommand{
			Actor:         actorID,
			TokenRole:     role,
			PlanID:        pathVar(r, "planId"),
			BaseVersion:   req.BaseVersion,
			Proposal:      req.Proposal,
			Rationale:     req.Rationale,
			ModelID:       req.ModelID,
			PromptVersion: req.PromptVersion,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, suggestion)
	}
}

// AcceptSuggestion handles POST /v1/adaptive-path/suggestions/{suggestionId}/accept.
func AcceptSuggestion(svc *adaptivepath.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}

		plan, err := svc.AcceptSuggestion(r.Context(), adaptivepath.AcceptSuggestionCommand{
			Actor:         actorID,
			TokenRole:     role,
			SuggestionID:  pathVar(r, "suggestionId"),
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

type rejectSuggestionRequest struct {
	Reason string `json:"reason"`
}

// RejectSuggestion handles POST /v1/adaptive-path/suggestions/{suggestionId}/reject.
func RejectSuggestion(svc *adaptivepath.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := requestActor(r)
		requestID, correlationID, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req rejectSuggestionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		suggestion, err := svc.RejectSuggestion(r.Context(), adaptivepath.RejectSuggestionCommand{
			Actor:         actorID,
			TokenRole:     role,
			SuggestionID:  pathVar(r, "suggestionId"),
			Reason:        req.Reason,
			RequestID:     requestID,
			CorrelationID: correlationID,
			RequestTSMs:   nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, suggestion)
	}
}
