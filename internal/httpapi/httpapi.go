// Package httpapi exposes the core's domain services over HTTP,
// grounded on the teacher's internal/handlers package shape: one
// constructor per route that closes over its dependencies and returns
// an http.HandlerFunc, registered against a *mux.Router in cmd/server.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/corerr"
	"github.com/balungpisah/gotong-royong-core/internal/idutil"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch corerr.CodeOf(err) {
	case corerr.CodeValidation:
		status = http.StatusBadRequest
	case corerr.CodeNotFound:
		status = http.StatusNotFound
	case corerr.CodeConflict:
		status = http.StatusConflict
	case corerr.CodeForbidden:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return corerr.Validation("request body is required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return corerr.Validationf("invalid request body: %v", err)
	}
	return nil
}

// requestActor builds an actor.Identity/Role pair from the gateway
// headers a reverse proxy is expected to set after authenticating the
// caller. There is no session/token verification at this layer — it is
// the gateway's job, same division of responsibility as the teacher's
// TenantMiddleware assuming an already-authenticated request.
func requestActor(r *http.Request) (actor.Identity, actor.Role) {
	id := actor.Identity{
		UserID:   r.Header.Get("X-User-Id"),
		Username: r.Header.Get("X-Username"),
	}
	role := actor.Role(r.Header.Get("X-User-Role"))
	if role == "" {
		role = actor.RoleUser
	}
	return id, role
}

// requestIDs extracts the request/correlation identifiers a client
// supplies for the idempotent-command protocol. A missing request ID
// fails closed: every mutating command in this core requires one.
func requestIDs(r *http.Request) (requestID, correlationID string, err error) {
	requestID = r.Header.Get("X-Request-Id")
	if requestID == "" {
		return "", "", corerr.Validation("X-Request-Id header is required")
	}
	correlationID = r.Header.Get("X-Correlation-Id")
	if correlationID == "" {
		correlationID = requestID
	}
	return requestID, correlationID, nil
}

func nowMs() int64 { return idutil.NowMillis() }

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
