package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

func TestRequestActorDefaultsToUserRole(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-User-Id", "u1")
	r.Header.Set("X-Username", "alice")

	id, role := requestActor(r)
	require.Equal(t, actor.Identity{UserID: "u1", Username: "alice"}, id)
	require.Equal(t, actor.RoleUser, role)
}

func TestRequestActorHonorsExplicitRole(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-User-Role", "admin")

	_, role := requestActor(r)
	require.Equal(t, actor.RoleAdmin, role)
}

func TestRequestIDsFailsClosedWithoutRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	_, _, err := requestIDs(r)
	require.Error(t, err)
}

func TestRequestIDsDefaultsCorrelationToRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Request-Id", "req-1")

	requestID, correlationID, err := requestIDs(r)
	require.NoError(t, err)
	require.Equal(t, "req-1", requestID)
	require.Equal(t, "req-1", correlationID)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unexpected":"field"}`))
	var dst struct {
		Known string `json:"known"`
	}
	err := decodeJSON(r, &dst)
	require.Error(t, err)
}

func TestWriteErrorMapsCodeToStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, corerr.NotFound("vault entry"))
	require.Equal(t, http.StatusNotFound, w.Code)
}
