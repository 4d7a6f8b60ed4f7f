package httpapi

import (
	"errors"
	"net/http"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
	"github.com/balungpisah/gotong-royong-core/internal/markov"
)

// GetUserReputation handles GET /v1/markov/users/{userId}/reputation,
// the profile-class read-through of scenario S6: first call is a Miss
// against the origin, a call inside the stale window returns the old
// value and kicks off a background refresh, a fresh-hit call returns
// straight from the cache.
func GetUserReputation(svc *markov.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := pathVar(r, "userId")
		if userID == "" {
			writeError(w, corerr.Validation("userId path segment is required"))
			return
		}
		value, err := svc.Read(r.Context(), markov.Request{
			Class:    markov.ClassProfile,
			Path:     "/users/%s/reputation",
			Identity: userID,
		})
		if err != nil {
			writeError(w, toCoreErr(err))
			return
		}
		writeJSON(w, http.StatusOK, value)
	}
}

// toCoreErr maps a *markov.Error's upstream classification onto the
// transport-facing corerr taxonomy so writeError picks a sensible HTTP
// status instead of defaulting every cache-layer failure to 500.
func toCoreErr(err error) error {
	var me *markov.Error
	if !errors.As(err, &me) {
		return err
	}
	switch me.Code {
	case markov.ErrBadRequest:
		return corerr.Validation(me.Message)
	case markov.ErrNotFound:
		return corerr.NotFound("markov profile")
	case markov.ErrForbidden:
		return corerr.Forbidden(me.Message)
	default:
		return corerr.Internal("markov read", err)
	}
}
