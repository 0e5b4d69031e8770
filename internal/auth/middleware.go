package auth

import (
	"net/http"

	"github.com/gatehouse-auth/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-auth/gatehouse/internal/shared"
)

// RequireSession rejects requests that did not resolve to a live session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.SessionFromContext(r.Context()) == nil {
			httpx.RespondError(w, shared.ErrSessionInvalid)
			return
		}
		next.ServeHTTP(w, r)
	})
}
