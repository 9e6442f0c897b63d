package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RequireTenant rejects tokens that are not scoped to a tenant. Every audit
// read walks exactly one tenant's chain, so a request without one has nothing
// to read. It must be chained after Auth.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid, ok := TenantIDFromContext(r.Context())
			if ok && tid != uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}

			ev := log.Warn().Str("path", r.URL.Path)
			if actor, ok := ActorIDFromContext(r.Context()); ok {
				ev = ev.Str("user_id", actor)
			}
			ev.Msg("middleware.RequireTenant: token has no tenant")

			writeProblem(w, http.StatusForbidden, "token is not scoped to a tenant")
		})
	}
}
