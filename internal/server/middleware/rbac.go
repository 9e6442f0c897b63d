package middleware

import "net/http"

// Roles that may read the audit trail. Clinical roles never reach these
// routes.
const (
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
)

// RequireRole returns middleware that checks if the authenticated user has one
// of the allowed roles. It must be chained after Auth.
//
// Returns 401 Unauthorized when no role is in context and 403 Forbidden when
// the role is not allowed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || role == "" {
				writeProblem(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if _, match := allowed[role]; !match {
				writeProblem(w, http.StatusForbidden, "role "+role+" may not read the audit trail")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuditAccess admits admins and auditors.
func RequireAuditAccess() func(http.Handler) http.Handler {
	return RequireRole(RoleAdmin, RoleAuditor)
}

// RequireAdmin is a convenience wrapper for RequireRole(RoleAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(RoleAdmin)
}
