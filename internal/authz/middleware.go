package authz

import (
	"net/http"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

// RequireAuthority returns a middleware that ensures the requester was granted the authority.
func RequireAuthority(required models.Authority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromRequest(r)
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if !id.HasAuthority(required) {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthorityHandler applies the authority middleware inline when registering routes.
func RequireAuthorityHandler(required models.Authority, next http.Handler) http.Handler {
	return RequireAuthority(required)(next)
}
