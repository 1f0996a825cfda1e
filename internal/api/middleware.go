package api

import (
	"net/http"

	"github.com/syncwave/syncwave/internal/auth"
)

// basicAuthMiddleware guards /api/dashboard/* with the teacher-style
// constant-time Basic-auth check.
func basicAuthMiddleware(mgr *auth.BasicAuthManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if _, err := mgr.ValidateCredentials(header); err != nil {
				w.Header().Set("WWW-Authenticate", mgr.WWWAuthenticate())
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid dashboard credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
