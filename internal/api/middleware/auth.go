package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/colloquyhq/retrieval/internal/api"
)

type contextKey string

// ServiceTokenAuth authenticates the forum application with a single shared
// bearer token, compared in constant time. An empty configured token rejects
// everything; exposing the service unauthenticated is never the default.
func ServiceTokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			presented := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				api.Error(w, http.StatusUnauthorized, "invalid service token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
