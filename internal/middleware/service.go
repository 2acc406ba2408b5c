package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// RequireServiceToken admits only trusted backend callers presenting the
// shared service token as a Bearer token. An empty expected token rejects
// every request.
func RequireServiceToken(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authHeader, "Bearer ")

			if expected == "" || token == "" ||
				subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				log.Printf("[ServiceAuth] Rejected request for %s from %s", r.URL.Path, GetClientIP(r))
				http.Error(w, "Invalid service token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
