package api

import (
	"log"
	"net/http"
	"strings"

	"marketchat/auth"
)

// Authenticate resolves the request's session from an Authorization bearer
// token, or from the access_token query parameter for websocket clients that
// cannot set headers.
func Authenticate(tokens SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			session, err := tokens.Session(token)
			if err != nil {
				log.Printf("api: rejected token remote=%s: %v", r.RemoteAddr, err)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}
