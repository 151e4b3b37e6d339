package middleware

import (
	"net/http"
	"strings"

	"github.com/pkordes/hidetrace/backend/internal/auth"
	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// TokenParser verifies a bearer token. *auth.Verifier implements it.
type TokenParser interface {
	Parse(token string) (domain.Principal, error)
}

// NewAuthenticator returns a middleware that resolves the caller's identity.
// A request without an Authorization header proceeds as domain.Anonymous; a
// header that is not a valid bearer token is rejected with 401. Role checks
// happen in the services, not here.
func NewAuthenticator(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), domain.Anonymous)))
				return
			}
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				unauthenticated(w, "authorization header must be 'Bearer <token>'")
				return
			}
			p, err := tokens.Parse(strings.TrimSpace(token))
			if err != nil {
				unauthenticated(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func unauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="hidetrace"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthenticated","message":"` + message + `"}}`))
}
