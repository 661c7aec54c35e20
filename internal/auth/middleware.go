package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/model"
)

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware guards routes with bearer tokens and capabilities.
type Middleware struct {
	issuer  *Issuer
	onError ErrorWriter
}

func NewMiddleware(issuer *Issuer, onError ErrorWriter) *Middleware {
	return &Middleware{issuer: issuer, onError: onError}
}

// Authenticate rejects requests without a valid bearer token and attaches
// the caller identity to the context. The identity comes from the token
// alone, so role changes and deletions apply once the token expires.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			m.onError(w, r, apperr.Unauthenticated("MissingCredential", "missing bearer token"))
			return
		}
		id, err := m.issuer.Parse(strings.TrimSpace(token))
		if err != nil {
			slog.Debug("rejected token", "error", err)
			m.onError(w, r, apperr.Unauthenticated("InvalidCredential", "invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithIdentity(r.Context(), id)))
	})
}

// Require admits callers holding at least one of caps.
func (m *Middleware) Require(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := model.IdentityFromContext(r.Context())
			if !ok {
				m.onError(w, r, apperr.Unauthenticated("MissingCredential", "missing bearer token"))
				return
			}
			for _, c := range caps {
				if Allowed(id.Role, c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("access denied", "user", id.ID, "role", id.Role, "path", r.URL.Path)
			m.onError(w, r, Check(id, caps[0]))
		})
	}
}
