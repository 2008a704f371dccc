// Package middleware provides HTTP middleware for the PhenBOT API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phenbot/study-engine/internal/account"
	"github.com/phenbot/study-engine/internal/observability"
)

type contextKey string

// SessionKey is the context key for the validated session.
const SessionKey contextKey = "session"

// SessionValidator resolves a bearer token to a live session.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*account.Session, error)
}

// Auth rejects requests without a valid session Bearer token. On success the
// user id is placed in the request context for handlers and the logger.
func Auth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				http.Error(w, `{"error": "No token provided"}`, http.StatusUnauthorized)
				return
			}

			session, err := sessions.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error": "Invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := observability.ContextWithUserID(r.Context(), session.UserID)
			ctx = context.WithValue(ctx, SessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// SessionFromContext returns the session stored by Auth.
func SessionFromContext(ctx context.Context) *account.Session {
	if s, ok := ctx.Value(SessionKey).(*account.Session); ok {
		return s
	}
	return nil
}

// Trace copies chi's request id into the logging trace id.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.ContextWithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// CORS returns CORS middleware for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
