package middleware

import (
	"context"
	"net/http"

	"github.com/ayush/tipfinity/internal/models"
)

type ctxKey struct{}

// SessionSource reports the current session creator, or nil.
type SessionSource interface {
	Current() *models.Creator
}

// RequireSession rejects requests when no creator session exists and
// injects the session creator into the request context.
func RequireSession(sessions SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := sessions.Current()
			if c == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, c)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Creator returns the session creator injected by RequireSession.
func Creator(ctx context.Context) (*models.Creator, bool) {
	c, ok := ctx.Value(ctxKey{}).(*models.Creator)
	return c, ok && c != nil
}
