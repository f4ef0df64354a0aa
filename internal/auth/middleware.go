package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/avelery/jobdeck/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing token claims in context
	UserContextKey contextKey = "user"
)

// SessionChecker reports whether the session backing a token is still live.
// A revoked or expired session kills the token regardless of its expiry, and
// a live check best-effort bumps the session's last-active timestamp.
type SessionChecker interface {
	IsSessionActive(ctx context.Context, sessionID string) (bool, error)
	Touch(ctx context.Context, sessionID string)
}

// AuthMiddleware validates bearer tokens, checks the backing session, and
// injects claims into the request context.
func AuthMiddleware(tm *TokenManager, sessions SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Refresh tokens are only accepted by /auth/refresh
			if claims.Type != "access" {
				http.Error(w, "refresh tokens cannot be used for API access", http.StatusUnauthorized)
				return
			}

			active, err := sessions.IsSessionActive(r.Context(), claims.SessionID)
			if err != nil {
				http.Error(w, "unable to verify session", http.StatusServiceUnavailable)
				return
			}
			if !active {
				http.Error(w, "session has been revoked", http.StatusUnauthorized)
				return
			}

			sessions.Touch(r.Context(), claims.SessionID)

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts token claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
