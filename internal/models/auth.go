package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims backing the outer cookie/bearer mechanism.
// SessionID ties every token to a SessionRegistry record so revoking the
// session invalidates the token regardless of its expiry.
type TokenClaims struct {
	Type      string `json:"type"` // "access" or "refresh"
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}
