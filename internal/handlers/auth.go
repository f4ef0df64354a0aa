package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/models"
	"github.com/avelery/jobdeck/internal/services"
	pkghttp "github.com/avelery/jobdeck/pkg/http"
)

// AuthServiceInterface defines the interface for login business logic.
type AuthServiceInterface interface {
	Login(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error)
	Logout(ctx context.Context, userID, sessionID string) error
	RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	TwoFactorCode string `json:"two_factor_code,omitempty" validate:"omitempty,max=32"`
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login handles user login, including the optional second factor.
//
// All credential failures produce the same 401 body. A login that needs a
// second factor answers 401 with requires_2fa so the client can re-submit
// with a code, and a locked key answers 429 with retry details.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.Login(r.Context(), services.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		UserAgent:     r.Header.Get("User-Agent"),
		Network: models.NetworkInfo{
			IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
			Country:   r.Header.Get("X-Geo-Country"),
			City:      r.Header.Get("X-Geo-City"),
		},
	})
	if err != nil {
		writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

func writeLoginError(w http.ResponseWriter, err error) {
	var lockErr *models.LockoutError
	switch {
	case errors.As(err, &lockErr):
		pkghttp.WriteLocked(w, lockErr.Error(), pkghttp.LockoutDetails{
			RemainingAttempts: 0,
			LockedUntilMs:     lockErr.LockedUntil.UnixMilli(),
			RetryAfterMs:      lockErr.RetryAfter.Milliseconds(),
		})
	case errors.Is(err, models.ErrTwoFactorRequired):
		pkghttp.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"error":        "two_factor_required",
			"message":      "Two-factor authentication code required",
			"requires_2fa": true,
		})
	case errors.Is(err, models.ErrFederatedOnlyAccount):
		pkghttp.WriteError(w, http.StatusUnauthorized, "federated_account",
			"This account signs in through an identity provider")
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrInvalidTwoFactorCode),
		errors.Is(err, models.ErrInvalidBackupCode):
		pkghttp.WriteUnauthorized(w, "Invalid email or password")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), claims.UserID, claims.SessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// Already gone; logout is idempotent from the client's view.
			pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// RefreshToken exchanges a refresh token for a fresh pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrSessionRevoked):
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}
