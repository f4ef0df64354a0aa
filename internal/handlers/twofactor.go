package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/models"
	pkghttp "github.com/avelery/jobdeck/pkg/http"
)

// TwoFactorServiceInterface defines the interface for 2FA lifecycle logic.
type TwoFactorServiceInterface interface {
	Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	Enable(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID, code string) error
	Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

// TwoFactorHandler handles 2FA management requests. All routes sit behind the
// auth middleware.
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
}

// NewTwoFactorHandler creates a new TwoFactorHandler.
func NewTwoFactorHandler(service TwoFactorServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{service: service}
}

// TwoFactorActionRequest represents the request body for 2FA state changes.
type TwoFactorActionRequest struct {
	Action string `json:"action" validate:"required,oneof=setup enable disable"`
	Code   string `json:"code,omitempty" validate:"omitempty,max=32"`
}

// Status returns whether 2FA is enabled and how many backup codes remain.
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.service.Status(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Action dispatches setup, enable, and disable.
func (h *TwoFactorHandler) Action(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req TwoFactorActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	switch req.Action {
	case "setup":
		setup, err := h.service.Setup(r.Context(), claims.UserID, claims.Email)
		if err != nil {
			writeTwoFactorError(w, err)
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, setup)

	case "enable":
		if req.Code == "" {
			pkghttp.WriteBadRequest(w, "A verification code is required to enable")
			return
		}
		if err := h.service.Enable(r.Context(), claims.UserID, req.Code); err != nil {
			writeTwoFactorError(w, err)
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Two-factor authentication enabled"})

	case "disable":
		if req.Code == "" {
			pkghttp.WriteBadRequest(w, "A verification code is required to disable")
			return
		}
		if err := h.service.Disable(r.Context(), claims.UserID, req.Code); err != nil {
			writeTwoFactorError(w, err)
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Two-factor authentication disabled"})
	}
}

func writeTwoFactorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTwoFactorAlreadyEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteBadRequest(w, "Two-factor authentication is not set up")
	case errors.Is(err, models.ErrInvalidTwoFactorCode), errors.Is(err, models.ErrInvalidBackupCode):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
