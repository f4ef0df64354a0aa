package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/device"
	"github.com/avelery/jobdeck/internal/models"
	"github.com/avelery/jobdeck/internal/services"
	pkghttp "github.com/avelery/jobdeck/pkg/http"
)

// SessionServiceInterface defines the interface for session management.
type SessionServiceInterface interface {
	List(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error)
	Revoke(ctx context.Context, userID, sessionID, currentSessionID string) error
	RevokeAllOthers(ctx context.Context, userID, currentSessionID string) (int, error)
}

// SessionHandler handles the active-sessions security page endpoints.
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// SessionResponse is one row of the sessions list.
type SessionResponse struct {
	ID           string `json:"id"`
	DeviceType   string `json:"device_type"`
	Browser      string `json:"browser"`
	OS           string `json:"os"`
	Description  string `json:"description"`
	Icon         string `json:"icon"`
	IPAddress    string `json:"ip_address"`
	Country      string `json:"country,omitempty"`
	City         string `json:"city,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastActiveAt string `json:"last_active_at"`
	IsCurrent    bool   `json:"is_current"`
}

// List returns the caller's active sessions, current one flagged.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	views, err := h.service.List(r.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	sessions := make([]SessionResponse, 0, len(views))
	for _, view := range views {
		sessions = append(sessions, sessionViewToResponse(view))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// Revoke ends sessions. ?id=<id> revokes one, ?all=true revokes every
// session except the current one.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if r.URL.Query().Get("all") == "true" {
		revoked, err := h.service.RevokeAllOthers(r.Context(), claims.UserID, claims.SessionID)
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
		return
	}

	sessionID := r.URL.Query().Get("id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "Provide ?id=<session id> or ?all=true")
		return
	}

	err := h.service.Revoke(r.Context(), claims.UserID, sessionID, claims.SessionID)
	switch {
	case err == nil:
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Session revoked"})
	case errors.Is(err, models.ErrCannotRevokeCurrentSession):
		pkghttp.WriteBadRequest(w, "Use logout to end the current session")
	case errors.Is(err, models.ErrSessionNotFound):
		pkghttp.WriteNotFound(w, "Session not found")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func sessionViewToResponse(view models.SessionView) SessionResponse {
	return SessionResponse{
		ID:           view.ID,
		DeviceType:   view.DeviceType,
		Browser:      view.Browser,
		OS:           view.OS,
		Description:  view.Describe(),
		Icon:         device.Icon(view.DeviceType),
		IPAddress:    view.IPAddress,
		Country:      view.Country,
		City:         view.City,
		CreatedAt:    view.CreatedAt.UTC().Format(time.RFC3339),
		LastActiveAt: view.LastActiveAt.UTC().Format(time.RFC3339),
		IsCurrent:    view.IsCurrent,
	}
}

var _ SessionServiceInterface = (*services.SessionService)(nil)
