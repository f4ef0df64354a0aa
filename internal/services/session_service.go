package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/avelery/jobdeck/internal/device"
	"github.com/avelery/jobdeck/internal/models"
	"github.com/avelery/jobdeck/pkg/logger"
	"github.com/google/uuid"
)

// SessionStore defines the storage interface for session records.
type SessionStore interface {
	Insert(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionService manages login sessions: creation at login, listing for the
// security page, revocation, and the activity check the auth middleware runs
// on every request.
type SessionService struct {
	store      SessionStore
	logger     *slog.Logger
	audit      *logger.AuditLogger
	sessionTTL time.Duration

	now func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(store SessionStore, log *slog.Logger, audit *logger.AuditLogger, sessionTTL time.Duration) *SessionService {
	return &SessionService{
		store:      store,
		logger:     log,
		audit:      audit,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// Create records a new session for a successful login, capturing the parsed
// device fingerprint and network info for later display.
func (s *SessionService) Create(ctx context.Context, userID string, fp device.Fingerprint, userAgent string, network models.NetworkInfo) (*models.Session, error) {
	now := s.now()
	session := &models.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		DeviceType:   fp.DeviceType,
		Browser:      fp.Browser,
		OS:           fp.OS,
		UserAgent:    userAgent,
		IPAddress:    network.IPAddress,
		Country:      network.Country,
		City:         network.City,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}

	if err := s.store.Insert(ctx, session); err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogSessionEvent(logger.AuditEvent{
		EventType: "session_created",
		UserID:    userID,
		SessionID: session.ID,
		IPAddress: network.IPAddress,
		Metadata:  map[string]string{"device": session.Describe()},
	})
	return session, nil
}

// List returns the user's active sessions, newest first, each flagged with
// whether it is the session making the request. The flag is computed here at
// read time and never stored.
func (s *SessionService) List(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error) {
	sessions, err := s.store.ListByUser(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, models.SessionView{
			Session:   *session,
			IsCurrent: session.ID == currentSessionID,
		})
	}
	return views, nil
}

// Revoke revokes one of the user's other sessions. The current session is
// refused; logging out is the way to end it. Sessions of other users read as
// not found so ids cannot be probed.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID, currentSessionID string) error {
	if sessionID == currentSessionID {
		return models.ErrCannotRevokeCurrentSession
	}

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return models.ErrSessionNotFound
	}
	if session.UserID != userID || !session.IsActive(s.now()) {
		return models.ErrSessionNotFound
	}

	if err := s.store.Revoke(ctx, sessionID, s.now()); err != nil {
		return err
	}

	s.audit.LogSessionEvent(logger.AuditEvent{
		EventType: "session_revoked",
		UserID:    userID,
		SessionID: sessionID,
	})
	return nil
}

// RevokeAllOthers revokes every active session except the current one and
// returns how many were revoked.
func (s *SessionService) RevokeAllOthers(ctx context.Context, userID, currentSessionID string) (int, error) {
	now := s.now()
	sessions, err := s.store.ListByUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, session := range sessions {
		if session.ID == currentSessionID {
			continue
		}
		if err := s.store.Revoke(ctx, session.ID, now); err != nil {
			if errors.Is(err, models.ErrSessionNotFound) {
				continue
			}
			return revoked, err
		}
		revoked++
	}

	s.audit.LogSessionEvent(logger.AuditEvent{
		EventType: "sessions_revoked_all",
		UserID:    userID,
		SessionID: currentSessionID,
		Metadata:  map[string]string{"revoked": strconv.Itoa(revoked)},
	})
	return revoked, nil
}

// RevokeCurrent ends the caller's own session. Used by logout; idempotent.
func (s *SessionService) RevokeCurrent(ctx context.Context, userID, sessionID string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return models.ErrSessionNotFound
	}
	if session.UserID != userID {
		return models.ErrSessionNotFound
	}

	if err := s.store.Revoke(ctx, sessionID, s.now()); err != nil {
		return err
	}

	s.audit.LogSessionEvent(logger.AuditEvent{
		EventType: "session_logout",
		UserID:    userID,
		SessionID: sessionID,
	})
	return nil
}

// IsSessionActive reports whether the session still authorizes requests.
// Revoked, expired, and unknown sessions all read as inactive.
func (s *SessionService) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return session.IsActive(s.now()), nil
}

// Touch bumps the session's last-activity timestamp. Best effort.
func (s *SessionService) Touch(ctx context.Context, sessionID string) {
	if err := s.store.Touch(ctx, sessionID, s.now()); err != nil {
		s.logger.Debug("failed to touch session", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

// KnownDevice reports whether the user already holds an active session from
// the same device class. Drives the new-device sign-in alert.
func (s *SessionService) KnownDevice(ctx context.Context, userID string, fp device.Fingerprint) (bool, error) {
	sessions, err := s.store.ListByUser(ctx, userID, s.now())
	if err != nil {
		return false, err
	}
	for _, session := range sessions {
		if session.DeviceType == fp.DeviceType && session.Browser == fp.Browser && session.OS == fp.OS {
			return true, nil
		}
	}
	return false, nil
}

// PruneExpired drops revoked and expired sessions from storage.
func (s *SessionService) PruneExpired(ctx context.Context) (int, error) {
	return s.store.DeleteExpired(ctx, s.now())
}
