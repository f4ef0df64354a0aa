package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/device"
	"github.com/avelery/jobdeck/internal/models"
	pkgauth "github.com/avelery/jobdeck/pkg/auth"
	pkglogger "github.com/avelery/jobdeck/pkg/logger"
)

// UserRepository defines the interface for account lookups.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TwoFactorChecker is the slice of the two-factor service the login flow
// needs.
type TwoFactorChecker interface {
	IsEnabled(ctx context.Context, userID string) (bool, error)
	Verify(ctx context.Context, userID, code string) error
}

// AuthService drives the login pipeline: lockout gate, credential check,
// optional second factor, then session and token issuance. It also handles
// logout and token refresh.
type AuthService struct {
	users     UserRepository
	lockout   *LockoutService
	twoFactor TwoFactorChecker
	sessions  *SessionService
	alerts    AlertSender // nil disables new-device emails
	tm        *auth.TokenManager
	timing    *auth.TimingDelay
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users UserRepository,
	lockout *LockoutService,
	twoFactor TwoFactorChecker,
	sessions *SessionService,
	alerts AlertSender,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:     users,
		lockout:   lockout,
		twoFactor: twoFactor,
		sessions:  sessions,
		alerts:    alerts,
		tm:        tm,
		timing:    timing,
		logger:    logger,
		audit:     audit,
	}
}

// LoginInput carries everything one login attempt needs.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	UserAgent     string
	Network       models.NetworkInfo
}

// UserResponse represents a user in the HTTP response.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// AuthResponse represents the response from auth operations.
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
	SessionID    string        `json:"session_id"`
}

// Login authenticates a user and returns tokens bound to a fresh session.
//
// Failures before the second factor collapse into ErrInvalidCredentials (or
// ErrFederatedOnlyAccount), and failed paths are padded to a uniform
// duration, so responses do not reveal whether the email exists. Every
// failure counts against the (ip, email) lockout key; reaching the limit
// returns a LockoutError instead.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	start := time.Now()
	fail := func(err error) (*AuthResponse, error) {
		s.timing.WaitFrom(start)
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		s.logger.Warn("login attempt with empty credentials")
		return fail(models.ErrInvalidCredentials)
	}

	ip := input.Network.IPAddress
	key := models.AttemptKey(ip, email)

	check, err := s.lockout.CheckLoginAllowed(ctx, key)
	if err != nil {
		s.logger.Error("failed to check lockout state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !check.Allowed {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ip,
			FailureReason: "locked_out",
			Success:       false,
		})
		return nil, &models.LockoutError{LockedUntil: *check.LockedUntil, RetryAfter: check.RetryAfter}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a hash compare so unknown emails cost the same as known ones.
			pkgauth.CompareDummy(input.Password)
			return fail(s.recordFailure(ctx, key, ip, email, "", "invalid_credentials", models.ErrInvalidCredentials))
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.HasPassword() {
		pkgauth.CompareDummy(input.Password)
		return fail(s.recordFailure(ctx, key, ip, email, user.ID, "federated_only", models.ErrFederatedOnlyAccount))
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return fail(s.recordFailure(ctx, key, ip, email, user.ID, "invalid_credentials", models.ErrInvalidCredentials))
	}

	enabled, err := s.twoFactor.IsEnabled(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to check two-factor state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if enabled {
		if input.TwoFactorCode == "" {
			// Not a failed attempt: the password was right, the client just
			// needs to come back with a code.
			return nil, models.ErrTwoFactorRequired
		}
		if err := s.twoFactor.Verify(ctx, user.ID, input.TwoFactorCode); err != nil {
			if errors.Is(err, models.ErrInvalidTwoFactorCode) || errors.Is(err, models.ErrInvalidBackupCode) {
				return fail(s.recordFailure(ctx, key, ip, email, user.ID, "invalid_two_factor_code", err))
			}
			s.logger.Error("failed to verify second factor", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	if err := s.lockout.ClearLoginAttempts(ctx, key); err != nil {
		s.logger.Error("failed to clear login attempts", slog.Any("error", err))
	}

	fp := device.Parse(input.UserAgent)
	known, err := s.sessions.KnownDevice(ctx, user.ID, fp)
	if err != nil {
		s.logger.Error("failed to check known devices", slog.String("user_id", user.ID), slog.Any("error", err))
		known = true // do not alert on storage trouble
	}

	session, err := s.sessions.Create(ctx, user.ID, fp, input.UserAgent, input.Network)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, session.ID)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email, session.ID)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ip,
		UserAgent: input.UserAgent,
		SessionID: session.ID,
		Success:   true,
	})

	if s.alerts != nil && !known {
		alertUser, alertSession := *user, *session
		go func() {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.alerts.SendNewDeviceAlert(alertCtx, &alertUser, &alertSession); err != nil {
				s.logger.Error("failed to send new device alert",
					slog.String("user_id", alertUser.ID), slog.Any("error", err))
			}
		}()
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
		SessionID:    session.ID,
	}, nil
}

// Logout revokes the caller's session. The access token keeps validating
// cryptographically until expiry; the middleware's session check is what
// makes it stop working.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	return s.sessions.RevokeCurrent(ctx, userID, sessionID)
}

// RefreshToken exchanges a valid refresh token for a fresh pair bound to the
// same session. A revoked or expired session refuses the exchange.
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}
	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	active, err := s.sessions.IsSessionActive(ctx, claims.SessionID)
	if err != nil {
		s.logger.Error("failed to check session state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !active {
		return nil, models.ErrSessionRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, claims.SessionID)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email, claims.SessionID)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	s.sessions.Touch(ctx, claims.SessionID)

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
		SessionID:    claims.SessionID,
	}, nil
}

// recordFailure counts one failed attempt against the lockout key and emits
// the audit event. When this failure starts a lockout, the returned error is
// the LockoutError so the client learns the retry time right away; otherwise
// baseErr passes through.
func (s *AuthService) recordFailure(ctx context.Context, key, ip, email, userID, reason string, baseErr error) error {
	result, err := s.lockout.RecordFailedAttempt(ctx, key, ip, email)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
	}

	s.logger.Info("login failed", slog.String("reason", reason))
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        userID,
		IPAddress:     ip,
		FailureReason: reason,
		Success:       false,
	})

	if result != nil && result.Locked {
		return &models.LockoutError{LockedUntil: *result.LockedUntil, RetryAfter: result.LockoutDuration}
	}
	return baseErr
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}
