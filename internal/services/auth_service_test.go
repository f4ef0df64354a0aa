package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/config"
	"github.com/avelery/jobdeck/internal/models"
	"github.com/avelery/jobdeck/internal/repositories"
	pkgauth "github.com/avelery/jobdeck/pkg/auth"
	"github.com/avelery/jobdeck/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byEmail: make(map[string]*models.User),
		byID:    make(map[string]*models.User),
	}
}

func (f *fakeUserRepo) add(user *models.User) {
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

type fakeAlertSender struct {
	mu    sync.Mutex
	sends []string // user ids
	done  chan struct{}
}

func newFakeAlertSender() *fakeAlertSender {
	return &fakeAlertSender{done: make(chan struct{}, 16)}
}

func (f *fakeAlertSender) SendNewDeviceAlert(ctx context.Context, user *models.User, session *models.Session) error {
	f.mu.Lock()
	f.sends = append(f.sends, user.ID)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeAlertSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type authFixture struct {
	svc       *AuthService
	users     *fakeUserRepo
	lockout   *LockoutService
	twoFactor *TwoFactorService
	sessions  *SessionService
	alerts    *fakeAlertSender
	tm        *auth.TokenManager
}

const testPassword = "correct horse battery staple"

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := logger.NewAuditLogger(log)

	users := newFakeUserRepo()
	hash, err := pkgauth.HashPassword(testPassword)
	require.NoError(t, err)
	users.add(&models.User{
		ID:           "user-1",
		Email:        "a@example.com",
		PasswordHash: hash,
		Name:         "Ada",
		CreatedAt:    time.Now(),
	})
	users.add(&models.User{
		ID:        "user-fed",
		Email:     "sso@example.com",
		Name:      "Sam",
		CreatedAt: time.Now(),
	})

	lockout := NewLockoutService(repositories.NewMemoryAttemptStore(), config.LockoutConfig{
		MaxAttempts:        5,
		AttemptWindow:      15 * time.Minute,
		InitialLockout:     15 * time.Minute,
		MaxLockoutDuration: 2 * time.Hour,
	}, log)

	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")
	totpMgr, err := auth.NewTOTPManager(key, "Jobdeck")
	require.NoError(t, err)
	twoFactor := NewTwoFactorService(newFakeTwoFactorStore(), totpMgr, log, audit, 10)

	sessions := NewSessionService(repositories.NewMemorySessionStore(), log, audit, 30*24*time.Hour)
	alerts := newFakeAlertSender()
	tm := auth.NewTokenManager("test-secret-which-is-long-enough", 15*time.Minute, 7*24*time.Hour)
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	svc := NewAuthService(users, lockout, twoFactor, sessions, alerts, tm, timing, log, audit)
	return &authFixture{
		svc:       svc,
		users:     users,
		lockout:   lockout,
		twoFactor: twoFactor,
		sessions:  sessions,
		alerts:    alerts,
		tm:        tm,
	}
}

func loginInput(email, password string) LoginInput {
	return LoginInput{
		Email:     email,
		Password:  password,
		UserAgent: sessionTestUA,
		Network:   models.NetworkInfo{IPAddress: "10.0.0.1"},
	}
}

func TestAuthService_LoginSuccess(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)

	claims, err := fx.tm.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, resp.SessionID, claims.SessionID)

	active, err := fx.sessions.IsSessionActive(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestAuthService_LoginNormalizesEmail(t *testing.T) {
	fx := newAuthFixture(t)

	resp, err := fx.svc.Login(context.Background(), loginInput("  A@Example.COM ", testPassword))
	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.User.ID)
}

func TestAuthService_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	_, errUnknown := fx.svc.Login(ctx, loginInput("nobody@example.com", testPassword))
	_, errWrongPw := fx.svc.Login(ctx, loginInput("a@example.com", "wrong password"))

	assert.ErrorIs(t, errUnknown, models.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, models.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

func TestAuthService_EmptyCredentialsRejected(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Login(ctx, loginInput("", testPassword))
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = fx.svc.Login(ctx, loginInput("a@example.com", ""))
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_FederatedOnlyAccount(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Login(ctx, loginInput("sso@example.com", "any password"))
	assert.ErrorIs(t, err, models.ErrFederatedOnlyAccount)

	// The refusal still counts toward the lockout key.
	check, err := fx.lockout.CheckLoginAllowed(ctx, models.AttemptKey("10.0.0.1", "sso@example.com"))
	require.NoError(t, err)
	assert.Equal(t, 4, check.RemainingAttempts)
}

func TestAuthService_LockoutAfterRepeatedFailures(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := fx.svc.Login(ctx, loginInput("a@example.com", "wrong password"))
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	// The limit-reaching failure reports the lockout immediately.
	_, err := fx.svc.Login(ctx, loginInput("a@example.com", "wrong password"))
	var lockErr *models.LockoutError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, 15*time.Minute, lockErr.RetryAfter)
	assert.Contains(t, lockErr.Error(), "15 minutes")

	// Even the right password is refused while locked.
	_, err = fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.ErrorAs(t, err, &lockErr)
}

func TestAuthService_LockoutKeyedByIPAndEmail(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = fx.svc.Login(ctx, loginInput("a@example.com", "wrong password"))
	}

	// Same account from a different IP is unaffected.
	input := loginInput("a@example.com", testPassword)
	input.Network.IPAddress = "10.0.0.99"
	_, err := fx.svc.Login(ctx, input)
	assert.NoError(t, err)
}

func TestAuthService_SuccessClearsAttempts(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = fx.svc.Login(ctx, loginInput("a@example.com", "wrong password"))
	}
	_, err := fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.NoError(t, err)

	check, err := fx.lockout.CheckLoginAllowed(ctx, models.AttemptKey("10.0.0.1", "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, 5, check.RemainingAttempts)
}

func enableTwoFactor(t *testing.T, fx *authFixture) *models.TwoFactorSetup {
	t.Helper()
	ctx := context.Background()

	setup, err := fx.twoFactor.Setup(ctx, "user-1", "a@example.com")
	require.NoError(t, err)
	require.NoError(t, fx.twoFactor.Enable(ctx, "user-1", codeFor(t, setup.Secret, time.Now())))
	return setup
}

func TestAuthService_TwoFactorRequired(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	enableTwoFactor(t, fx)

	_, err := fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	assert.ErrorIs(t, err, models.ErrTwoFactorRequired)

	// Asking for the second factor is not a failed attempt.
	check, err := fx.lockout.CheckLoginAllowed(ctx, models.AttemptKey("10.0.0.1", "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, 5, check.RemainingAttempts)
}

func TestAuthService_TwoFactorWrongCodeCounts(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	enableTwoFactor(t, fx)

	input := loginInput("a@example.com", testPassword)
	input.TwoFactorCode = "000000"
	_, err := fx.svc.Login(ctx, input)
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)

	check, err := fx.lockout.CheckLoginAllowed(ctx, models.AttemptKey("10.0.0.1", "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, 4, check.RemainingAttempts)
}

func TestAuthService_TwoFactorBackupCodeLogin(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	setup := enableTwoFactor(t, fx)

	input := loginInput("a@example.com", testPassword)
	input.TwoFactorCode = setup.BackupCodes[0]
	resp, err := fx.svc.Login(ctx, input)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	// The code is spent.
	_, err = fx.svc.Login(ctx, input)
	assert.ErrorIs(t, err, models.ErrInvalidBackupCode)
}

func TestAuthService_LogoutStopsSession(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.NoError(t, err)

	require.NoError(t, fx.svc.Logout(ctx, "user-1", resp.SessionID))

	active, err := fx.sessions.IsSessionActive(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	// The refresh token dies with the session.
	_, err = fx.svc.RefreshToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, models.ErrSessionRevoked)
}

func TestAuthService_RefreshToken(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.NoError(t, err)

	refreshed, err := fx.svc.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, resp.SessionID, refreshed.SessionID)

	claims, err := fx.tm.ValidateToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, claims.SessionID)
}

func TestAuthService_RefreshRejectsAccessToken(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.NoError(t, err)

	_, err = fx.svc.RefreshToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = fx.svc.RefreshToken(ctx, "garbage")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthService_NewDeviceAlert(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.NoError(t, err)

	select {
	case <-fx.alerts.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a new device alert")
	}
	assert.Equal(t, 1, fx.alerts.count())

	// A second login from the same device class stays quiet.
	_, err = fx.svc.Login(ctx, loginInput("a@example.com", testPassword))
	require.NoError(t, err)

	select {
	case <-fx.alerts.done:
		t.Fatal("unexpected alert for a known device")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, fx.alerts.count())
}
