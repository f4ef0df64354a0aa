package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/models"
	"github.com/avelery/jobdeck/internal/services"
	pkghttp "github.com/avelery/jobdeck/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds token claims to the request context for testing
// authenticated endpoints.
func WithAuthContext(req *http.Request, userID, email, sessionID string) *http.Request {
	claims := &models.TokenClaims{
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		Type:      "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	if target != nil {
		if err := json.NewDecoder(w.Body).Decode(target); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
	}
}

// AssertErrorResponse checks status and the machine-readable error code
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	var resp pkghttp.ErrorResponse
	AssertJSONResponse(t, w, expectedStatus, &resp)
	assert.Equal(t, expectedError, resp.Error)
}

// MockAuthService is a configurable AuthServiceInterface implementation
type MockAuthService struct {
	LoginFunc        func(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error)
	LogoutFunc       func(ctx context.Context, userID, sessionID string) error
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, input)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Logout(ctx context.Context, userID, sessionID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, userID, sessionID)
	}
	return nil
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, models.ErrInternalServer
}

// MockTwoFactorService is a configurable TwoFactorServiceInterface implementation
type MockTwoFactorService struct {
	SetupFunc   func(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	EnableFunc  func(ctx context.Context, userID, code string) error
	DisableFunc func(ctx context.Context, userID, code string) error
	StatusFunc  func(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

func (m *MockTwoFactorService) Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx, userID, email)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTwoFactorService) Enable(ctx context.Context, userID, code string) error {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, userID, code)
	}
	return nil
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID, code string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID, code)
	}
	return nil
}

func (m *MockTwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, userID)
	}
	return &models.TwoFactorStatus{}, nil
}

// MockSessionService is a configurable SessionServiceInterface implementation
type MockSessionService struct {
	ListFunc            func(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error)
	RevokeFunc          func(ctx context.Context, userID, sessionID, currentSessionID string) error
	RevokeAllOthersFunc func(ctx context.Context, userID, currentSessionID string) (int, error)
}

func (m *MockSessionService) List(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, currentSessionID)
	}
	return nil, nil
}

func (m *MockSessionService) Revoke(ctx context.Context, userID, sessionID, currentSessionID string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, userID, sessionID, currentSessionID)
	}
	return nil
}

func (m *MockSessionService) RevokeAllOthers(ctx context.Context, userID, currentSessionID string) (int, error) {
	if m.RevokeAllOthersFunc != nil {
		return m.RevokeAllOthersFunc(ctx, userID, currentSessionID)
	}
	return 0, nil
}
