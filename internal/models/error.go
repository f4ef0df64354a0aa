package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login failures. Unknown email and wrong password both map to
	// ErrInvalidCredentials so responses cannot be used for enumeration.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrFederatedOnlyAccount = errors.New("account uses an external identity provider")

	// Two-factor errors
	ErrTwoFactorRequired       = errors.New("two-factor code required")
	ErrInvalidTwoFactorCode    = errors.New("invalid two-factor code")
	ErrInvalidBackupCode       = errors.New("invalid backup code")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication not enabled")

	// Session errors
	ErrSessionNotFound            = errors.New("session not found")
	ErrSessionRevoked             = errors.New("session has been revoked")
	ErrCannotRevokeCurrentSession = errors.New("cannot revoke the current session")
)
