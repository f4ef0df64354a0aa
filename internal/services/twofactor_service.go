package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/models"
	"github.com/avelery/jobdeck/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// TwoFactorStore defines the storage interface for two-factor secrets.
type TwoFactorStore interface {
	Get(ctx context.Context, userID string) (*models.TwoFactorSecret, error)
	Upsert(ctx context.Context, secret *models.TwoFactorSecret) error
	Enable(ctx context.Context, userID string, enabledAt time.Time) error
	UpdateLastUsedAt(ctx context.Context, userID string, usedAt time.Time) error
	ConsumeBackupCode(ctx context.Context, userID string, index int, usedAt time.Time) error
	Delete(ctx context.Context, userID string) error
}

const backupCodeHashCost = 12

// TwoFactorService manages the TOTP lifecycle: setup, enable, per-login
// verification, and disable.
type TwoFactorService struct {
	store           TwoFactorStore
	totpMgr         *auth.TOTPManager
	logger          *slog.Logger
	audit           *logger.AuditLogger
	backupCodeCount int

	now func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService.
func NewTwoFactorService(store TwoFactorStore, totpMgr *auth.TOTPManager, log *slog.Logger, audit *logger.AuditLogger, backupCodeCount int) *TwoFactorService {
	return &TwoFactorService{
		store:           store,
		totpMgr:         totpMgr,
		logger:          log,
		audit:           audit,
		backupCodeCount: backupCodeCount,
		now:             time.Now,
	}
}

// Setup generates a fresh secret and backup codes for the user and stores
// them in the Pending state. The plaintext secret, provisioning QR, and
// backup codes are returned once and never again; re-running setup before
// enabling replaces the pending secret.
func (s *TwoFactorService) Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	existing, err := s.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.IsEnabled() {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	secret, otpauthURL, err := s.totpMgr.GenerateSecret(email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encrypted, nonce, err := s.totpMgr.EncryptSecret(secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	qrCode, err := s.totpMgr.ProvisioningQR(otpauthURL)
	if err != nil {
		s.logger.Error("failed to render provisioning QR", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	backupCodes, err := s.totpMgr.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entries := make([]models.BackupCodeEntry, len(backupCodes))
	for i, code := range backupCodes {
		hash, err := bcrypt.GenerateFromPassword([]byte(auth.NormalizeBackupCode(code)), backupCodeHashCost)
		if err != nil {
			s.logger.Error("failed to hash backup code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		entries[i] = models.BackupCodeEntry{CodeHash: string(hash)}
	}

	record := &models.TwoFactorSecret{
		UserID:          userID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		Status:          models.TwoFactorStatusPending,
		BackupCodes:     entries,
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		s.logger.Error("failed to store two-factor secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogTwoFactorEvent("2fa_setup", userID, true)

	return &models.TwoFactorSetup{
		Secret:      secret,
		QRCode:      qrCode,
		BackupCodes: backupCodes,
	}, nil
}

// Enable promotes a Pending secret to Enabled after the user proves their
// authenticator works by submitting one valid TOTP code.
func (s *TwoFactorService) Enable(ctx context.Context, userID, code string) error {
	record, err := s.store.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrTwoFactorNotEnabled
	}
	if err != nil {
		return err
	}
	if record.IsEnabled() {
		return models.ErrTwoFactorAlreadyEnabled
	}

	now := s.now()
	if err := s.checkTOTP(ctx, record, code, now); err != nil {
		s.audit.LogTwoFactorEvent("2fa_enable", userID, false)
		return err
	}

	if err := s.store.Enable(ctx, userID, now); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnabled
		}
		return err
	}

	s.audit.LogTwoFactorEvent("2fa_enable", userID, true)
	return nil
}

// Verify checks a login-time second factor. Six digits are treated as a TOTP
// code, anything else as a backup code. Backup codes are single use.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	record, err := s.store.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrTwoFactorNotEnabled
	}
	if err != nil {
		return err
	}
	if !record.IsEnabled() {
		return models.ErrTwoFactorNotEnabled
	}

	if auth.IsTOTPCode(code) {
		return s.checkTOTP(ctx, record, code, s.now())
	}
	return s.consumeBackupCode(ctx, record, code)
}

// Disable turns two-factor auth off. It demands a fresh valid code, so a
// hijacked session cannot silently weaken the account. The secret and all
// backup codes are deleted.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	if err := s.Verify(ctx, userID, code); err != nil {
		s.audit.LogTwoFactorEvent("2fa_disable", userID, false)
		return err
	}

	if err := s.store.Delete(ctx, userID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}

	s.audit.LogTwoFactorEvent("2fa_disable", userID, true)
	return nil
}

// Status returns the read-side summary. An unset user reads as disabled.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	record, err := s.store.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.TwoFactorStatus{}, nil
	}
	if err != nil {
		return nil, err
	}

	if !record.IsEnabled() {
		return &models.TwoFactorStatus{}, nil
	}
	return &models.TwoFactorStatus{
		Enabled:          true,
		BackupCodesCount: record.UnusedBackupCodes(),
	}, nil
}

// IsEnabled reports whether the user must present a second factor at login.
func (s *TwoFactorService) IsEnabled(ctx context.Context, userID string) (bool, error) {
	record, err := s.store.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.IsEnabled(), nil
}

// checkTOTP validates a 6-digit code against the stored secret. A code is
// rejected when any code was already accepted inside the replay window, so
// an intercepted code cannot be used twice.
func (s *TwoFactorService) checkTOTP(ctx context.Context, record *models.TwoFactorSecret, code string, now time.Time) error {
	if !auth.IsTOTPCode(code) {
		return models.ErrInvalidTwoFactorCode
	}

	secret, err := s.totpMgr.DecryptSecret(record.SecretEncrypted, record.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.String("user_id", record.UserID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	valid, err := s.totpMgr.ValidateCode(secret, code, now)
	if err != nil {
		return models.ErrInternalServer
	}
	if !valid {
		return models.ErrInvalidTwoFactorCode
	}

	if record.LastUsedAt != nil && now.Sub(*record.LastUsedAt) < auth.ReplayWindow {
		return models.ErrInvalidTwoFactorCode
	}

	if err := s.store.UpdateLastUsedAt(ctx, record.UserID, now); err != nil {
		return err
	}
	return nil
}

// consumeBackupCode matches a normalized backup code against the unused
// hashes and marks the match used. The store performs the mark atomically,
// so the same code cannot be consumed twice under concurrency.
func (s *TwoFactorService) consumeBackupCode(ctx context.Context, record *models.TwoFactorSecret, code string) error {
	normalized := auth.NormalizeBackupCode(code)
	if normalized == "" {
		return models.ErrInvalidBackupCode
	}

	for i, entry := range record.BackupCodes {
		if entry.UsedAt != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(entry.CodeHash), []byte(normalized)) != nil {
			continue
		}
		if err := s.store.ConsumeBackupCode(ctx, record.UserID, i, s.now()); err != nil {
			return err
		}
		s.logger.Info("backup code consumed",
			slog.String("user_id", record.UserID),
			slog.Int("remaining", record.UnusedBackupCodes()-1))
		return nil
	}
	return models.ErrInvalidBackupCode
}
