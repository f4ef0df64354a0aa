package models

import "time"

// Two-factor secret lifecycle states. A secret is created Pending by setup,
// promoted to Enabled by a successful enable-code check, and deleted by
// disable. "Unset" is the absence of a record, so "enabled with no secret"
// cannot be represented.
const (
	TwoFactorStatusPending = "pending"
	TwoFactorStatusEnabled = "enabled"
)

// TwoFactorSecret holds a user's TOTP secret and backup codes. At most one
// record exists per user. The secret is stored AES-256-GCM encrypted; backup
// codes are stored only as bcrypt hashes. Plaintext for both is returned
// exactly once, at setup.
type TwoFactorSecret struct {
	UserID          string
	SecretEncrypted []byte // AES-256-GCM ciphertext of the base32 secret
	SecretNonce     []byte // GCM nonce
	Status          string // TwoFactorStatusPending or TwoFactorStatusEnabled
	BackupCodes     []BackupCodeEntry
	LastUsedAt      *time.Time // last accepted TOTP code, for replay rejection
	CreatedAt       time.Time
	EnabledAt       *time.Time
}

// BackupCodeEntry is a single consumable backup code hash.
type BackupCodeEntry struct {
	CodeHash string     `json:"code_hash"`
	UsedAt   *time.Time `json:"used_at"` // nil = unused
}

// IsEnabled reports whether two-factor auth is active for the user.
func (s *TwoFactorSecret) IsEnabled() bool {
	return s.Status == TwoFactorStatusEnabled
}

// UnusedBackupCodes counts the backup codes still available.
func (s *TwoFactorSecret) UnusedBackupCodes() int {
	n := 0
	for _, entry := range s.BackupCodes {
		if entry.UsedAt == nil {
			n++
		}
	}
	return n
}

// TwoFactorStatus is the read-side summary exposed over HTTP.
type TwoFactorStatus struct {
	Enabled          bool `json:"enabled"`
	BackupCodesCount int  `json:"backup_codes_count"`
}

// TwoFactorSetup is returned once from setup; the backup codes and the
// provisioning QR never leave the server again.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"` // PNG data URL
	BackupCodes []string `json:"backup_codes"`
}
