package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod = 30 // seconds per time step
	totpSkew   = 1  // accepted drift, one step either direction

	// ReplayWindow covers the full acceptance window (period * (1 + 2*skew)).
	// A code accepted once must not authenticate again inside it.
	ReplayWindow = totpPeriod * (1 + 2*totpSkew) * time.Second

	backupCodeLen = 8
	// Unambiguous charset: no 0/O, 1/I/L
	backupCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// TOTPManager generates and validates time-based one-time passwords and
// encrypts secrets for storage.
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string // shown in authenticator apps
}

// NewTOTPManager creates a new TOTP manager.
// encryptionKey must be exactly 32 bytes for AES-256.
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}
	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
	}, nil
}

// GenerateSecret creates a fresh TOTP secret for an account.
// Returns the base32 secret and the otpauth provisioning URL.
func (tm *TOTPManager) GenerateSecret(accountEmail string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  32,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ProvisioningQR renders an otpauth URL as a PNG data URL for display.
func (tm *TOTPManager) ProvisioningQR(otpauthURL string) (string, error) {
	qr, err := qrcode.New(otpauthURL, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// EncryptSecret encrypts a base32 secret with AES-256-GCM.
// Returns (ciphertext, nonce, error).
func (tm *TOTPManager) EncryptSecret(secret string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, []byte(secret), nil), nonce, nil
}

// DecryptSecret reverses EncryptSecret.
func (tm *TOTPManager) DecryptSecret(ciphertext, nonce []byte) (string, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

// ValidateCode checks a 6-digit code against a secret at the given time,
// accepting one time step of drift in either direction. The window is fixed;
// widening it weakens brute-force resistance.
func (tm *TOTPManager) ValidateCode(secret, code string, at time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}
	return valid, nil
}

// GenerateBackupCodes generates count single-use recovery codes, formatted
// in two groups of four for readability ("ABCD-EFGH").
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		raw := make([]byte, backupCodeLen)
		buf := make([]byte, backupCodeLen)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		for j, b := range buf {
			raw[j] = backupCodeCharset[int(b)%len(backupCodeCharset)]
		}
		codes[i] = string(raw[:4]) + "-" + string(raw[4:])
	}
	return codes, nil
}

// NormalizeBackupCode strips separators and whitespace and uppercases, so
// "abcd-efgh" and "ABCD EFGH" compare equal.
func NormalizeBackupCode(code string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// IsTOTPCode reports whether the input looks like a 6-digit TOTP code as
// opposed to a backup code.
func IsTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
