package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avelery/jobdeck/internal/database"
	"github.com/avelery/jobdeck/internal/models"
)

// TwoFactorRepository persists at most one TwoFactorSecret per user.
type TwoFactorRepository struct {
	db *database.DB
}

func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

// Get returns the user's secret record, or models.ErrNotFound when 2FA is
// unset for the user.
func (r *TwoFactorRepository) Get(ctx context.Context, userID string) (*models.TwoFactorSecret, error) {
	query := `
		SELECT user_id, secret_encrypted, secret_nonce, status, backup_codes, last_used_at, created_at, enabled_at
		FROM two_factor_secrets
		WHERE user_id = $1
	`

	var secret models.TwoFactorSecret
	var backupCodesJSON []byte
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&secret.UserID, &secret.SecretEncrypted, &secret.SecretNonce, &secret.Status,
		&backupCodesJSON, &secret.LastUsedAt, &secret.CreatedAt, &secret.EnabledAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if err := json.Unmarshal(backupCodesJSON, &secret.BackupCodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup codes: %w", err)
	}

	return &secret, nil
}

// Upsert writes a Pending record, replacing any previous Pending setup for
// the same user. The service layer guards against replacing an Enabled one.
func (r *TwoFactorRepository) Upsert(ctx context.Context, secret *models.TwoFactorSecret) error {
	backupCodesJSON, err := json.Marshal(secret.BackupCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}

	query := `
		INSERT INTO two_factor_secrets (user_id, secret_encrypted, secret_nonce, status, backup_codes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce     = EXCLUDED.secret_nonce,
			status           = EXCLUDED.status,
			backup_codes     = EXCLUDED.backup_codes,
			last_used_at     = NULL,
			enabled_at       = NULL,
			created_at       = NOW()
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		secret.UserID, secret.SecretEncrypted, secret.SecretNonce, secret.Status, backupCodesJSON,
	).Scan(&secret.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert two-factor secret: %w", database.MapPostgresError(err))
	}

	return nil
}

// Enable flips a Pending record to Enabled. Returns ErrNotFound when no
// Pending record exists, so a stale enable cannot resurrect a disabled setup.
func (r *TwoFactorRepository) Enable(ctx context.Context, userID string, enabledAt time.Time) error {
	query := `
		UPDATE two_factor_secrets
		SET status = $2, enabled_at = $3
		WHERE user_id = $1 AND status = $4
	`

	tag, err := r.db.Pool.Exec(ctx, query, userID, models.TwoFactorStatusEnabled, enabledAt, models.TwoFactorStatusPending)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateLastUsedAt records the acceptance time of a TOTP code for replay
// rejection.
func (r *TwoFactorRepository) UpdateLastUsedAt(ctx context.Context, userID string, usedAt time.Time) error {
	query := `UPDATE two_factor_secrets SET last_used_at = $2 WHERE user_id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, userID, usedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ConsumeBackupCode marks the code at index used, if and only if it is still
// unused. The WHERE clause makes the consumption atomic: two concurrent
// verifies of the same code cannot both succeed.
func (r *TwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID string, index int, usedAt time.Time) error {
	query := `
		UPDATE two_factor_secrets
		SET backup_codes = jsonb_set(backup_codes, ARRAY[$2::text, 'used_at'], to_jsonb($3::timestamptz))
		WHERE user_id = $1
		  AND backup_codes -> $2::int ->> 'used_at' IS NULL
	`

	tag, err := r.db.Pool.Exec(ctx, query, userID, index, usedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidBackupCode
	}
	return nil
}

// Delete removes the secret and every backup code; the user returns to the
// unset state.
func (r *TwoFactorRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM two_factor_secrets WHERE user_id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
