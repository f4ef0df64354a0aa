package integration

import (
	"context"
	"testing"
	"time"

	"github.com/avelery/jobdeck/internal/models"
	pkgauth "github.com/avelery/jobdeck/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	userRepo, twoFactorRepo := InitializeRepositories(testDB.DB)

	t.Run("user lifecycle", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		email, password := TestUser("users")
		hash, err := pkgauth.HashPassword(password)
		require.NoError(t, err)

		created, err := userRepo.Create(ctx, &models.User{
			Email:        email,
			PasswordHash: hash,
			Name:         "Integration",
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		byEmail, err := userRepo.GetByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
		assert.True(t, byEmail.HasPassword())

		_, err = userRepo.GetByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)

		// Duplicate email maps to a conflict.
		_, err = userRepo.Create(ctx, &models.User{Email: email, Name: "Dup"})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("federated user has no password", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		email, _ := TestUser("federated")
		created, err := userRepo.Create(ctx, &models.User{Email: email, Name: "SSO"})
		require.NoError(t, err)

		loaded, err := userRepo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, loaded.HasPassword())
	})

	t.Run("two-factor secret lifecycle", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		email, _ := TestUser("twofactor")
		user, err := userRepo.Create(ctx, &models.User{Email: email, Name: "TF"})
		require.NoError(t, err)

		_, err = twoFactorRepo.Get(ctx, user.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		secret := &models.TwoFactorSecret{
			UserID:          user.ID,
			SecretEncrypted: []byte("ciphertext"),
			SecretNonce:     []byte("nonce"),
			Status:          models.TwoFactorStatusPending,
			BackupCodes: []models.BackupCodeEntry{
				{CodeHash: "$2a$12$hash0"},
				{CodeHash: "$2a$12$hash1"},
			},
		}
		require.NoError(t, twoFactorRepo.Upsert(ctx, secret))

		loaded, err := twoFactorRepo.Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TwoFactorStatusPending, loaded.Status)
		assert.Len(t, loaded.BackupCodes, 2)
		assert.False(t, loaded.IsEnabled())

		require.NoError(t, twoFactorRepo.Enable(ctx, user.ID, time.Now()))
		loaded, err = twoFactorRepo.Get(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, loaded.IsEnabled())
		require.NotNil(t, loaded.EnabledAt)

		// Enabling twice cannot succeed; the record is no longer pending.
		err = twoFactorRepo.Enable(ctx, user.ID, time.Now())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("backup code consumption is single use", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		email, _ := TestUser("backup")
		user, err := userRepo.Create(ctx, &models.User{Email: email, Name: "BC"})
		require.NoError(t, err)

		secret := &models.TwoFactorSecret{
			UserID:          user.ID,
			SecretEncrypted: []byte("ciphertext"),
			SecretNonce:     []byte("nonce"),
			Status:          models.TwoFactorStatusEnabled,
			BackupCodes: []models.BackupCodeEntry{
				{CodeHash: "$2a$12$hash0"},
				{CodeHash: "$2a$12$hash1"},
			},
		}
		require.NoError(t, twoFactorRepo.Upsert(ctx, secret))

		require.NoError(t, twoFactorRepo.ConsumeBackupCode(ctx, user.ID, 1, time.Now()))

		loaded, err := twoFactorRepo.Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, loaded.BackupCodes[0].UsedAt)
		assert.NotNil(t, loaded.BackupCodes[1].UsedAt)
		assert.Equal(t, 1, loaded.UnusedBackupCodes())

		// The same index cannot be consumed twice.
		err = twoFactorRepo.ConsumeBackupCode(ctx, user.ID, 1, time.Now())
		assert.ErrorIs(t, err, models.ErrInvalidBackupCode)
	})

	t.Run("last used at drives replay rejection", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		email, _ := TestUser("replay")
		user, err := userRepo.Create(ctx, &models.User{Email: email, Name: "RP"})
		require.NoError(t, err)

		secret := &models.TwoFactorSecret{
			UserID:          user.ID,
			SecretEncrypted: []byte("ciphertext"),
			SecretNonce:     []byte("nonce"),
			Status:          models.TwoFactorStatusEnabled,
			BackupCodes:     []models.BackupCodeEntry{},
		}
		require.NoError(t, twoFactorRepo.Upsert(ctx, secret))

		usedAt := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, twoFactorRepo.UpdateLastUsedAt(ctx, user.ID, usedAt))

		loaded, err := twoFactorRepo.Get(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded.LastUsedAt)
		assert.WithinDuration(t, usedAt, *loaded.LastUsedAt, time.Second)
	})

	t.Run("delete returns to unset", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		email, _ := TestUser("delete")
		user, err := userRepo.Create(ctx, &models.User{Email: email, Name: "DL"})
		require.NoError(t, err)

		secret := &models.TwoFactorSecret{
			UserID:          user.ID,
			SecretEncrypted: []byte("ciphertext"),
			SecretNonce:     []byte("nonce"),
			Status:          models.TwoFactorStatusPending,
			BackupCodes:     []models.BackupCodeEntry{},
		}
		require.NoError(t, twoFactorRepo.Upsert(ctx, secret))
		require.NoError(t, twoFactorRepo.Delete(ctx, user.ID))

		_, err = twoFactorRepo.Get(ctx, user.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		err = twoFactorRepo.Delete(ctx, user.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
