package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/avelery/jobdeck/internal/config"
	"github.com/avelery/jobdeck/internal/models"
	"github.com/avelery/jobdeck/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockoutFixture(t *testing.T, cfg config.LockoutConfig) (*LockoutService, *time.Time) {
	t.Helper()

	svc := NewLockoutService(repositories.NewMemoryAttemptStore(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func defaultLockoutConfig() config.LockoutConfig {
	return config.LockoutConfig{
		MaxAttempts:        5,
		AttemptWindow:      15 * time.Minute,
		InitialLockout:     15 * time.Minute,
		MaxLockoutDuration: 2 * time.Hour,
	}
}

func TestLockoutService_FreshKeyAllowed(t *testing.T) {
	svc, _ := newLockoutFixture(t, defaultLockoutConfig())

	check, err := svc.CheckLoginAllowed(context.Background(), models.AttemptKey("10.0.0.1", "a@example.com"))
	require.NoError(t, err)

	assert.True(t, check.Allowed)
	assert.Equal(t, 5, check.RemainingAttempts)
	assert.Nil(t, check.LockedUntil)
}

func TestLockoutService_RemainingAttemptsCountDown(t *testing.T) {
	svc, _ := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	for i := 1; i <= 4; i++ {
		result, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
		assert.False(t, result.Locked)
		assert.Equal(t, 5-i, result.RemainingAttempts)
	}

	check, err := svc.CheckLoginAllowed(ctx, key)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 1, check.RemainingAttempts)
}

func TestLockoutService_LocksAtMaxAttempts(t *testing.T) {
	svc, now := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	for i := 0; i < 4; i++ {
		_, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
	}

	result, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
	require.NoError(t, err)
	require.True(t, result.Locked)
	assert.Equal(t, 15*time.Minute, result.LockoutDuration)
	require.NotNil(t, result.LockedUntil)
	assert.Equal(t, now.Add(15*time.Minute), *result.LockedUntil)

	check, err := svc.CheckLoginAllowed(ctx, key)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, 15*time.Minute, check.RetryAfter)
}

func TestLockoutService_CheckDoesNotMutate(t *testing.T) {
	svc, _ := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	_, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		check, err := svc.CheckLoginAllowed(ctx, key)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 4, check.RemainingAttempts)
	}
}

func TestLockoutService_LockoutExpiryResetsCounter(t *testing.T) {
	svc, now := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	for i := 0; i < 5; i++ {
		_, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
	}

	*now = now.Add(15*time.Minute + time.Second)

	check, err := svc.CheckLoginAllowed(ctx, key)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 5, check.RemainingAttempts)
}

func TestLockoutService_WindowExpiryResetsCounter(t *testing.T) {
	svc, now := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	for i := 0; i < 4; i++ {
		_, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
	}

	*now = now.Add(16 * time.Minute)

	check, err := svc.CheckLoginAllowed(ctx, key)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 5, check.RemainingAttempts)

	// The stale window does not contribute to a new failure run.
	result, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
	require.NoError(t, err)
	assert.False(t, result.Locked)
	assert.Equal(t, 4, result.RemainingAttempts)
}

func TestLockoutService_EscalationDoublesAndCaps(t *testing.T) {
	svc, now := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	lockOnce := func() *models.FailureResult {
		var result *models.FailureResult
		for i := 0; i < 5; i++ {
			var err error
			result, err = svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
			require.NoError(t, err)
		}
		require.True(t, result.Locked)
		*now = now.Add(result.LockoutDuration + time.Second)
		return result
	}

	expected := []time.Duration{
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
		2 * time.Hour,
		2 * time.Hour, // capped
	}
	for _, want := range expected {
		result := lockOnce()
		assert.Equal(t, want, result.LockoutDuration)
	}
}

func TestLockoutService_ClearResetsEverything(t *testing.T) {
	svc, now := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	for i := 0; i < 5; i++ {
		_, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
	}
	*now = now.Add(16 * time.Minute)

	require.NoError(t, svc.ClearLoginAttempts(ctx, key))

	// A success also forgets escalation: the next lockout starts at the base.
	var result *models.FailureResult
	for i := 0; i < 5; i++ {
		var err error
		result, err = svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
	}
	require.True(t, result.Locked)
	assert.Equal(t, 15*time.Minute, result.LockoutDuration)
}

func TestLockoutService_KeysAreIndependent(t *testing.T) {
	svc, _ := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()

	keyA := models.AttemptKey("10.0.0.1", "a@example.com")
	keyB := models.AttemptKey("10.0.0.1", "b@example.com")
	keyC := models.AttemptKey("10.0.0.2", "a@example.com")

	for i := 0; i < 5; i++ {
		_, err := svc.RecordFailedAttempt(ctx, keyA, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
	}

	checkA, err := svc.CheckLoginAllowed(ctx, keyA)
	require.NoError(t, err)
	assert.False(t, checkA.Allowed)

	for _, key := range []string{keyB, keyC} {
		check, err := svc.CheckLoginAllowed(ctx, key)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 5, check.RemainingAttempts)
	}
}

func TestLockoutService_KeyNormalizesEmail(t *testing.T) {
	assert.Equal(t,
		models.AttemptKey("10.0.0.1", "User@Example.COM "),
		models.AttemptKey("10.0.0.1", "user@example.com"))
	assert.NotEqual(t,
		models.AttemptKey("10.0.0.1", "user@example.com"),
		models.AttemptKey("10.0.0.2", "user@example.com"))
}

func TestLockoutService_FailureDuringLockoutDoesNotExtend(t *testing.T) {
	svc, now := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	for i := 0; i < 5; i++ {
		_, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
		require.NoError(t, err)
	}
	lockedUntil := now.Add(15 * time.Minute)

	*now = now.Add(5 * time.Minute)
	result, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
	require.NoError(t, err)
	require.True(t, result.Locked)
	assert.Equal(t, lockedUntil, *result.LockedUntil)
}

func TestLockoutService_ConcurrentFailuresCountEveryAttempt(t *testing.T) {
	svc, _ := newLockoutFixture(t, defaultLockoutConfig())
	ctx := context.Background()
	key := models.AttemptKey("10.0.0.1", "a@example.com")

	// Five simultaneous failures on one key. The store serializes the
	// increments, so exactly one goroutine trips the lock; a lost increment
	// would leave the key unlocked.
	results := make(chan *models.FailureResult, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.RecordFailedAttempt(ctx, key, "10.0.0.1", "a@example.com")
			assert.NoError(t, err)
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	locked := 0
	for result := range results {
		if result.Locked {
			locked++
			assert.Equal(t, 15*time.Minute, result.LockoutDuration)
		}
	}
	assert.Equal(t, 1, locked)

	check, err := svc.CheckLoginAllowed(ctx, key)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
}
