package background

import (
	"context"
	"log/slog"
	"time"
)

// SessionPruner removes revoked and expired sessions from storage.
type SessionPruner interface {
	PruneExpired(ctx context.Context) (int, error)
}

// AttemptPruner drops login-attempt counters whose window and lockout have
// both lapsed.
type AttemptPruner interface {
	DeleteStale(ctx context.Context, now time.Time, window time.Duration) (int, error)
}

// CleanupManager periodically prunes dead sessions and stale brute-force
// counters so the in-memory stores stay bounded.
type CleanupManager struct {
	sessions      SessionPruner
	attempts      AttemptPruner
	attemptWindow time.Duration
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions SessionPruner,
	attempts AttemptPruner,
	attemptWindow time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:      sessions,
		attempts:      attempts,
		attemptWindow: attemptWindow,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prunedSessions, err := cm.sessions.PruneExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to prune sessions", slog.Any("error", err))
	}

	prunedAttempts, err := cm.attempts.DeleteStale(cleanupCtx, time.Now(), cm.attemptWindow)
	if err != nil {
		cm.logger.Error("failed to prune login attempts", slog.Any("error", err))
	}

	if prunedSessions > 0 || prunedAttempts > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int("sessions_pruned", prunedSessions),
			slog.Int("attempts_pruned", prunedAttempts))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
