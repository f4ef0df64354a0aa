package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/avelery/jobdeck/internal/config"
	"github.com/avelery/jobdeck/internal/models"
)

// AttemptStore defines the storage interface for brute-force counters.
// Update applies fn to the current record (nil when absent) atomically;
// returning nil from fn deletes the record.
type AttemptStore interface {
	Get(ctx context.Context, key string) (*models.AttemptRecord, error)
	Update(ctx context.Context, key string, fn func(*models.AttemptRecord) *models.AttemptRecord) (*models.AttemptRecord, error)
	Delete(ctx context.Context, key string) error
}

// LockoutService tracks consecutive failed logins per (ip, email) key and
// locks the key out after too many failures inside the attempt window.
// Repeated lockouts on the same key escalate: each completed lockout doubles
// the next one, capped at MaxLockoutDuration.
type LockoutService struct {
	store  AttemptStore
	config config.LockoutConfig
	logger *slog.Logger

	now func() time.Time
}

// NewLockoutService creates a new LockoutService.
func NewLockoutService(store AttemptStore, cfg config.LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// MaxAttempts returns the configured failure limit.
func (s *LockoutService) MaxAttempts() int {
	return s.config.MaxAttempts
}

// CheckLoginAllowed reports whether a login may proceed for the key. It is a
// pure read: it never mutates the counter, so probing the endpoint cannot
// extend a lockout.
func (s *LockoutService) CheckLoginAllowed(ctx context.Context, key string) (*models.LoginCheck, error) {
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if rec == nil || s.expired(rec, now) {
		return &models.LoginCheck{Allowed: true, RemainingAttempts: s.config.MaxAttempts}, nil
	}

	if rec.IsLocked(now) {
		lockedUntil := *rec.LockedUntil
		return &models.LoginCheck{
			Allowed:     false,
			LockedUntil: &lockedUntil,
			RetryAfter:  lockedUntil.Sub(now),
		}, nil
	}

	remaining := s.config.MaxAttempts - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return &models.LoginCheck{Allowed: true, RemainingAttempts: remaining}, nil
}

// RecordFailedAttempt increments the failure counter for the key, starting a
// lockout when the limit is reached. The increment and the lock decision run
// inside one store update, so concurrent failures cannot lose counts.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, key, ipAddress, email string) (*models.FailureResult, error) {
	now := s.now()
	var result models.FailureResult

	_, err := s.store.Update(ctx, key, func(rec *models.AttemptRecord) *models.AttemptRecord {
		if rec != nil && rec.IsLocked(now) {
			// Refused upstream; a stray failure during an active lockout
			// must not extend the lock.
			lockedUntil := *rec.LockedUntil
			result = models.FailureResult{
				Locked:          true,
				LockedUntil:     &lockedUntil,
				LockoutDuration: lockedUntil.Sub(now),
			}
			return rec
		}

		rec = s.advance(rec, key, ipAddress, email, now)
		rec.Count++

		if rec.Count >= s.config.MaxAttempts {
			duration := s.lockoutDuration(rec.LockoutCycles)
			lockedUntil := now.Add(duration)
			rec.LockedUntil = &lockedUntil
			rec.LockoutCycles++

			result = models.FailureResult{
				Locked:          true,
				LockedUntil:     &lockedUntil,
				LockoutDuration: duration,
			}
			return rec
		}

		result = models.FailureResult{
			RemainingAttempts: s.config.MaxAttempts - rec.Count,
		}
		return rec
	})
	if err != nil {
		return nil, err
	}

	if result.Locked {
		s.logger.Warn("login key locked out",
			slog.String("ip_address", ipAddress),
			slog.Duration("lockout_duration", result.LockoutDuration))
	}

	return &result, nil
}

// ClearLoginAttempts wipes the counter for the key after a fully successful
// login. A success also forgets past lockout cycles.
func (s *LockoutService) ClearLoginAttempts(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// advance returns the record a new failure should count against. A fresh key,
// an expired window, or an expired lockout all start a new counting cycle;
// only an expired lockout carries its escalation history forward.
func (s *LockoutService) advance(rec *models.AttemptRecord, key, ipAddress, email string, now time.Time) *models.AttemptRecord {
	if rec == nil {
		return &models.AttemptRecord{Key: key, IPAddress: ipAddress, Email: email, WindowStart: now}
	}
	if rec.LockedUntil != nil {
		cycles := rec.LockoutCycles
		return &models.AttemptRecord{Key: key, IPAddress: ipAddress, Email: email, WindowStart: now, LockoutCycles: cycles}
	}
	if now.Sub(rec.WindowStart) > s.config.AttemptWindow {
		return &models.AttemptRecord{Key: key, IPAddress: ipAddress, Email: email, WindowStart: now}
	}
	return rec
}

// expired reports whether the record no longer constrains logins: its lockout
// has ended or its window elapsed without reaching the limit.
func (s *LockoutService) expired(rec *models.AttemptRecord, now time.Time) bool {
	if rec.LockedUntil != nil {
		return !now.Before(*rec.LockedUntil)
	}
	return now.Sub(rec.WindowStart) > s.config.AttemptWindow
}

// lockoutDuration doubles the base duration for each completed lockout,
// capped at the configured maximum.
func (s *LockoutService) lockoutDuration(completedCycles int) time.Duration {
	duration := s.config.InitialLockout
	for i := 0; i < completedCycles; i++ {
		duration *= 2
		if duration >= s.config.MaxLockoutDuration {
			return s.config.MaxLockoutDuration
		}
	}
	if duration > s.config.MaxLockoutDuration {
		return s.config.MaxLockoutDuration
	}
	return duration
}
