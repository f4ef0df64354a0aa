package models

import (
	"fmt"
	"strings"
	"time"
)

// AttemptRecord tracks consecutive failed logins for one (ip, email) key.
// A record is created on the first failure and reset to empty on a fully
// successful login or when its window expires without reaching the limit.
type AttemptRecord struct {
	Key           string
	IPAddress     string
	Email         string
	Count         int
	WindowStart   time.Time
	LockedUntil   *time.Time
	LockoutCycles int // completed lockouts; drives progressive escalation
}

// IsLocked reports whether the key is currently locked out.
func (r *AttemptRecord) IsLocked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// AttemptKey builds the composite brute-force key. The email is normalized
// (trimmed, lowercased) so differently-cased submissions from the same IP
// share one counter. Distinct (ip, email) pairs never collide because the
// separator cannot appear in an IP address.
func AttemptKey(ipAddress, email string) string {
	return ipAddress + "|" + strings.ToLower(strings.TrimSpace(email))
}

// LoginCheck is the result of a pure lockout read.
type LoginCheck struct {
	Allowed           bool
	RemainingAttempts int
	LockedUntil       *time.Time
	RetryAfter        time.Duration
}

// FailureResult is the outcome of recording one failed attempt.
type FailureResult struct {
	RemainingAttempts int
	Locked            bool
	LockedUntil       *time.Time
	LockoutDuration   time.Duration
}

// LockoutError is returned when a login is refused because the key is locked.
// It carries the retry-after information the client is allowed to see.
type LockoutError struct {
	LockedUntil time.Time
	RetryAfter  time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("too many failed login attempts, try again in %s", FormatLockoutDuration(e.RetryAfter))
}

// FormatLockoutDuration renders a lockout span for user-facing messages.
// Spans under a minute render as whole seconds; a minute or more rounds up
// to the next whole minute.
func FormatLockoutDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 60_000 {
		seconds := ms / 1000
		if seconds == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", seconds)
	}

	minutes := ms / 60_000
	if ms%60_000 != 0 {
		minutes++
	}
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
