package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for login timing equalization.
type TimingConfig struct {
	BaseDelayMs   int // minimum delay in milliseconds
	RandomDelayMs int // random jitter range in milliseconds
}

// TimingDelay pads failed login paths to a uniform duration, so the response
// time does not reveal whether the email exists or which check failed.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance.
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandIntn returns a secure random number in [0, max).
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(buf) % uint64(max)), nil
}

// target computes base + jitter for one wait.
func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if jitter, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(jitter) * time.Millisecond
		}
	}
	return delay
}

// WaitFrom sleeps until at least base + jitter has elapsed since startTime.
// Work already done counts toward the target, so fast failures and slow
// failures leave the handler at about the same time.
func (td *TimingDelay) WaitFrom(startTime time.Time) {
	target := td.target()
	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
