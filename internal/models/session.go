package models

import (
	"time"

	"github.com/avelery/jobdeck/internal/device"
)

// Session is one signed-in device for a user. IsCurrent is computed at read
// time relative to the caller's own session, never stored.
type Session struct {
	ID           string
	UserID       string
	DeviceType   string
	Browser      string
	OS           string
	UserAgent    string
	IPAddress    string
	Country      string
	City         string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
}

// NetworkInfo is the request-scoped network context captured at login.
// Country and city come from an upstream geo lookup when available.
type NetworkInfo struct {
	IPAddress string
	Country   string
	City      string
}

// IsActive reports whether the session can still back a request.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Describe returns the human-readable device line shown in session lists.
func (s *Session) Describe() string {
	return device.Description(device.Fingerprint{
		DeviceType: s.DeviceType,
		Browser:    s.Browser,
		OS:         s.OS,
		Raw:        s.UserAgent,
	})
}

// SessionView is a session annotated for one caller.
type SessionView struct {
	Session
	IsCurrent bool
}
