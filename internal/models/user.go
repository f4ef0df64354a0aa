package models

import (
	"time"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string // empty for federated-identity-only accounts
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // soft delete; deleted accounts never authenticate
}

// HasPassword reports whether the account can sign in with a password.
// Federated-only accounts carry no password hash.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsActive reports whether the account may authenticate at all.
func (u *User) IsActive() bool {
	return u.DeletedAt == nil
}
