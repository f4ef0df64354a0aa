package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 12

// dummyHash is a real bcrypt hash of a throwaway value, computed once at
// startup. Login burns a compare against it when no account (or no password
// hash) exists so the "unknown email" path costs the same as a real check.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("jobdeck.dummy.compare"), BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt dummy hash: %v", err))
	}
	return string(h)
}()

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword performs a constant-time bcrypt comparison.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// CompareDummy runs a bcrypt comparison that always fails, consuming the
// same CPU time as a genuine mismatch.
func CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
