package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv() {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("TOTP_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoad_LockoutDefaults(t *testing.T) {
	setRequiredEnv()
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Lockout.MaxAttempts != 5 {
		t.Errorf("MaxAttempts: got %d, want 5", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.AttemptWindow != 15*time.Minute {
		t.Errorf("AttemptWindow: got %v, want 15m", cfg.Lockout.AttemptWindow)
	}
	if cfg.Lockout.InitialLockout != 15*time.Minute {
		t.Errorf("InitialLockout: got %v, want 15m", cfg.Lockout.InitialLockout)
	}
	if cfg.Lockout.MaxLockoutDuration != 2*time.Hour {
		t.Errorf("MaxLockoutDuration: got %v, want 2h", cfg.Lockout.MaxLockoutDuration)
	}
}

func TestLoad_LockoutCustomValues(t *testing.T) {
	setRequiredEnv()
	os.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	os.Setenv("LOGIN_INITIAL_LOCKOUT", "30s")
	os.Setenv("LOGIN_MAX_LOCKOUT", "10m")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Lockout.MaxAttempts != 3 {
		t.Errorf("MaxAttempts: got %d, want 3", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.InitialLockout != 30*time.Second {
		t.Errorf("InitialLockout: got %v, want 30s", cfg.Lockout.InitialLockout)
	}
	if cfg.Lockout.MaxLockoutDuration != 10*time.Minute {
		t.Errorf("MaxLockoutDuration: got %v, want 10m", cfg.Lockout.MaxLockoutDuration)
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("TOTP_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded without JWT_SECRET, want error")
	}
}

func TestLoad_InitialLockoutAboveCapRejected(t *testing.T) {
	setRequiredEnv()
	os.Setenv("LOGIN_INITIAL_LOCKOUT", "3h")
	os.Setenv("LOGIN_MAX_LOCKOUT", "1h")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted initial lockout above cap, want error")
	}
}

func TestParseEncryptionKey(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"raw 32 bytes", "0123456789abcdef0123456789abcdef", false},
		{"base64 of 32 bytes", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", false},
		{"empty", "", true},
		{"too short", "short", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := parseEncryptionKey(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseEncryptionKey(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEncryptionKey(%q) = %v, want nil", tt.raw, err)
			}
			if len(key) != 32 {
				t.Errorf("key length: got %d, want 32", len(key))
			}
		})
	}
}
