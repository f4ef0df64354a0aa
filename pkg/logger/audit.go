package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event. Events are emitted as
// structured log lines only; nothing here persists them.
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	SessionID     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger emits structured security events over slog.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt logs login and two-factor verification attempts.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogSessionEvent logs session lifecycle events (create, revoke, revoke-all).
func (al *AuditLogger) LogSessionEvent(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "session"),
		slog.String("event_type", event.EventType),
		slog.String("user_id", event.UserID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

// LogTwoFactorEvent logs 2FA lifecycle changes (setup, enable, disable).
func (al *AuditLogger) LogTwoFactorEvent(eventType, userID string, success bool) {
	attrs := []slog.Attr{
		slog.String("audit_type", "two_factor"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.Bool("success", success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
