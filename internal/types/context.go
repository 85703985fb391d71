package types

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
	adminKey     contextKey = "admin"
)

// AdminSession identifies the operator behind an authenticated admin request.
type AdminSession struct {
	Username string
	IsAdmin  bool
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLogger stores a request-scoped logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the request-scoped logger, or fallback when none
// was stored. A nil fallback resolves to slog.Default().
func LoggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithAdmin stores the authenticated admin session.
func WithAdmin(ctx context.Context, s AdminSession) context.Context {
	return context.WithValue(ctx, adminKey, s)
}

// GetAdmin retrieves the admin session set by the auth middleware.
func GetAdmin(ctx context.Context) (AdminSession, bool) {
	s, ok := ctx.Value(adminKey).(AdminSession)
	return s, ok
}
