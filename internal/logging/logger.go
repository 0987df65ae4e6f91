// Package logging defines the structured-logging interface used across
// loginguard and its slog-backed implementation.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key/value pairs:
//
//	log.Warn(ctx, "rate limiter unavailable", "origin", origin, "error", err)
//
// Secrets and password hashes are never passed to a Logger.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
