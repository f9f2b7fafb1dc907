// Package logging defines the structured logger every SessionKeeper component
// receives. SlogLogger is the only implementation; Discard silences tests.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "session pushed", "event", ev.Kind, "user_id", id)
type Logger interface {
	// Debug logs diagnostic details (retry waits, debounce decisions).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs lifecycle changes (session adopted, mode switched).
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs recoverable failures such as a failed push or cleanup.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given pairs, e.g. "component".
	With(args ...any) Logger
}
