package log

import "context"

// Logger is the structured logging contract used across the server. The
// context lets adapters enrich entries with request-scoped data such as trace
// ids.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]any)
	Info(ctx context.Context, msg string, fields ...map[string]any)
	Warn(ctx context.Context, msg string, fields ...map[string]any)
	Error(ctx context.Context, msg string, err error, fields ...map[string]any)
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]any)
	// With returns a logger carrying the given fields on every entry.
	With(fields map[string]any) Logger
}
