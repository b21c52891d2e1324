package ports

import (
	"context"

	"github.com/google/uuid"
)

// Logger defines opgraph's structured logging contract. All log calls take
// key/value pairs, must be safe for concurrent use, and should enrich entries
// with the correlation ID carried by ctx. Common fields include:
//   - correlation_id (UUIDv4, generated once per run)
//   - component (scheduler, config, checkpoint, ...)
//   - node / opcode / worker
//   - duration_ms for timed operations
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, msg string, fields ...interface{})
	Error(ctx context.Context, msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

type correlationIDKey struct{}

// WithCorrelationID attaches the provided correlation ID to the context so
// downstream layers can emit correlated logs, metrics, and traces.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GetCorrelationID extracts a correlation ID from context. It returns an empty
// string when none has been set.
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID produces a new UUIDv4 string. The scheduler uses it as
// the run ID when the caller did not provide one.
func GenerateCorrelationID() string {
	return uuid.NewString()
}
