package logger

import (
	"context"
	"crypto/rand"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}

// NewRequestID returns a new lexically sortable request id.
func NewRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// L returns base tagged with the request id of ctx. A nil base means
// slog.Default().
func L(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := RequestID(ctx); id != "" {
		return base.With("request_id", id)
	}
	return base
}
