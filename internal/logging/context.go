package logging

import (
	"context"
	"io"
	"log/slog"
)

type ctxKey struct{}

var discard Logger = NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

// WithContext stores l in ctx so request-scoped fields (request id, user id)
// follow the request down into the services.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or fallback when
// there is none. A nil fallback yields a logger that discards everything.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return discard
}
