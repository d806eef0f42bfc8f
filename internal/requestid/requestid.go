package requestid

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}
type workerIDKey struct{}

// New generates a random UUID v4 request ID. Used for HTTP requests; claim
// sessions use their own 40-hex worker id (see internal/workerid) instead.
func New() string {
	return uuid.NewString()
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithWorkerID returns a copy of ctx carrying the claim session's worker
// id, so log lines emitted from inside a handler invocation can be tied
// back to the session that claimed the permit.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerIDKey{}, id)
}

// WorkerIDFromContext extracts the worker id from ctx. Returns "" if
// absent.
func WorkerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(workerIDKey{}).(string)
	return id
}
