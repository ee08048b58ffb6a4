package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type key int

const (
	CorrelationKey key = iota
	OperationKey
)

func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = NewCorrelationID()
		}

		ctx := context.WithValue(r.Context(), CorrelationKey, id)
		w.Header().Set("X-Correlation-ID", id)

		slog.InfoContext(ctx, "request received", "method", r.Method, "path", r.URL.Path) // #nosec G706 -- r.URL.Path is parsed by Go's net/http
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		slog.InfoContext(ctx, "request completed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start)) // #nosec G706
	})
}

// NewCorrelationID mints an ID for work that does not start from an HTTP request
// (CLI commands, scheduled refreshes, queue messages without one).
func NewCorrelationID() string {
	return uuid.New().String()
}

func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationKey).(string); ok {
		return id
	}
	return "unknown"
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationKey, id)
}

// WithOperation tags the context with the batch operation name (classify, sync, ask...).
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OperationKey, op)
}

func GetOperation(ctx context.Context) string {
	op, _ := ctx.Value(OperationKey).(string)
	return op
}
