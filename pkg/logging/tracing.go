package logging

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HeaderTraceID       = "X-Trace-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
)

type traceIDKey struct{}

type correlationIDKey struct{}

type subjectKey struct{}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

// WithSubject records the authenticated subject so later log lines carry it.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// GetTraceID extracts the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	return ""
}

// GetCorrelationID extracts the correlation ID from the context
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}
	return ""
}

// GetSubject returns the subject recorded by WithSubject
func GetSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(subjectKey{}).(string); ok {
		return subject
	}
	return ""
}

// LoggerFromContext returns a logger with tracing information from the context
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	c := log.Logger.With()

	if traceID := GetTraceID(ctx); traceID != "" {
		c = c.Str("trace_id", traceID)
	}
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		c = c.Str("correlation_id", correlationID)
	}
	if subject := GetSubject(ctx); subject != "" {
		c = c.Str("subject", subject)
	}

	return c.Logger()
}

// LoggerFromContextWithComponent returns a logger with tracing information and component
func LoggerFromContextWithComponent(ctx context.Context, component string) zerolog.Logger {
	return LoggerFromContext(ctx).With().Str("component", component).Logger()
}

// ExtractTraceInfoFromRequest reads tracing headers, generating ids that are absent.
func ExtractTraceInfoFromRequest(r *http.Request) (traceID, correlationID string) {
	traceID = r.Header.Get(HeaderTraceID)
	if traceID == "" {
		traceID = r.Header.Get(HeaderRequestID)
	}

	correlationID = r.Header.Get(HeaderCorrelationID)
	if correlationID == "" {
		correlationID = r.Header.Get(HeaderRequestID)
	}

	if traceID == "" {
		traceID = uuid.NewString()
	}
	if correlationID == "" {
		correlationID = traceID
	}

	return traceID, correlationID
}

// Middleware propagates trace and correlation ids into the request context and response headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, correlationID := ExtractTraceInfoFromRequest(r)

		ctx := WithTraceID(r.Context(), traceID)
		ctx = WithCorrelationID(ctx, correlationID)

		w.Header().Set(HeaderTraceID, traceID)
		w.Header().Set(HeaderCorrelationID, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
