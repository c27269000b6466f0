package logging

import (
	"context"
	"time"

	"github.com/openchami/tokengate/pkg/errors"
	"github.com/rs/zerolog"
)

// StructuredLogger wraps a component logger with the service's domain events.
type StructuredLogger struct {
	logger zerolog.Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(component string) *StructuredLogger {
	return &StructuredLogger{
		logger: GetLogger(component),
	}
}

// NewStructuredLoggerFromContext creates a structured logger from context
func NewStructuredLoggerFromContext(ctx context.Context, component string) *StructuredLogger {
	return &StructuredLogger{
		logger: LoggerFromContextWithComponent(ctx, component),
	}
}

// Logger exposes the underlying zerolog logger
func (l *StructuredLogger) Logger() zerolog.Logger {
	return l.logger
}

// WithError adds an error to the logger
func (l *StructuredLogger) WithError(err error) *StructuredLogger {
	c := l.logger.With().Err(err)

	if code := errors.GetErrorCode(err); code != errors.ErrCodeInternal {
		c = c.
			Str("error_code", string(code)).
			Int("http_status", errors.GetHTTPStatus(err))
	}

	return &StructuredLogger{logger: c.Logger()}
}

// LogTokenOperation logs a token issuance or validation.
// Token strings are never logged.
func (l *StructuredLogger) LogTokenOperation(operation, profile, subject string, err error, duration time.Duration) {
	event := l.logger.Info()
	if err != nil {
		event = l.logger.Warn().Err(err)
	}

	event.
		Str("operation", operation).
		Str("profile", profile).
		Str("subject", subject).
		Bool("success", err == nil).
		Dur("duration", duration).
		Msg("token operation")
}

// LogAuthFailure logs why a presented bearer token was ignored.
func (l *StructuredLogger) LogAuthFailure(reason, method, path string) {
	l.logger.Debug().
		Str("reason", reason).
		Str("method", method).
		Str("path", path).
		Msg("bearer token rejected, continuing anonymously")
}

// LogClaimMismatch logs a claim whose JSON type did not match the schema.
func (l *StructuredLogger) LogClaimMismatch(subject, claim, got string) {
	l.logger.Warn().
		Str("subject", subject).
		Str("claim", claim).
		Str("got", got).
		Msg("claim has unexpected type, treating as empty")
}
