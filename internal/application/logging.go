package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/club-portal/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// logOutcome writes the closing log line of a service operation. Expected
// outcomes such as not found or validation failures are logged at WARN;
// store failures at ERROR.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, msg string, attrs ...any) {
	if err == nil {
		logger.InfoContext(ctx, msg+" succeeded", attrs...)
		return
	}
	attrs = append(attrs, "error", err, "error_kind", ErrorKind(err))
	var sErr *StoreError
	if errors.As(err, &sErr) {
		logger.ErrorContext(ctx, msg+" failed", attrs...)
		return
	}
	logger.WarnContext(ctx, msg+" failed", attrs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var sErr *StoreError
	if errors.As(err, &sErr) {
		return "store"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateAttendance):
		return "duplicate_attendance"
	case errors.Is(err, ErrEventNotInProgress):
		return "event_not_in_progress"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}

	return "unexpected"
}
