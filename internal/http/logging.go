package http

import (
	"context"
	"log/slog"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger scopes the request logger to one handler operation. Records
// from signed-in requests carry the viewer's email and access level.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := make([]any, 0, 6+len(attrs))
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if principal := PrincipalFromContext(ctx); principal.SignedIn() {
		pairs = append(pairs, "viewer", principal.Email(), "viewer_level", principal.Level().String())
	}
	pairs = append(pairs, attrs...)
	return logger.With(pairs...)
}
