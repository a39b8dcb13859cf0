package http

import (
	"context"
	"log/slog"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/logging"
)

type contextKey string

const principalContextKey contextKey = "principal"

// ContextWithPrincipal returns a derived context containing the request principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext returns the request principal, or an anonymous one
// when the session middleware did not run.
func PrincipalFromContext(ctx context.Context) application.Principal {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	if !ok {
		return application.Anonymous()
	}
	return principal
}

// ContextWithLogger attaches the request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger if one was attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
