package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/club-portal/internal/application"
)

type sessionResolver interface {
	ResolvePrincipal(ctx context.Context, token string) (application.Principal, error)
}

// SessionMiddleware resolves the session cookie into the request principal.
// Resolution never fails a request: missing, expired or unreadable sessions
// and store errors all continue as anonymous.
func SessionMiddleware(resolver sessionResolver, cookies *Cookies, logger *slog.Logger) func(http.Handler) http.Handler {
	base := defaultLogger(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := application.Anonymous()

			if token := cookies.SessionToken(r); token != "" {
				resolved, err := resolver.ResolvePrincipal(r.Context(), token)
				if err != nil {
					handlerLogger(r.Context(), base, "SessionMiddleware", "ResolvePrincipal").
						ErrorContext(r.Context(), "session resolution failed; continuing anonymously", "error", err, "error_kind", application.ErrorKind(err))
				} else {
					principal = resolved
				}
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			if principal.SignedIn() {
				if logger := LoggerFromContext(ctx); logger != nil {
					ctx = ContextWithLogger(ctx, logger.With("user", principal.Email()))
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSignedIn rejects anonymous requests with 401.
func RequireSignedIn(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PrincipalFromContext(r.Context()).SignedIn() {
				responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAccessLevel rejects anonymous requests with 401 and principals
// below level with 403.
func RequireAccessLevel(level application.AccessLevel, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			switch {
			case !principal.SignedIn():
				responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
			case principal.Level() < level:
				responder.handleServiceError(r.Context(), w, application.ErrForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequestLogger attaches a request scoped logger carrying the request ID
// and logs each request's outcome.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = uuid.NewString()
			}
			logger := base.With(
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "request completed", "status", status, "bytes", ww.BytesWritten(), "duration", time.Since(start))
		})
	}
}
