package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/club-portal/internal/application"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Auth       *AuthHandler
	Account    *AccountHandler
	Users      *UserHandler
	Events     *EventHandler
	Categories *CategoryHandler
	News       *NewsHandler

	Sessions sessionResolver
	Cookies  *Cookies
	Health   Pinger

	// Metrics wraps every request; MetricsHandler is served at /metrics.
	Metrics        func(http.Handler) http.Handler
	MetricsHandler http.Handler
	// RateLimit returns the limiter middleware for a named scope.
	RateLimit func(scope string) func(http.Handler) http.Handler
	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For and
	// X-Real-IP. Leave it off unless a proxy in front overwrites them.
	TrustProxyHeaders bool

	Logger *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	res := newResponder(logger)
	limit := func(scope string) func(http.Handler) http.Handler {
		if cfg.RateLimit == nil {
			return passthrough
		}
		return cfg.RateLimit(scope)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics)
	}
	if cfg.Sessions != nil && cfg.Cookies != nil {
		r.Use(SessionMiddleware(cfg.Sessions, cfg.Cookies, logger))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		res.writeError(r.Context(), w, http.StatusNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		res.writeJSON(r.Context(), w, http.StatusMethodNotAllowed, errorResponse{
			ErrorCode: "METHOD_NOT_ALLOWED",
			Message:   http.StatusText(http.StatusMethodNotAllowed),
		})
	})

	r.Get("/healthz", healthHandler(cfg.Health, res))
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	officer := RequireAccessLevel(application.AccessOfficer, logger)
	signedIn := RequireSignedIn(logger)

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Group(func(r chi.Router) {
				r.Use(limit("oauth"))
				r.Get("/oauth/login", cfg.Auth.Login)
				r.Get("/oauth/callback", cfg.Auth.Callback)
			})
			r.Post("/logout", cfg.Auth.Logout)
			r.Get("/session", cfg.Auth.Session)
		}

		if cfg.Account != nil {
			r.Route("/account", func(r chi.Router) {
				r.Use(signedIn)
				r.Get("/", cfg.Account.Get)
				r.Post("/sync", cfg.Account.Sync)
			})
		}

		if cfg.Events != nil {
			r.Route("/events", func(r chi.Router) {
				r.Get("/", cfg.Events.List)
				r.With(officer).Post("/", cfg.Events.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", cfg.Events.Get)
					r.With(officer).Patch("/", cfg.Events.Update)
					r.With(officer).Delete("/", cfg.Events.Delete)

					// Anonymous GETs are redirected to sign in by the handler.
					r.With(limit("attend")).Get("/attend", cfg.Events.Attend)
					r.With(limit("attend"), signedIn).Post("/attend", cfg.Events.Attend)

					r.Group(func(r chi.Router) {
						r.Use(officer)
						r.Get("/attendance", cfg.Events.Attendance)
						r.Get("/attendees", cfg.Events.Attendees)
						r.Delete("/attendance/{email}", cfg.Events.RemoveAttendance)
					})
				})
			})
		}

		if cfg.Categories != nil {
			r.Route("/categories", func(r chi.Router) {
				r.Get("/", cfg.Categories.List)
				r.Get("/{id}", cfg.Categories.Get)
				r.Group(func(r chi.Router) {
					r.Use(officer)
					r.Post("/", cfg.Categories.Create)
					r.Patch("/{id}", cfg.Categories.Update)
					r.Delete("/{id}", cfg.Categories.Delete)
				})
			})
		}

		if cfg.Users != nil {
			r.Route("/users", func(r chi.Router) {
				r.Use(signedIn)
				r.With(officer).Get("/", cfg.Users.List)
				r.Get("/{email}", cfg.Users.Get)
				r.Patch("/{email}", cfg.Users.Update)
				r.With(RequireAccessLevel(application.AccessAdvisor, logger)).Put("/{email}/access-level", cfg.Users.SetAccessLevel)
			})
		}

		if cfg.News != nil {
			r.Route("/news", func(r chi.Router) {
				r.Get("/", cfg.News.Feed)
				r.Get("/{id}", cfg.News.Get)
				r.Group(func(r chi.Router) {
					r.Use(officer)
					r.Post("/", cfg.News.Create)
					r.Patch("/{id}", cfg.News.Update)
					r.Delete("/{id}", cfg.News.Delete)
				})
			})
		}
	})

	return r
}

func healthHandler(pinger Pinger, res responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				res.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				res.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		res.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

type healthResponse struct {
	Status string `json:"status"`
}
