package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/config"
	httptransport "github.com/example/club-portal/internal/http"
	"github.com/example/club-portal/internal/logging"
	"github.com/example/club-portal/internal/metrics"
	"github.com/example/club-portal/internal/oauth"
	"github.com/example/club-portal/internal/persistence/sqlite"
	"github.com/example/club-portal/internal/persistence/sqlite/migration"
	"github.com/example/club-portal/internal/ratelimit"
)

const redisConnectTimeout = 3 * time.Second

func main() {
	logger := logging.NewJSON(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	svc := newServices(storage, serviceConfig{
		SessionLifetime:         cfg.SessionLifetime,
		SessionRefreshThreshold: cfg.SessionRefreshThreshold,
		Now:                     time.Now,
		Observer:                m,
	}, logger)

	provider := oauth.NewProvider(oauth.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		HostedDomain: cfg.OAuthHostedDomain,
	})

	cookies, err := httptransport.NewCookies(cfg.SessionSecret, cfg.CookieSecure)
	if err != nil {
		logger.Error("failed to configure cookies", "error", err)
		os.Exit(1)
	}

	limiter := newLimiter(ctx, cfg, logger)

	handler := newHandler(handlerDeps{
		Services: svc,
		Provider: provider,
		Cookies:  cookies,
		Health:   storage,
		Metrics:  m,
		Limiter:  limiter,
		Now:      time.Now,
		Logger:   logger,

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("club portal listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

type serviceConfig struct {
	SessionLifetime         time.Duration
	SessionRefreshThreshold time.Duration
	TokenGenerator          func() (string, error)
	Now                     func() time.Time
	Observer                application.Observer
}

type services struct {
	Sessions   *application.SessionService
	Users      *application.UserService
	Categories *application.CategoryService
	Events     *application.EventService
	Attendance *application.AttendanceService
	News       *application.NewsService
}

func newServices(storage *sqlite.Storage, cfg serviceConfig, logger *slog.Logger) services {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	userRepo := newUserRepositoryAdapter(storage.Users)
	sessionRepo := newSessionRepositoryAdapter(storage.Sessions)
	categoryRepo := newCategoryRepositoryAdapter(storage.Categories)
	eventRepo := newEventRepositoryAdapter(storage.Events)
	attendanceRepo := newAttendanceRepositoryAdapter(storage.Attendance)
	newsRepo := newNewsRepositoryAdapter(storage.News)

	return services{
		Sessions: application.NewSessionServiceWithLogger(sessionRepo, userRepo, application.SessionConfig{
			Lifetime:         cfg.SessionLifetime,
			RefreshThreshold: cfg.SessionRefreshThreshold,
			TokenGenerator:   cfg.TokenGenerator,
			Now:              now,
			Observer:         cfg.Observer,
		}, logger),
		Users:      application.NewUserServiceWithLogger(userRepo, logger),
		Categories: application.NewCategoryServiceWithLogger(categoryRepo, logger),
		Events:     application.NewEventServiceWithLogger(eventRepo, now, logger),
		Attendance: application.NewAttendanceServiceWithLogger(attendanceRepo, eventRepo, now, cfg.Observer, logger),
		News:       application.NewNewsServiceWithLogger(newsRepo, now, logger),
	}
}

// newLimiter shares buckets through Redis when it is configured and
// reachable, and keeps them in process otherwise.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) ratelimit.Limiter {
	limits := ratelimit.Config{PerMinute: cfg.RateLimitPerMinute, Burst: cfg.RateLimitBurst}
	if cfg.RedisAddr != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisAddr, redisConnectTimeout)
		if err == nil {
			logger.Info("rate limiter backed by redis", "addr", cfg.RedisAddr)
			return ratelimit.NewRedisLimiter(client, limits, time.Now)
		}
		logger.Warn("redis unavailable, using in-memory rate limiter", "addr", cfg.RedisAddr, "error", err)
	}
	return ratelimit.NewMemoryLimiter(limits, time.Now)
}

type handlerDeps struct {
	Services services
	Provider *oauth.Provider
	Cookies  *httptransport.Cookies
	Health   httptransport.Pinger
	Metrics  *metrics.Metrics
	Limiter  ratelimit.Limiter
	Now      func() time.Time
	Logger   *slog.Logger

	TrustProxyHeaders bool
}

func newHandler(deps handlerDeps) http.Handler {
	svc := deps.Services
	logger := deps.Logger

	cfg := httptransport.RouterConfig{
		Auth:       httptransport.NewAuthHandler(deps.Provider, svc.Sessions, svc.Users, deps.Cookies, logger),
		Account:    httptransport.NewAccountHandler(deps.Provider, svc.Sessions, svc.Users, svc.Attendance, logger),
		Users:      httptransport.NewUserHandler(svc.Users, logger),
		Events:     httptransport.NewEventHandler(svc.Events, svc.Attendance, deps.Now, logger),
		Categories: httptransport.NewCategoryHandler(svc.Categories, logger),
		News:       httptransport.NewNewsHandler(svc.News, logger),
		Sessions:   svc.Sessions,
		Cookies:    deps.Cookies,
		Health:     deps.Health,
		Logger:     logger,

		TrustProxyHeaders: deps.TrustProxyHeaders,
	}
	if deps.Metrics != nil {
		cfg.Metrics = deps.Metrics.Middleware
		cfg.MetricsHandler = deps.Metrics.Handler()
	}
	if deps.Limiter != nil {
		limiter := deps.Limiter
		cfg.RateLimit = func(scope string) func(http.Handler) http.Handler {
			return ratelimit.Middleware(limiter, scope, logger)
		}
	}
	return httptransport.NewRouter(cfg)
}
