package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/club-portal/internal/application"
)

// ServiceFactory builds application services that share a controllable
// clock and predictable session tokens.
type ServiceFactory struct {
	Clock    *Clock
	Tokens   *TokenGenerator
	Observer application.Observer
	Logger   *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:  NewClock(time.Time{}),
		Tokens: NewTokenGenerator("token"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.Tokens == nil {
		factory.Tokens = NewTokenGenerator("token")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithObserver sets the observer handed to session and attendance services.
func WithObserver(observer application.Observer) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Observer = observer
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// SessionServiceDeps captures dependencies for constructing a session service.
type SessionServiceDeps struct {
	Sessions         application.SessionRepository
	Users            application.UserDirectory
	Lifetime         time.Duration
	RefreshThreshold time.Duration
}

// NewSessionService builds a session service on the factory clock and tokens.
func (f *ServiceFactory) NewSessionService(deps SessionServiceDeps) *application.SessionService {
	return application.NewSessionServiceWithLogger(deps.Sessions, deps.Users, application.SessionConfig{
		Lifetime:         deps.Lifetime,
		RefreshThreshold: deps.RefreshThreshold,
		TokenGenerator:   f.Tokens.NextFunc(),
		Now:              f.Clock.NowFunc(),
		Observer:         f.Observer,
	}, f.Logger)
}

// NewUserService builds a user service.
func (f *ServiceFactory) NewUserService(users application.UserRepository) *application.UserService {
	return application.NewUserServiceWithLogger(users, f.Logger)
}

// NewCategoryService builds a category service.
func (f *ServiceFactory) NewCategoryService(categories application.CategoryRepository) *application.CategoryService {
	return application.NewCategoryServiceWithLogger(categories, f.Logger)
}

// NewEventService builds an event service on the factory clock.
func (f *ServiceFactory) NewEventService(events application.EventRepository) *application.EventService {
	return application.NewEventServiceWithLogger(events, f.Clock.NowFunc(), f.Logger)
}

// AttendanceServiceDeps captures dependencies for constructing an attendance service.
type AttendanceServiceDeps struct {
	Attendance application.AttendanceRepository
	Events     application.EventReader
}

// NewAttendanceService builds an attendance service on the factory clock.
func (f *ServiceFactory) NewAttendanceService(deps AttendanceServiceDeps) *application.AttendanceService {
	return application.NewAttendanceServiceWithLogger(deps.Attendance, deps.Events, f.Clock.NowFunc(), f.Observer, f.Logger)
}

// NewNewsService builds a news service on the factory clock.
func (f *ServiceFactory) NewNewsService(news application.NewsRepository) *application.NewsService {
	return application.NewNewsServiceWithLogger(news, f.Clock.NowFunc(), f.Logger)
}
