package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SessionRepository captures the persistence interactions for sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	// ExtendSession updates the expiry only while the stored session has not
	// expired at now, and returns ErrNotFound otherwise.
	ExtendSession(ctx context.Context, token string, expiresAt, now time.Time) (Session, error)
	MergeCredentials(ctx context.Context, token string, update ProviderCredentials, now time.Time) error
	DeleteSession(ctx context.Context, token string) error
	// DeleteExpiredSession removes the session only if it expired by now.
	DeleteExpiredSession(ctx context.Context, token string, now time.Time) error
}

// UserDirectory resolves the user a session belongs to.
type UserDirectory interface {
	GetUser(ctx context.Context, email string) (User, error)
}

const (
	DefaultSessionLifetime  = 7 * 24 * time.Hour
	DefaultRefreshThreshold = 24 * time.Hour
)

// SessionConfig tunes the session lifecycle. Zero values take the defaults.
type SessionConfig struct {
	Lifetime         time.Duration
	RefreshThreshold time.Duration
	TokenGenerator   func() (string, error)
	Now              func() time.Time
	Observer         Observer
}

// SessionService issues, resolves, refreshes and revokes sessions.
// Expiry is evaluated lazily whenever a session is resolved.
type SessionService struct {
	sessions       SessionRepository
	users          UserDirectory
	lifetime       time.Duration
	threshold      time.Duration
	tokenGenerator func() (string, error)
	now            func() time.Time
	observer       Observer
	logger         *slog.Logger
}

// NewSessionService constructs a SessionService with the provided dependencies.
func NewSessionService(sessions SessionRepository, users UserDirectory, cfg SessionConfig) *SessionService {
	return NewSessionServiceWithLogger(sessions, users, cfg, nil)
}

// NewSessionServiceWithLogger constructs a SessionService with a specified logger.
func NewSessionServiceWithLogger(sessions SessionRepository, users UserDirectory, cfg SessionConfig, logger *slog.Logger) *SessionService {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultSessionLifetime
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	if cfg.TokenGenerator == nil {
		cfg.TokenGenerator = GenerateSessionToken
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionService{
		sessions:       sessions,
		users:          users,
		lifetime:       cfg.Lifetime,
		threshold:      cfg.RefreshThreshold,
		tokenGenerator: cfg.TokenGenerator,
		now:            cfg.Now,
		observer:       defaultObserver(cfg.Observer),
		logger:         defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// Lifetime reports the validity window given to new and refreshed sessions.
func (s *SessionService) Lifetime() time.Duration {
	return s.lifetime
}

// CreateSession issues a new session for email. A token collision is not
// retried and surfaces as a StoreError.
func (s *SessionService) CreateSession(ctx context.Context, email string, credentials ProviderCredentials) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSession", "email", email)
	defer func() {
		logOutcome(ctx, logger, err, "session creation", "expires_at", session.ExpiresAt)
	}()

	if !isEmail(email) {
		err = invalidField("email", "email is invalid")
		return
	}

	token, terr := s.tokenGenerator()
	if terr != nil {
		err = NewStoreError("generate session token", terr)
		return
	}

	now := s.now()
	if credentials == nil {
		credentials = ProviderCredentials{}
	}
	session, err = s.sessions.CreateSession(ctx, Session{
		Token:       token,
		UserEmail:   email,
		Credentials: credentials,
		ExpiresAt:   now.Add(s.lifetime),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		session = Session{}
		err = storeError("create session", err)
	}
	return
}

// ResolveSession returns the live session for token.
//
// A session found past its expiry is deleted and reported as ErrNotFound; a
// failure of that delete is logged and not returned. A session within the
// refresh threshold of expiring is extended to a full lifetime. The expiry
// check always runs before the refresh check.
func (s *SessionService) ResolveSession(ctx context.Context, token string) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	token = strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ResolveSession", "token_provided", token != "")
	outcome := SessionMissing
	defer func() {
		if err == nil || errors.Is(err, ErrNotFound) {
			s.observer.SessionResolved(outcome)
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "session resolution failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "session resolved", "outcome", outcome)
	}()

	if token == "" {
		err = ErrNotFound
		return
	}

	session, err = s.sessions.GetSession(ctx, token)
	if err != nil {
		session = Session{}
		err = storeError("get session", err)
		return
	}

	now := s.now()
	if now.After(session.ExpiresAt) {
		outcome = SessionExpired
		if derr := s.sessions.DeleteExpiredSession(ctx, token, now); derr != nil {
			logger.WarnContext(ctx, "failed to delete expired session", "error", derr)
		}
		session = Session{}
		err = ErrNotFound
		return
	}

	if session.ExpiresAt.Sub(now) <= s.threshold {
		var extended Session
		extended, err = s.sessions.ExtendSession(ctx, token, now.Add(s.lifetime), now)
		if err != nil {
			// ErrNotFound here means a concurrent request removed the session.
			session = Session{}
			err = storeError("extend session", err)
			return
		}
		outcome = SessionRefreshed
		session = extended
		return
	}

	outcome = SessionActive
	return
}

// ResolvePrincipal resolves token to the signed-in user. Unknown, expired
// and orphaned sessions resolve to the anonymous principal without error;
// only store failures are returned.
func (s *SessionService) ResolvePrincipal(ctx context.Context, token string) (Principal, error) {
	session, err := s.ResolveSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Anonymous(), nil
		}
		return Anonymous(), err
	}

	user, err := s.users.GetUser(ctx, session.UserEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Anonymous(), nil
		}
		return Anonymous(), storeError("get session user", err)
	}

	return Principal{User: &user, Session: &session}, nil
}

// RefreshCredentials shallow-merges rotated provider credentials into the
// stored session.
func (s *SessionService) RefreshCredentials(ctx context.Context, token string, credentials ProviderCredentials) (err error) {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}
	if len(credentials) == 0 {
		return nil
	}

	logger := s.loggerWith(ctx, "RefreshCredentials", "keys", len(credentials))
	defer func() {
		logOutcome(ctx, logger, err, "credential refresh")
	}()

	if strings.TrimSpace(token) == "" {
		err = ErrNotFound
		return
	}
	err = storeError("merge credentials", s.sessions.MergeCredentials(ctx, token, credentials, s.now()))
	return
}

// RevokeSession deletes the session. Revoking an unknown token is not an error.
func (s *SessionService) RevokeSession(ctx context.Context, token string) (err error) {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	logger := s.loggerWith(ctx, "RevokeSession")
	defer func() {
		logOutcome(ctx, logger, err, "session revocation")
	}()

	err = storeError("delete session", s.sessions.DeleteSession(ctx, token))
	return
}
