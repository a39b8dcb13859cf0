package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/oauth"
)

type identityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (oauth.Identity, error)
	Refresh(ctx context.Context, sessionToken string, credentials application.ProviderCredentials, refresher oauth.CredentialsRefresher) (oauth.Identity, error)
}

type sessionService interface {
	CreateSession(ctx context.Context, email string, credentials application.ProviderCredentials) (application.Session, error)
	RevokeSession(ctx context.Context, token string) error
	RefreshCredentials(ctx context.Context, token string, credentials application.ProviderCredentials) error
}

type loginRecorder interface {
	RecordLogin(ctx context.Context, profile application.UserProfile) (application.User, error)
}

// AuthHandler runs the OAuth sign-in flow and manages the session cookie.
type AuthHandler struct {
	provider  identityProvider
	sessions  sessionService
	users     loginRecorder
	cookies   *Cookies
	newState  func() (string, error)
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(provider identityProvider, sessions sessionService, users loginRecorder, cookies *Cookies, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{
		provider:  provider,
		sessions:  sessions,
		users:     users,
		cookies:   cookies,
		newState:  application.GenerateSessionToken,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// Login redirects to the provider's consent page. Signed-in users go
// straight back to refer.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	refer := safeRefer(r.URL.Query().Get("refer"))
	if PrincipalFromContext(r.Context()).SignedIn() {
		http.Redirect(w, r, refer, http.StatusFound)
		return
	}

	logger := h.log(r.Context(), "Login", "refer", refer)

	state, err := h.newState()
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to generate oauth state", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}
	if err := h.cookies.SaveOAuthState(w, r, state, refer); err != nil {
		logger.ErrorContext(r.Context(), "failed to store oauth state", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the flow: it checks the state, exchanges the code,
// records the login, opens a session and redirects to the stored refer path.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := h.log(r.Context(), "Callback")
	query := r.URL.Query()

	expected, refer, err := h.cookies.TakeOAuthState(w, r)
	if err != nil {
		logger.WarnContext(r.Context(), "oauth callback without state", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(query.Get("state"))) != 1 {
		logger.WarnContext(r.Context(), "oauth state mismatch")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("oauth state mismatch"))
		return
	}
	if providerErr := query.Get("error"); providerErr != "" {
		logger.InfoContext(r.Context(), "provider returned an error", "provider_error", providerErr)
		http.Redirect(w, r, safeRefer(refer), http.StatusFound)
		return
	}
	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("authorization code is required"))
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, oauth.ErrDomainNotAllowed) || errors.Is(err, oauth.ErrMissingEmail) {
			logger.WarnContext(r.Context(), "sign-in rejected", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusForbidden, err)
			return
		}
		logger.ErrorContext(r.Context(), "oauth exchange failed", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadGateway, nil)
		return
	}

	logger = logger.With("email", identity.Email)

	if _, err := h.users.RecordLogin(r.Context(), identity.Profile()); err != nil {
		logger.ErrorContext(r.Context(), "failed to record login", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	session, err := h.sessions.CreateSession(r.Context(), identity.Email, identity.Credentials)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to create session", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if err := h.cookies.SetSession(w, session.Token); err != nil {
		logger.ErrorContext(r.Context(), "failed to set session cookie", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}

	logger.InfoContext(r.Context(), "user signed in")
	http.Redirect(w, r, safeRefer(refer), http.StatusFound)
}

// Logout revokes the current session and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.cookies.SessionToken(r)
	logger := h.log(r.Context(), "Logout", "token_present", token != "")

	if token != "" {
		if err := h.sessions.RevokeSession(r.Context(), token); err != nil {
			logger.ErrorContext(r.Context(), "failed to revoke session", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
	}

	h.cookies.ClearSession(w)
	logger.InfoContext(r.Context(), "signed out")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Session describes the current principal.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	resp := sessionResponse{SignedIn: principal.SignedIn(), AccessLevel: principal.Level()}
	if principal.User != nil {
		user := toUserDTO(*principal.User)
		resp.User = &user
	}
	if principal.Session != nil {
		resp.ExpiresAt = formatTime(principal.Session.ExpiresAt)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// LoginURL builds the login path that returns to refer afterwards.
func LoginURL(refer string) string {
	return "/api/oauth/login?refer=" + url.QueryEscape(safeRefer(refer))
}

type sessionResponse struct {
	SignedIn    bool                    `json:"signed_in"`
	AccessLevel application.AccessLevel `json:"access_level"`
	User        *userDTO                `json:"user,omitempty"`
	ExpiresAt   string                  `json:"expires_at,omitempty"`
}
