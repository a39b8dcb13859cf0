package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/oauth"
)

type authHarness struct {
	cookies  *Cookies
	provider *providerStub
	sessions *sessionServiceStub
	users    *loginRecorderStub
	handler  *AuthHandler
	router   http.Handler
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()
	h := &authHarness{
		cookies: newTestCookies(t),
		provider: &providerStub{
			authURL: "https://accounts.example.com/auth",
			identity: oauth.Identity{
				Email:       "new@example.edu",
				GivenName:   "New",
				FamilyName:  "Member",
				Credentials: application.ProviderCredentials{"access_token": []byte(`"at"`)},
			},
		},
		sessions: &sessionServiceStub{},
		users:    &loginRecorderStub{},
	}
	logger := discardLogger()
	h.handler = NewAuthHandler(h.provider, h.sessions, h.users, h.cookies, logger)
	h.handler.newState = func() (string, error) { return "state-123", nil }
	h.router = NewRouter(RouterConfig{
		Auth:     h.handler,
		Sessions: &resolverStub{principals: map[string]application.Principal{"member": principalWith("member@example.edu", application.AccessMember)}},
		Cookies:  h.cookies,
		Logger:   logger,
	})
	return h
}

// login runs the first leg and returns the stored state cookie.
func (h *authHarness) login(t *testing.T, refer string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oauth/login?refer="+refer, nil))
	require.Equal(t, http.StatusFound, rec.Code)
	return findCookie(t, rec.Result().Cookies(), oauthStateName)
}

func (h *authHarness) callback(t *testing.T, query string, state *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/oauth/callback?"+query, nil)
	if state != nil {
		req.AddCookie(state)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthHandlerLogin(t *testing.T) {
	t.Parallel()

	t.Run("redirects to the provider with a fresh state", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oauth/login?refer=/events/5", nil))

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://accounts.example.com/auth?state=state-123", rec.Header().Get("Location"))
		state := findCookie(t, rec.Result().Cookies(), oauthStateName)
		assert.True(t, state.HttpOnly)
	})

	t.Run("signed-in users go straight back", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		req := httptest.NewRequest(http.MethodGet, "/api/oauth/login?refer=/account", nil)
		req.AddCookie(sessionCookie(t, h.cookies, "member"))
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/account", rec.Header().Get("Location"))
	})

	t.Run("off-site refer falls back to root", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		rec := h.callback(t, "state=state-123&code=abc", h.login(t, "https://evil.example.com"))

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}

func TestAuthHandlerCallback(t *testing.T) {
	t.Parallel()

	t.Run("signs the user in and returns to refer", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		rec := h.callback(t, "state=state-123&code=abc", h.login(t, "/events/5"))

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/events/5", rec.Header().Get("Location"))
		assert.Equal(t, []string{"abc"}, h.provider.codes)
		require.Len(t, h.users.profiles, 1)
		assert.Equal(t, "New", h.users.profiles[0].GivenName)
		assert.Equal(t, []string{"new@example.edu"}, h.sessions.created)

		cookie := findCookie(t, rec.Result().Cookies(), SessionCookieName)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		assert.Equal(t, "new-token", h.cookies.SessionToken(req))
	})

	tests := []struct {
		name    string
		query   string
		noState bool
		exchErr error
		status  int
	}{
		{name: "missing state cookie", query: "state=state-123&code=abc", noState: true, status: http.StatusBadRequest},
		{name: "state mismatch", query: "state=forged&code=abc", status: http.StatusBadRequest},
		{name: "missing code", query: "state=state-123", status: http.StatusBadRequest},
		{name: "foreign domain", query: "state=state-123&code=abc", exchErr: oauth.ErrDomainNotAllowed, status: http.StatusForbidden},
		{name: "provider down", query: "state=state-123&code=abc", exchErr: errors.New("connection refused"), status: http.StatusBadGateway},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newAuthHarness(t)
			h.provider.exchangeErr = tc.exchErr

			state := h.login(t, "/")
			if tc.noState {
				state = nil
			}
			rec := h.callback(t, tc.query, state)

			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, h.sessions.created)
		})
	}

	t.Run("provider errors return to refer without a session", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		rec := h.callback(t, "state=state-123&error=access_denied", h.login(t, "/news"))

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/news", rec.Header().Get("Location"))
		assert.Empty(t, h.provider.codes)
		assert.Empty(t, h.sessions.created)
	})

	t.Run("store failures surface as internal errors", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)
		h.sessions.createErr = application.NewStoreError("create session", assert.AnError)

		rec := h.callback(t, "state=state-123&code=abc", h.login(t, "/"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestAuthHandlerLogoutAndSession(t *testing.T) {
	t.Parallel()

	t.Run("logout revokes the cookie token", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
		req.AddCookie(sessionCookie(t, h.cookies, "member"))
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"member"}, h.sessions.revoked)
		cleared := findCookie(t, rec.Result().Cookies(), SessionCookieName)
		assert.Equal(t, -1, cleared.MaxAge)
	})

	t.Run("logout without a cookie still clears it", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logout", nil))

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, h.sessions.revoked)
	})

	t.Run("session describes the principal", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.AddCookie(sessionCookie(t, h.cookies, "member"))
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[sessionResponse](t, rec.Body.Bytes())
		assert.True(t, body.SignedIn)
		assert.Equal(t, application.AccessMember, body.AccessLevel)
		require.NotNil(t, body.User)
		assert.Equal(t, "member@example.edu", body.User.Email)
		assert.NotEmpty(t, body.ExpiresAt)
	})

	t.Run("session is anonymous without a cookie", func(t *testing.T) {
		t.Parallel()
		h := newAuthHarness(t)

		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[sessionResponse](t, rec.Body.Bytes())
		assert.False(t, body.SignedIn)
		assert.Equal(t, application.AccessNonMember, body.AccessLevel)
		assert.Nil(t, body.User)
	})
}
