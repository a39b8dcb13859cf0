package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/oauth"
)

type accountHarness struct {
	cookies    *Cookies
	provider   *providerStub
	sessions   *sessionServiceStub
	users      *loginRecorderStub
	attendance *attendanceServiceStub
	router     http.Handler
}

func newAccountHarness(t *testing.T) *accountHarness {
	t.Helper()
	h := &accountHarness{
		cookies: newTestCookies(t),
		provider: &providerStub{identity: oauth.Identity{
			Email:      "member@example.edu",
			GivenName:  "Renamed",
			FamilyName: "Member",
		}},
		sessions:   &sessionServiceStub{},
		users:      &loginRecorderStub{},
		attendance: &attendanceServiceStub{points: 12},
	}
	logger := discardLogger()
	h.router = NewRouter(RouterConfig{
		Account:  NewAccountHandler(h.provider, h.sessions, h.users, h.attendance, logger),
		Sessions: &resolverStub{principals: map[string]application.Principal{"member": principalWith("member@example.edu", application.AccessMember)}},
		Cookies:  h.cookies,
		Logger:   logger,
	})
	return h
}

func (h *accountHarness) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.AddCookie(sessionCookie(t, h.cookies, token))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestAccountHandlerGet(t *testing.T) {
	t.Parallel()

	t.Run("requires sign in", func(t *testing.T) {
		t.Parallel()
		h := newAccountHarness(t)

		assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/account", "").Code)
	})

	t.Run("returns history and points", func(t *testing.T) {
		t.Parallel()
		h := newAccountHarness(t)
		h.attendance.page = application.AttendancePage{TotalCount: 31, Results: []application.AttendanceRecord{{
			User:       application.User{Email: "member@example.edu"},
			Event:      application.Event{ID: 4, Title: "Workshop"},
			AttendedAt: testNow,
		}}}

		rec := h.do(t, http.MethodGet, "/api/account?from=2026-01-01T00:00:00Z", "member")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[accountResponse](t, rec.Body.Bytes())
		assert.Equal(t, "member@example.edu", body.User.Email)
		assert.Equal(t, 12, body.Points)
		assert.Equal(t, 31, body.Attendance.TotalCount)
		require.Len(t, body.Attendance.Results, 1)

		assert.Equal(t, []string{"member@example.edu"}, h.attendance.lastFilter.UserEmails)
		require.NotNil(t, h.attendance.lastFilter.MaxEntries)
		assert.Equal(t, accountAttendancePageSize, *h.attendance.lastFilter.MaxEntries)
		require.NotNil(t, h.attendance.pointsRange[0])
		assert.True(t, h.attendance.pointsRange[0].Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
		assert.Nil(t, h.attendance.pointsRange[1])
	})
}

func TestAccountHandlerSync(t *testing.T) {
	t.Parallel()

	t.Run("refreshes the profile and stores rotated credentials", func(t *testing.T) {
		t.Parallel()
		h := newAccountHarness(t)
		h.provider.rotate = application.ProviderCredentials{"access_token": []byte(`"rotated"`)}

		rec := h.do(t, http.MethodPost, "/api/account/sync", "member")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"token-member@example.edu"}, h.provider.refreshed)
		assert.Contains(t, h.sessions.refreshed, "token-member@example.edu")
		require.Len(t, h.users.profiles, 1)
		assert.Equal(t, "Renamed", h.users.profiles[0].GivenName)
		assert.Equal(t, "Renamed", decodeBody[userResponse](t, rec.Body.Bytes()).User.GivenName)
	})

	t.Run("rejects a different provider account", func(t *testing.T) {
		t.Parallel()
		h := newAccountHarness(t)
		h.provider.identity.Email = "someone-else@example.edu"

		rec := h.do(t, http.MethodPost, "/api/account/sync", "member")

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, h.users.profiles)
	})

	t.Run("provider failures are bad gateway", func(t *testing.T) {
		t.Parallel()
		h := newAccountHarness(t)
		h.provider.refreshErr = assert.AnError

		rec := h.do(t, http.MethodPost, "/api/account/sync", "member")

		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "PROVIDER_UNAVAILABLE", decodeBody[errorResponse](t, rec.Body.Bytes()).ErrorCode)
	})

	t.Run("requires sign in", func(t *testing.T) {
		t.Parallel()
		h := newAccountHarness(t)

		assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/account/sync", "").Code)
		assert.Empty(t, h.provider.refreshed)
	})
}
