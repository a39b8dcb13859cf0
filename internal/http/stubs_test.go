package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/oauth"
)

const testCookieSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, time.March, 14, 18, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCookies(t *testing.T) *Cookies {
	t.Helper()
	cookies, err := NewCookies(testCookieSecret, false)
	require.NoError(t, err)
	return cookies
}

func sessionCookie(t *testing.T, cookies *Cookies, token string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, cookies.SetSession(rec, token))
	return findCookie(t, rec.Result().Cookies(), SessionCookieName)
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func principalWith(email string, level application.AccessLevel) application.Principal {
	return application.Principal{
		User: &application.User{Email: email, GivenName: "Test", FamilyName: "User", AccessLevel: level},
		Session: &application.Session{
			Token:       "token-" + email,
			UserEmail:   email,
			Credentials: application.ProviderCredentials{"refresh_token": []byte(`"refresh"`)},
			ExpiresAt:   testNow.Add(7 * 24 * time.Hour),
		},
	}
}

// resolverStub maps cookie tokens to principals.
type resolverStub struct {
	principals map[string]application.Principal
	err        error
	calls      []string
}

func (s *resolverStub) ResolvePrincipal(_ context.Context, token string) (application.Principal, error) {
	s.calls = append(s.calls, token)
	if s.err != nil {
		return application.Principal{}, s.err
	}
	if p, ok := s.principals[token]; ok {
		return p, nil
	}
	return application.Anonymous(), nil
}

type providerStub struct {
	authURL     string
	identity    oauth.Identity
	exchangeErr error
	refreshErr  error
	codes       []string
	refreshed   []string
	rotate      application.ProviderCredentials
}

func (p *providerStub) AuthCodeURL(state string) string {
	return p.authURL + "?state=" + state
}

func (p *providerStub) Exchange(_ context.Context, code string) (oauth.Identity, error) {
	p.codes = append(p.codes, code)
	if p.exchangeErr != nil {
		return oauth.Identity{}, p.exchangeErr
	}
	return p.identity, nil
}

func (p *providerStub) Refresh(ctx context.Context, sessionToken string, _ application.ProviderCredentials, refresher oauth.CredentialsRefresher) (oauth.Identity, error) {
	p.refreshed = append(p.refreshed, sessionToken)
	if p.refreshErr != nil {
		return oauth.Identity{}, p.refreshErr
	}
	if p.rotate != nil {
		if err := refresher.RefreshCredentials(ctx, sessionToken, p.rotate); err != nil {
			return oauth.Identity{}, err
		}
	}
	return p.identity, nil
}

type sessionServiceStub struct {
	created   []string
	revoked   []string
	refreshed map[string]application.ProviderCredentials
	createErr error
	revokeErr error
}

func (s *sessionServiceStub) CreateSession(_ context.Context, email string, credentials application.ProviderCredentials) (application.Session, error) {
	if s.createErr != nil {
		return application.Session{}, s.createErr
	}
	s.created = append(s.created, email)
	return application.Session{Token: "new-token", UserEmail: email, Credentials: credentials, ExpiresAt: testNow.Add(time.Hour)}, nil
}

func (s *sessionServiceStub) RevokeSession(_ context.Context, token string) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	s.revoked = append(s.revoked, token)
	return nil
}

func (s *sessionServiceStub) RefreshCredentials(_ context.Context, token string, credentials application.ProviderCredentials) error {
	if s.refreshed == nil {
		s.refreshed = make(map[string]application.ProviderCredentials)
	}
	s.refreshed[token] = credentials
	return nil
}

type loginRecorderStub struct {
	profiles []application.UserProfile
	err      error
}

func (s *loginRecorderStub) RecordLogin(_ context.Context, profile application.UserProfile) (application.User, error) {
	if s.err != nil {
		return application.User{}, s.err
	}
	s.profiles = append(s.profiles, profile)
	return application.User{
		Email:       profile.Email,
		GivenName:   profile.GivenName,
		FamilyName:  profile.FamilyName,
		PictureURL:  profile.PictureURL,
		AccessLevel: application.AccessMember,
	}, nil
}

type eventServiceStub struct {
	events      map[int64]application.Event
	lastParams  application.FilterEventsParams
	lastInput   application.EventInput
	lastPatch   application.EventPatch
	deleted     []int64
	createErr   error
	filterCalls int
}

func (s *eventServiceStub) FilterEvents(_ context.Context, params application.FilterEventsParams) (application.EventPage, error) {
	s.filterCalls++
	s.lastParams = params
	results := make([]application.Event, 0, len(s.events))
	for _, e := range s.events {
		if params.AccessCeiling == nil || e.VisibleTo(*params.AccessCeiling) {
			results = append(results, e)
		}
	}
	return application.EventPage{TotalCount: len(results), Results: results}, nil
}

func (s *eventServiceStub) GetEvent(_ context.Context, principal application.Principal, id int64) (application.Event, error) {
	e, ok := s.events[id]
	if !ok || !e.VisibleTo(principal.Level()) {
		return application.Event{}, application.ErrNotFound
	}
	return e, nil
}

func (s *eventServiceStub) CreateEvent(_ context.Context, _ application.Principal, input application.EventInput) (application.Event, error) {
	s.lastInput = input
	if s.createErr != nil {
		return application.Event{}, s.createErr
	}
	return application.Event{
		ID:             99,
		Title:          input.Title,
		Location:       input.Location,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		CategoryID:     input.CategoryID,
		MinAccessLevel: input.MinAccessLevel,
	}, nil
}

func (s *eventServiceStub) UpdateEvent(_ context.Context, _ application.Principal, id int64, patch application.EventPatch) (application.Event, error) {
	s.lastPatch = patch
	e, ok := s.events[id]
	if !ok {
		return application.Event{}, application.ErrNotFound
	}
	if patch.ClearCategory {
		e.CategoryID = nil
	} else if patch.CategoryID != nil {
		e.CategoryID = patch.CategoryID
	}
	return e, nil
}

func (s *eventServiceStub) DeleteEvent(_ context.Context, _ application.Principal, id int64) error {
	if _, ok := s.events[id]; !ok {
		return application.ErrNotFound
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type attendanceServiceStub struct {
	attended    map[int64]bool
	checkInErr  error
	checkIns    []int64
	lastFilter  application.AttendanceFilter
	roster      []application.User
	rosterPage  [2]*int
	page        application.AttendancePage
	points      int
	pointsRange [2]*time.Time
	removed     []string
}

func (s *attendanceServiceStub) CheckIn(_ context.Context, principal application.Principal, eventID int64) (application.Event, error) {
	if s.checkInErr != nil {
		return application.Event{}, s.checkInErr
	}
	s.checkIns = append(s.checkIns, eventID)
	return application.Event{ID: eventID, Title: "Checked"}, nil
}

func (s *attendanceServiceStub) HasAttended(_ context.Context, eventID int64, _ string) (bool, error) {
	return s.attended[eventID], nil
}

func (s *attendanceServiceStub) ListAttendance(_ context.Context, eventID int64, offset, maxEntries *int) ([]application.User, error) {
	s.rosterPage = [2]*int{offset, maxEntries}
	if eventID != 1 {
		return nil, application.ErrNotFound
	}
	return s.roster, nil
}

func (s *attendanceServiceStub) FilterAttendance(_ context.Context, filter application.AttendanceFilter) (application.AttendancePage, error) {
	s.lastFilter = filter
	return s.page, nil
}

func (s *attendanceServiceStub) RemoveAttendance(_ context.Context, eventID int64, email string) error {
	s.removed = append(s.removed, email)
	return nil
}

func (s *attendanceServiceStub) AttendancePoints(_ context.Context, _ string, from, to *time.Time) (int, error) {
	s.pointsRange = [2]*time.Time{from, to}
	return s.points, nil
}

// apiHarness wires handlers into the router with stubbed services.
type apiHarness struct {
	cookies    *Cookies
	resolver   *resolverStub
	events     *eventServiceStub
	attendance *attendanceServiceStub
	router     http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	h := &apiHarness{
		cookies: newTestCookies(t),
		resolver: &resolverStub{principals: map[string]application.Principal{
			"member":  principalWith("member@example.edu", application.AccessMember),
			"officer": principalWith("officer@example.edu", application.AccessOfficer),
			"advisor": principalWith("advisor@example.edu", application.AccessAdvisor),
		}},
		events: &eventServiceStub{events: map[int64]application.Event{
			1: {ID: 1, Title: "Open meeting", StartDate: testNow.Add(-time.Hour), EndDate: testNow.Add(time.Hour)},
			2: {ID: 2, Title: "Officer retreat", StartDate: testNow.Add(time.Hour), EndDate: testNow.Add(2 * time.Hour), MinAccessLevel: application.AccessOfficer},
		}},
		attendance: &attendanceServiceStub{attended: map[int64]bool{1: true}},
	}
	logger := discardLogger()
	h.router = NewRouter(RouterConfig{
		Events:   NewEventHandler(h.events, h.attendance, func() time.Time { return testNow }, logger),
		Sessions: h.resolver,
		Cookies:  h.cookies,
		Logger:   logger,
	})
	return h
}

func (h *apiHarness) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(sessionCookie(t, h.cookies, token))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}
