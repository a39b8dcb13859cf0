package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/club-portal/internal/application"
	httptransport "github.com/example/club-portal/internal/http"
	"github.com/example/club-portal/internal/metrics"
	"github.com/example/club-portal/internal/oauth"
	"github.com/example/club-portal/internal/persistence"
	"github.com/example/club-portal/internal/ratelimit"
	"github.com/example/club-portal/internal/testfixtures"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTranslateError(t *testing.T) {
	cause := errors.New("disk I/O error")
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "nil", err: nil, check: func(err error) bool { return err == nil }},
		{name: "not found", err: fmt.Errorf("get: %w", persistence.ErrNotFound), check: func(err error) bool {
			return errors.Is(err, application.ErrNotFound)
		}},
		{name: "constraint", err: fmt.Errorf("%w: CHECK failed", persistence.ErrConstraintViolation), check: func(err error) bool {
			var sErr *application.StoreError
			return errors.As(err, &sErr) && !errors.Is(err, application.ErrInvalidInput) && errors.Is(err, persistence.ErrConstraintViolation)
		}},
		{name: "other", err: cause, check: func(err error) bool {
			var sErr *application.StoreError
			return errors.As(err, &sErr) && sErr.Op == "op" && errors.Is(err, cause)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translateError("op", tt.err); !tt.check(got) {
				t.Fatalf("unexpected translation %v", got)
			}
		})
	}
}

func TestCheckInFlowAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)

	start := testfixtures.ReferenceTime()
	clock := testfixtures.NewClock(start)
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock), testfixtures.WithLogger(discardLogger()))

	eventRepo := newEventRepositoryAdapter(harness.Events)
	attendance := factory.NewAttendanceService(testfixtures.AttendanceServiceDeps{
		Attendance: newAttendanceRepositoryAdapter(harness.Attendance),
		Events:     eventRepo,
	})

	memberFixture := testfixtures.NewUserFixture(testfixtures.WithUserLevel(application.AccessMember))
	harness.SeedUser(t, memberFixture)
	member := memberFixture.Principal()

	category := harness.SeedCategory(t, testfixtures.NewCategoryFixture(3))
	event := harness.SeedEvent(t, testfixtures.NewEventFixture(
		testfixtures.WithEventWindow(start, start.Add(2*time.Hour)),
		testfixtures.WithEventCategory(category.ID),
	))
	clock.DuringEvent(event)
	officerOnly := harness.SeedEvent(t, testfixtures.NewEventFixture(
		testfixtures.WithEventWindow(start, start.Add(2*time.Hour)),
		testfixtures.WithEventLevel(application.AccessOfficer),
	))

	if _, err := attendance.CheckIn(ctx, member, event.ID); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if _, err := attendance.CheckIn(ctx, member, event.ID); !errors.Is(err, application.ErrDuplicateAttendance) {
		t.Fatalf("expected ErrDuplicateAttendance, got %v", err)
	}
	if _, err := attendance.CheckIn(ctx, member, officerOnly.ID); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected hidden event to be ErrNotFound, got %v", err)
	}
	if _, err := attendance.CheckIn(ctx, member, 424242); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected unknown event to be ErrNotFound, got %v", err)
	}

	points, err := attendance.AttendancePoints(ctx, memberFixture.Email, nil, nil)
	if err != nil {
		t.Fatalf("AttendancePoints returned error: %v", err)
	}
	if points != 3 {
		t.Fatalf("expected 3 points, got %d", points)
	}

	clock.AtEventEnd(event)
	if _, err := attendance.CheckIn(ctx, member, event.ID); !errors.Is(err, application.ErrEventNotInProgress) {
		t.Fatalf("expected ErrEventNotInProgress at end date, got %v", err)
	}
}

func TestEventAdapterReportsUnknownCategory(t *testing.T) {
	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	factory := testfixtures.NewServiceFactory(testfixtures.WithLogger(discardLogger()))
	events := factory.NewEventService(newEventRepositoryAdapter(harness.Events))

	officer := testfixtures.NewUserFixture(testfixtures.WithUserLevel(application.AccessOfficer)).Principal()
	input := testfixtures.NewEventFixture(testfixtures.WithEventCategory(9999)).Input()

	_, err := events.CreateEvent(ctx, officer, input)
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["category_id"]; !ok {
		t.Fatalf("expected category_id error, got %v", vErr.FieldErrors)
	}
}

func TestSessionLifecycleAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock), testfixtures.WithLogger(discardLogger()))

	users := newUserRepositoryAdapter(harness.Users)
	userService := factory.NewUserService(users)
	sessions := factory.NewSessionService(testfixtures.SessionServiceDeps{
		Sessions: newSessionRepositoryAdapter(harness.Sessions),
		Users:    users,
		Lifetime: 48 * time.Hour,
	})

	profile := testfixtures.NewUserFixture().Profile()
	if _, err := userService.RecordLogin(ctx, profile); err != nil {
		t.Fatalf("RecordLogin returned error: %v", err)
	}

	credentials := application.ProviderCredentials{
		"access_token":  json.RawMessage(`"a1"`),
		"refresh_token": json.RawMessage(`"r1"`),
	}
	session, err := sessions.CreateSession(ctx, profile.Email, credentials)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if err := sessions.RefreshCredentials(ctx, session.Token, application.ProviderCredentials{"access_token": json.RawMessage(`"a2"`)}); err != nil {
		t.Fatalf("RefreshCredentials returned error: %v", err)
	}

	principal, err := sessions.ResolvePrincipal(ctx, session.Token)
	if err != nil {
		t.Fatalf("ResolvePrincipal returned error: %v", err)
	}
	if principal.Email() != profile.Email || principal.Level() != application.AccessNonMember {
		t.Fatalf("unexpected principal %+v", principal.User)
	}
	if got := string(principal.Session.Credentials["access_token"]); got != `"a2"` {
		t.Fatalf("expected rotated access token, got %s", got)
	}
	if got := string(principal.Session.Credentials["refresh_token"]); got != `"r1"` {
		t.Fatalf("expected refresh token to be kept, got %s", got)
	}

	clock.UntilExpiry(session.ExpiresAt)
	principal, err = sessions.ResolvePrincipal(ctx, session.Token)
	if err != nil {
		t.Fatalf("ResolvePrincipal after expiry returned error: %v", err)
	}
	if principal.SignedIn() {
		t.Fatalf("expected expired session to resolve anonymously")
	}
	if _, err := harness.Sessions.GetSession(ctx, session.Token); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected expired session to be deleted, got %v", err)
	}
}

func TestExpiredSessionDeletedWithinExpiryMillisecond(t *testing.T) {
	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock), testfixtures.WithLogger(discardLogger()))

	users := newUserRepositoryAdapter(harness.Users)
	sessions := factory.NewSessionService(testfixtures.SessionServiceDeps{
		Sessions: newSessionRepositoryAdapter(harness.Sessions),
		Users:    users,
		Lifetime: time.Hour,
	})

	profile := testfixtures.NewUserFixture().Profile()
	if _, err := factory.NewUserService(users).RecordLogin(ctx, profile); err != nil {
		t.Fatalf("RecordLogin returned error: %v", err)
	}
	session, err := sessions.CreateSession(ctx, profile.Email, nil)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	// Past the expiry instant but inside the same stored millisecond.
	clock.Set(session.ExpiresAt.Add(500 * time.Microsecond))
	principal, err := sessions.ResolvePrincipal(ctx, session.Token)
	if err != nil {
		t.Fatalf("ResolvePrincipal returned error: %v", err)
	}
	if principal.SignedIn() {
		t.Fatalf("expected expired session to resolve anonymously")
	}
	if _, err := harness.Sessions.GetSession(ctx, session.Token); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected expired session row to be deleted, got %v", err)
	}
}

type portal struct {
	handler  http.Handler
	cookies  *httptransport.Cookies
	services services
	harness  *testfixtures.SQLiteHarness
	clock    *testfixtures.Clock
}

func newPortal(t *testing.T) *portal {
	t.Helper()

	harness := testfixtures.NewSQLiteHarness(t)
	clock := testfixtures.NewClock(testfixtures.ReferenceTime().Add(15 * time.Minute))
	logger := discardLogger()
	m := metrics.New()

	svc := newServices(harness.Storage, serviceConfig{
		TokenGenerator: testfixtures.NewTokenGenerator("session").NextFunc(),
		Now:            clock.NowFunc(),
		Observer:       m,
	}, logger)

	cookies, err := httptransport.NewCookies("integration-test-secret-0123456789", false)
	if err != nil {
		t.Fatalf("NewCookies returned error: %v", err)
	}

	handler := newHandler(handlerDeps{
		Services: svc,
		Provider: oauth.NewProvider(oauth.Config{ClientID: "client", ClientSecret: "secret", RedirectURL: "http://localhost/api/oauth/callback"}),
		Cookies:  cookies,
		Health:   harness.Storage,
		Metrics:  m,
		Limiter:  ratelimit.NewMemoryLimiter(ratelimit.Config{PerMinute: 600, Burst: 100}, clock.NowFunc()),
		Now:      clock.NowFunc(),
		Logger:   logger,
	})

	return &portal{handler: handler, cookies: cookies, services: svc, harness: harness, clock: clock}
}

// signIn stores a session for the user and returns its cookie.
func (p *portal) signIn(t *testing.T, user testfixtures.UserFixture) *http.Cookie {
	t.Helper()
	p.harness.SeedUser(t, user)
	session, err := p.services.Sessions.CreateSession(context.Background(), user.Email, nil)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := p.cookies.SetSession(rec, session.Token); err != nil {
		t.Fatalf("SetSession returned error: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	return cookies[0]
}

func (p *portal) do(t *testing.T, method, target string, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	p := newPortal(t)

	rec := p.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = p.do(t, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clubportal_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestHandlerCheckInEndToEnd(t *testing.T) {
	p := newPortal(t)
	start := testfixtures.ReferenceTime()

	category := p.harness.SeedCategory(t, testfixtures.NewCategoryFixture(2))
	event := p.harness.SeedEvent(t, testfixtures.NewEventFixture(
		testfixtures.WithEventWindow(start, start.Add(time.Hour)),
		testfixtures.WithEventCategory(category.ID),
	))
	member := testfixtures.NewUserFixture(testfixtures.WithUserLevel(application.AccessMember))
	cookie := p.signIn(t, member)

	attendURL := fmt.Sprintf("/api/events/%d/attend", event.ID)

	rec := p.do(t, http.MethodPost, attendURL, nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous check-in, got %d", rec.Code)
	}

	rec = p.do(t, http.MethodPost, attendURL, cookie, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for check-in, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = p.do(t, http.MethodPost, attendURL, cookie, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for repeated check-in, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = p.do(t, http.MethodGet, "/api/account", cookie, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from account, got %d: %s", rec.Code, rec.Body.String())
	}
	var account struct {
		Points     int `json:"points"`
		Attendance struct {
			TotalCount int `json:"total_count"`
		} `json:"attendance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if account.Points != 2 || account.Attendance.TotalCount != 1 {
		t.Fatalf("unexpected account summary %+v", account)
	}

	officer := p.signIn(t, testfixtures.NewUserFixture(testfixtures.WithUserLevel(application.AccessOfficer)))
	rec = p.do(t, http.MethodGet, fmt.Sprintf("/api/events/%d/attendees", event.ID), officer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from roster, got %d: %s", rec.Code, rec.Body.String())
	}
	var roster struct {
		Attendees []struct {
			Email string `json:"email"`
		} `json:"attendees"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &roster); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(roster.Attendees) != 1 || roster.Attendees[0].Email != member.Email {
		t.Fatalf("unexpected roster %+v", roster)
	}
}

func TestHandlerEventListingHonorsAccessLevel(t *testing.T) {
	p := newPortal(t)
	start := testfixtures.ReferenceTime()

	p.harness.SeedEvent(t, testfixtures.NewEventFixture(testfixtures.WithEventWindow(start, start.Add(time.Hour))))
	p.harness.SeedEvent(t, testfixtures.NewEventFixture(
		testfixtures.WithEventWindow(start, start.Add(time.Hour)),
		testfixtures.WithEventLevel(application.AccessOfficer),
	))
	officer := p.signIn(t, testfixtures.NewUserFixture(testfixtures.WithUserLevel(application.AccessOfficer)))

	count := func(cookie *http.Cookie) int {
		t.Helper()
		rec := p.do(t, http.MethodGet, "/api/events", cookie, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from events, got %d: %s", rec.Code, rec.Body.String())
		}
		var page struct {
			TotalCount int `json:"total_count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("decode events: %v", err)
		}
		return page.TotalCount
	}

	if got := count(nil); got != 1 {
		t.Fatalf("expected anonymous viewers to see 1 event, got %d", got)
	}
	if got := count(officer); got != 2 {
		t.Fatalf("expected officers to see 2 events, got %d", got)
	}
}
