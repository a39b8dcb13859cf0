package testfixtures

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/persistence"
)

var (
	userCounter     uint64
	eventCounter    uint64
	categoryCounter uint64
	newsCounter     uint64
	sessionCounter  uint64
)

var referenceTime = time.Date(2024, time.September, 3, 18, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic member account.
type UserFixture struct {
	Email       string
	GivenName   string
	FamilyName  string
	PictureURL  string
	AccessLevel application.AccessLevel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic NON_MEMBER user with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		Email:       fmt.Sprintf("student%03d@example.edu", idx),
		GivenName:   "Student",
		FamilyName:  fmt.Sprintf("No%03d", idx),
		AccessLevel: application.AccessNonMember,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserName overrides the generated given and family names.
func WithUserName(given, family string) UserOption {
	return func(f *UserFixture) {
		f.GivenName = given
		f.FamilyName = family
	}
}

// WithUserPicture sets the profile picture URL.
func WithUserPicture(url string) UserOption {
	return func(f *UserFixture) {
		f.PictureURL = url
	}
}

// WithUserLevel sets the access level.
func WithUserLevel(level application.AccessLevel) UserOption {
	return func(f *UserFixture) {
		f.AccessLevel = level
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		Email:       f.Email,
		GivenName:   f.GivenName,
		FamilyName:  f.FamilyName,
		PictureURL:  f.PictureURL,
		AccessLevel: f.AccessLevel,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Principal returns a signed-in principal for the fixture without a session.
func (f UserFixture) Principal() application.Principal {
	user := f.Application()
	return application.Principal{User: &user}
}

// Profile returns the identity fields a provider login would report.
func (f UserFixture) Profile() application.UserProfile {
	return application.UserProfile{
		Email:      f.Email,
		GivenName:  f.GivenName,
		FamilyName: f.FamilyName,
		PictureURL: f.PictureURL,
	}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		Email:       f.Email,
		GivenName:   f.GivenName,
		FamilyName:  f.FamilyName,
		PictureURL:  f.PictureURL,
		AccessLevel: int(f.AccessLevel),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// --------------------------- Category fixtures ---------------------------

// CategoryFixture represents an event category.
type CategoryFixture struct {
	ID     int64
	Name   string
	Points int
}

// NewCategoryFixture returns a uniquely named category worth points.
func NewCategoryFixture(points int) CategoryFixture {
	idx := atomic.AddUint64(&categoryCounter, 1)
	return CategoryFixture{Name: fmt.Sprintf("Category %03d", idx), Points: points}
}

// Application returns the fixture as an application.EventCategory value.
func (f CategoryFixture) Application() application.EventCategory {
	return application.EventCategory{ID: f.ID, Name: f.Name, Points: f.Points}
}

// Persistence returns the fixture as a persistence.EventCategory value.
func (f CategoryFixture) Persistence() persistence.EventCategory {
	return persistence.EventCategory{ID: f.ID, Name: f.Name, Points: f.Points}
}

// ----------------------------- Event fixtures ----------------------------

// EventFixture represents a deterministic event. Events run for two hours
// from their start by default.
type EventFixture struct {
	ID             int64
	Title          string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	CategoryID     *int64
	MinAccessLevel application.AccessLevel
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a public event starting one day after the
// previous fixture.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * 24 * time.Hour)
	fixture := EventFixture{
		Title:     fmt.Sprintf("Meeting %03d", idx),
		Location:  "Student Union 101",
		StartDate: start,
		EndDate:   start.Add(2 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventTitle overrides the generated title.
func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) {
		f.Title = title
	}
}

// WithEventWindow sets the start and end dates.
func WithEventWindow(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.StartDate = start
		f.EndDate = end
	}
}

// WithEventCategory assigns the event to a category.
func WithEventCategory(id int64) EventOption {
	return func(f *EventFixture) {
		f.CategoryID = &id
	}
}

// WithEventLevel sets the minimum access level needed to see the event.
func WithEventLevel(level application.AccessLevel) EventOption {
	return func(f *EventFixture) {
		f.MinAccessLevel = level
	}
}

// Application returns the fixture as an application.Event value.
func (f EventFixture) Application() application.Event {
	return application.Event{
		ID:             f.ID,
		Title:          f.Title,
		Location:       f.Location,
		StartDate:      f.StartDate,
		EndDate:        f.EndDate,
		CategoryID:     copyInt64Ptr(f.CategoryID),
		MinAccessLevel: f.MinAccessLevel,
	}
}

// Input returns the fixture as an application.EventInput.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Title:          f.Title,
		Location:       f.Location,
		StartDate:      f.StartDate,
		EndDate:        f.EndDate,
		CategoryID:     copyInt64Ptr(f.CategoryID),
		MinAccessLevel: f.MinAccessLevel,
	}
}

// Persistence returns the fixture as a persistence.Event value.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:             f.ID,
		Title:          f.Title,
		Location:       f.Location,
		StartDate:      f.StartDate,
		EndDate:        f.EndDate,
		CategoryID:     copyInt64Ptr(f.CategoryID),
		MinAccessLevel: int(f.MinAccessLevel),
	}
}

// ------------------------------ News fixtures ----------------------------

// NewsFixture represents a published announcement.
type NewsFixture struct {
	Title          string
	Body           string
	AuthorEmail    *string
	PublishedAt    time.Time
	MinAccessLevel application.AccessLevel
}

// NewNewsFixture returns a public post published at the given time.
func NewNewsFixture(publishedAt time.Time, level application.AccessLevel) NewsFixture {
	idx := atomic.AddUint64(&newsCounter, 1)
	return NewsFixture{
		Title:          fmt.Sprintf("Announcement %03d", idx),
		Body:           "General meeting this Thursday.",
		PublishedAt:    publishedAt,
		MinAccessLevel: level,
	}
}

// Persistence returns the fixture as a persistence.News value.
func (f NewsFixture) Persistence() persistence.News {
	return persistence.News{
		Title:          f.Title,
		Body:           f.Body,
		AuthorEmail:    copyStringPtr(f.AuthorEmail),
		PublishedAt:    f.PublishedAt,
		MinAccessLevel: int(f.MinAccessLevel),
	}
}

// ---------------------------- Session fixtures ---------------------------

// SessionFixture represents a stored session with provider credentials.
type SessionFixture struct {
	Token       string
	UserEmail   string
	Credentials map[string]json.RawMessage
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a session for email that expires a week after
// ReferenceTime.
func NewSessionFixture(email string, opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		Token:     fmt.Sprintf("fixture-session-%03d", idx),
		UserEmail: email,
		Credentials: map[string]json.RawMessage{
			"access_token":  json.RawMessage(`"access-` + fmt.Sprint(idx) + `"`),
			"refresh_token": json.RawMessage(`"refresh-` + fmt.Sprint(idx) + `"`),
		},
		ExpiresAt: referenceTime.Add(7 * 24 * time.Hour),
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionToken overrides the generated token.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionExpiresAt sets the expiry.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// Application returns the fixture as an application.Session value.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		Token:       f.Token,
		UserEmail:   f.UserEmail,
		Credentials: application.ProviderCredentials(f.Credentials).Merge(nil),
		ExpiresAt:   f.ExpiresAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		Token:       f.Token,
		UserEmail:   f.UserEmail,
		Credentials: persistence.Credentials(f.Credentials).Merge(nil),
		ExpiresAt:   f.ExpiresAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func copyInt64Ptr(src *int64) *int64 {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}
