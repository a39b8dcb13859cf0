package application

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AccessLevel is the ordered role of a member.
type AccessLevel int

const (
	AccessNonMember AccessLevel = iota
	AccessMember
	AccessOfficer
	AccessAdvisor
)

var accessLevelNames = [...]string{"NON_MEMBER", "MEMBER", "OFFICER", "ADVISOR"}

// Valid reports whether the level is one of the defined roles.
func (l AccessLevel) Valid() bool {
	return l >= AccessNonMember && l <= AccessAdvisor
}

func (l AccessLevel) String() string {
	if !l.Valid() {
		return "AccessLevel(" + strconv.Itoa(int(l)) + ")"
	}
	return accessLevelNames[l]
}

// MarshalText encodes the level by name.
func (l AccessLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid access level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText accepts a level name (any case) or its ordinal.
func (l *AccessLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAccessLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseAccessLevel converts a level name or ordinal to an AccessLevel.
func ParseAccessLevel(raw string) (AccessLevel, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	for i, name := range accessLevelNames {
		if value == name {
			return AccessLevel(i), nil
		}
	}
	if n, err := strconv.Atoi(value); err == nil && AccessLevel(n).Valid() {
		return AccessLevel(n), nil
	}
	return AccessNonMember, invalidField("access_level", "unknown access level")
}

// ProviderCredentials holds the OAuth provider's token fields. Values are
// opaque JSON and are never interpreted by the services.
type ProviderCredentials map[string]json.RawMessage

// Merge returns a copy of c with the keys of update written over it. Keys
// missing from update keep their current value; nested objects are replaced.
func (c ProviderCredentials) Merge(update ProviderCredentials) ProviderCredentials {
	merged := make(ProviderCredentials, len(c)+len(update))
	for key, value := range c {
		merged[key] = value
	}
	for key, value := range update {
		merged[key] = value
	}
	return merged
}

// User is a member account keyed by email.
type User struct {
	Email       string
	GivenName   string
	FamilyName  string
	PictureURL  string
	AccessLevel AccessLevel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserProfile carries the identity fields returned by the login provider.
type UserProfile struct {
	Email      string
	GivenName  string
	FamilyName string
	PictureURL string
}

// UserPatch lists the user fields an update may change. Nil fields are kept.
type UserPatch struct {
	GivenName   *string
	FamilyName  *string
	PictureURL  *string
	AccessLevel *AccessLevel
}

// Session binds an opaque token to a user until ExpiresAt.
type Session struct {
	Token       string
	UserEmail   string
	Credentials ProviderCredentials
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal is the viewer of a request: a signed-in user or anonymous.
type Principal struct {
	User    *User
	Session *Session
}

// Anonymous returns the principal used when no valid session exists.
func Anonymous() Principal {
	return Principal{}
}

// SignedIn reports whether the principal has a resolved user.
func (p Principal) SignedIn() bool {
	return p.User != nil
}

// Email returns the signed-in user's email, or "" when anonymous.
func (p Principal) Email() string {
	if p.User == nil {
		return ""
	}
	return p.User.Email
}

// Level returns the principal's access level; anonymous viewers are NON_MEMBER.
func (p Principal) Level() AccessLevel {
	if p.User == nil {
		return AccessNonMember
	}
	return p.User.AccessLevel
}

// authorize returns ErrUnauthorized for anonymous principals and
// ErrForbidden when the level is below required.
func authorize(p Principal, required AccessLevel) error {
	if !p.SignedIn() {
		return ErrUnauthorized
	}
	if p.Level() < required {
		return ErrForbidden
	}
	return nil
}

// EventCategory assigns attendance points to events.
type EventCategory struct {
	ID     int64
	Name   string
	Points int
}

// CategoryInput captures caller provided category fields.
type CategoryInput struct {
	Name   string
	Points int
}

// CategoryPatch lists the category fields an update may change.
type CategoryPatch struct {
	Name   *string
	Points *int
}

// Event is an attendable occurrence.
type Event struct {
	ID             int64
	Title          string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	CategoryID     *int64
	MinAccessLevel AccessLevel
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InProgress reports whether now lies within [StartDate, EndDate).
func (e Event) InProgress(now time.Time) bool {
	return !now.Before(e.StartDate) && e.EndDate.After(now)
}

// VisibleTo reports whether a viewer at level may see the event.
func (e Event) VisibleTo(level AccessLevel) bool {
	return e.MinAccessLevel <= level
}

// EventInput captures caller provided event fields.
type EventInput struct {
	Title          string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	CategoryID     *int64
	MinAccessLevel AccessLevel
}

// EventPatch lists the event fields an update may change. ClearCategory
// removes the category and wins over CategoryID.
type EventPatch struct {
	Title          *string
	Location       *string
	StartDate      *time.Time
	EndDate        *time.Time
	CategoryID     *int64
	ClearCategory  bool
	MinAccessLevel *AccessLevel
}

// SortDirection orders event listings by start date.
type SortDirection string

const (
	SortDescending SortDirection = "desc"
	SortAscending  SortDirection = "asc"
)

// ParseSortDirection accepts "asc"/"desc" in any case; empty means descending.
func ParseSortDirection(raw string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "desc", "descending":
		return SortDescending, nil
	case "asc", "ascending":
		return SortAscending, nil
	}
	return SortDescending, invalidField("direction", "must be asc or desc")
}

// FilterEventsParams selects a page of events. Nil fields place no constraint
// or take their default.
type FilterEventsParams struct {
	From          *time.Time
	To            *time.Time
	AccessCeiling *AccessLevel
	Offset        *int
	MaxEntries    *int
	Direction     SortDirection
}

// EventQuery is the resolved filter handed to the event repository.
type EventQuery struct {
	From          *time.Time
	To            *time.Time
	AccessCeiling *AccessLevel
	Offset        int
	Limit         int
	Ascending     bool
}

// EventPage is one page of a filtered event query.
type EventPage struct {
	TotalCount int
	Results    []Event
}

// AttendanceRecord joins a check-in with its user and event.
type AttendanceRecord struct {
	User       User
	Event      Event
	AttendedAt time.Time
}

// AttendanceFilter selects attendance records. Empty slices place no constraint.
type AttendanceFilter struct {
	EventIDs   []int64
	UserEmails []string
	Offset     *int
	MaxEntries *int
}

// AttendanceQuery is the resolved filter handed to the attendance repository.
type AttendanceQuery struct {
	EventIDs   []int64
	UserEmails []string
	Offset     int
	Limit      int
}

// AttendancePage is one page of an attendance report.
type AttendancePage struct {
	TotalCount int
	Results    []AttendanceRecord
}

// News is an announcement in the feed.
type News struct {
	ID             int64
	Title          string
	Body           string
	AuthorEmail    *string
	PublishedAt    time.Time
	MinAccessLevel AccessLevel
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewsInput captures caller provided news fields. A nil PublishedAt publishes immediately.
type NewsInput struct {
	Title          string
	Body           string
	PublishedAt    *time.Time
	MinAccessLevel AccessLevel
}

// NewsPatch lists the news fields an update may change.
type NewsPatch struct {
	Title          *string
	Body           *string
	PublishedAt    *time.Time
	MinAccessLevel *AccessLevel
}

// NewsfeedParams selects a page of the feed.
type NewsfeedParams struct {
	Before        *time.Time
	AccessCeiling *AccessLevel
	Offset        *int
	MaxEntries    *int
}

// NewsQuery is the resolved filter handed to the news repository.
type NewsQuery struct {
	Before        *time.Time
	AccessCeiling *AccessLevel
	Offset        int
	Limit         int
}

// DefaultMaxEntries is the page size used when the caller gives none.
const DefaultMaxEntries = 50

// resolvePage applies pagination defaults and rejects negative offsets and
// non-positive page sizes.
func resolvePage(offset, maxEntries *int) (int, int, *ValidationError) {
	vErr := &ValidationError{}
	resolvedOffset, resolvedMax := 0, DefaultMaxEntries
	if offset != nil {
		if *offset < 0 {
			vErr.add("offset", "must not be negative")
		}
		resolvedOffset = *offset
	}
	if maxEntries != nil {
		if *maxEntries <= 0 {
			vErr.add("max_entries", "must be positive")
		}
		resolvedMax = *maxEntries
	}
	if vErr.HasErrors() {
		return 0, 0, vErr
	}
	return resolvedOffset, resolvedMax, nil
}
