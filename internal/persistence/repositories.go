package persistence

import (
	"context"
	"time"
)

// UserPatch lists the user columns an update may touch. Nil fields are left unchanged.
type UserPatch struct {
	GivenName   *string
	FamilyName  *string
	PictureURL  *string
	AccessLevel *int
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.GivenName == nil && p.FamilyName == nil && p.PictureURL == nil && p.AccessLevel == nil
}

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	// UpsertUser inserts the user or refreshes names and picture of an
	// existing row. The stored access level of an existing row is kept.
	UpsertUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, email string, patch UserPatch) (User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]User, error)
	DeleteUser(ctx context.Context, email string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	// ExtendSession moves the expiry of a session that has not expired at now.
	ExtendSession(ctx context.Context, token string, expiresAt, now time.Time) (Session, error)
	// MergeSessionCredentials shallow-merges update into the stored credentials.
	MergeSessionCredentials(ctx context.Context, token string, update Credentials, now time.Time) error
	DeleteSession(ctx context.Context, token string) error
	// DeleteExpiredSession removes the session only if it expired by now.
	DeleteExpiredSession(ctx context.Context, token string, now time.Time) error
}

// CategoryPatch lists the category columns an update may touch.
type CategoryPatch struct {
	Name   *string
	Points *int
}

// CategoryRepository stores event categories.
type CategoryRepository interface {
	CreateCategory(ctx context.Context, category EventCategory) (EventCategory, error)
	GetCategory(ctx context.Context, id int64) (EventCategory, error)
	ListCategories(ctx context.Context) ([]EventCategory, error)
	UpdateCategory(ctx context.Context, id int64, patch CategoryPatch) (EventCategory, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// EventFilter narrows event queries. Nil pointers place no constraint.
type EventFilter struct {
	// From keeps events whose end date is after From.
	From *time.Time
	// To keeps events whose end date is at or before To.
	To *time.Time
	// AccessCeiling keeps events whose minimum access level is at most the ceiling.
	AccessCeiling *int
	Offset        int
	Limit         int
	Ascending     bool
}

// EventPage is one page of a filtered event query.
type EventPage struct {
	TotalCount int
	Events     []Event
}

// EventPatch lists the event columns an update may touch. ClearCategory
// removes the category and wins over CategoryID.
type EventPatch struct {
	Title          *string
	Location       *string
	StartDate      *time.Time
	EndDate        *time.Time
	CategoryID     *int64
	ClearCategory  bool
	MinAccessLevel *int
}

// EventRepository stores events and answers filtered queries.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id int64) (Event, error)
	UpdateEvent(ctx context.Context, id int64, patch EventPatch) (Event, error)
	DeleteEvent(ctx context.Context, id int64) error
	FilterEvents(ctx context.Context, filter EventFilter) (EventPage, error)
}

// AttendanceFilter narrows attendance reports. Empty slices place no constraint.
type AttendanceFilter struct {
	EventIDs   []int64
	UserEmails []string
	Offset     int
	Limit      int
}

// AttendancePage is one page of an attendance report.
type AttendancePage struct {
	TotalCount int
	Records    []AttendanceRecord
}

// AttendanceRepository stores the attendance ledger.
type AttendanceRepository interface {
	// Attend inserts a row and fails with ErrDuplicate when it already exists.
	Attend(ctx context.Context, attendance Attendance) error
	HasAttended(ctx context.Context, eventID int64, email string) (bool, error)
	ListAttendees(ctx context.Context, eventID int64, offset, limit int) ([]User, error)
	RemoveAttendance(ctx context.Context, eventID int64, email string) error
	FilterAttendance(ctx context.Context, filter AttendanceFilter) (AttendancePage, error)
	SumPoints(ctx context.Context, email string, from, to *time.Time) (int, error)
}

// NewsPatch lists the news columns an update may touch.
type NewsPatch struct {
	Title          *string
	Body           *string
	PublishedAt    *time.Time
	MinAccessLevel *int
}

// NewsFilter narrows the news feed.
type NewsFilter struct {
	Before        *time.Time
	AccessCeiling *int
	Offset        int
	Limit         int
}

// NewsRepository stores news posts.
type NewsRepository interface {
	CreateNews(ctx context.Context, news News) (News, error)
	GetNews(ctx context.Context, id int64) (News, error)
	UpdateNews(ctx context.Context, id int64, patch NewsPatch) (News, error)
	DeleteNews(ctx context.Context, id int64) error
	ListNews(ctx context.Context, filter NewsFilter) ([]News, error)
}
