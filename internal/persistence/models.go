package persistence

import (
	"encoding/json"
	"time"
)

// User is a member account keyed by its email address.
type User struct {
	Email       string
	GivenName   string
	FamilyName  string
	PictureURL  string
	AccessLevel int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Credentials holds provider token fields as raw JSON values. The values are
// never interpreted by the persistence layer.
type Credentials map[string]json.RawMessage

// Merge returns a copy of c with every key from update written over it.
// Keys absent from update keep their current value. Nested objects are
// replaced, not merged.
func (c Credentials) Merge(update Credentials) Credentials {
	merged := make(Credentials, len(c)+len(update))
	for key, value := range c {
		merged[key] = value
	}
	for key, value := range update {
		merged[key] = value
	}
	return merged
}

// Session binds an opaque token to a user until ExpiresAt.
type Session struct {
	Token       string
	UserEmail   string
	Credentials Credentials
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventCategory assigns attendance points to events.
type EventCategory struct {
	ID     int64
	Name   string
	Points int
}

// Event is an attendable occurrence.
type Event struct {
	ID             int64
	Title          string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	CategoryID     *int64
	MinAccessLevel int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Attendance records that a user checked in to an event.
type Attendance struct {
	EventID    int64
	UserEmail  string
	AttendedAt time.Time
}

// AttendanceRecord joins an attendance row with the user and event it references.
type AttendanceRecord struct {
	User       User
	Event      Event
	AttendedAt time.Time
}

// News is an announcement shown in the feed.
type News struct {
	ID             int64
	Title          string
	Body           string
	AuthorEmail    *string
	PublishedAt    time.Time
	MinAccessLevel int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
