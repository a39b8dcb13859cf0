package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AttendanceRepository captures the ledger operations. Attend reports an
// existing row as ErrDuplicateAttendance and an unknown event or user as
// ErrNotFound.
type AttendanceRepository interface {
	Attend(ctx context.Context, eventID int64, email string, attendedAt time.Time) error
	HasAttended(ctx context.Context, eventID int64, email string) (bool, error)
	ListAttendees(ctx context.Context, eventID int64, offset, limit int) ([]User, error)
	RemoveAttendance(ctx context.Context, eventID int64, email string) error
	FilterAttendance(ctx context.Context, query AttendanceQuery) (AttendancePage, error)
	SumPoints(ctx context.Context, email string, from, to *time.Time) (int, error)
}

// EventReader loads a single event.
type EventReader interface {
	GetEvent(ctx context.Context, id int64) (Event, error)
}

// AttendanceService records and reports event check-ins.
type AttendanceService struct {
	attendance AttendanceRepository
	events     EventReader
	now        func() time.Time
	observer   Observer
	logger     *slog.Logger
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
func NewAttendanceService(attendance AttendanceRepository, events EventReader, now func() time.Time, observer Observer) *AttendanceService {
	return NewAttendanceServiceWithLogger(attendance, events, now, observer, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(attendance AttendanceRepository, events EventReader, now func() time.Time, observer Observer, logger *slog.Logger) *AttendanceService {
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		attendance: attendance,
		events:     events,
		now:        now,
		observer:   defaultObserver(observer),
		logger:     defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// Attend records that email attended eventID. The insert is unconditional:
// a second call for the same pair fails with ErrDuplicateAttendance.
func (s *AttendanceService) Attend(ctx context.Context, eventID int64, email string) (err error) {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}

	logger := s.loggerWith(ctx, "Attend", "event_id", eventID, "email", email)
	defer func() {
		logOutcome(ctx, logger, err, "attendance")
	}()

	if strings.TrimSpace(email) == "" {
		err = invalidField("email", "email is required")
		return
	}
	err = storeError("attend event", s.attendance.Attend(ctx, eventID, email, s.now()))
	return
}

// HasAttended reports whether email checked in to eventID.
func (s *AttendanceService) HasAttended(ctx context.Context, eventID int64, email string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("AttendanceService is nil")
	}

	attended, err := s.attendance.HasAttended(ctx, eventID, email)
	if err != nil {
		return false, storeError("check attendance", err)
	}
	return attended, nil
}

// ListAttendance returns the attendees of an event in check-in order.
func (s *AttendanceService) ListAttendance(ctx context.Context, eventID int64, offset, maxEntries *int) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}

	resolvedOffset, limit, vErr := resolvePage(offset, maxEntries)
	if vErr != nil {
		return nil, vErr
	}

	users, err := s.attendance.ListAttendees(ctx, eventID, resolvedOffset, limit)
	if err != nil {
		return nil, storeError("list attendance", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// RemoveAttendance deletes the check-in. Removing a missing check-in is not an error.
func (s *AttendanceService) RemoveAttendance(ctx context.Context, eventID int64, email string) (err error) {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}

	logger := s.loggerWith(ctx, "RemoveAttendance", "event_id", eventID, "email", email)
	defer func() {
		logOutcome(ctx, logger, err, "attendance removal")
	}()

	err = storeError("remove attendance", s.attendance.RemoveAttendance(ctx, eventID, email))
	return
}

// CheckIn is the QR code flow: the event must be visible to the principal
// and in progress at the service clock, then the attendance is recorded.
func (s *AttendanceService) CheckIn(ctx context.Context, principal Principal, eventID int64) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	result := CheckInError
	defer func() {
		s.observer.CheckInRecorded(result)
	}()

	if !principal.SignedIn() {
		err = ErrUnauthorized
		return
	}

	event, err = s.events.GetEvent(ctx, eventID)
	if err != nil {
		event = Event{}
		err = storeError("get event", err)
		return
	}
	if !event.VisibleTo(principal.Level()) {
		event = Event{}
		err = ErrNotFound
		return
	}
	if !event.InProgress(s.now()) {
		result = CheckInNotInProgress
		err = ErrEventNotInProgress
		return
	}

	err = s.Attend(ctx, eventID, principal.Email())
	switch {
	case err == nil:
		result = CheckInOK
	case errors.Is(err, ErrDuplicateAttendance):
		result = CheckInDuplicate
	}
	return
}

// FilterAttendance returns attendance records joined with users and events,
// newest check-in first.
func (s *AttendanceService) FilterAttendance(ctx context.Context, filter AttendanceFilter) (AttendancePage, error) {
	if s == nil {
		return AttendancePage{}, fmt.Errorf("AttendanceService is nil")
	}

	offset, limit, vErr := resolvePage(filter.Offset, filter.MaxEntries)
	if vErr != nil {
		return AttendancePage{}, vErr
	}

	page, err := s.attendance.FilterAttendance(ctx, AttendanceQuery{
		EventIDs:   filter.EventIDs,
		UserEmails: filter.UserEmails,
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		return AttendancePage{}, storeError("filter attendance", err)
	}
	if page.Results == nil {
		page.Results = []AttendanceRecord{}
	}
	return page, nil
}

// AttendancePoints sums the category points of the events email attended
// whose start date falls in [from, to). Nil bounds are open.
func (s *AttendanceService) AttendancePoints(ctx context.Context, email string, from, to *time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("AttendanceService is nil")
	}
	if from != nil && to != nil && to.Before(*from) {
		return 0, invalidField("to", "must not be before from")
	}

	points, err := s.attendance.SumPoints(ctx, email, from, to)
	if err != nil {
		return 0, storeError("sum attendance points", err)
	}
	return points, nil
}
