package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// EventRepository captures the persistence operations needed by the event service.
// Writes that reference an unknown category fail with a *ValidationError.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id int64) (Event, error)
	UpdateEvent(ctx context.Context, id int64, patch EventPatch) (Event, error)
	DeleteEvent(ctx context.Context, id int64) error
	// FilterEvents returns the total match count and one page read in a
	// single transaction.
	FilterEvents(ctx context.Context, query EventQuery) (EventPage, error)
}

const (
	maxEventTitleLength    = 128
	maxEventLocationLength = 52
)

// EventService answers event queries and manages events.
type EventService struct {
	events EventRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewEventService constructs an event service with the provided dependencies.
func NewEventService(events EventRepository, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(events EventRepository, now func() time.Time, logger *slog.Logger) *EventService {
	if now == nil {
		now = time.Now
	}
	return &EventService{events: events, now: now, logger: defaultLogger(logger)}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// ParseEventID converts a path or query value into an event ID. Malformed
// values are rejected before any store access.
func ParseEventID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidField("id", "must be a positive integer")
	}
	return id, nil
}

// FilterEvents returns one page of events and the total match count.
//
// From keeps events ending after it and To keeps events ending at or before
// it. AccessCeiling hides events whose minimum level is above it. Nil
// parameters place no constraint. Results are ordered by start date (then
// ID) in Direction, descending by default.
func (s *EventService) FilterEvents(ctx context.Context, params FilterEventsParams) (page EventPage, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "FilterEvents")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "event query failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "event query served", "total", page.TotalCount, "returned", len(page.Results))
	}()

	offset, limit, vErr := resolvePage(params.Offset, params.MaxEntries)
	if vErr == nil {
		vErr = &ValidationError{}
	}
	direction := params.Direction
	if direction == "" {
		direction = SortDescending
	}
	if direction != SortAscending && direction != SortDescending {
		vErr.add("direction", "must be asc or desc")
	}
	if params.AccessCeiling != nil && !params.AccessCeiling.Valid() {
		vErr.add("access_ceiling", "unknown access level")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	page, err = s.events.FilterEvents(ctx, EventQuery{
		From:          params.From,
		To:            params.To,
		AccessCeiling: params.AccessCeiling,
		Offset:        offset,
		Limit:         limit,
		Ascending:     direction == SortAscending,
	})
	if err != nil {
		page = EventPage{}
		err = storeError("filter events", err)
		return
	}
	if page.Results == nil {
		page.Results = []Event{}
	}
	return
}

// GetEvent returns an event visible to the principal. Events above the
// principal's level are reported as not found.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, id int64) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}

	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return Event{}, storeError("get event", err)
	}
	if !event.VisibleTo(principal.Level()) {
		return Event{}, ErrNotFound
	}
	return event, nil
}

// CreateEvent validates input and persists a new event for officers.
func (s *EventService) CreateEvent(ctx context.Context, principal Principal, input EventInput) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "actor", principal.Email())
	defer func() {
		logOutcome(ctx, logger, err, "event creation", "event_id", event.ID)
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}

	candidate := Event{
		Title:          strings.TrimSpace(input.Title),
		Location:       strings.TrimSpace(input.Location),
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		CategoryID:     input.CategoryID,
		MinAccessLevel: input.MinAccessLevel,
	}
	if vErr := validateEvent(candidate); vErr.HasErrors() {
		err = vErr
		return
	}

	event, err = s.events.CreateEvent(ctx, candidate)
	if err != nil {
		event = Event{}
		err = storeError("create event", err)
	}
	return
}

// UpdateEvent applies a partial update for officers. The merged result is
// validated as a whole, so moving only the end date before the stored start
// date is rejected.
func (s *EventService) UpdateEvent(ctx context.Context, principal Principal, id int64, patch EventPatch) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "actor", principal.Email(), "event_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "event update")
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}

	var existing Event
	existing, err = s.events.GetEvent(ctx, id)
	if err != nil {
		err = storeError("get event", err)
		return
	}

	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		patch.Title = &trimmed
	}
	if patch.Location != nil {
		trimmed := strings.TrimSpace(*patch.Location)
		patch.Location = &trimmed
	}
	if vErr := validateEvent(applyEventPatch(existing, patch)); vErr.HasErrors() {
		err = vErr
		return
	}

	event, err = s.events.UpdateEvent(ctx, id, patch)
	if err != nil {
		event = Event{}
		err = storeError("update event", err)
	}
	return
}

// DeleteEvent removes an event and its attendance for officers.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, id int64) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "actor", principal.Email(), "event_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "event deletion")
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}
	err = storeError("delete event", s.events.DeleteEvent(ctx, id))
	return
}

func applyEventPatch(event Event, patch EventPatch) Event {
	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.StartDate != nil {
		event.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		event.EndDate = *patch.EndDate
	}
	if patch.ClearCategory {
		event.CategoryID = nil
	} else if patch.CategoryID != nil {
		event.CategoryID = patch.CategoryID
	}
	if patch.MinAccessLevel != nil {
		event.MinAccessLevel = *patch.MinAccessLevel
	}
	return event
}

func validateEvent(event Event) *ValidationError {
	vErr := &ValidationError{}

	switch {
	case event.Title == "":
		vErr.add("title", "title is required")
	case utf8.RuneCountInString(event.Title) > maxEventTitleLength:
		vErr.add("title", fmt.Sprintf("must be at most %d characters", maxEventTitleLength))
	}
	if utf8.RuneCountInString(event.Location) > maxEventLocationLength {
		vErr.add("location", fmt.Sprintf("must be at most %d characters", maxEventLocationLength))
	}
	if event.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
	}
	if event.EndDate.IsZero() {
		vErr.add("end_date", "end date is required")
	} else if !event.EndDate.After(event.StartDate) {
		vErr.add("end_date", "end date must be after start date")
	}
	if !event.MinAccessLevel.Valid() {
		vErr.add("min_access_level", "unknown access level")
	}
	if event.CategoryID != nil && *event.CategoryID <= 0 {
		vErr.add("category_id", "must be a positive integer")
	}

	return vErr
}
