package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/club-portal/internal/application"
)

const eventAttendancePageSize = 20

type eventService interface {
	FilterEvents(ctx context.Context, params application.FilterEventsParams) (application.EventPage, error)
	GetEvent(ctx context.Context, principal application.Principal, id int64) (application.Event, error)
	CreateEvent(ctx context.Context, principal application.Principal, input application.EventInput) (application.Event, error)
	UpdateEvent(ctx context.Context, principal application.Principal, id int64, patch application.EventPatch) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, id int64) error
}

type attendanceService interface {
	CheckIn(ctx context.Context, principal application.Principal, eventID int64) (application.Event, error)
	HasAttended(ctx context.Context, eventID int64, email string) (bool, error)
	ListAttendance(ctx context.Context, eventID int64, offset, maxEntries *int) ([]application.User, error)
	FilterAttendance(ctx context.Context, filter application.AttendanceFilter) (application.AttendancePage, error)
	RemoveAttendance(ctx context.Context, eventID int64, email string) error
	AttendancePoints(ctx context.Context, email string, from, to *time.Time) (int, error)
}

// EventHandler serves event listings, event management and attendance.
type EventHandler struct {
	events     eventService
	attendance attendanceService
	now        func() time.Time
	responder  responder
	logger     *slog.Logger
}

func NewEventHandler(events eventService, attendance attendanceService, now func() time.Time, logger *slog.Logger) *EventHandler {
	if now == nil {
		now = time.Now
	}
	base := defaultLogger(logger)
	return &EventHandler{events: events, attendance: attendance, now: now, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

// List filters events with the viewer's access level as the ceiling.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	ceiling := principal.Level()

	q := newQueryParams(r)
	params := application.FilterEventsParams{
		From:          q.optionalTime("from"),
		To:            q.optionalTime("to"),
		AccessCeiling: &ceiling,
		Offset:        q.optionalInt("offset"),
		MaxEntries:    q.optionalInt("max"),
		Direction:     q.direction("direction"),
	}
	if err := q.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	page, err := h.events.FilterEvents(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "event query failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventPageResponse{
		TotalCount: page.TotalCount,
		Results:    toEventDTOs(page.Results),
	})
}

// Get returns one event with its in-progress state and, for signed-in
// viewers, whether they attended.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Get", "event_id", id)
	event, err := h.events.GetEvent(r.Context(), principal, id)
	if err != nil {
		logger.WarnContext(r.Context(), "event lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := eventDetailResponse{
		Event:      toEventDTO(event),
		InProgress: event.InProgress(h.now()),
	}
	if principal.SignedIn() {
		attended, err := h.attendance.HasAttended(r.Context(), id, principal.Email())
		if err != nil {
			logger.WarnContext(r.Context(), "attendance lookup failed", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		resp.Attended = &attended
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Create", "actor", principal.Email())
	event, err := h.events.CreateEvent(r.Context(), principal, input)
	if err != nil {
		logger.WarnContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var req eventPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event patch", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Update", "actor", principal.Email(), "event_id", id)
	event, err := h.events.UpdateEvent(r.Context(), principal, id, patch)
	if err != nil {
		logger.WarnContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Delete", "actor", principal.Email(), "event_id", id)
	if err := h.events.DeleteEvent(r.Context(), principal, id); err != nil {
		logger.WarnContext(r.Context(), "event deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Attend checks the viewer in. Anonymous GET requests, as sent by scanning
// the event's QR code, are sent through sign-in and back.
func (h *EventHandler) Attend(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if !principal.SignedIn() && r.Method == http.MethodGet {
		http.Redirect(w, r, LoginURL("/api/events/"+strconv.FormatInt(id, 10)+"/attend"), http.StatusFound)
		return
	}

	logger := h.log(r.Context(), "Attend", "event_id", id)
	event, err := h.attendance.CheckIn(r.Context(), principal, id)
	if err != nil {
		logger.InfoContext(r.Context(), "check-in rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "checked in")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, checkInResponse{Event: toEventDTO(event), Attended: true})
}

// Attendance lists the check-ins of one event, newest first.
func (h *EventHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	q := newQueryParams(r)
	offset := q.optionalInt("offset")
	maxEntries := q.pageSize(eventAttendancePageSize)
	if err := q.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	page, err := h.attendance.FilterAttendance(r.Context(), application.AttendanceFilter{
		EventIDs:   []int64{id},
		Offset:     offset,
		MaxEntries: maxEntries,
	})
	if err != nil {
		h.log(r.Context(), "Attendance", "event_id", id).WarnContext(r.Context(), "attendance query failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAttendancePageResponse(page))
}

// Attendees returns the event roster in check-in order.
func (h *EventHandler) Attendees(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	q := newQueryParams(r)
	offset := q.optionalInt("offset")
	maxEntries := q.optionalInt("max")
	if err := q.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	users, err := h.attendance.ListAttendance(r.Context(), id, offset, maxEntries)
	if err != nil {
		h.log(r.Context(), "Attendees", "event_id", id).WarnContext(r.Context(), "roster query failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, attendeesResponse{Attendees: toUserDTOs(users)})
}

func (h *EventHandler) RemoveAttendance(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	email := emailParam(r)
	if email == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEmail)
		return
	}

	logger := h.log(r.Context(), "RemoveAttendance", "actor", principal.Email(), "event_id", id, "email", email)
	if err := h.attendance.RemoveAttendance(r.Context(), id, email); err != nil {
		logger.WarnContext(r.Context(), "attendance removal failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attendance removed")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type eventRequest struct {
	Title          string    `json:"title"`
	Location       string    `json:"location"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	CategoryID     *int64    `json:"category_id"`
	MinAccessLevel string    `json:"min_access_level"`
}

func (r eventRequest) toInput() (application.EventInput, error) {
	level := application.AccessNonMember
	if r.MinAccessLevel != "" {
		parsed, err := application.ParseAccessLevel(r.MinAccessLevel)
		if err != nil {
			return application.EventInput{}, err
		}
		level = parsed
	}
	return application.EventInput{
		Title:          r.Title,
		Location:       r.Location,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		CategoryID:     r.CategoryID,
		MinAccessLevel: level,
	}, nil
}

// eventPatchRequest keeps category_id raw so an explicit null can clear the
// category while an absent key leaves it alone.
type eventPatchRequest struct {
	Title          *string         `json:"title"`
	Location       *string         `json:"location"`
	StartDate      *time.Time      `json:"start_date"`
	EndDate        *time.Time      `json:"end_date"`
	CategoryID     json.RawMessage `json:"category_id"`
	MinAccessLevel *string         `json:"min_access_level"`
}

func (r eventPatchRequest) toPatch() (application.EventPatch, error) {
	patch := application.EventPatch{
		Title:     r.Title,
		Location:  r.Location,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}

	switch raw := bytes.TrimSpace(r.CategoryID); {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		patch.ClearCategory = true
	default:
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return application.EventPatch{}, &application.ValidationError{FieldErrors: map[string]string{"category_id": "must be an integer or null"}}
		}
		patch.CategoryID = &id
	}

	if r.MinAccessLevel != nil {
		level, err := application.ParseAccessLevel(*r.MinAccessLevel)
		if err != nil {
			return application.EventPatch{}, err
		}
		patch.MinAccessLevel = &level
	}
	return patch, nil
}

type eventDTO struct {
	ID             int64                   `json:"id"`
	Title          string                  `json:"title"`
	Location       string                  `json:"location"`
	StartDate      string                  `json:"start_date"`
	EndDate        string                  `json:"end_date"`
	CategoryID     *int64                  `json:"category_id"`
	MinAccessLevel application.AccessLevel `json:"min_access_level"`
	CreatedAt      string                  `json:"created_at,omitempty"`
	UpdatedAt      string                  `json:"updated_at,omitempty"`
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type eventDetailResponse struct {
	Event      eventDTO `json:"event"`
	InProgress bool     `json:"in_progress"`
	Attended   *bool    `json:"attended,omitempty"`
}

type eventPageResponse struct {
	TotalCount int        `json:"total_count"`
	Results    []eventDTO `json:"results"`
}

type attendeesResponse struct {
	Attendees []userDTO `json:"attendees"`
}

type checkInResponse struct {
	Event    eventDTO `json:"event"`
	Attended bool     `json:"attended"`
}

type attendanceRecordDTO struct {
	User       userDTO  `json:"user"`
	Event      eventDTO `json:"event"`
	AttendedAt string   `json:"attended_at"`
}

type attendancePageResponse struct {
	TotalCount int                   `json:"total_count"`
	Results    []attendanceRecordDTO `json:"results"`
}

func toEventDTO(event application.Event) eventDTO {
	return eventDTO{
		ID:             event.ID,
		Title:          event.Title,
		Location:       event.Location,
		StartDate:      formatTime(event.StartDate),
		EndDate:        formatTime(event.EndDate),
		CategoryID:     event.CategoryID,
		MinAccessLevel: event.MinAccessLevel,
		CreatedAt:      formatTime(event.CreatedAt),
		UpdatedAt:      formatTime(event.UpdatedAt),
	}
}

func toEventDTOs(events []application.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}

func toAttendancePageResponse(page application.AttendancePage) attendancePageResponse {
	results := make([]attendanceRecordDTO, 0, len(page.Results))
	for _, record := range page.Results {
		results = append(results, attendanceRecordDTO{
			User:       toUserDTO(record.User),
			Event:      toEventDTO(record.Event),
			AttendedAt: formatTime(record.AttendedAt),
		})
	}
	return attendancePageResponse{TotalCount: page.TotalCount, Results: results}
}
