package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/club-portal/internal/application"
)

func decodeBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestEventHandlerList(t *testing.T) {
	t.Parallel()

	t.Run("anonymous viewers are capped at non-member", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events?direction=asc&offset=0&max=10", "", "")

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, h.events.lastParams.AccessCeiling)
		assert.Equal(t, application.AccessNonMember, *h.events.lastParams.AccessCeiling)
		assert.Equal(t, application.SortAscending, h.events.lastParams.Direction)
		require.NotNil(t, h.events.lastParams.MaxEntries)
		assert.Equal(t, 10, *h.events.lastParams.MaxEntries)

		page := decodeBody[eventPageResponse](t, rec.Body.Bytes())
		assert.Equal(t, 1, page.TotalCount)
		require.Len(t, page.Results, 1)
		assert.Equal(t, "Open meeting", page.Results[0].Title)
	})

	t.Run("officers see officer events", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events", "officer", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, application.AccessOfficer, *h.events.lastParams.AccessCeiling)
		assert.Equal(t, 2, decodeBody[eventPageResponse](t, rec.Body.Bytes()).TotalCount)
	})

	t.Run("malformed query parameters are reported together", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events?from=yesterday&offset=abc&direction=up", "", "")

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeBody[errorResponse](t, rec.Body.Bytes())
		assert.Equal(t, "VALIDATION_FAILED", body.ErrorCode)
		assert.Contains(t, body.Errors, "from")
		assert.Contains(t, body.Errors, "offset")
		assert.Contains(t, body.Errors, "direction")
		assert.Zero(t, h.events.filterCalls)
	})
}

func TestEventHandlerGet(t *testing.T) {
	t.Parallel()

	t.Run("reports progress and attendance for signed-in viewers", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events/1", "member", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[eventDetailResponse](t, rec.Body.Bytes())
		assert.True(t, body.InProgress)
		require.NotNil(t, body.Attended)
		assert.True(t, *body.Attended)
		assert.Equal(t, application.AccessNonMember, body.Event.MinAccessLevel)
	})

	t.Run("omits attended for anonymous viewers", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events/1", "", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), `"attended"`)
	})

	t.Run("hidden events are not found", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events/2", "member", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non numeric ids are rejected", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events/abc", "", "")

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestEventHandlerWrites(t *testing.T) {
	t.Parallel()

	const body = `{"title":"Hack night","location":"Lab","start_date":"2026-03-20T18:00:00Z","end_date":"2026-03-20T21:00:00Z","category_id":3,"min_access_level":"member"}`

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "anonymous", token: "", status: http.StatusUnauthorized},
		{name: "member", token: "member", status: http.StatusForbidden},
		{name: "officer", token: "officer", status: http.StatusCreated},
	}
	for _, tc := range tests {
		tc := tc
		t.Run("create as "+tc.name, func(t *testing.T) {
			t.Parallel()
			h := newAPIHarness(t)

			rec := h.do(t, http.MethodPost, "/api/events", tc.token, body)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusCreated {
				assert.Equal(t, "Hack night", h.events.lastInput.Title)
				assert.Equal(t, application.AccessMember, h.events.lastInput.MinAccessLevel)
				require.NotNil(t, h.events.lastInput.CategoryID)
				assert.EqualValues(t, 3, *h.events.lastInput.CategoryID)
			}
		})
	}

	t.Run("unknown fields are a bad request", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodPost, "/api/events", "officer", `{"title":"x","venue":"y"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown access levels fail validation", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodPost, "/api/events", "officer", `{"title":"x","min_access_level":"king"}`)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decodeBody[errorResponse](t, rec.Body.Bytes()).Errors, "access_level")
	})

	t.Run("service validation errors carry field messages", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		h.events.createErr = &application.ValidationError{FieldErrors: map[string]string{"category_id": "unknown category"}}

		rec := h.do(t, http.MethodPost, "/api/events", "officer", body)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "unknown category", decodeBody[errorResponse](t, rec.Body.Bytes()).Errors["category_id"])
	})

	t.Run("patch distinguishes null and absent category", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodPatch, "/api/events/1", "officer", `{"category_id":null}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, h.events.lastPatch.ClearCategory)
		assert.Nil(t, h.events.lastPatch.CategoryID)

		rec = h.do(t, http.MethodPatch, "/api/events/1", "officer", `{"title":"Renamed"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, h.events.lastPatch.ClearCategory)
		assert.Nil(t, h.events.lastPatch.CategoryID)
		require.NotNil(t, h.events.lastPatch.Title)

		rec = h.do(t, http.MethodPatch, "/api/events/1", "officer", `{"category_id":7}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, h.events.lastPatch.CategoryID)
		assert.EqualValues(t, 7, *h.events.lastPatch.CategoryID)

		rec = h.do(t, http.MethodPatch, "/api/events/1", "officer", `{"category_id":"seven"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("delete requires an officer", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodDelete, "/api/events/1", "member", "").Code)
		assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/events/1", "officer", "").Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/api/events/42", "officer", "").Code)
		assert.Equal(t, []int64{1}, h.events.deleted)
	})
}

func TestEventHandlerAttend(t *testing.T) {
	t.Parallel()

	t.Run("anonymous GET is sent through sign-in", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events/1/attend", "", "")

		require.Equal(t, http.StatusFound, rec.Code)
		location := rec.Header().Get("Location")
		assert.True(t, strings.HasPrefix(location, "/api/oauth/login?refer="))
		assert.Contains(t, location, "%2Fapi%2Fevents%2F1%2Fattend")
		assert.Empty(t, h.attendance.checkIns)
	})

	t.Run("anonymous POST is unauthorized", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodPost, "/api/events/1/attend", "", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, h.attendance.checkIns)
	})

	t.Run("signed-in users check in", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodGet, "/api/events/1/attend", "member", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[checkInResponse](t, rec.Body.Bytes()).Attended)
		assert.Equal(t, []int64{1}, h.attendance.checkIns)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "duplicate", err: application.ErrDuplicateAttendance, status: http.StatusConflict, code: "ATTENDANCE_DUPLICATE"},
		{name: "not in progress", err: application.ErrEventNotInProgress, status: http.StatusConflict, code: "EVENT_NOT_IN_PROGRESS"},
		{name: "missing", err: application.ErrNotFound, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "store", err: application.NewStoreError("attend", assert.AnError), status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tc := range errorCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newAPIHarness(t)
			h.attendance.checkInErr = tc.err

			rec := h.do(t, http.MethodPost, "/api/events/1/attend", "member", "")

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeBody[errorResponse](t, rec.Body.Bytes()).ErrorCode)
		})
	}
}

func TestEventHandlerAttendance(t *testing.T) {
	t.Parallel()

	t.Run("officers page through check-ins twenty at a time", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		h.attendance.page = application.AttendancePage{
			TotalCount: 1,
			Results: []application.AttendanceRecord{{
				User:       application.User{Email: "member@example.edu"},
				Event:      application.Event{ID: 1, Title: "Open meeting"},
				AttendedAt: testNow,
			}},
		}

		rec := h.do(t, http.MethodGet, "/api/events/1/attendance?offset=20", "officer", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int64{1}, h.attendance.lastFilter.EventIDs)
		require.NotNil(t, h.attendance.lastFilter.MaxEntries)
		assert.Equal(t, eventAttendancePageSize, *h.attendance.lastFilter.MaxEntries)
		assert.Equal(t, 20, *h.attendance.lastFilter.Offset)

		body := decodeBody[attendancePageResponse](t, rec.Body.Bytes())
		require.Len(t, body.Results, 1)
		assert.Equal(t, "member@example.edu", body.Results[0].User.Email)
		assert.Equal(t, "2026-03-14T18:30:00Z", body.Results[0].AttendedAt)
	})

	t.Run("members cannot read the report", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/api/events/1/attendance", "member", "").Code)
	})

	t.Run("officers read the roster in check-in order", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		h.attendance.roster = []application.User{
			{Email: "first@example.edu", GivenName: "First"},
			{Email: "second@example.edu", GivenName: "Second"},
		}

		rec := h.do(t, http.MethodGet, "/api/events/1/attendees?max=2", "officer", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, h.attendance.rosterPage[0])
		require.NotNil(t, h.attendance.rosterPage[1])
		assert.Equal(t, 2, *h.attendance.rosterPage[1])

		body := decodeBody[attendeesResponse](t, rec.Body.Bytes())
		require.Len(t, body.Attendees, 2)
		assert.Equal(t, "first@example.edu", body.Attendees[0].Email)
		assert.Equal(t, "second@example.edu", body.Attendees[1].Email)

		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/api/events/1/attendees", "member", "").Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/events/9/attendees", "officer", "").Code)
	})

	t.Run("officers remove a check-in by escaped email", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodDelete, "/api/events/1/attendance/member%40example.edu", "officer", "")

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"member@example.edu"}, h.attendance.removed)
	})
}
