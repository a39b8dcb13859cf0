package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/club-portal/internal/application"
)

// queryParams collects parse failures for query string values so a request
// reports every bad parameter at once.
type queryParams struct {
	values url.Values
	errs   *application.ValidationError
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query(), errs: &application.ValidationError{}}
}

func (q *queryParams) fail(name, message string) {
	if q.errs.FieldErrors == nil {
		q.errs.FieldErrors = make(map[string]string)
	}
	q.errs.FieldErrors[name] = message
}

func (q *queryParams) optionalInt(name string) *int {
	raw := strings.TrimSpace(q.values.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(name, "must be an integer")
		return nil
	}
	return &v
}

func (q *queryParams) optionalTime(name string) *time.Time {
	raw := strings.TrimSpace(q.values.Get(name))
	if raw == "" {
		return nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.fail(name, "must be an RFC 3339 timestamp")
		return nil
	}
	return &v
}

func (q *queryParams) direction(name string) application.SortDirection {
	direction, err := application.ParseSortDirection(q.values.Get(name))
	if err != nil {
		q.fail(name, "must be asc or desc")
	}
	return direction
}

func (q *queryParams) err() error {
	if q.errs.HasErrors() {
		return q.errs
	}
	return nil
}

// pageSize returns the max query value, or fallback when absent.
func (q *queryParams) pageSize(fallback int) *int {
	if v := q.optionalInt("max"); v != nil {
		return v
	}
	return &fallback
}

// idParam parses the numeric {id} path parameter.
func idParam(r *http.Request) (int64, error) {
	return application.ParseEventID(chi.URLParam(r, "id"))
}

func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.TrimSpace(raw)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
