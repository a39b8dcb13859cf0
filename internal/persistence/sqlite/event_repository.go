package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/club-portal/internal/persistence"
)

const eventColumns = `id, title, location, start_date, end_date, category_id, min_access_level, created_at, updated_at`

// EventRepository implements persistence.EventRepository using SQLite
type EventRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewEventRepository creates a new SQLite event repository
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event                                    persistence.Event
		categoryID                               sql.NullInt64
		startDate, endDate, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Location,
		&startDate,
		&endDate,
		&categoryID,
		&event.MinAccessLevel,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Event{}, err
	}
	event.StartDate = fromMillis(startDate)
	event.EndDate = fromMillis(endDate)
	event.CategoryID = int64Ptr(categoryID)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	return event, nil
}

// CreateEvent inserts an event and returns it with its assigned ID. A
// category that does not exist fails with ErrForeignKeyViolation.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	if strings.TrimSpace(event.Title) == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}

	now := toMillis(r.now())
	query := `
		INSERT INTO events (title, location, start_date, end_date, category_id, min_access_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + eventColumns

	created, err := scanEvent(r.helper.QueryRow(ctx, query,
		event.Title,
		event.Location,
		toMillis(event.StartDate),
		toMillis(event.EndDate),
		nullableInt64(event.CategoryID),
		event.MinAccessLevel,
		now,
		now,
	))
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return created, nil
}

// GetEvent retrieves an event by ID
func (r *EventRepository) GetEvent(ctx context.Context, id int64) (persistence.Event, error) {
	event, err := scanEvent(r.helper.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return event, nil
}

// UpdateEvent applies the non-nil fields of patch.
func (r *EventRepository) UpdateEvent(ctx context.Context, id int64, patch persistence.EventPatch) (persistence.Event, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *patch.Location)
	}
	if patch.StartDate != nil {
		sets = append(sets, "start_date = ?")
		args = append(args, toMillis(*patch.StartDate))
	}
	if patch.EndDate != nil {
		sets = append(sets, "end_date = ?")
		args = append(args, toMillis(*patch.EndDate))
	}
	if patch.ClearCategory {
		sets = append(sets, "category_id = NULL")
	} else if patch.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, *patch.CategoryID)
	}
	if patch.MinAccessLevel != nil {
		sets = append(sets, "min_access_level = ?")
		args = append(args, *patch.MinAccessLevel)
	}
	if len(sets) == 0 {
		return r.GetEvent(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(r.now()), id)

	query := `UPDATE events SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + eventColumns

	updated, err := scanEvent(r.helper.QueryRow(ctx, query, args...))
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return updated, nil
}

// DeleteEvent removes an event and its attendance rows.
func (r *EventRepository) DeleteEvent(ctx context.Context, id int64) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// eventWhere renders the filter predicates shared by the count and page queries.
func eventWhere(filter persistence.EventFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.From != nil {
		clauses = append(clauses, "end_date > ?")
		args = append(args, toMillis(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "end_date <= ?")
		args = append(args, toMillis(*filter.To))
	}
	if filter.AccessCeiling != nil {
		clauses = append(clauses, "min_access_level <= ?")
		args = append(args, *filter.AccessCeiling)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// FilterEvents returns the total number of matching events and one page of
// them. Both reads share a single read transaction.
func (r *EventRepository) FilterEvents(ctx context.Context, filter persistence.EventFilter) (persistence.EventPage, error) {
	where, args := eventWhere(filter)
	offset, limit := clampPage(filter.Offset, filter.Limit)

	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}

	page := persistence.EventPage{Events: []persistence.Event{}}
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		if err := r.helper.QueryRowTx(ctx, tx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&page.TotalCount); err != nil {
			return r.mapper.MapError(err)
		}
		if page.TotalCount == 0 {
			return nil
		}

		query := `SELECT ` + eventColumns + ` FROM events` + where +
			` ORDER BY start_date ` + direction + `, id ` + direction + ` LIMIT ? OFFSET ?`
		rows, err := r.helper.QueryTx(ctx, tx, query, append(args, limit, offset)...)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer rows.Close()

		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				return fmt.Errorf("failed to scan event: %w", err)
			}
			page.Events = append(page.Events, event)
		}
		return r.mapper.MapError(rows.Err())
	})
	if err != nil {
		return persistence.EventPage{}, err
	}
	return page, nil
}
