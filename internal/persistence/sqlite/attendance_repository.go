package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/club-portal/internal/persistence"
)

// AttendanceRepository implements persistence.AttendanceRepository using SQLite
type AttendanceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewAttendanceRepository creates a new SQLite attendance repository
func NewAttendanceRepository(pool *ConnectionPool) *AttendanceRepository {
	return &AttendanceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

// Attend records a check-in. There is no existence pre-check: the primary
// key rejects a second row with ErrDuplicate and the foreign keys reject
// unknown events or users with ErrForeignKeyViolation.
func (r *AttendanceRepository) Attend(ctx context.Context, attendance persistence.Attendance) error {
	attendedAt := attendance.AttendedAt
	if attendedAt.IsZero() {
		attendedAt = r.now()
	}

	_, err := r.helper.Exec(ctx,
		`INSERT INTO attendance (event_id, user_email, attended_at) VALUES (?, ?, ?)`,
		attendance.EventID, attendance.UserEmail, toMillis(attendedAt),
	)
	return r.mapper.MapError(err)
}

// HasAttended reports whether the attendance row exists.
func (r *AttendanceRepository) HasAttended(ctx context.Context, eventID int64, email string) (bool, error) {
	var exists bool
	err := r.helper.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attendance WHERE event_id = ? AND user_email = ?)`,
		eventID, email,
	).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists, nil
}

// ListAttendees returns the users who attended an event in check-in order.
// Rows whose user no longer exists are skipped.
func (r *AttendanceRepository) ListAttendees(ctx context.Context, eventID int64, offset, limit int) ([]persistence.User, error) {
	offset, limit = clampPage(offset, limit)

	query := `
		SELECT u.email, u.given_name, u.family_name, u.picture_url, u.access_level, u.created_at, u.updated_at
		FROM attendance a
		INNER JOIN users u ON u.email = a.user_email
		WHERE a.event_id = ?
		ORDER BY a.attended_at, u.email
		LIMIT ? OFFSET ?`

	rows, err := r.helper.Query(ctx, query, eventID, limit, offset)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	users := []persistence.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

// RemoveAttendance deletes the attendance row if present.
func (r *AttendanceRepository) RemoveAttendance(ctx context.Context, eventID int64, email string) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM attendance WHERE event_id = ? AND user_email = ?`, eventID, email)
	return r.mapper.MapError(err)
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func attendanceWhere(filter persistence.AttendanceFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.EventIDs) > 0 {
		clauses = append(clauses, "a.event_id IN ("+placeholders(len(filter.EventIDs))+")")
		for _, id := range filter.EventIDs {
			args = append(args, id)
		}
	}
	if len(filter.UserEmails) > 0 {
		clauses = append(clauses, "a.user_email IN ("+placeholders(len(filter.UserEmails))+")")
		for _, email := range filter.UserEmails {
			args = append(args, email)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// FilterAttendance returns attendance joined with users and events, newest
// check-in first, with the total count read in the same transaction.
func (r *AttendanceRepository) FilterAttendance(ctx context.Context, filter persistence.AttendanceFilter) (persistence.AttendancePage, error) {
	where, args := attendanceWhere(filter)
	offset, limit := clampPage(filter.Offset, filter.Limit)

	const from = `
		FROM attendance a
		INNER JOIN users u ON u.email = a.user_email
		INNER JOIN events e ON e.id = a.event_id`

	page := persistence.AttendancePage{Records: []persistence.AttendanceRecord{}}
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		if err := r.helper.QueryRowTx(ctx, tx, `SELECT COUNT(*)`+from+where, args...).Scan(&page.TotalCount); err != nil {
			return r.mapper.MapError(err)
		}
		if page.TotalCount == 0 {
			return nil
		}

		query := `
			SELECT u.email, u.given_name, u.family_name, u.picture_url, u.access_level, u.created_at, u.updated_at,
				e.id, e.title, e.location, e.start_date, e.end_date, e.category_id, e.min_access_level, e.created_at, e.updated_at,
				a.attended_at` + from + where + `
			ORDER BY a.attended_at DESC, a.event_id DESC, a.user_email
			LIMIT ? OFFSET ?`

		rows, err := r.helper.QueryTx(ctx, tx, query, append(args, limit, offset)...)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanAttendanceRecord(rows)
			if err != nil {
				return fmt.Errorf("failed to scan attendance: %w", err)
			}
			page.Records = append(page.Records, record)
		}
		return r.mapper.MapError(rows.Err())
	})
	if err != nil {
		return persistence.AttendancePage{}, err
	}
	return page, nil
}

func scanAttendanceRecord(rows *sql.Rows) (persistence.AttendanceRecord, error) {
	var (
		record                                         persistence.AttendanceRecord
		userCreated, userUpdated                       int64
		startDate, endDate, eventCreated, eventUpdated int64
		categoryID                                     sql.NullInt64
		attendedAt                                     int64
	)
	if err := rows.Scan(
		&record.User.Email,
		&record.User.GivenName,
		&record.User.FamilyName,
		&record.User.PictureURL,
		&record.User.AccessLevel,
		&userCreated,
		&userUpdated,
		&record.Event.ID,
		&record.Event.Title,
		&record.Event.Location,
		&startDate,
		&endDate,
		&categoryID,
		&record.Event.MinAccessLevel,
		&eventCreated,
		&eventUpdated,
		&attendedAt,
	); err != nil {
		return persistence.AttendanceRecord{}, err
	}
	record.User.CreatedAt = fromMillis(userCreated)
	record.User.UpdatedAt = fromMillis(userUpdated)
	record.Event.StartDate = fromMillis(startDate)
	record.Event.EndDate = fromMillis(endDate)
	record.Event.CategoryID = int64Ptr(categoryID)
	record.Event.CreatedAt = fromMillis(eventCreated)
	record.Event.UpdatedAt = fromMillis(eventUpdated)
	record.AttendedAt = fromMillis(attendedAt)
	return record, nil
}

// SumPoints adds up the category points of every event the user attended.
// From and to bound the event start date; events without a category score zero.
func (r *AttendanceRepository) SumPoints(ctx context.Context, email string, from, to *time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(COALESCE(c.points, 0)), 0)
		FROM attendance a
		INNER JOIN events e ON e.id = a.event_id
		LEFT JOIN event_categories c ON c.id = e.category_id
		WHERE a.user_email = ?`
	args := []any{email}
	if from != nil {
		query += ` AND e.start_date >= ?`
		args = append(args, toMillis(*from))
	}
	if to != nil {
		query += ` AND e.start_date < ?`
		args = append(args, toMillis(*to))
	}

	var points int
	if err := r.helper.QueryRow(ctx, query, args...).Scan(&points); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return points, nil
}
