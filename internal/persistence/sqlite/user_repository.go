package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/club-portal/internal/persistence"
)

const userColumns = `email, given_name, family_name, picture_url, access_level, created_at, updated_at`

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&user.Email,
		&user.GivenName,
		&user.FamilyName,
		&user.PictureURL,
		&user.AccessLevel,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.User{}, err
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// CreateUser inserts a new user. An existing email fails with ErrDuplicate.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) (persistence.User, error) {
	if strings.TrimSpace(user.Email) == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}

	now := toMillis(r.now())
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns

	created, err := scanUser(r.helper.QueryRow(ctx, query,
		user.Email,
		user.GivenName,
		user.FamilyName,
		user.PictureURL,
		user.AccessLevel,
		now,
		now,
	))
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return created, nil
}

// UpsertUser inserts the user or refreshes the profile columns of the
// existing row. The stored access level of an existing row is never changed.
func (r *UserRepository) UpsertUser(ctx context.Context, user persistence.User) (persistence.User, error) {
	if strings.TrimSpace(user.Email) == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}

	now := toMillis(r.now())
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			given_name = excluded.given_name,
			family_name = excluded.family_name,
			picture_url = excluded.picture_url,
			updated_at = excluded.updated_at
		RETURNING ` + userColumns

	stored, err := scanUser(r.helper.QueryRow(ctx, query,
		user.Email,
		user.GivenName,
		user.FamilyName,
		user.PictureURL,
		user.AccessLevel,
		now,
		now,
	))
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return stored, nil
}

// GetUser retrieves a user by email
func (r *UserRepository) GetUser(ctx context.Context, email string) (persistence.User, error) {
	if email == "" {
		return persistence.User{}, persistence.ErrNotFound
	}

	user, err := scanUser(r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// UpdateUser applies the non-nil fields of patch.
func (r *UserRepository) UpdateUser(ctx context.Context, email string, patch persistence.UserPatch) (persistence.User, error) {
	if patch.Empty() {
		return r.GetUser(ctx, email)
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if patch.GivenName != nil {
		sets = append(sets, "given_name = ?")
		args = append(args, *patch.GivenName)
	}
	if patch.FamilyName != nil {
		sets = append(sets, "family_name = ?")
		args = append(args, *patch.FamilyName)
	}
	if patch.PictureURL != nil {
		sets = append(sets, "picture_url = ?")
		args = append(args, *patch.PictureURL)
	}
	if patch.AccessLevel != nil {
		sets = append(sets, "access_level = ?")
		args = append(args, *patch.AccessLevel)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(r.now()), email)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE email = ? RETURNING ` + userColumns

	updated, err := scanUser(r.helper.QueryRow(ctx, query, args...))
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return updated, nil
}

// ListUsers returns users ordered by email.
func (r *UserRepository) ListUsers(ctx context.Context, offset, limit int) ([]persistence.User, error) {
	offset, limit = clampPage(offset, limit)

	rows, err := r.helper.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

// DeleteUser removes a user together with their sessions and attendance.
func (r *UserRepository) DeleteUser(ctx context.Context, email string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM users WHERE email = ?`, email)
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
