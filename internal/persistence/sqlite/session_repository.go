package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/club-portal/internal/persistence"
)

const sessionColumns = `token, user_email, credentials, expires_at, created_at, updated_at`

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                         persistence.Session
		credentials                     string
		expiresAt, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&session.Token,
		&session.UserEmail,
		&credentials,
		&expiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Session{}, err
	}

	creds, err := decodeCredentials(credentials)
	if err != nil {
		return persistence.Session{}, err
	}
	session.Credentials = creds
	session.ExpiresAt = fromMillis(expiresAt)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	return session, nil
}

func encodeCredentials(creds persistence.Credentials) (string, error) {
	if creds == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("failed to encode credentials: %w", err)
	}
	return string(encoded), nil
}

func decodeCredentials(raw string) (persistence.Credentials, error) {
	creds := persistence.Credentials{}
	if strings.TrimSpace(raw) == "" {
		return creds, nil
	}
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}

// CreateSession stores a new session. A token that already exists fails
// with ErrDuplicate and an unknown user with ErrForeignKeyViolation.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if strings.TrimSpace(session.Token) == "" || session.UserEmail == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	credentials, err := encodeCredentials(session.Credentials)
	if err != nil {
		return persistence.Session{}, err
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING ` + sessionColumns

	created, err := scanSession(r.helper.QueryRow(ctx, query,
		session.Token,
		session.UserEmail,
		credentials,
		toMillis(session.ExpiresAt),
		toMillis(createdAt),
		toMillis(createdAt),
	))
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return created, nil
}

// GetSession retrieves a session by its token value
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	if strings.TrimSpace(token) == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	session, err := scanSession(r.helper.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// ExtendSession sets a new expiry on a session that is still valid at now.
// An expired or missing session is left alone and reported as ErrNotFound,
// so a concurrent resolve can never bring an expired session back.
func (r *SessionRepository) ExtendSession(ctx context.Context, token string, expiresAt, now time.Time) (persistence.Session, error) {
	query := `
		UPDATE sessions
		SET expires_at = ?, updated_at = ?
		WHERE token = ? AND expires_at >= ?
		RETURNING ` + sessionColumns

	session, err := scanSession(r.helper.QueryRow(ctx, query,
		toMillis(expiresAt),
		toMillis(now),
		token,
		toMillis(now),
	))
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// MergeSessionCredentials overwrites the stored credential keys present in
// update and keeps the rest. The read and the write share one transaction.
func (r *SessionRepository) MergeSessionCredentials(ctx context.Context, token string, update persistence.Credentials, now time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var raw string
		err := r.helper.QueryRowTx(ctx, tx, `SELECT credentials FROM sessions WHERE token = ?`, token).Scan(&raw)
		if err != nil {
			return r.mapper.MapError(err)
		}

		current, err := decodeCredentials(raw)
		if err != nil {
			return err
		}

		merged, err := encodeCredentials(current.Merge(update))
		if err != nil {
			return err
		}

		if _, err := r.helper.ExecTx(ctx, tx,
			`UPDATE sessions SET credentials = ?, updated_at = ? WHERE token = ?`,
			merged, toMillis(now), token,
		); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// DeleteSession removes a session. Deleting an unknown token is not an error.
func (r *SessionRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.helper.Exec(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeleteExpiredSession removes the session only if it expired by now. Expiry
// is stored in milliseconds, so a session expiring within the millisecond of
// now counts as expired.
func (r *SessionRepository) DeleteExpiredSession(ctx context.Context, token string, now time.Time) error {
	if _, err := r.helper.Exec(ctx, `DELETE FROM sessions WHERE token = ? AND expires_at <= ?`, token, toMillis(now)); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}
