package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/club-portal/internal/persistence"
)

const newsColumns = `id, title, body, author_email, published_at, min_access_level, created_at, updated_at`

// NewsRepository implements persistence.NewsRepository using SQLite
type NewsRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewNewsRepository creates a new SQLite news repository
func NewNewsRepository(pool *ConnectionPool) *NewsRepository {
	return &NewsRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

func scanNews(row rowScanner) (persistence.News, error) {
	var (
		news                              persistence.News
		author                            sql.NullString
		publishedAt, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&news.ID,
		&news.Title,
		&news.Body,
		&author,
		&publishedAt,
		&news.MinAccessLevel,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.News{}, err
	}
	news.AuthorEmail = stringPtr(author)
	news.PublishedAt = fromMillis(publishedAt)
	news.CreatedAt = fromMillis(createdAt)
	news.UpdatedAt = fromMillis(updatedAt)
	return news, nil
}

// CreateNews inserts a news post. A zero PublishedAt publishes it now.
func (r *NewsRepository) CreateNews(ctx context.Context, news persistence.News) (persistence.News, error) {
	if strings.TrimSpace(news.Title) == "" {
		return persistence.News{}, persistence.ErrConstraintViolation
	}

	now := r.now()
	publishedAt := news.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}

	query := `
		INSERT INTO news (title, body, author_email, published_at, min_access_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + newsColumns

	created, err := scanNews(r.helper.QueryRow(ctx, query,
		news.Title,
		news.Body,
		nullableString(news.AuthorEmail),
		toMillis(publishedAt),
		news.MinAccessLevel,
		toMillis(now),
		toMillis(now),
	))
	if err != nil {
		return persistence.News{}, r.mapper.MapError(err)
	}
	return created, nil
}

// GetNews retrieves a news post by ID
func (r *NewsRepository) GetNews(ctx context.Context, id int64) (persistence.News, error) {
	news, err := scanNews(r.helper.QueryRow(ctx, `SELECT `+newsColumns+` FROM news WHERE id = ?`, id))
	if err != nil {
		return persistence.News{}, r.mapper.MapError(err)
	}
	return news, nil
}

// UpdateNews applies the non-nil fields of patch.
func (r *NewsRepository) UpdateNews(ctx context.Context, id int64, patch persistence.NewsPatch) (persistence.News, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *patch.Body)
	}
	if patch.PublishedAt != nil {
		sets = append(sets, "published_at = ?")
		args = append(args, toMillis(*patch.PublishedAt))
	}
	if patch.MinAccessLevel != nil {
		sets = append(sets, "min_access_level = ?")
		args = append(args, *patch.MinAccessLevel)
	}
	if len(sets) == 0 {
		return r.GetNews(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(r.now()), id)

	updated, err := scanNews(r.helper.QueryRow(ctx,
		`UPDATE news SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+newsColumns,
		args...,
	))
	if err != nil {
		return persistence.News{}, r.mapper.MapError(err)
	}
	return updated, nil
}

// DeleteNews removes a news post.
func (r *NewsRepository) DeleteNews(ctx context.Context, id int64) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM news WHERE id = ?`, id)
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

// ListNews returns the feed newest first. Before keeps posts published
// strictly earlier, which also hides posts scheduled for later.
func (r *NewsRepository) ListNews(ctx context.Context, filter persistence.NewsFilter) ([]persistence.News, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Before != nil {
		clauses = append(clauses, "published_at < ?")
		args = append(args, toMillis(*filter.Before))
	}
	if filter.AccessCeiling != nil {
		clauses = append(clauses, "min_access_level <= ?")
		args = append(args, *filter.AccessCeiling)
	}

	query := `SELECT ` + newsColumns + ` FROM news`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	offset, limit := clampPage(filter.Offset, filter.Limit)
	query += ` ORDER BY published_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	feed := []persistence.News{}
	for rows.Next() {
		news, err := scanNews(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan news: %w", err)
		}
		feed = append(feed, news)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return feed, nil
}
