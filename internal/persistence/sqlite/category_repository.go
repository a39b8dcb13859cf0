package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/club-portal/internal/persistence"
)

// CategoryRepository implements persistence.CategoryRepository using SQLite
type CategoryRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewCategoryRepository creates a new SQLite category repository
func NewCategoryRepository(pool *ConnectionPool) *CategoryRepository {
	return &CategoryRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

func scanCategory(row rowScanner) (persistence.EventCategory, error) {
	var category persistence.EventCategory
	if err := row.Scan(&category.ID, &category.Name, &category.Points); err != nil {
		return persistence.EventCategory{}, err
	}
	return category, nil
}

// CreateCategory inserts a category and returns it with its assigned ID.
func (r *CategoryRepository) CreateCategory(ctx context.Context, category persistence.EventCategory) (persistence.EventCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return persistence.EventCategory{}, persistence.ErrConstraintViolation
	}

	created, err := scanCategory(r.helper.QueryRow(ctx,
		`INSERT INTO event_categories (name, points) VALUES (?, ?) RETURNING id, name, points`,
		category.Name, category.Points,
	))
	if err != nil {
		return persistence.EventCategory{}, r.mapper.MapError(err)
	}
	return created, nil
}

// GetCategory retrieves a category by ID
func (r *CategoryRepository) GetCategory(ctx context.Context, id int64) (persistence.EventCategory, error) {
	category, err := scanCategory(r.helper.QueryRow(ctx,
		`SELECT id, name, points FROM event_categories WHERE id = ?`, id,
	))
	if err != nil {
		return persistence.EventCategory{}, r.mapper.MapError(err)
	}
	return category, nil
}

// ListCategories returns all categories ordered by ID.
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]persistence.EventCategory, error) {
	rows, err := r.helper.Query(ctx, `SELECT id, name, points FROM event_categories ORDER BY id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var categories []persistence.EventCategory
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return categories, nil
}

// UpdateCategory applies the non-nil fields of patch.
func (r *CategoryRepository) UpdateCategory(ctx context.Context, id int64, patch persistence.CategoryPatch) (persistence.EventCategory, error) {
	if patch.Name == nil && patch.Points == nil {
		return r.GetCategory(ctx, id)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return persistence.EventCategory{}, persistence.ErrConstraintViolation
	}

	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Points != nil {
		sets = append(sets, "points = ?")
		args = append(args, *patch.Points)
	}
	args = append(args, id)

	updated, err := scanCategory(r.helper.QueryRow(ctx,
		`UPDATE event_categories SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING id, name, points`,
		args...,
	))
	if err != nil {
		return persistence.EventCategory{}, r.mapper.MapError(err)
	}
	return updated, nil
}

// DeleteCategory removes a category. Events referencing it lose their category.
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id int64) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM event_categories WHERE id = ?`, id)
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
